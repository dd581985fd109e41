package store

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"emochat/internal/models"
	"emochat/internal/redis"
)

const (
	settingCacheTTL = 10 * time.Minute
	summaryCacheTTL = 30 * time.Minute

	settingKeyPrefix = "emochat:setting:"
	summaryKeyPrefix = "emochat:summary:"
)

// CachedStore layers a redis cache over another Store for settings
// and latest summaries. Cache failures fall through to the backing
// store so redis outages never break requests.
type CachedStore struct {
	Store
	cache *redis.Client
}

func NewCachedStore(inner Store, cache *redis.Client) *CachedStore {
	return &CachedStore{Store: inner, cache: cache}
}

func (s *CachedStore) GetSetting(ctx context.Context, key string) (string, error) {
	cacheKey := settingKeyPrefix + key
	if val, err := s.cache.Get(ctx, cacheKey); err == nil {
		return val, nil
	} else if !errors.Is(err, redis.ErrCacheMiss) {
		log.Printf("setting cache read failed for %s: %v", key, err)
	}

	val, err := s.Store.GetSetting(ctx, key)
	if err != nil {
		return "", err
	}
	if err := s.cache.Set(ctx, cacheKey, val, settingCacheTTL); err != nil {
		log.Printf("setting cache write failed for %s: %v", key, err)
	}
	return val, nil
}

func (s *CachedStore) SetSetting(ctx context.Context, key string, value string) error {
	if err := s.Store.SetSetting(ctx, key, value); err != nil {
		return err
	}
	if err := s.cache.Del(ctx, settingKeyPrefix+key); err != nil {
		log.Printf("setting cache invalidate failed for %s: %v", key, err)
	}
	return nil
}

func (s *CachedStore) GetLatestSummary(ctx context.Context, conversationID string) (*models.ConversationSummary, error) {
	cacheKey := summaryKeyPrefix + conversationID
	if val, err := s.cache.Get(ctx, cacheKey); err == nil {
		var summary models.ConversationSummary
		if err := json.Unmarshal([]byte(val), &summary); err == nil {
			return &summary, nil
		}
		log.Printf("summary cache decode failed for %s, refetching", conversationID)
	} else if !errors.Is(err, redis.ErrCacheMiss) {
		log.Printf("summary cache read failed for %s: %v", conversationID, err)
	}

	summary, err := s.Store.GetLatestSummary(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(summary); err == nil {
		if err := s.cache.Set(ctx, cacheKey, string(data), summaryCacheTTL); err != nil {
			log.Printf("summary cache write failed for %s: %v", conversationID, err)
		}
	}
	return summary, nil
}

func (s *CachedStore) SaveSummary(ctx context.Context, summary *models.ConversationSummary) error {
	if err := s.Store.SaveSummary(ctx, summary); err != nil {
		return err
	}
	if err := s.cache.Del(ctx, summaryKeyPrefix+summary.ConversationID); err != nil {
		log.Printf("summary cache invalidate failed for %s: %v", summary.ConversationID, err)
	}
	return nil
}

func (s *CachedStore) DeleteConversation(ctx context.Context, id string) error {
	if err := s.Store.DeleteConversation(ctx, id); err != nil {
		return err
	}
	if err := s.cache.Del(ctx, summaryKeyPrefix+id); err != nil {
		log.Printf("summary cache invalidate failed for %s: %v", id, err)
	}
	return nil
}
