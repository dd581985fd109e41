package store

import (
	"context"
	"errors"

	"emochat/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store persists conversations, messages, summaries and admin settings.
type Store interface {
	CreateConversation(ctx context.Context, id string) (*models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context, limit, offset int) ([]models.Conversation, error)
	CountConversations(ctx context.Context) (int, error)
	DeleteConversation(ctx context.Context, id string) error
	CountConversationMessages(ctx context.Context, conversationID string) (int, error)

	SaveMessage(ctx context.Context, msg *models.Message) error
	GetMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)

	SaveSummary(ctx context.Context, summary *models.ConversationSummary) error
	GetLatestSummary(ctx context.Context, conversationID string) (*models.ConversationSummary, error)

	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key string, value string) error

	Close() error
}
