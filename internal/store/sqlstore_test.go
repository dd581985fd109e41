package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"emochat/internal/models"
	"emochat/internal/storage"

	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(db, "sqlite3")
}

func TestCreateAndGetConversation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if conv.ID == "" {
		t.Fatal("expected generated conversation id")
	}

	got, err := s.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if got.ID != conv.ID {
		t.Errorf("got id %q, want %q", got.ID, conv.ID)
	}

	if _, err := s.GetConversation(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing conversation, got %v", err)
	}
}

func TestSaveAndGetMessages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	inputs := []*models.Message{
		{ConversationID: conv.ID, Role: models.RoleUser, Content: "hello"},
		{ConversationID: conv.ID, Role: models.RoleAssistant, Content: "hi there", Emotion: "happy", Sources: []string{"guide.md"}},
		{ConversationID: conv.ID, Role: models.RoleUser, Content: "tell me more"},
	}
	for _, msg := range inputs {
		if err := s.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("save message: %v", err)
		}
	}

	msgs, err := s.GetMessages(ctx, conv.ID, 50)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[0].Content != "hello" || msgs[2].Content != "tell me more" {
		t.Errorf("messages not in chronological order: %q ... %q", msgs[0].Content, msgs[2].Content)
	}
	if msgs[0].Emotion != models.DefaultEmotion {
		t.Errorf("got emotion %q, want default %q", msgs[0].Emotion, models.DefaultEmotion)
	}
	if len(msgs[1].Sources) != 1 || msgs[1].Sources[0] != "guide.md" {
		t.Errorf("sources not round-tripped: %v", msgs[1].Sources)
	}
}

func TestGetMessagesLimitKeepsNewest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "conv-limit")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	contents := []string{"one", "two", "three", "four", "five"}
	for _, c := range contents {
		if err := s.SaveMessage(ctx, &models.Message{ConversationID: conv.ID, Role: models.RoleUser, Content: c}); err != nil {
			t.Fatalf("save message: %v", err)
		}
	}

	msgs, err := s.GetMessages(ctx, conv.ID, 2)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Content != "four" || msgs[1].Content != "five" {
		t.Errorf("limit did not keep newest messages: %q, %q", msgs[0].Content, msgs[1].Content)
	}
}

func TestDeleteConversationCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "conv-del")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if err := s.SaveMessage(ctx, &models.Message{ConversationID: conv.ID, Role: models.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("save message: %v", err)
	}
	if err := s.SaveSummary(ctx, &models.ConversationSummary{ConversationID: conv.ID, Summary: "greeting", MessageCount: 1}); err != nil {
		t.Fatalf("save summary: %v", err)
	}

	if err := s.DeleteConversation(ctx, conv.ID); err != nil {
		t.Fatalf("delete conversation: %v", err)
	}

	count, err := s.CountConversationMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if count != 0 {
		t.Errorf("messages survived delete: %d", count)
	}
	if _, err := s.GetLatestSummary(ctx, conv.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for summary after delete, got %v", err)
	}
	if err := s.DeleteConversation(ctx, conv.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestLatestSummaryWins(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "conv-sum")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, text := range []string{"first summary", "second summary"} {
		if err := s.SaveSummary(ctx, &models.ConversationSummary{
			ConversationID: conv.ID,
			Summary:        text,
			MessageCount:   (i + 1) * 10,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("save summary: %v", err)
		}
	}

	latest, err := s.GetLatestSummary(ctx, conv.ID)
	if err != nil {
		t.Fatalf("get latest summary: %v", err)
	}
	if latest.Summary != "second summary" || latest.MessageCount != 20 {
		t.Errorf("got %q (%d), want second summary (20)", latest.Summary, latest.MessageCount)
	}
}

func TestListAndCountConversations(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if _, err := s.CreateConversation(ctx, id); err != nil {
			t.Fatalf("create conversation %s: %v", id, err)
		}
	}

	total, err := s.CountConversations(ctx)
	if err != nil {
		t.Fatalf("count conversations: %v", err)
	}
	if total != 3 {
		t.Errorf("count = %d, want 3", total)
	}

	page, err := s.ListConversations(ctx, 2, 0)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(page) != 2 {
		t.Errorf("first page size = %d, want 2", len(page))
	}
	rest, err := s.ListConversations(ctx, 2, 2)
	if err != nil {
		t.Fatalf("list conversations offset: %v", err)
	}
	if len(rest) != 1 {
		t.Errorf("second page size = %d, want 1", len(rest))
	}
}

func TestSettings(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.GetSetting(ctx, "system_prompt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unset key, got %v", err)
	}
	if err := s.SetSetting(ctx, "system_prompt", "You are helpful."); err != nil {
		t.Fatalf("set setting: %v", err)
	}
	if err := s.SetSetting(ctx, "system_prompt", "You are concise."); err != nil {
		t.Fatalf("update setting: %v", err)
	}
	val, err := s.GetSetting(ctx, "system_prompt")
	if err != nil {
		t.Fatalf("get setting: %v", err)
	}
	if val != "You are concise." {
		t.Errorf("got %q, want updated value", val)
	}
}
