package chat

import (
	"context"
	"errors"
	"log"

	"emochat/internal/llm"
	"emochat/internal/models"
	"emochat/internal/store"
)

// updateSummary folds older history into a cumulative rolling summary.
// It is best-effort: any failure is logged and the turn continues with
// whatever summary state already exists.
func (e *Engine) updateSummary(ctx context.Context, conversationID string, messages []models.Message) {
	previous, err := e.store.GetLatestSummary(ctx, conversationID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Printf("load previous summary for %s: %v", conversationID, err)
		return
	}

	var (
		previousText  string
		previousCount int
	)
	if previous != nil {
		previousText = previous.Summary
		previousCount = previous.MessageCount
	}

	var window []models.Message
	if previous != nil {
		// Summarize only what arrived since the last summary, keeping
		// the tail of recent messages out for verbatim context.
		start := previousCount
		end := len(messages) - e.summaryThreshold/4
		if start < 0 {
			start = 0
		}
		if end > len(messages) {
			end = len(messages)
		}
		if start >= end {
			log.Printf("no messages to summarize for conversation %s", conversationID)
			return
		}
		window = messages[start:end]
	} else {
		end := e.summaryThreshold / 2
		if end > len(messages) {
			end = len(messages)
		}
		if end <= 0 {
			log.Printf("no messages to summarize for conversation %s", conversationID)
			return
		}
		window = messages[:end]
	}

	prompts := make([]llm.PromptMessage, 0, len(window))
	for _, msg := range window {
		prompts = append(prompts, llm.PromptMessage{Role: msg.Role, Content: msg.Content})
	}

	newSummary := e.generator.Summarize(ctx, prompts, previousText)

	covered := len(window) + previousCount
	summary := &models.ConversationSummary{
		ConversationID: conversationID,
		Summary:        newSummary,
		MessageCount:   covered,
	}
	if err := e.store.SaveSummary(ctx, summary); err != nil {
		log.Printf("save summary for %s: %v", conversationID, err)
		return
	}
	log.Printf("updated cumulative summary for conversation %s (%d messages covered)", conversationID, covered)
}
