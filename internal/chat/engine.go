package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"emochat/internal/config"
	"emochat/internal/llm"
	"emochat/internal/models"
	"emochat/internal/rag"
	"emochat/internal/store"
)

// SystemPromptKey is the admin settings key holding the active prompt.
const SystemPromptKey = "prompt"

// SendFunc delivers one chunk to the client. A non-nil error means the
// client is gone and the turn should stop without persisting.
type SendFunc func(models.ChatChunk) error

var errClientGone = errors.New("client disconnected")

// Engine runs the per-message turn pipeline: persist, summarize when
// history grows past the threshold, retrieve context, prompt the
// model, and stream parsed chunks back to the caller.
type Engine struct {
	store            store.Store
	retriever        rag.Retriever
	generator        llm.Generator
	maxHistory       int
	summaryThreshold int
	retrievalResults int
}

func NewEngine(st store.Store, retriever rag.Retriever, generator llm.Generator, cfg config.BasicConfig) *Engine {
	return &Engine{
		store:            st,
		retriever:        retriever,
		generator:        generator,
		maxHistory:       cfg.MaxHistoryMessages,
		summaryThreshold: cfg.SummaryThreshold,
		retrievalResults: cfg.RetrievalResults,
	}
}

// StartConversation resumes the conversation with the given id, or
// creates a new one when the id is empty or unknown.
func (e *Engine) StartConversation(ctx context.Context, id string) (*models.Conversation, error) {
	if id != "" {
		conv, err := e.store.GetConversation(ctx, id)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return e.store.CreateConversation(ctx, id)
}

// HandleUserTurn processes one user message end to end. Failures are
// reported to the client as an error chunk; a disconnect mid-stream
// ends the turn silently without persisting the partial reply.
func (e *Engine) HandleUserTurn(ctx context.Context, conversationID, userText string, send SendFunc) {
	if err := e.runTurn(ctx, conversationID, userText, send); err != nil {
		if errors.Is(err, errClientGone) {
			log.Printf("client disconnected during turn for conversation %s", conversationID)
			return
		}
		log.Printf("error processing message for conversation %s: %v", conversationID, err)
		errChunk := models.NewErrorChunk(fmt.Sprintf("Error processing your message: %v", err))
		if sendErr := send(errChunk); sendErr != nil {
			log.Printf("error sending error message to client: %v", sendErr)
		}
	}
}

func (e *Engine) runTurn(ctx context.Context, conversationID, userText string, send SendFunc) error {
	userMsg := &models.Message{
		ConversationID: conversationID,
		Role:           models.RoleUser,
		Content:        userText,
	}
	if err := e.store.SaveMessage(ctx, userMsg); err != nil {
		return fmt.Errorf("save user message: %w", err)
	}

	messages, err := e.store.GetMessages(ctx, conversationID, e.maxHistory)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	if len(messages) > e.summaryThreshold {
		e.updateSummary(ctx, conversationID, messages)
		// History shrinks once a summary carries the older context.
		messages, err = e.store.GetMessages(ctx, conversationID, e.maxHistory/2)
		if err != nil {
			return fmt.Errorf("load history after summary: %w", err)
		}
	}

	results, err := e.retriever.Search(ctx, userText, e.retrievalResults)
	if err != nil {
		return fmt.Errorf("retrieval search: %w", err)
	}
	contextParts := make([]string, 0, len(results))
	sources := make([]string, 0, len(results))
	for _, result := range results {
		contextParts = append(contextParts, result.Content)
		sources = append(sources, result.ID)
	}
	ragContext := strings.Join(contextParts, "\n")

	systemPrompt, err := e.resolveSystemPrompt(ctx)
	if err != nil {
		return err
	}
	promptParts := []string{systemPrompt}

	latest, err := e.store.GetLatestSummary(ctx, conversationID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load summary: %w", err)
	}
	if latest != nil && strings.TrimSpace(latest.Summary) != "" {
		promptParts = append(promptParts, fmt.Sprintf("Previous conversation summary:\n%s", strings.TrimSpace(latest.Summary)))
	}
	if strings.TrimSpace(ragContext) != "" {
		promptParts = append(promptParts, fmt.Sprintf("Relevant context from documents:\n%s", strings.TrimSpace(ragContext)))
	}

	promptMessages := make([]llm.PromptMessage, 0, len(messages)+1)
	promptMessages = append(promptMessages, llm.PromptMessage{
		Role:    models.RoleSystem,
		Content: strings.Join(promptParts, "\n\n"),
	})
	for _, msg := range messages {
		// History already carries its own system context; skip stored
		// system rows to avoid doubled prompts.
		if msg.Role == models.RoleSystem {
			continue
		}
		promptMessages = append(promptMessages, llm.PromptMessage{Role: msg.Role, Content: msg.Content})
	}

	var delivered []string
	for chunk := range e.generator.GenerateTurn(ctx, promptMessages) {
		if chunk.Metadata == nil {
			chunk.Metadata = map[string]any{}
		}
		chunk.Metadata["conversation_id"] = conversationID
		chunk.Metadata["timestamp"] = time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
		chunk.Metadata["sources"] = sources

		if err := send(chunk); err != nil {
			return errClientGone
		}
		if chunk.Type != models.ChunkTypeError {
			delivered = append(delivered, chunk.Content)
		}
	}

	if len(delivered) > 0 {
		assistantMsg := &models.Message{
			ConversationID: conversationID,
			Role:           models.RoleAssistant,
			Content:        strings.Join(delivered, " "),
			Sources:        sources,
		}
		if err := e.store.SaveMessage(ctx, assistantMsg); err != nil {
			return fmt.Errorf("save assistant message: %w", err)
		}
	}
	return nil
}

// resolveSystemPrompt reads the admin-configured prompt, writing back
// the built-in default when none is set yet.
func (e *Engine) resolveSystemPrompt(ctx context.Context) (string, error) {
	prompt, err := e.store.GetSetting(ctx, SystemPromptKey)
	if err == nil && prompt != "" {
		return prompt, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("load system prompt: %w", err)
	}
	if err := e.store.SetSetting(ctx, SystemPromptKey, llm.BaseSystemPrompt); err != nil {
		return "", fmt.Errorf("persist default system prompt: %w", err)
	}
	return llm.BaseSystemPrompt, nil
}
