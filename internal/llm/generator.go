package llm

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"emochat/internal/config"
	"emochat/internal/models"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

// SummaryUnavailable is stored when the provider fails to summarize,
// so later turns still carry a marker instead of stale context.
const SummaryUnavailable = "Conversation summary unavailable"

// Generator produces model output for chat turns and summaries.
type Generator interface {
	// GenerateTurn runs one completion for the given prompt and
	// delivers the parsed chunks on the returned channel, pacing
	// non-final chunks. The channel closes after the final chunk or
	// when ctx is cancelled.
	GenerateTurn(ctx context.Context, messages []PromptMessage) <-chan models.ChatChunk

	// Summarize produces a conversation summary, returning
	// SummaryUnavailable when the provider fails.
	Summarize(ctx context.Context, messages []PromptMessage, previousSummary string) string

	Close() error
}

// ModelGenerator drives an eino chat model.
type ModelGenerator struct {
	chatModel   model.BaseChatModel
	streamDelay time.Duration
}

// NewModelGenerator builds the configured provider's chat model.
func NewModelGenerator(ctx context.Context, cfg *config.Config) (*ModelGenerator, error) {
	provider := cfg.BasicConfig.LLMProvider
	provCfg, ok := cfg.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", provider)
	}

	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   provCfg.Model,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  provCfg.Model,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     provCfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s chat model: %w", provider, err)
	}

	delay := time.Duration(cfg.BasicConfig.StreamDelayMs) * time.Millisecond
	if delay < 0 {
		delay = 0
	}
	return &ModelGenerator{chatModel: chatModel, streamDelay: delay}, nil
}

func (g *ModelGenerator) GenerateTurn(ctx context.Context, messages []PromptMessage) <-chan models.ChatChunk {
	out := make(chan models.ChatChunk)
	go func() {
		defer close(out)

		resp, err := g.chatModel.Generate(ctx, convertMessages(messages))
		if err != nil {
			log.Printf("model generate failed: %v", err)
			select {
			case out <- models.NewErrorChunk(fmt.Sprintf("Error generating response: %v", err)):
			case <-ctx.Done():
			}
			return
		}

		chunks := ParseResponse(resp.Content)
		for i, chunk := range chunks {
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
			if !chunk.IsFinal && i < len(chunks)-1 && g.streamDelay > 0 {
				select {
				case <-time.After(g.streamDelay):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (g *ModelGenerator) Summarize(ctx context.Context, messages []PromptMessage, previousSummary string) string {
	prompt := SummaryPrompt(messages, previousSummary)
	resp, err := g.chatModel.Generate(ctx, []*schema.Message{
		{Role: schema.User, Content: prompt},
	})
	if err != nil {
		log.Printf("summarize failed: %v", err)
		return SummaryUnavailable
	}
	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return SummaryUnavailable
	}
	return summary
}

func (g *ModelGenerator) Close() error {
	return nil
}

func convertMessages(messages []PromptMessage) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		var role schema.RoleType
		switch msg.Role {
		case models.RoleUser:
			role = schema.User
		case models.RoleAssistant:
			role = schema.Assistant
		case models.RoleSystem:
			role = schema.System
		default:
			role = schema.User
		}
		out = append(out, &schema.Message{Role: role, Content: msg.Content})
	}
	return out
}
