package llm

import (
	"context"
	"fmt"

	"launchpad/internal/config"
)

// New builds the chat model selected by cfg.Provider. Callers should close the
// result with Close when done.
func New(ctx context.Context, cfg config.LLMConfig) (ChatModel, error) {
	switch cfg.Provider {
	case "", "mock":
		return &MockChatModel{Responses: []ChatOut{{Text: "APPROVED"}}}, nil
	case "openai":
		return NewOpenAI(cfg.OpenAIKey, cfg.Model, cfg.BaseURL, cfg.MaxRetries)
	case "groq":
		model := cfg.Model
		if model == "" {
			model = DefaultGroqModel
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = GroqBaseURL
		}
		return NewOpenAI(cfg.GroqKey, model, baseURL, cfg.MaxRetries)
	case "anthropic":
		return NewAnthropic(cfg.AnthropicKey, cfg.Model, cfg.BaseURL, cfg.MaxRetries)
	case "google":
		g, err := NewGoogle(ctx, cfg.GoogleKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		return &closingRetry{Retrying: WithRetry(g, cfg.MaxRetries), closer: g}, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

// Close releases model resources if it holds any.
func Close(model ChatModel) error {
	if c, ok := model.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

type closingRetry struct {
	*Retrying
	closer interface{ Close() error }
}

func (c *closingRetry) Close() error {
	return c.closer.Close()
}
