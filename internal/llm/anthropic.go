package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicMaxTokens = 4096

// Anthropic talks to the Claude Messages API.
type Anthropic struct {
	client *anthropic.Client
	model  string
}

// NewAnthropic creates a chat model backed by anthropic-sdk-go.
func NewAnthropic(apiKey, model, baseURL string, maxRetries int) (*Anthropic, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic API key cannot be empty")
	}
	if model == "" {
		model = DefaultAnthropicModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(maxRetries),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := anthropic.NewClient(opts...)
	return &Anthropic{client: &client, model: model}, nil
}

// Chat implements ChatModel.
func (a *Anthropic) Chat(ctx context.Context, messages []Message) (ChatOut, error) {
	system, turns := splitSystem(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: anthropicMaxTokens,
		Messages:  make([]anthropic.MessageParam, 0, len(turns)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, m := range turns {
		if m.Role == RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
			continue
		}
		params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return ChatOut{}, fmt.Errorf("anthropic messages: %w", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return ChatOut{Text: text.String()}, nil
}
