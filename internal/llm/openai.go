package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// Default model names
const (
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-3-5-sonnet-20241022"
	DefaultGoogleModel    = "gemini-1.5-flash"
	DefaultGroqModel      = "qwen-qwq-32b"

	// GroqBaseURL is Groq's OpenAI-compatible endpoint.
	GroqBaseURL = "https://api.groq.com/openai/v1/"
)

// OpenAI talks to the Chat Completions API. Groq is served by the same adapter
// pointed at its compatible endpoint.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates a chat model backed by openai-go. The SDK handles retries.
func NewOpenAI(apiKey, model, baseURL string, maxRetries int) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("openai API key cannot be empty")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(maxRetries),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(opts...)
	return &OpenAI{client: &client, model: model}, nil
}

// Chat implements ChatModel.
func (o *OpenAI) Chat(ctx context.Context, messages []Message) (ChatOut, error) {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			params = append(params, openai.SystemMessage(m.Content))
		case RoleAssistant:
			params = append(params, openai.AssistantMessage(m.Content))
		default:
			params = append(params, openai.UserMessage(m.Content))
		}
	}

	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(o.model),
		Messages: params,
	})
	if err != nil {
		return ChatOut{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return ChatOut{}, errors.New("openai returned no choices")
	}

	return ChatOut{Text: completion.Choices[0].Message.Content}, nil
}
