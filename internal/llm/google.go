package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// generator is the slice of the Gemini client the adapter needs.
type generator interface {
	generate(ctx context.Context, system string, history []Message, prompt string) (string, error)
}

// Google talks to Gemini through generative-ai-go. The client has no built-in retry,
// so New wraps it with WithRetry.
type Google struct {
	client *genai.Client
	gen    generator
}

// NewGoogle creates a Gemini chat model. Call Close when done.
func NewGoogle(ctx context.Context, apiKey, model string) (*Google, error) {
	if apiKey == "" {
		return nil, errors.New("google API key cannot be empty")
	}
	if model == "" {
		model = DefaultGoogleModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}

	return &Google{
		client: client,
		gen:    &geminiGenerator{client: client, model: model},
	}, nil
}

// Close releases the underlying client.
func (g *Google) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Chat implements ChatModel. The final message is sent; earlier turns become chat history.
func (g *Google) Chat(ctx context.Context, messages []Message) (ChatOut, error) {
	system, turns := splitSystem(messages)
	if len(turns) == 0 {
		return ChatOut{}, errors.New("no message to send")
	}

	last := turns[len(turns)-1]
	text, err := g.gen.generate(ctx, system, turns[:len(turns)-1], last.Content)
	if err != nil {
		return ChatOut{}, classifyGoogleError(err)
	}
	return ChatOut{Text: text}, nil
}

type geminiGenerator struct {
	client *genai.Client
	model  string
}

func (g *geminiGenerator) generate(ctx context.Context, system string, history []Message, prompt string) (string, error) {
	model := g.client.GenerativeModel(g.model)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	session := model.StartChat()
	for _, m := range history {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		session.History = append(session.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}

	resp, err := session.SendMessage(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini returned no candidates")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return text.String(), nil
}

// classifyGoogleError marks rate limits and server errors as transient.
func classifyGoogleError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500 {
			return &TransientError{Err: err}
		}
		return fmt.Errorf("gemini: %w", err)
	}

	lower := strings.ToLower(err.Error())
	for _, pattern := range []string{"rate limit", "resource_exhausted", "unavailable", "timeout", "503", "502", "500"} {
		if strings.Contains(lower, pattern) {
			return &TransientError{Err: err}
		}
	}
	return fmt.Errorf("gemini: %w", err)
}
