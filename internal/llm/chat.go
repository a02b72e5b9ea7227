// Package llm adapts hosted language models to the single-call chat interface the review
// gates use.
package llm

import (
	"context"
	"regexp"
	"strings"
)

// ChatModel sends a conversation to a language model and returns its reply.
// Implementations must respect ctx cancellation.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message) (ChatOut, error)
}

// Message is one conversation turn.
type Message struct {
	Role    string
	Content string
}

// Standard roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatOut is a model reply.
type ChatOut struct {
	Text string
}

// UserMessage builds a single user turn.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// CleanOutput removes <think>...</think> reasoning blocks, which may span lines,
// and trims surrounding whitespace.
func CleanOutput(text string) string {
	return strings.TrimSpace(thinkBlock.ReplaceAllString(text, ""))
}

// splitSystem separates system turns from the rest of the conversation.
// Providers that take the system prompt as a request field use it.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}
