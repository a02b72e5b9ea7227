package llm

import (
	"context"
	"sync"
)

// MockChatModel is a scripted ChatModel for tests and offline runs.
//
//	mock := &MockChatModel{Responses: []ChatOut{{Text: "REJECTED"}, {Text: "APPROVED"}}}
//
// Each call returns the next response; the last one repeats once the script runs out.
type MockChatModel struct {
	Responses []ChatOut

	// Err, if set, is returned instead of a response.
	Err error

	// Calls records the messages of every invocation.
	Calls [][]Message

	mu        sync.Mutex
	callIndex int
}

// Chat implements ChatModel.
func (m *MockChatModel) Chat(ctx context.Context, messages []Message) (ChatOut, error) {
	if ctx.Err() != nil {
		return ChatOut{}, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, messages)

	if m.Err != nil {
		return ChatOut{}, m.Err
	}
	if len(m.Responses) == 0 {
		return ChatOut{}, nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return m.Responses[idx], nil
}

// CallCount returns the number of Chat calls.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastPrompt returns the content of the final message of the most recent call.
func (m *MockChatModel) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return ""
	}
	last := m.Calls[len(m.Calls)-1]
	if len(last) == 0 {
		return ""
	}
	return last[len(last)-1].Content
}
