// Package aitest provides a scripted chat model for tests.
package aitest

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ChatModel replays scripted replies and records every request.
type ChatModel struct {
	mu      sync.Mutex
	replies []string
	Err     error
	Calls   [][]*schema.Message
}

var _ model.BaseChatModel = (*ChatModel)(nil)

// NewChatModel returns a model answering with replies in order. The last
// reply repeats once the script runs out.
func NewChatModel(replies ...string) *ChatModel {
	return &ChatModel{replies: replies}
}

// Generate implements model.BaseChatModel.
func (m *ChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	reply, err := m.next(input)
	if err != nil {
		return nil, err
	}
	return schema.AssistantMessage(reply, nil), nil
}

// Stream implements model.BaseChatModel, splitting the reply into words.
func (m *ChatModel) Stream(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	reply, err := m.next(input)
	if err != nil {
		return nil, err
	}

	var chunks []*schema.Message
	start := 0
	for i := 0; i < len(reply); i++ {
		if reply[i] == ' ' {
			chunks = append(chunks, schema.AssistantMessage(reply[start:i+1], nil))
			start = i + 1
		}
	}
	if start < len(reply) || len(chunks) == 0 {
		chunks = append(chunks, schema.AssistantMessage(reply[start:], nil))
	}
	return schema.StreamReaderFromArray(chunks), nil
}

// LastCall returns the most recent request payload.
func (m *ChatModel) LastCall() []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	return m.Calls[len(m.Calls)-1]
}

// CallCount reports how many requests were made.
func (m *ChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

func (m *ChatModel) next(input []*schema.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, input)
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.replies) == 0 {
		return "", nil
	}
	idx := len(m.Calls) - 1
	if idx >= len(m.replies) {
		idx = len(m.replies) - 1
	}
	return m.replies[idx], nil
}
