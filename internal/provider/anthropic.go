// Package provider adapts model SDKs that have no eino component to the
// eino chat model interface.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const defaultMaxTokens = 1024

// MessageCreator is the subset of the Anthropic messages service the adapter needs.
type MessageCreator interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicModel implements model.BaseChatModel on top of the Messages API.
type AnthropicModel struct {
	messages    MessageCreator
	model       string
	temperature float64
	topP        *float64
	maxTokens   int
}

// NewAnthropicModel returns a chat model sending requests through messages.
func NewAnthropicModel(messages MessageCreator, modelName string, temperature float64, topP *float64, maxTokens *int) *AnthropicModel {
	m := &AnthropicModel{
		messages:    messages,
		model:       modelName,
		temperature: temperature,
		topP:        topP,
		maxTokens:   defaultMaxTokens,
	}
	if maxTokens != nil && *maxTokens > 0 {
		m.maxTokens = *maxTokens
	}
	return m
}

// Generate sends the whole conversation and joins the text blocks of the reply.
func (m *AnthropicModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	params, err := m.buildParams(input, opts...)
	if err != nil {
		return nil, err
	}

	resp, err := m.messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages request: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return schema.AssistantMessage(text.String(), nil), nil
}

// Stream delivers the complete reply as a single chunk.
func (m *AnthropicModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *AnthropicModel) buildParams(input []*schema.Message, opts ...model.Option) (anthropic.MessageNewParams, error) {
	temperature := float32(m.temperature)
	maxTokens := m.maxTokens
	modelName := m.model
	base := &model.Options{
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
		Model:       &modelName,
	}
	if m.topP != nil {
		topP := float32(*m.topP)
		base.TopP = &topP
	}
	options := model.GetCommonOptions(base, opts...)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(*options.Model),
		MaxTokens: int64(*options.MaxTokens),
	}
	if options.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*options.Temperature))
	}
	if options.TopP != nil {
		params.TopP = anthropic.Float(float64(*options.TopP))
	}

	for _, msg := range input {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			params.System = append(params.System, anthropic.TextBlockParam{Text: msg.Content})
		case schema.User:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case schema.Assistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			return params, fmt.Errorf("unsupported message role %q", msg.Role)
		}
	}

	if len(params.Messages) == 0 {
		return params, errors.New("anthropic request needs at least one user message")
	}
	return params, nil
}
