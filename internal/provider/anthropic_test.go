package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cloudwego/eino/schema"
)

type fakeMessages struct {
	got  anthropic.MessageNewParams
	resp *anthropic.Message
	err  error
}

func (f *fakeMessages) New(_ context.Context, body anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	f.got = body
	return f.resp, f.err
}

func TestGenerateSplitsSystemAndJoinsText(t *testing.T) {
	fake := &fakeMessages{resp: &anthropic.Message{Content: []anthropic.ContentBlockUnion{
		{Type: "text", Text: "Try "},
		{Type: "text", Text: "Ramiro"},
	}}}
	m := NewAnthropicModel(fake, "claude-test", 0.7, nil, nil)

	out, err := m.Generate(context.Background(), []*schema.Message{
		schema.SystemMessage("You are a guide for Lisbon"),
		schema.UserMessage("hi"),
		schema.AssistantMessage("hello", nil),
		schema.UserMessage("best seafood restaurant"),
	})
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	if out.Content != "Try Ramiro" {
		t.Fatalf("unexpected content %q", out.Content)
	}
	if len(fake.got.System) != 1 || fake.got.System[0].Text != "You are a guide for Lisbon" {
		t.Fatalf("system prompt not forwarded: %+v", fake.got.System)
	}
	if len(fake.got.Messages) != 3 {
		t.Fatalf("expected 3 conversation messages, got %d", len(fake.got.Messages))
	}
	if fake.got.MaxTokens != defaultMaxTokens {
		t.Fatalf("expected default max tokens, got %d", fake.got.MaxTokens)
	}
	if string(fake.got.Model) != "claude-test" {
		t.Fatalf("unexpected model %s", fake.got.Model)
	}
}

func TestGenerateWrapsRequestError(t *testing.T) {
	boom := errors.New("overloaded")
	m := NewAnthropicModel(&fakeMessages{err: boom}, "claude-test", 0.7, nil, nil)

	_, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestGenerateRequiresConversation(t *testing.T) {
	m := NewAnthropicModel(&fakeMessages{}, "claude-test", 0.7, nil, nil)

	if _, err := m.Generate(context.Background(), []*schema.Message{schema.SystemMessage("only system")}); err == nil {
		t.Fatal("expected error without user message")
	}
}
