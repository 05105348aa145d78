package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/golang/glog"

	"github.com/zhouzirui/city-explorer/internal/config"
	"github.com/zhouzirui/city-explorer/internal/model/chat"
	"github.com/zhouzirui/city-explorer/internal/model/persona"
)

// ErrEmptyUtterance is returned when the new user message is blank.
var ErrEmptyUtterance = errors.New("user message is empty")

// Service encapsulates persona-driven chat generation.
type Service struct {
	chatModel    model.BaseChatModel
	template     prompt.ChatTemplate
	chain        compose.Runnable[map[string]any, *schema.Message]
	prompts      *PersonaPromptManager
	historyLimit int
	stream       bool
}

// NewService creates a service backed by the provider selected in cfg.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel, cfg)
}

// NewServiceWithModel wires an existing chat model into the prompt chain.
func NewServiceWithModel(ctx context.Context, chatModel model.BaseChatModel, cfg config.AIConfig) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel:    chatModel,
		template:     promptTemplate,
		chain:        runnable,
		prompts:      NewPersonaPromptManager(),
		historyLimit: cfg.HistoryLimit,
		stream:       cfg.Stream,
	}, nil
}

// StreamingEnabled 指示是否开启流式输出。
func (s *Service) StreamingEnabled() bool {
	return s.stream
}

// SystemPrompt renders the system instruction for a persona.
func (s *Service) SystemPrompt(p *persona.Persona) string {
	return s.prompts.BuildSystemPrompt(p)
}

// AssemblePrompt returns the ordered payload sent to the model:
// system instruction, prior turns, then the new user message.
func (s *Service) AssemblePrompt(ctx context.Context, p *persona.Persona, history []chat.Message, userMessage string) ([]*schema.Message, error) {
	if strings.TrimSpace(userMessage) == "" {
		return nil, ErrEmptyUtterance
	}
	return s.template.Format(ctx, s.buildChainInput(p, history, userMessage))
}

// GenerateResponse runs one exchange and returns the assistant reply.
func (s *Service) GenerateResponse(ctx context.Context, p *persona.Persona, history []chat.Message, userMessage string) (*schema.Message, error) {
	if strings.TrimSpace(userMessage) == "" {
		return nil, ErrEmptyUtterance
	}

	response, err := s.chain.Invoke(ctx, s.buildChainInput(p, history, userMessage))
	if err != nil {
		return nil, fmt.Errorf("failed to run AI chain: %w", err)
	}

	glog.Infof("[ai] generated response city=%q history=%d length=%d", p.City, len(history), len(response.Content))
	return response, nil
}

// StreamResponse streams the assistant reply chunk by chunk.
func (s *Service) StreamResponse(ctx context.Context, p *persona.Persona, history []chat.Message, userMessage string) (*schema.StreamReader[*schema.Message], error) {
	if !s.StreamingEnabled() {
		return nil, fmt.Errorf("streaming disabled in configuration")
	}
	if strings.TrimSpace(userMessage) == "" {
		return nil, ErrEmptyUtterance
	}

	stream, err := s.chain.Stream(ctx, s.buildChainInput(p, history, userMessage))
	if err != nil {
		return nil, fmt.Errorf("failed to stream AI chain output: %w", err)
	}
	return stream, nil
}

func (s *Service) buildChainInput(p *persona.Persona, history []chat.Message, userMessage string) map[string]any {
	return map[string]any{
		"system":  s.SystemPrompt(p),
		"history": s.buildHistoryMessages(history),
		"query":   userMessage,
	}
}

func (s *Service) buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if s.historyLimit > 0 && len(messages) > s.historyLimit {
		startIdx = len(messages) - s.historyLimit
		// 截断后的历史必须以用户消息开头
		for startIdx < len(messages) && messages[startIdx].Role != chat.RoleUser {
			startIdx++
		}
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}

	return history
}
