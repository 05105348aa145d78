package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/city-explorer/internal/provider"
)

// Supported model providers.
const (
	ProviderOpenAI    = "openai"
	ProviderArk       = "ark"
	ProviderAnthropic = "anthropic"
)

// DefaultTemperature matches the sampling temperature of the original guide.
const DefaultTemperature = 0.7

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Console ConsoleConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	console, err := loadConsoleConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Console: console}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr       string
	CORSOrigin string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "5001"
	}

	cors := getEnvOrDefault("CORS_ORIGIN", "http://localhost:5173")

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":5001" 或 "127.0.0.1:5001"。
		return ServerConfig{Addr: port, CORSOrigin: cors}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, CORSOrigin: cors}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider     string
	APIKey       string
	AccessKey    string
	SecretKey    string
	Model        string
	BaseURL      string
	Region       string
	Temperature  float64
	TopP         *float64
	MaxTokens    *int
	HistoryLimit int
	Stream       bool
}

// ConsoleConfig 描述终端会话相关配置。
type ConsoleConfig struct {
	Markdown    bool
	PersonaFile string
}

// CredentialEnv names the environment variable that must hold the provider key.
func (c AIConfig) CredentialEnv() string {
	switch c.Provider {
	case ProviderArk:
		return "ARK_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}

// ModelEnv names the environment variable selecting the model.
func (c AIConfig) ModelEnv() string {
	switch c.Provider {
	case ProviderArk:
		return "ARK_MODEL"
	case ProviderAnthropic:
		return "ANTHROPIC_MODEL"
	default:
		return "OPENAI_MODEL"
	}
}

// MissingEnv returns the first required variable that is unset, or "".
func (c AIConfig) MissingEnv() string {
	hasKey := c.APIKey != ""
	if c.Provider == ProviderArk && c.AccessKey != "" && c.SecretKey != "" {
		hasKey = true
	}
	if !hasKey {
		return c.CredentialEnv()
	}
	if c.Model == "" {
		return c.ModelEnv()
	}
	return ""
}

// ProviderLabel is the human readable provider name used in startup messages.
func (c AIConfig) ProviderLabel() string {
	switch c.Provider {
	case ProviderArk:
		return "Volcengine Ark"
	case ProviderAnthropic:
		return "Anthropic"
	default:
		return "OpenAI"
	}
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.MissingEnv() == ""
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%s credentials or model missing, set %s", c.ProviderLabel(), c.CredentialEnv())
	}

	temperature := float32(c.Temperature)

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	switch c.Provider {
	case ProviderArk:
		return ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:     c.BaseURL,
			Region:      c.Region,
			APIKey:      c.APIKey,
			AccessKey:   c.AccessKey,
			SecretKey:   c.SecretKey,
			Model:       c.Model,
			MaxTokens:   maxTokens,
			Temperature: &temperature,
			TopP:        topP,
		})
	case ProviderAnthropic:
		opts := []option.RequestOption{option.WithAPIKey(c.APIKey)}
		if c.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(c.BaseURL))
		}
		client := anthropic.NewClient(opts...)
		return provider.NewAnthropicModel(&client.Messages, c.Model, c.Temperature, c.TopP, c.MaxTokens), nil
	default:
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      c.APIKey,
			BaseURL:     c.BaseURL,
			Model:       c.Model,
			MaxTokens:   maxTokens,
			Temperature: &temperature,
			TopP:        topP,
		})
	}
}

func loadAIConfig() (AIConfig, error) {
	name := strings.ToLower(getEnvOrDefault("CITYGUIDE_PROVIDER", ProviderOpenAI))
	switch name {
	case ProviderOpenAI, ProviderArk, ProviderAnthropic:
	default:
		return AIConfig{}, fmt.Errorf("invalid CITYGUIDE_PROVIDER value %q", name)
	}

	temperature := DefaultTemperature
	if override, err := parseOptionalFloatEnv("CITYGUIDE_TEMPERATURE"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		temperature = *override
	}

	topP, err := parseOptionalFloatEnv("CITYGUIDE_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("CITYGUIDE_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	historyLimit := 0
	if override, err := parseOptionalIntEnv("CITYGUIDE_HISTORY_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if override != nil && *override > 0 {
		historyLimit = *override
	}

	stream, err := parseBoolEnv("CITYGUIDE_STREAM", true)
	if err != nil {
		return AIConfig{}, err
	}

	cfg := AIConfig{
		Provider:     name,
		Temperature:  temperature,
		TopP:         topP,
		MaxTokens:    maxTokens,
		HistoryLimit: historyLimit,
		Stream:       stream,
	}

	switch name {
	case ProviderArk:
		cfg.APIKey = strings.TrimSpace(os.Getenv("ARK_API_KEY"))
		cfg.AccessKey = strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY"))
		cfg.SecretKey = strings.TrimSpace(os.Getenv("ARK_SECRET_KEY"))
		cfg.Model = strings.TrimSpace(os.Getenv("ARK_MODEL"))
		cfg.BaseURL = getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3")
		cfg.Region = getEnvOrDefault("ARK_REGION", "cn-beijing")
	case ProviderAnthropic:
		cfg.APIKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
		cfg.Model = getEnvOrDefault("ANTHROPIC_MODEL", string(anthropic.ModelClaude3_5HaikuLatest))
		cfg.BaseURL = getEnvOrDefault("ANTHROPIC_BASE_URL", "")
	default:
		cfg.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		cfg.Model = getEnvOrDefault("OPENAI_MODEL", "gpt-3.5-turbo")
		cfg.BaseURL = getEnvOrDefault("OPENAI_BASE_URL", "")
	}

	return cfg, nil
}

func loadConsoleConfig() (ConsoleConfig, error) {
	markdown, err := parseBoolEnv("CITYGUIDE_MARKDOWN", true)
	if err != nil {
		return ConsoleConfig{}, err
	}

	return ConsoleConfig{
		Markdown:    markdown,
		PersonaFile: getEnvOrDefault("CITYGUIDE_PERSONA_FILE", ""),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
