// Package aiclient integrates the Anthropic Messages API for the generative
// fallback classifier and natural-language command translation.
package aiclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/jonesrussell/catalog-classifier/internal/logger"
)

const (
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 1024
	defaultTimeout   = 30 * time.Second
)

// Config holds the model integration settings.
type Config struct {
	APIKey    string        `env:"ANTHROPIC_API_KEY" yaml:"api_key"`
	Model     string        `yaml:"model"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

// SetDefaults applies default values to the config if not set.
func (c *Config) SetDefaults() {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
}

// messenger is the minimal completion surface, swapped out in tests.
type messenger interface {
	complete(ctx context.Context, prompt string) (string, error)
}

// Client wraps the model integration used by the fallback classifier and the
// command interpreter.
type Client struct {
	messenger messenger
	logger    logger.Logger
}

// New creates a model client backed by the Anthropic SDK.
func New(cfg Config, log logger.Logger) *Client {
	cfg.SetDefaults()
	if log == nil {
		log = logger.NewNop()
	}
	sdk := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Client{
		messenger: &anthropicMessenger{
			client:    sdk,
			model:     cfg.Model,
			maxTokens: int64(cfg.MaxTokens),
			timeout:   cfg.Timeout,
		},
		logger: log,
	}
}

type anthropicMessenger struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
}

func (m *anthropicMessenger) complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	message, err := m.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(m.model),
		MaxTokens: m.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("model call: %w", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}
