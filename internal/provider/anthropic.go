package provider

import (
	"context"

	"github.com/sells-group/riskdoc/internal/config"
	"github.com/sells-group/riskdoc/internal/model"
	"github.com/sells-group/riskdoc/pkg/anthropic"
)

// NameAnthropic is the vendor name of provider B.
const NameAnthropic = "anthropic"

// Claude is provider B: the Anthropic Messages API. It is the higher
// capability engine and runs first for the complete tier.
type Claude struct {
	adapter
	client    anthropic.Client
	maxTokens int64
}

// NewClaude builds provider B. A nil client is created from cfg.
func NewClaude(cfg config.AnthropicConfig, client anthropic.Client) *Claude {
	if client == nil {
		client = anthropic.NewClient(cfg.Key)
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	return &Claude{
		adapter:   newAdapter(NameAnthropic, model.EngineProviderB, cfg.Model, cfg.Key, cfg.MaxInputBytes, cfg.RequestsPerSecond),
		client:    client,
		maxTokens: maxTokens,
	}
}

func (c *Claude) Name() string         { return c.name }
func (c *Claude) Engine() model.Engine { return c.engine }
func (c *Claude) Model() string        { return c.model }

// Structure turns document text into a candidate with one API call.
func (c *Claude) Structure(ctx context.Context, text string, format model.Format) (*Result, error) {
	return c.structure(ctx, text, format, c.call)
}

func (c *Claude) call(ctx context.Context, system, user string) (string, Usage, error) {
	temp := 0.0
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      anthropic.CachedSystem(system),
		Messages:    []anthropic.Message{{Role: "user", Content: user}},
		Temperature: &temp,
	})
	if err != nil {
		return "", Usage{}, err
	}
	// Cache tokens count as input.
	in := resp.Usage.InputTokens + resp.Usage.CacheCreationInputTokens + resp.Usage.CacheReadInputTokens
	return resp.Text(), Usage{InputTokens: in, OutputTokens: resp.Usage.OutputTokens}, nil
}
