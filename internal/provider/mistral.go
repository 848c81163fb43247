package provider

import (
	"context"

	"github.com/sells-group/riskdoc/internal/config"
	"github.com/sells-group/riskdoc/internal/model"
	"github.com/sells-group/riskdoc/pkg/mistral"
)

// NameMistral is the vendor name of provider A.
const NameMistral = "mistral"

// Mistral is provider A: Mistral chat completions in JSON mode.
type Mistral struct {
	adapter
	client    mistral.Client
	maxTokens int
}

// NewMistral builds provider A. A nil client is created from cfg.
func NewMistral(cfg config.MistralConfig, client mistral.Client) *Mistral {
	if client == nil {
		client = mistral.NewClient(cfg.Key,
			mistral.WithBaseURL(cfg.BaseURL),
			mistral.WithModel(cfg.Model),
		)
	}
	return &Mistral{
		adapter:   newAdapter(NameMistral, model.EngineProviderA, cfg.Model, cfg.Key, cfg.MaxInputBytes, cfg.RequestsPerSecond),
		client:    client,
		maxTokens: cfg.MaxTokens,
	}
}

func (m *Mistral) Name() string         { return m.name }
func (m *Mistral) Engine() model.Engine { return m.engine }
func (m *Mistral) Model() string        { return m.model }

// Structure turns document text into a candidate with one API call.
func (m *Mistral) Structure(ctx context.Context, text string, format model.Format) (*Result, error) {
	return m.structure(ctx, text, format, m.call)
}

func (m *Mistral) call(ctx context.Context, system, user string) (string, Usage, error) {
	temp := 0.0
	req := mistral.ChatCompletionRequest{
		Model: m.model,
		Messages: []mistral.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    &temp,
		ResponseFormat: mistral.JSONObject,
	}
	if m.maxTokens > 0 {
		req.MaxTokens = &m.maxTokens
	}

	resp, err := m.client.ChatCompletion(ctx, req)
	if err != nil {
		return "", Usage{}, err
	}
	return resp.Content(), Usage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}
