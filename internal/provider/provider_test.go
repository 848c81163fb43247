package provider

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/riskdoc/internal/config"
	"github.com/sells-group/riskdoc/internal/model"
	"github.com/sells-group/riskdoc/internal/resilience"
	"github.com/sells-group/riskdoc/pkg/anthropic"
	"github.com/sells-group/riskdoc/pkg/mistral"
)

type mockMistral struct {
	mock.Mock
}

func (m *mockMistral) ChatCompletion(ctx context.Context, req mistral.ChatCompletionRequest) (*mistral.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mistral.ChatCompletionResponse), args.Error(1)
}

type mockClaude struct {
	mock.Mock
}

func (m *mockClaude) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func mistralResp(content string, in, out int64) *mistral.ChatCompletionResponse {
	return &mistral.ChatCompletionResponse{
		ID:      "cmpl-1",
		Choices: []mistral.Choice{{Message: mistral.Message{Role: "assistant", Content: content}}},
		Usage:   mistral.Usage{PromptTokens: in, CompletionTokens: out},
	}
}

func mistralCfg() config.MistralConfig {
	return config.MistralConfig{
		Key:           "mk-test",
		Model:         "mistral-large-latest",
		MaxTokens:     4096,
		MaxInputBytes: 60000,
	}
}

const validAnswer = "Voici le résultat :\n```json\n" + `{
  "company": {"legalName": "ACME", "legalIdentifier": "12345678900012", "address": "  ", "employeeCount": 42},
  "workUnits": [{"name": "Atelier", "description": null, "exposedCount": "12"}, {"name": " "}],
  "risks": [
    {"workUnitName": "Atelier", "hazard": "Chute de hauteur", "frequency": 3, "probability": 7, "severity": 2.5, "control": "2"},
    {"hazard": ""}
  ],
  "measures": [{"description": "Garde-corps", "type": "existing", "relatedRisk": "Chute de hauteur"}],
  "confidence": 150
}` + "\n```"

func TestMistral_Success(t *testing.T) {
	client := &mockMistral{}
	client.On("ChatCompletion", mock.Anything, mock.MatchedBy(func(req mistral.ChatCompletionRequest) bool {
		return req.Model == "mistral-large-latest" &&
			len(req.Messages) == 2 &&
			req.Messages[0].Role == "system" &&
			strings.Contains(req.Messages[1].Content, "Source format: pdf") &&
			req.ResponseFormat != nil && req.ResponseFormat.Type == "json_object" &&
			*req.Temperature == 0 && *req.MaxTokens == 4096
	})).Return(mistralResp(validAnswer, 1500, 300), nil)

	p := NewMistral(mistralCfg(), client)
	assert.Equal(t, NameMistral, p.Name())
	assert.Equal(t, model.EngineProviderA, p.Engine())
	assert.Equal(t, "mistral-large-latest", p.Model())

	res, err := p.Structure(context.Background(), "Raison sociale : ACME", model.FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, Usage{InputTokens: 1500, OutputTokens: 300}, res.Usage)

	c := res.Candidate
	assert.Equal(t, model.EngineProviderA, c.Engine)
	assert.Equal(t, 100, c.Confidence)

	require.NotNil(t, c.Company)
	assert.Equal(t, "ACME", *c.Company.LegalName)
	assert.Equal(t, "12345678900012", *c.Company.LegalIdentifier)
	assert.Nil(t, c.Company.Address)
	assert.Equal(t, 42, *c.Company.EmployeeCount)

	require.Len(t, c.WorkUnits, 1)
	assert.Equal(t, "Atelier", c.WorkUnits[0].Name)
	assert.Equal(t, 12, *c.WorkUnits[0].ExposedCount)

	require.Len(t, c.Risks, 1)
	r := c.Risks[0]
	assert.Equal(t, "Chute de hauteur", r.Hazard)
	assert.Equal(t, 3, *r.Frequency)
	assert.Nil(t, r.Probability, "7 is out of range")
	assert.Nil(t, r.Severity, "2.5 is not an integer")
	assert.Nil(t, r.Control, "strings are not ratings")

	require.Len(t, c.Measures, 1)
	assert.Equal(t, "existing", *c.Measures[0].Type)
	client.AssertExpectations(t)
}

func TestMistral_MissingCredentials(t *testing.T) {
	client := &mockMistral{}
	cfg := mistralCfg()
	cfg.Key = ""

	_, err := NewMistral(cfg, client).Structure(context.Background(), "text", model.FormatWord)
	require.Error(t, err)

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, NameMistral, pe.Provider)
	assert.Nil(t, pe.Usage)
	assert.True(t, errors.Is(err, ErrMissingCredentials))
	client.AssertNotCalled(t, "ChatCompletion", mock.Anything, mock.Anything)
}

func TestMistral_SchemaMismatchCarriesUsage(t *testing.T) {
	tests := []struct {
		name   string
		answer string
	}{
		{"risks not an array", `{"risks": "none"}`},
		{"no known key", `{"foo": 1}`},
		{"no object", `I could not read this document.`},
		{"broken json", `{"risks": [}`},
		{"hazard wrong type", `{"risks": [{"hazard": 12}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockMistral{}
			client.On("ChatCompletion", mock.Anything, mock.Anything).Return(mistralResp(tt.answer, 900, 20), nil)

			_, err := NewMistral(mistralCfg(), client).Structure(context.Background(), "text", model.FormatTabular)
			require.Error(t, err)

			var pe *ProviderError
			require.True(t, errors.As(err, &pe))
			require.NotNil(t, pe.Usage)
			assert.Equal(t, Usage{InputTokens: 900, OutputTokens: 20}, *pe.Usage)
		})
	}
}

func TestMistral_TransportErrorHasNoUsage(t *testing.T) {
	client := &mockMistral{}
	client.On("ChatCompletion", mock.Anything, mock.Anything).
		Return(nil, &mistral.APIError{StatusCode: 503, Body: "overloaded"})

	_, err := NewMistral(mistralCfg(), client).Structure(context.Background(), "text", model.FormatPDF)
	require.Error(t, err)

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Nil(t, pe.Usage)
	assert.True(t, resilience.IsTransient(err))
}

func TestMistral_ClientErrorNotTransient(t *testing.T) {
	client := &mockMistral{}
	client.On("ChatCompletion", mock.Anything, mock.Anything).
		Return(nil, &mistral.APIError{StatusCode: 401, Body: "unauthorized"})

	_, err := NewMistral(mistralCfg(), client).Structure(context.Background(), "text", model.FormatPDF)
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestMistral_TruncatesInput(t *testing.T) {
	cfg := mistralCfg()
	cfg.MaxInputBytes = 100

	var sent string
	client := &mockMistral{}
	client.On("ChatCompletion", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			sent = args.Get(1).(mistral.ChatCompletionRequest).Messages[1].Content
		}).
		Return(mistralResp(`{"risks": []}`, 10, 5), nil)

	_, err := NewMistral(cfg, client).Structure(context.Background(), strings.Repeat("é", 200), model.FormatWord)
	require.NoError(t, err)
	assert.Contains(t, sent, TruncationMarker)
	assert.Contains(t, sent, strings.Repeat("é", 50)+TruncationMarker)
	assert.NotContains(t, sent, strings.Repeat("é", 51))
}

func TestMistral_RateLimitWaitFailure(t *testing.T) {
	cfg := mistralCfg()
	cfg.RequestsPerSecond = 0.001

	client := &mockMistral{}
	client.On("ChatCompletion", mock.Anything, mock.Anything).Return(mistralResp(`{"risks": []}`, 1, 1), nil)

	p := NewMistral(cfg, client)
	_, err := p.Structure(context.Background(), "first", model.FormatPDF)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Structure(ctx, "second", model.FormatPDF)
	require.Error(t, err)

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Nil(t, pe.Usage)
	client.AssertNumberOfCalls(t, "ChatCompletion", 1)
}

func TestClaude_Success(t *testing.T) {
	client := &mockClaude{}
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-sonnet-4-5-20250929" &&
			req.MaxTokens == 8192 &&
			len(req.System) == 1 && req.System[0].CacheControl != nil &&
			req.System[0].Text == SystemPrompt
	})).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: `{"company": {"legalName": "ACME"}, "confidence": 82.6}`}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 40, CacheReadInputTokens: 2000},
	}, nil)

	p := NewClaude(config.AnthropicConfig{Key: "sk-test", Model: "claude-sonnet-4-5-20250929"}, client)
	assert.Equal(t, NameAnthropic, p.Name())
	assert.Equal(t, model.EngineProviderB, p.Engine())

	res, err := p.Structure(context.Background(), "text", model.FormatWord)
	require.NoError(t, err)
	assert.Equal(t, model.EngineProviderB, res.Candidate.Engine)
	assert.Equal(t, 83, res.Candidate.Confidence)
	assert.Equal(t, "ACME", *res.Candidate.Company.LegalName)
	assert.Empty(t, res.Candidate.Risks)
	assert.Equal(t, Usage{InputTokens: 2100, OutputTokens: 40}, res.Usage)
	client.AssertExpectations(t)
}

func TestClaude_APIError(t *testing.T) {
	client := &mockClaude{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, &anthropic.APIError{StatusCode: 529, Message: "overloaded"})

	_, err := NewClaude(config.AnthropicConfig{Key: "sk", Model: "m"}, client).
		Structure(context.Background(), "text", model.FormatWord)
	require.Error(t, err)

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, NameAnthropic, pe.Provider)
	assert.Equal(t, "m", pe.Model)
	assert.Nil(t, pe.Usage)
	assert.Contains(t, err.Error(), "provider anthropic (m)")
}
