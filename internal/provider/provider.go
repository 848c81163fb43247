// Package provider adapts hosted language models into structuring engines
// that turn extracted document text into a StructuredCandidate.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/riskdoc/internal/model"
	"github.com/sells-group/riskdoc/internal/resilience"
	"github.com/sells-group/riskdoc/pkg/anthropic"
	"github.com/sells-group/riskdoc/pkg/mistral"
)

// ErrMissingCredentials is the cause of a ProviderError raised before any
// call when the adapter has no API key.
var ErrMissingCredentials = eris.New("provider: missing credentials")

// Usage is the token consumption reported by a provider response.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Result is a successful structuring answer.
type Result struct {
	Candidate *model.StructuredCandidate
	Usage     Usage
}

// Provider is one hosted structuring engine.
type Provider interface {
	// Name is the vendor name used for pricing and usage records.
	Name() string
	Engine() model.Engine
	Model() string
	Structure(ctx context.Context, text string, format model.Format) (*Result, error)
}

// ProviderError reports a failed structuring call. Usage is non-nil iff
// the provider answered with token counts.
type ProviderError struct {
	Provider string
	Model    string
	Cause    error
	Usage    *Usage
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s (%s): %v", e.Provider, e.Model, e.Cause)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// caller performs the single vendor request and returns the raw text.
type caller func(ctx context.Context, system, user string) (string, Usage, error)

// adapter holds what both vendors share: credentials, input budget and
// the per-adapter rate limiter.
type adapter struct {
	name          string
	engine        model.Engine
	model         string
	key           string
	maxInputBytes int
	limiter       *rate.Limiter
	log           *zap.Logger
}

func newAdapter(name string, engine model.Engine, modelName, key string, maxInputBytes int, rps float64) adapter {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return adapter{
		name:          name,
		engine:        engine,
		model:         modelName,
		key:           key,
		maxInputBytes: maxInputBytes,
		limiter:       rate.NewLimiter(limit, 1),
		log:           zap.L().With(zap.String("component", "provider"), zap.String("provider", name)),
	}
}

func (a *adapter) fail(cause error, usage *Usage) *ProviderError {
	return &ProviderError{Provider: a.name, Model: a.model, Cause: cause, Usage: usage}
}

// structure runs the shared pipeline: credentials, rate limit, truncation,
// one call, then parse and normalize.
func (a *adapter) structure(ctx context.Context, text string, format model.Format, call caller) (*Result, error) {
	if a.key == "" {
		return nil, a.fail(ErrMissingCredentials, nil)
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, a.fail(eris.Wrap(err, "provider: rate limit wait"), nil)
	}

	body, truncated := Truncate(text, a.maxInputBytes)
	if truncated {
		a.log.Info("provider: input truncated",
			zap.Int("original_bytes", len(text)),
			zap.Int("max_bytes", a.maxInputBytes),
		)
	}

	raw, usage, err := call(ctx, SystemPrompt, UserPrompt(body, format))
	if err != nil {
		return nil, a.fail(classify(err), nil)
	}

	cand, err := ParseCandidate(raw, a.engine)
	if err != nil {
		a.log.Warn("provider: response rejected",
			zap.Error(err),
			zap.Int64("input_tokens", usage.InputTokens),
			zap.Int64("output_tokens", usage.OutputTokens),
		)
		return nil, a.fail(err, &usage)
	}

	a.log.Debug("provider: structured",
		zap.Int("risks", len(cand.Risks)),
		zap.Int("work_units", len(cand.WorkUnits)),
		zap.Int("confidence", cand.Confidence),
		zap.Int64("input_tokens", usage.InputTokens),
		zap.Int64("output_tokens", usage.OutputTokens),
	)
	return &Result{Candidate: cand, Usage: usage}, nil
}

// classify marks vendor HTTP errors with a retryable status as transient.
func classify(err error) error {
	var mErr *mistral.APIError
	if errors.As(err, &mErr) && resilience.IsTransientHTTPStatus(mErr.StatusCode) {
		return resilience.NewTransientError(err, mErr.StatusCode)
	}
	var aErr *anthropic.APIError
	if errors.As(err, &aErr) && resilience.IsTransientHTTPStatus(aErr.StatusCode) {
		return resilience.NewTransientError(err, aErr.StatusCode)
	}
	return err
}
