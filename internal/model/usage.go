package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// UsageFunction tags the product feature that triggered a provider call.
type UsageFunction string

const (
	FunctionImport   UsageFunction = "import"
	FunctionCotation UsageFunction = "cotation"
)

// UsageStatus tracks the human review outcome of an AI result.
type UsageStatus string

const (
	UsageStatusPending   UsageStatus = "pending"
	UsageStatusValidated UsageStatus = "validated"
	UsageStatusRejected  UsageStatus = "rejected"
)

// ParseUsageStatus validates a review status.
func ParseUsageStatus(s string) (UsageStatus, error) {
	switch UsageStatus(s) {
	case UsageStatusPending, UsageStatusValidated, UsageStatusRejected:
		return UsageStatus(s), nil
	default:
		return "", eris.Errorf("model: unknown usage status %q", s)
	}
}

// UsageEvent is one accounted provider call. Append-only.
type UsageEvent struct {
	ID           string        `json:"id"`
	TenantID     string        `json:"tenant_id"`
	UserID       string        `json:"user_id"`
	CompanyID    string        `json:"company_id,omitempty"`
	Function     UsageFunction `json:"function"`
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
	InputTokens  int64         `json:"input_tokens"`
	OutputTokens int64         `json:"output_tokens"`
	Cost         float64       `json:"cost"`
	Confidence   *int          `json:"confidence,omitempty"`
	Status       UsageStatus   `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
}

// ImportRecord is one document import, kept for volume alerting.
type ImportRecord struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	CompanyID string    `json:"company_id,omitempty"`
	Filename  string    `json:"filename,omitempty"`
	Format    Format    `json:"format"`
	SizeBytes int64     `json:"size_bytes"`
	Engine    Engine    `json:"engine"`
	CreatedAt time.Time `json:"created_at"`
}
