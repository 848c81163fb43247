package model

import "time"

// BillingMode is how a tenant pays for its plan.
type BillingMode string

const (
	BillingMonthly BillingMode = "monthly"
	BillingAnnual  BillingMode = "annual"
)

// Subscription is the tenant's current plan as reported by the
// subscription collaborator.
type Subscription struct {
	TenantID    string      `json:"tenant_id"`
	Plan        string      `json:"plan"`
	BillingMode BillingMode `json:"billing_mode"`
	Active      bool        `json:"active"`
	StartedAt   time.Time   `json:"started_at"`
}

// UserActivity is the last-seen information for a user.
type UserActivity struct {
	UserID      string     `json:"user_id"`
	TenantID    string     `json:"tenant_id"`
	Plan        string     `json:"plan"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	Active      bool       `json:"subscription_active"`
}

// ImportStat aggregates one user's imports over a window.
type ImportStat struct {
	UserID     string `json:"user_id"`
	TenantID   string `json:"tenant_id"`
	Count      int    `json:"count"`
	TotalBytes int64  `json:"total_bytes"`
}

// UsageCount is the number of usage events a tenant produced in a window.
type UsageCount struct {
	TenantID string `json:"tenant_id"`
	Count    int    `json:"count"`
}
