package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/riskdoc/internal/model"
)

// ErrNotFound is returned when an update targets a missing row.
var ErrNotFound = eris.New("store: not found")

// UsageFilter specifies criteria for listing usage events.
type UsageFilter struct {
	TenantID string            `json:"tenant_id,omitempty"`
	Status   model.UsageStatus `json:"status,omitempty"`
	From     time.Time         `json:"from,omitempty"`
	To       time.Time         `json:"to,omitempty"`
	Limit    int               `json:"limit,omitempty"`
	Offset   int               `json:"offset,omitempty"`
}

// Store defines the persistence interface for usage accounting and the
// account views consumed by billing and monitoring.
type Store interface {
	// Usage events (append-only, status mutated by review)
	InsertUsage(ctx context.Context, ev *model.UsageEvent) error
	GetUsage(ctx context.Context, id string) (*model.UsageEvent, error)
	ListUsage(ctx context.Context, filter UsageFilter) ([]model.UsageEvent, error)
	UpdateUsageStatus(ctx context.Context, id string, status model.UsageStatus) error
	SumUsageCost(ctx context.Context, tenantID string, from, to time.Time) (float64, error)
	CountUsageByTenant(ctx context.Context, from, to time.Time) ([]model.UsageCount, error)

	// Imports
	RecordImport(ctx context.Context, rec *model.ImportRecord) error
	ImportStats(ctx context.Context, from, to time.Time) ([]model.ImportStat, error)

	// Accounts
	GetSubscription(ctx context.Context, tenantID string) (*model.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
	UpsertSubscriptions(ctx context.Context, subs []model.Subscription) (int64, error)
	ListUserActivity(ctx context.Context) ([]model.UserActivity, error)
	UpsertUserActivity(ctx context.Context, acts []model.UserActivity) (int64, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100
