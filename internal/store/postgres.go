package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/riskdoc/internal/db"
	"github.com/sells-group/riskdoc/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// the hot extraction path.
var preparedStatements = map[string]string{
	"insert_usage":  `INSERT INTO usage_events (id, tenant_id, user_id, company_id, function, provider, model, input_tokens, output_tokens, cost, confidence, status, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
	"insert_import": `INSERT INTO imports (id, tenant_id, user_id, company_id, filename, format, size_bytes, engine, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	"sum_usage":     `SELECT COALESCE(SUM(cost), 0) FROM usage_events WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3`,
	"get_sub":       `SELECT tenant_id, plan, billing_mode, active, started_at FROM subscriptions WHERE tenant_id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS usage_events (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id     TEXT NOT NULL,
	user_id       TEXT NOT NULL,
	company_id    TEXT NOT NULL DEFAULT '',
	function      TEXT NOT NULL,
	provider      TEXT NOT NULL,
	model         TEXT NOT NULL,
	input_tokens  BIGINT NOT NULL DEFAULT 0,
	output_tokens BIGINT NOT NULL DEFAULT 0,
	cost          DOUBLE PRECISION NOT NULL DEFAULT 0,
	confidence    INTEGER,
	status        TEXT NOT NULL DEFAULT 'pending',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS imports (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id  TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	company_id TEXT NOT NULL DEFAULT '',
	filename   TEXT NOT NULL DEFAULT '',
	format     TEXT NOT NULL,
	size_bytes BIGINT NOT NULL DEFAULT 0,
	engine     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS subscriptions (
	tenant_id    TEXT PRIMARY KEY,
	plan         TEXT NOT NULL,
	billing_mode TEXT NOT NULL DEFAULT 'monthly',
	active       BOOLEAN NOT NULL DEFAULT true,
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS user_activity (
	user_id       TEXT PRIMARY KEY,
	tenant_id     TEXT NOT NULL,
	last_login_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_usage_tenant_created ON usage_events(tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_usage_status ON usage_events(status);
CREATE INDEX IF NOT EXISTS idx_imports_created ON imports(created_at);
CREATE INDEX IF NOT EXISTS idx_user_activity_tenant ON user_activity(tenant_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) InsertUsage(ctx context.Context, ev *model.UsageEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if ev.Status == "" {
		ev.Status = model.UsageStatusPending
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO usage_events (id, tenant_id, user_id, company_id, function, provider, model, input_tokens, output_tokens, cost, confidence, status, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		ev.ID, ev.TenantID, ev.UserID, ev.CompanyID, string(ev.Function), ev.Provider, ev.Model,
		ev.InputTokens, ev.OutputTokens, ev.Cost, ev.Confidence, string(ev.Status), ev.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert usage")
}

const pgUsageColumns = `id, tenant_id, user_id, company_id, function, provider, model, input_tokens, output_tokens, cost, confidence, status, created_at`

func (s *PostgresStore) GetUsage(ctx context.Context, id string) (*model.UsageEvent, error) {
	ev, err := scanPgUsage(s.pool.QueryRow(ctx,
		`SELECT `+pgUsageColumns+` FROM usage_events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get usage %s", id)
	}
	return ev, nil
}

func (s *PostgresStore) ListUsage(ctx context.Context, filter UsageFilter) ([]model.UsageEvent, error) {
	query := `SELECT ` + pgUsageColumns + ` FROM usage_events WHERE true`
	args := []any{}
	argIdx := 1

	if filter.TenantID != "" {
		query += fmt.Sprintf(` AND tenant_id = $%d`, argIdx)
		args = append(args, filter.TenantID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if !filter.From.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.From)
		argIdx++
	}
	if !filter.To.IsZero() {
		query += fmt.Sprintf(` AND created_at < $%d`, argIdx)
		args = append(args, filter.To)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list usage")
	}
	defer rows.Close()

	var events []model.UsageEvent
	for rows.Next() {
		ev, err := scanPgUsage(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan usage")
		}
		events = append(events, *ev)
	}
	return events, eris.Wrap(rows.Err(), "postgres: list usage iterate")
}

func (s *PostgresStore) UpdateUsageStatus(ctx context.Context, id string, status model.UsageStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE usage_events SET status = $1 WHERE id = $2`,
		string(status), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update usage status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "usage event %s", id)
	}
	return nil
}

func (s *PostgresStore) SumUsageCost(ctx context.Context, tenantID string, from, to time.Time) (float64, error) {
	var total float64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(cost), 0) FROM usage_events WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3`,
		tenantID, from, to,
	).Scan(&total)
	return total, eris.Wrapf(err, "postgres: sum usage cost %s", tenantID)
}

func (s *PostgresStore) CountUsageByTenant(ctx context.Context, from, to time.Time) ([]model.UsageCount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tenant_id, COUNT(*) FROM usage_events
		 WHERE created_at >= $1 AND created_at < $2
		 GROUP BY tenant_id ORDER BY tenant_id`,
		from, to,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count usage")
	}
	defer rows.Close()

	var counts []model.UsageCount
	for rows.Next() {
		var c model.UsageCount
		if err := rows.Scan(&c.TenantID, &c.Count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan usage count")
		}
		counts = append(counts, c)
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count usage iterate")
}

func (s *PostgresStore) RecordImport(ctx context.Context, rec *model.ImportRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO imports (id, tenant_id, user_id, company_id, filename, format, size_bytes, engine, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.TenantID, rec.UserID, rec.CompanyID, rec.Filename, string(rec.Format),
		rec.SizeBytes, string(rec.Engine), rec.CreatedAt,
	)
	return eris.Wrap(err, "postgres: record import")
}

func (s *PostgresStore) ImportStats(ctx context.Context, from, to time.Time) ([]model.ImportStat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, tenant_id, COUNT(*), COALESCE(SUM(size_bytes), 0) FROM imports
		 WHERE created_at >= $1 AND created_at < $2
		 GROUP BY user_id, tenant_id ORDER BY user_id`,
		from, to,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: import stats")
	}
	defer rows.Close()

	var stats []model.ImportStat
	for rows.Next() {
		var st model.ImportStat
		if err := rows.Scan(&st.UserID, &st.TenantID, &st.Count, &st.TotalBytes); err != nil {
			return nil, eris.Wrap(err, "postgres: scan import stat")
		}
		stats = append(stats, st)
	}
	return stats, eris.Wrap(rows.Err(), "postgres: import stats iterate")
}

func (s *PostgresStore) GetSubscription(ctx context.Context, tenantID string) (*model.Subscription, error) {
	var sub model.Subscription
	err := s.pool.QueryRow(ctx,
		`SELECT tenant_id, plan, billing_mode, active, started_at FROM subscriptions WHERE tenant_id = $1`,
		tenantID,
	).Scan(&sub.TenantID, &sub.Plan, &sub.BillingMode, &sub.Active, &sub.StartedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get subscription %s", tenantID)
	}
	return &sub, nil
}

func (s *PostgresStore) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tenant_id, plan, billing_mode, active, started_at FROM subscriptions ORDER BY tenant_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list subscriptions")
	}
	defer rows.Close()

	var subs []model.Subscription
	for rows.Next() {
		var sub model.Subscription
		if err := rows.Scan(&sub.TenantID, &sub.Plan, &sub.BillingMode, &sub.Active, &sub.StartedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan subscription")
		}
		subs = append(subs, sub)
	}
	return subs, eris.Wrap(rows.Err(), "postgres: list subscriptions iterate")
}

func (s *PostgresStore) UpsertSubscriptions(ctx context.Context, subs []model.Subscription) (int64, error) {
	rows := make([][]any, len(subs))
	for i, sub := range subs {
		rows[i] = []any{sub.TenantID, sub.Plan, string(sub.BillingMode), sub.Active, sub.StartedAt}
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "subscriptions",
		Columns:      []string{"tenant_id", "plan", "billing_mode", "active", "started_at"},
		ConflictKeys: []string{"tenant_id"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert subscriptions")
}

func (s *PostgresStore) ListUserActivity(ctx context.Context) ([]model.UserActivity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT a.user_id, a.tenant_id, COALESCE(s.plan, ''), a.last_login_at, COALESCE(s.active, false)
		 FROM user_activity a
		 LEFT JOIN subscriptions s ON s.tenant_id = a.tenant_id
		 ORDER BY a.user_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list user activity")
	}
	defer rows.Close()

	var acts []model.UserActivity
	for rows.Next() {
		var a model.UserActivity
		if err := rows.Scan(&a.UserID, &a.TenantID, &a.Plan, &a.LastLoginAt, &a.Active); err != nil {
			return nil, eris.Wrap(err, "postgres: scan user activity")
		}
		acts = append(acts, a)
	}
	return acts, eris.Wrap(rows.Err(), "postgres: list user activity iterate")
}

func (s *PostgresStore) UpsertUserActivity(ctx context.Context, acts []model.UserActivity) (int64, error) {
	rows := make([][]any, len(acts))
	for i, a := range acts {
		rows[i] = []any{a.UserID, a.TenantID, a.LastLoginAt}
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "user_activity",
		Columns:      []string{"user_id", "tenant_id", "last_login_at"},
		ConflictKeys: []string{"user_id"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert user activity")
}

func scanPgUsage(row pgx.Row) (*model.UsageEvent, error) {
	var ev model.UsageEvent
	err := row.Scan(&ev.ID, &ev.TenantID, &ev.UserID, &ev.CompanyID, &ev.Function, &ev.Provider, &ev.Model,
		&ev.InputTokens, &ev.OutputTokens, &ev.Cost, &ev.Confidence, &ev.Status, &ev.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}
