package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/riskdoc/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Timestamps are stored as fixed-width UTC text so range filters can
// compare them lexically.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000000"

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS usage_events (
	id            TEXT PRIMARY KEY,
	tenant_id     TEXT NOT NULL,
	user_id       TEXT NOT NULL,
	company_id    TEXT NOT NULL DEFAULT '',
	function      TEXT NOT NULL,
	provider      TEXT NOT NULL,
	model         TEXT NOT NULL,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost          REAL NOT NULL DEFAULT 0,
	confidence    INTEGER,
	status        TEXT NOT NULL DEFAULT 'pending',
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS imports (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	company_id TEXT NOT NULL DEFAULT '',
	filename   TEXT NOT NULL DEFAULT '',
	format     TEXT NOT NULL,
	size_bytes INTEGER NOT NULL DEFAULT 0,
	engine     TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS subscriptions (
	tenant_id    TEXT PRIMARY KEY,
	plan         TEXT NOT NULL,
	billing_mode TEXT NOT NULL DEFAULT 'monthly',
	active       INTEGER NOT NULL DEFAULT 1,
	started_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS user_activity (
	user_id       TEXT PRIMARY KEY,
	tenant_id     TEXT NOT NULL,
	last_login_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_usage_tenant_created ON usage_events(tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_usage_status ON usage_events(status);
CREATE INDEX IF NOT EXISTS idx_imports_created ON imports(created_at);
CREATE INDEX IF NOT EXISTS idx_user_activity_tenant ON user_activity(tenant_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertUsage(ctx context.Context, ev *model.UsageEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if ev.Status == "" {
		ev.Status = model.UsageStatusPending
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_events (id, tenant_id, user_id, company_id, function, provider, model,
			input_tokens, output_tokens, cost, confidence, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.TenantID, ev.UserID, ev.CompanyID, string(ev.Function), ev.Provider, ev.Model,
		ev.InputTokens, ev.OutputTokens, ev.Cost, nullInt(ev.Confidence), string(ev.Status), fmtTime(ev.CreatedAt),
	)
	return eris.Wrap(err, "sqlite: insert usage")
}

const sqliteUsageColumns = `id, tenant_id, user_id, company_id, function, provider, model,
	input_tokens, output_tokens, cost, confidence, status, created_at`

func (s *SQLiteStore) GetUsage(ctx context.Context, id string) (*model.UsageEvent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteUsageColumns+` FROM usage_events WHERE id = ?`, id)
	ev, err := scanUsage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return ev, err
}

func (s *SQLiteStore) ListUsage(ctx context.Context, filter UsageFilter) ([]model.UsageEvent, error) {
	query := `SELECT ` + sqliteUsageColumns + ` FROM usage_events WHERE 1=1`
	var args []any

	if filter.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, filter.TenantID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.From.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, fmtTime(filter.From))
	}
	if !filter.To.IsZero() {
		query += ` AND created_at < ?`
		args = append(args, fmtTime(filter.To))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list usage")
	}
	defer rows.Close()

	var events []model.UsageEvent
	for rows.Next() {
		ev, err := scanUsage(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list usage iterate")
}

func (s *SQLiteStore) UpdateUsageStatus(ctx context.Context, id string, status model.UsageStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE usage_events SET status = ? WHERE id = ?`,
		string(status), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update usage status %s", id)
	}
	return checkRowsAffected(res, "usage event", id)
}

func (s *SQLiteStore) SumUsageCost(ctx context.Context, tenantID string, from, to time.Time) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost), 0) FROM usage_events
		 WHERE tenant_id = ? AND created_at >= ? AND created_at < ?`,
		tenantID, fmtTime(from), fmtTime(to),
	).Scan(&total)
	return total, eris.Wrapf(err, "sqlite: sum usage cost %s", tenantID)
}

func (s *SQLiteStore) CountUsageByTenant(ctx context.Context, from, to time.Time) ([]model.UsageCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tenant_id, COUNT(*) FROM usage_events
		 WHERE created_at >= ? AND created_at < ?
		 GROUP BY tenant_id ORDER BY tenant_id`,
		fmtTime(from), fmtTime(to),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count usage")
	}
	defer rows.Close()

	var counts []model.UsageCount
	for rows.Next() {
		var c model.UsageCount
		if err := rows.Scan(&c.TenantID, &c.Count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan usage count")
		}
		counts = append(counts, c)
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count usage iterate")
}

func (s *SQLiteStore) RecordImport(ctx context.Context, rec *model.ImportRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO imports (id, tenant_id, user_id, company_id, filename, format, size_bytes, engine, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TenantID, rec.UserID, rec.CompanyID, rec.Filename, string(rec.Format),
		rec.SizeBytes, string(rec.Engine), fmtTime(rec.CreatedAt),
	)
	return eris.Wrap(err, "sqlite: record import")
}

func (s *SQLiteStore) ImportStats(ctx context.Context, from, to time.Time) ([]model.ImportStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, tenant_id, COUNT(*), COALESCE(SUM(size_bytes), 0) FROM imports
		 WHERE created_at >= ? AND created_at < ?
		 GROUP BY user_id, tenant_id ORDER BY user_id`,
		fmtTime(from), fmtTime(to),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: import stats")
	}
	defer rows.Close()

	var stats []model.ImportStat
	for rows.Next() {
		var st model.ImportStat
		if err := rows.Scan(&st.UserID, &st.TenantID, &st.Count, &st.TotalBytes); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan import stat")
		}
		stats = append(stats, st)
	}
	return stats, eris.Wrap(rows.Err(), "sqlite: import stats iterate")
}

func (s *SQLiteStore) GetSubscription(ctx context.Context, tenantID string) (*model.Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT tenant_id, plan, billing_mode, active, started_at FROM subscriptions WHERE tenant_id = ?`,
		tenantID,
	)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sub, err
}

func (s *SQLiteStore) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tenant_id, plan, billing_mode, active, started_at FROM subscriptions ORDER BY tenant_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list subscriptions")
	}
	defer rows.Close()

	var subs []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, eris.Wrap(rows.Err(), "sqlite: list subscriptions iterate")
}

func (s *SQLiteStore) UpsertSubscriptions(ctx context.Context, subs []model.Subscription) (int64, error) {
	if len(subs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert subscriptions")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO subscriptions (tenant_id, plan, billing_mode, active, started_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(tenant_id) DO UPDATE SET
			plan = excluded.plan,
			billing_mode = excluded.billing_mode,
			active = excluded.active,
			started_at = excluded.started_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert subscriptions")
	}
	defer stmt.Close()

	var n int64
	for _, sub := range subs {
		if _, err := stmt.ExecContext(ctx, sub.TenantID, sub.Plan, string(sub.BillingMode), sub.Active, fmtTime(sub.StartedAt)); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert subscription %s", sub.TenantID)
		}
		n++
	}
	return n, eris.Wrap(tx.Commit(), "sqlite: commit upsert subscriptions")
}

func (s *SQLiteStore) ListUserActivity(ctx context.Context) ([]model.UserActivity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.user_id, a.tenant_id, COALESCE(s.plan, ''), a.last_login_at, COALESCE(s.active, 0)
		 FROM user_activity a
		 LEFT JOIN subscriptions s ON s.tenant_id = a.tenant_id
		 ORDER BY a.user_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list user activity")
	}
	defer rows.Close()

	var acts []model.UserActivity
	for rows.Next() {
		var a model.UserActivity
		var lastLogin sql.NullString
		if err := rows.Scan(&a.UserID, &a.TenantID, &a.Plan, &lastLogin, &a.Active); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan user activity")
		}
		if lastLogin.Valid {
			t, err := parseTime(lastLogin.String)
			if err != nil {
				return nil, err
			}
			a.LastLoginAt = &t
		}
		acts = append(acts, a)
	}
	return acts, eris.Wrap(rows.Err(), "sqlite: list user activity iterate")
}

func (s *SQLiteStore) UpsertUserActivity(ctx context.Context, acts []model.UserActivity) (int64, error) {
	if len(acts) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert user activity")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO user_activity (user_id, tenant_id, last_login_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			last_login_at = excluded.last_login_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert user activity")
	}
	defer stmt.Close()

	var n int64
	for _, a := range acts {
		var lastLogin any
		if a.LastLoginAt != nil {
			lastLogin = fmtTime(*a.LastLoginAt)
		}
		if _, err := stmt.ExecContext(ctx, a.UserID, a.TenantID, lastLogin); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert user activity %s", a.UserID)
		}
		n++
	}
	return n, eris.Wrap(tx.Commit(), "sqlite: commit upsert user activity")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanUsage(row scannable) (*model.UsageEvent, error) {
	var ev model.UsageEvent
	var confidence sql.NullInt64
	var createdAt string

	err := row.Scan(&ev.ID, &ev.TenantID, &ev.UserID, &ev.CompanyID, &ev.Function, &ev.Provider, &ev.Model,
		&ev.InputTokens, &ev.OutputTokens, &ev.Cost, &confidence, &ev.Status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan usage")
	}

	if confidence.Valid {
		c := int(confidence.Int64)
		ev.Confidence = &c
	}
	if ev.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &ev, nil
}

func scanSubscription(row scannable) (*model.Subscription, error) {
	var sub model.Subscription
	var startedAt string

	err := row.Scan(&sub.TenantID, &sub.Plan, &sub.BillingMode, &sub.Active, &startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan subscription")
	}
	if sub.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	return &sub, nil
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(sqliteTimeLayout, s, time.UTC)
	return t, eris.Wrapf(err, "sqlite: parse time %q", s)
}
