package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"roadplan/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// SQL is a Store over database/sql, backed by Postgres (pgx) or SQLite.
// Queries are written with ? placeholders and rebound for pgx.
type SQL struct {
	db     *sql.DB
	driver string
}

// Open picks the backend from the DSN: postgres:// or postgresql:// use pgx,
// sqlite:// and file: use SQLite.
func Open(dsn string) (*SQL, error) {
	switch driverFor(dsn) {
	case "pgx":
		return NewPostgres(dsn)
	case "sqlite":
		return NewSQLite(strings.TrimPrefix(dsn, "sqlite://"))
	}
	return nil, fmt.Errorf("unsupported database url %q", dsn)
}

func driverFor(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "pgx"
	case strings.HasPrefix(dsn, "sqlite://"), strings.HasPrefix(dsn, "file:"):
		return "sqlite"
	}
	return ""
}

func NewPostgres(dsn string) (*SQL, error) {
	return open("pgx", dsn, nil)
}

// NewSQLite opens the database at path; ":memory:" works for tests.
func NewSQLite(path string) (*SQL, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return open("sqlite", path, func(db *sql.DB) error {
		// One connection: pragmas stick and an in-memory database is not per-conn.
		db.SetMaxOpenConns(1)
		pragmas := []string{
			"PRAGMA foreign_keys = ON",
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
			"PRAGMA busy_timeout = 5000",
		}
		for _, pragma := range pragmas {
			if _, err := db.Exec(pragma); err != nil {
				return fmt.Errorf("failed to set pragma %s: %w", pragma, err)
			}
		}
		return nil
	})
}

func open(driver, dsn string, prepare func(*sql.DB) error) (*SQL, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if prepare != nil {
		if err := prepare(db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}
	return &SQL{db: db, driver: driver}, nil
}

func (s *SQL) Driver() string { return s.driver }

func (s *SQL) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQL) Close() error { return s.db.Close() }

// MigrateDir executes every *.sql file in dir in lexical order.
func (s *SQL) MigrateDir(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		if _, err := s.db.Exec(string(b)); err != nil {
			return fmt.Errorf("migration %s: %w", filepath.Base(f), err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $1..$n for pgx.
func rebind(driver, q string) string {
	if driver != "pgx" {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQL) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, rebind(s.driver, q), args...)
}

func (s *SQL) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, rebind(s.driver, q), args...)
}

func (s *SQL) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, rebind(s.driver, q), args...)
}

func (s *SQL) SavePlan(ctx context.Context, p model.PlanOut) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	res, err := s.exec(ctx, `INSERT INTO plans (id, tenant_id, status, body, created_at, updated_at) VALUES (?,?,?,?,?,?)
        ON CONFLICT (id) DO UPDATE SET status=excluded.status, body=excluded.body, updated_at=excluded.updated_at
        WHERE plans.tenant_id = excluded.tenant_id`, p.ID, p.TenantID, p.Status, string(body), now, now)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQL) GetPlan(ctx context.Context, tenantID, planID string) (model.PlanOut, error) {
	var body string
	err := s.queryRow(ctx, `SELECT body FROM plans WHERE tenant_id=? AND id=?`, tenantID, planID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PlanOut{}, ErrNotFound
	}
	if err != nil {
		return model.PlanOut{}, err
	}
	var p model.PlanOut
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return model.PlanOut{}, err
	}
	return p, nil
}

// ListPlans pages by id; the cursor is the last id returned.
func (s *SQL) ListPlans(ctx context.Context, tenantID, cursor string, limit int) ([]model.PlanOut, string, error) {
	limit = clampLimit(limit)
	rows, err := s.query(ctx, `SELECT id, body FROM plans WHERE tenant_id=? AND id > ? ORDER BY id LIMIT ?`, tenantID, cursor, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.PlanOut{}
	var last string
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, "", err
		}
		var p model.PlanOut
		if err := json.Unmarshal([]byte(body), &p); err != nil {
			return nil, "", fmt.Errorf("plan %s: %w", id, err)
		}
		out = append(out, p)
		last = id
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

func (s *SQL) SavePlanMetrics(ctx context.Context, tenantID, planID string, m model.MetricsOut) error {
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `INSERT INTO plan_metrics (id, tenant_id, plan_id, body, created_at) VALUES (?,?,?,?,?)`,
		uuid.New().String(), tenantID, planID, string(body), time.Now().UnixMilli())
	return err
}

func (s *SQL) ListPlanMetrics(ctx context.Context, tenantID, planID string) ([]PlanMetrics, error) {
	q := `SELECT plan_id, body, created_at FROM plan_metrics WHERE tenant_id=?`
	args := []any{tenantID}
	if planID != "" {
		q += ` AND plan_id=?`
		args = append(args, planID)
	}
	q += ` ORDER BY created_at, id`
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []PlanMetrics{}
	for rows.Next() {
		var pm PlanMetrics
		var body string
		var created int64
		if err := rows.Scan(&pm.PlanID, &body, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(body), &pm.MetricsOut); err != nil {
			return nil, err
		}
		pm.CreatedAt = time.UnixMilli(created).UTC().Format(time.RFC3339)
		out = append(out, pm)
	}
	return out, rows.Err()
}

func (s *SQL) GetOptimizerConfig(ctx context.Context, tenantID string) (map[string]any, error) {
	var body string
	err := s.queryRow(ctx, `SELECT body FROM optimizer_config WHERE tenant_id=?`, tenantID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	cfg := map[string]any{}
	if err := json.Unmarshal([]byte(body), &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *SQL) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg map[string]any) error {
	body, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `INSERT INTO optimizer_config (tenant_id, body, updated_at) VALUES (?,?,?)
        ON CONFLICT (tenant_id) DO UPDATE SET body=excluded.body, updated_at=excluded.updated_at`,
		tenantID, string(body), time.Now().UnixMilli())
	return err
}

// Webhook deliveries

// EnqueueWebhook queues a delivery. Duplicate payloads for the same tenant,
// event and url are dropped and the existing delivery id is returned.
func (s *SQL) EnqueueWebhook(ctx context.Context, tenantID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	dk := computeDedupKey(payload)
	now := time.Now().UnixMilli()
	res, err := s.exec(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key, created_at, updated_at)
        VALUES (?,?,?,?,?,?,?,0,?,?,?,?)
        ON CONFLICT (tenant_id, event_type, url, dedup_key) DO NOTHING`,
		id, tenantID, eventType, url, nullIfEmpty(secret), string(payload), DeliveryPending, now, dk, now, now)
	if err != nil {
		return "", err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		err := s.queryRow(ctx, `SELECT id FROM webhook_deliveries WHERE tenant_id=? AND event_type=? AND url=? AND dedup_key=?`,
			tenantID, eventType, url, dk).Scan(&id)
		if err != nil {
			return "", err
		}
	}
	return id, nil
}

func (s *SQL) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	limit = clampLimit(limit)
	rows, err := s.query(ctx, `SELECT id, tenant_id, event_type, url, COALESCE(secret,''), payload, status, attempts
        FROM webhook_deliveries WHERE status IN (?,?) AND next_attempt_at <= ? ORDER BY next_attempt_at ASC LIMIT ?`,
		DeliveryPending, DeliveryRetry, time.Now().UnixMilli(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		var payload string
		if err := rows.Scan(&d.ID, &d.TenantID, &d.EventType, &d.URL, &d.Secret, &payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		d.Payload = []byte(payload)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQL) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	now := time.Now()
	var err error
	if success {
		_, err = s.exec(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status=?, delivered_at=?, updated_at=?, response_code=?, latency_ms=? WHERE id=?`,
			DeliveryDelivered, now.UnixMilli(), now.UnixMilli(), responseCode, latencyMs, id)
		return err
	}
	if nextAttemptAt == nil {
		t := now.Add(time.Minute)
		nextAttemptAt = &t
	}
	_, err = s.exec(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status=?, last_error=?, next_attempt_at=?, updated_at=?, response_code=?, latency_ms=? WHERE id=?`,
		DeliveryRetry, nullIfEmpty(lastError), nextAttemptAt.UnixMilli(), now.UnixMilli(), responseCode, latencyMs, id)
	return err
}

// FailWebhookDelivery marks the delivery failed and copies it to the DLQ.
func (s *SQL) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	now := time.Now().UnixMilli()
	if _, err := tx.ExecContext(ctx, rebind(s.driver, `UPDATE webhook_deliveries SET attempts=attempts+1, status=?, last_error=?, updated_at=?, response_code=?, latency_ms=? WHERE id=?`),
		DeliveryFailed, nullIfEmpty(lastError), now, responseCode, latencyMs, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, rebind(s.driver, `INSERT INTO webhook_dlq (id, tenant_id, delivery_id, event_type, url, payload, attempts, last_error, response_code, latency_ms, created_at)
        SELECT ?, tenant_id, id, event_type, url, payload, attempts, ?, ?, ?, ? FROM webhook_deliveries WHERE id=?`),
		uuid.New().String(), nullIfEmpty(lastError), responseCode, latencyMs, now, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQL) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	limit = clampLimit(limit)
	q := `SELECT id, event_type, status, attempts, next_attempt_at, COALESCE(last_error,''), url, COALESCE(response_code,0) FROM webhook_deliveries WHERE tenant_id=? AND id > ?`
	args := []any{tenantID, cursor}
	if status != "" {
		q += ` AND status=?`
		args = append(args, status)
	}
	q += ` ORDER BY id LIMIT ?`
	args = append(args, limit)
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []map[string]any{}
	var last string
	for rows.Next() {
		var id, typ, st, lastErr, url string
		var attempts, code int
		var nextAt int64
		if err := rows.Scan(&id, &typ, &st, &attempts, &nextAt, &lastErr, &url, &code); err != nil {
			return nil, "", err
		}
		m := map[string]any{"id": id, "eventType": typ, "status": st, "attempts": attempts, "url": url,
			"nextAttemptAt": time.UnixMilli(nextAt).UTC()}
		if lastErr != "" {
			m["lastError"] = lastErr
		}
		if code != 0 {
			m["responseCode"] = code
		}
		out = append(out, m)
		last = id
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

// computeDedupKey uses the payload's "id" when present, else a short hash.
func computeDedupKey(payload []byte) string {
	var m map[string]any
	if json.Unmarshal(payload, &m) == nil {
		if v, ok := m["id"].(string); ok && v != "" {
			return v
		}
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ Store = (*SQL)(nil)
