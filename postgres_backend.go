package resilock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adrianmcphee/resilock/internal/settingsutil"
)

// PostgresBackend is a SyncBackend backed by a single table, row-locked
// during UPSERT to make acquire atomic without an application-level mutex.
// The schema is deliberately minimal: name is the primary key, token is the
// current fencing token, and expire_at is compared against the database
// server's own clock rather than the client's, so clock skew between
// application instances cannot produce two simultaneous owners.
type PostgresBackend struct {
	pool      *pgxpool.Pool
	tableName string
	logger    Logger
	metrics   Metrics
}

// PostgresBackendOption configures a PostgresBackend.
type PostgresBackendOption func(*PostgresBackend)

// WithPostgresTable overrides the default table name "locks". name must
// match a conservative bare-identifier grammar since it is interpolated
// directly into SQL text rather than bound as a parameter.
func WithPostgresTable(name string) PostgresBackendOption {
	return func(b *PostgresBackend) { b.tableName = name }
}

// WithPostgresLogger attaches a Logger to a PostgresBackend.
func WithPostgresLogger(l Logger) PostgresBackendOption {
	return func(b *PostgresBackend) { b.logger = l }
}

// WithPostgresMetrics attaches a Metrics sink to a PostgresBackend.
func WithPostgresMetrics(m Metrics) PostgresBackendOption {
	return func(b *PostgresBackend) { b.metrics = m }
}

// NewPostgresBackend wraps an existing pgx connection pool and ensures the
// backing table exists. Close runs the best-effort expired-row sweep and
// then closes the pool; a caller that keeps using the pool must not call it.
func NewPostgresBackend(ctx context.Context, pool *pgxpool.Pool, opts ...PostgresBackendOption) (*PostgresBackend, error) {
	b := &PostgresBackend{
		pool:      pool,
		tableName: "locks",
		logger:    &NoOpLogger{},
		metrics:   &NoOpMetrics{},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = orNoOpLogger(b.logger)
	b.metrics = orNoOpMetrics(b.metrics)

	if !settingsutil.ValidIdentifier(b.tableName) {
		return nil, SettingsValidationError(fmt.Sprintf("postgres table name %q is not a valid SQL identifier", b.tableName))
	}

	createSQL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  name       TEXT PRIMARY KEY,
  token      TEXT NOT NULL,
  expire_at  TIMESTAMP NOT NULL
)`, b.tableName)
	if _, err := pool.Exec(ctx, createSQL); err != nil {
		return nil, fmt.Errorf("creating postgres lock table: %w", err)
	}

	return b, nil
}

var _ SyncBackend = (*PostgresBackend)(nil)
var _ Lister = (*PostgresBackend)(nil)

func (b *PostgresBackend) Acquire(ctx context.Context, name, token string, duration time.Duration) (bool, error) {
	sql := fmt.Sprintf(`
INSERT INTO %s (name, token, expire_at)
VALUES ($1, $2, NOW() + make_interval(secs => $3))
ON CONFLICT (name) DO UPDATE
  SET token = EXCLUDED.token, expire_at = EXCLUDED.expire_at
  WHERE %s.token = EXCLUDED.token OR %s.expire_at < NOW()
RETURNING 1`, b.tableName, b.tableName, b.tableName)

	var dummy int
	err := b.pool.QueryRow(ctx, sql, name, token, duration.Seconds()).Scan(&dummy)
	if err != nil {
		if isNoRows(err) {
			b.metrics.Increment(MetricLockFailed, "name", name)
			return false, nil
		}
		b.logger.Error("postgres lock acquire failed", "name", name, "error", err)
		return false, LockAcquireError(name, token, err)
	}
	b.metrics.Increment(MetricLockAcquired, "name", name)
	return true, nil
}

func (b *PostgresBackend) Release(ctx context.Context, name, token string) (bool, error) {
	sql := fmt.Sprintf(`
DELETE FROM %s WHERE name = $1 AND token = $2 AND expire_at >= NOW()
RETURNING 1`, b.tableName)

	var dummy int
	err := b.pool.QueryRow(ctx, sql, name, token).Scan(&dummy)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		b.logger.Error("postgres lock release failed", "name", name, "error", err)
		return false, LockReleaseError(name, token, err)
	}
	return true, nil
}

func (b *PostgresBackend) Locked(ctx context.Context, name string) (bool, error) {
	sql := fmt.Sprintf(`SELECT 1 FROM %s WHERE name = $1 AND expire_at > NOW()`, b.tableName)
	var dummy int
	err := b.pool.QueryRow(ctx, sql, name).Scan(&dummy)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, LockAcquireError(name, "", err)
	}
	return true, nil
}

func (b *PostgresBackend) Owned(ctx context.Context, name, token string) (bool, error) {
	sql := fmt.Sprintf(`SELECT 1 FROM %s WHERE name = $1 AND token = $2 AND expire_at > NOW()`, b.tableName)
	var dummy int
	err := b.pool.QueryRow(ctx, sql, name, token).Scan(&dummy)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, LockAcquireError(name, token, err)
	}
	return true, nil
}

// ListLocks returns every live record, used by LockManager.
func (b *PostgresBackend) ListLocks(ctx context.Context) ([]LockRecord, error) {
	sql := fmt.Sprintf(`SELECT name, token, expire_at FROM %s WHERE expire_at > NOW()`, b.tableName)
	rows, err := b.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("listing postgres locks: %w", err)
	}
	defer rows.Close()

	var out []LockRecord
	for rows.Next() {
		var rec LockRecord
		if err := rows.Scan(&rec.Name, &rec.Token, &rec.ExpireAt); err != nil {
			return nil, fmt.Errorf("scanning postgres lock row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close runs a best-effort sweep of expired rows, then closes the pool.
// Callers who constructed the pool themselves and want to reuse it beyond
// this backend's lifetime should not call Close.
func (b *PostgresBackend) Close(ctx context.Context) error {
	sweepSQL := fmt.Sprintf(`DELETE FROM %s WHERE expire_at < NOW()`, b.tableName)
	if _, err := b.pool.Exec(ctx, sweepSQL); err != nil {
		b.logger.Warn("postgres expired-lock sweep failed", "error", err)
	}
	b.pool.Close()
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
