// Package queue is the device-side durable store of records awaiting
// sync: an append-only, byte-bounded SQLite queue with per-record sync
// status. Location samples are shed oldest-first under storage
// pressure; delivery and proof records are never evicted.
package queue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/internal/metrics"
	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/core/domain"
)

// DefaultMaxBytes bounds queue payload storage on the device.
const DefaultMaxBytes = 16 << 20

const schema = `
CREATE TABLE IF NOT EXISTS sync_queue (
	id              TEXT PRIMARY KEY,
	kind            TEXT NOT NULL,
	payload         BLOB NOT NULL,
	size_bytes      INTEGER NOT NULL,
	status          TEXT NOT NULL DEFAULT 'pending',
	retry_count     INTEGER NOT NULL DEFAULT 0,
	enqueued_at     INTEGER NOT NULL,
	next_retry_at   INTEGER NOT NULL DEFAULT 0,
	last_attempt_at INTEGER,
	last_error      TEXT
);
CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue (status);
CREATE INDEX IF NOT EXISTS idx_sync_queue_enqueued ON sync_queue (enqueued_at);
`

// Entry is one queued record with its sync bookkeeping.
type Entry struct {
	Record        domain.Record
	RetryCount    int
	EnqueuedAt    time.Time
	LastAttemptAt time.Time
	LastError     string
}

type Queue struct {
	db       *sql.DB
	maxBytes int64
	log      logrus.FieldLogger
	now      func() time.Time
}

// Open opens (creating if needed) the queue database at path. Use
// ":memory:" for an ephemeral queue in tests.
func Open(path string, maxBytes int64, log logrus.FieldLogger) (*Queue, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open queue db: %w", err)
	}
	// a single connection serializes writers and keeps :memory: databases
	// from splitting across pool connections
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping queue db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create queue schema: %w", err)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Queue{db: db, maxBytes: maxBytes, log: log, now: time.Now}, nil
}

func (q *Queue) Close() error {
	return q.db.Close()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// Enqueue appends a record. If storing it would exceed the byte
// ceiling, the oldest pending location samples are evicted first. When
// nothing evictable remains, an incoming location sample is dropped
// silently (losing one GPS tick is an accepted trade-off) while a
// delivery or proof record fails with ErrStorageExhausted so the caller
// can surface it.
func (q *Queue) Enqueue(ctx context.Context, rec domain.Record) (string, error) {
	payload, err := rec.MarshalPayload()
	if err != nil {
		return "", err
	}
	size := int64(len(payload))

	if size > q.maxBytes {
		if rec.Critical() {
			return "", fmt.Errorf("%w: record of %d bytes exceeds queue ceiling", domain.ErrStorageExhausted, size)
		}
		q.log.WithField("record_id", rec.ID()).Debug("oversized location sample dropped")
		return rec.ID(), nil
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin enqueue: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var usage int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(size_bytes), 0) FROM sync_queue`,
	).Scan(&usage); err != nil {
		return "", fmt.Errorf("queue usage: %w", err)
	}

	if usage+size > q.maxBytes {
		freed, err := q.evictLocations(ctx, tx, usage+size-q.maxBytes)
		if err != nil {
			return "", err
		}
		if usage+size-freed > q.maxBytes {
			if rec.Critical() {
				return "", fmt.Errorf("%w: queue at %d of %d bytes", domain.ErrStorageExhausted, usage-freed, q.maxBytes)
			}
			if err := tx.Commit(); err != nil {
				return "", fmt.Errorf("commit enqueue: %w", err)
			}
			q.log.WithField("record_id", rec.ID()).Debug("location sample dropped under storage pressure")
			q.refreshGauges(ctx)
			return rec.ID(), nil
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sync_queue (id, kind, payload, size_bytes, status, enqueued_at)
		 VALUES (?, ?, ?, ?, 'pending', ?)`,
		rec.ID(), string(rec.Kind), payload, size, toMillis(q.now()),
	); err != nil {
		return "", fmt.Errorf("insert queue entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit enqueue: %w", err)
	}
	q.refreshGauges(ctx)
	return rec.ID(), nil
}

// evictLocations removes the oldest pending location entries until at
// least need bytes are freed or none remain. In-flight (syncing) rows
// are left alone.
func (q *Queue) evictLocations(ctx context.Context, tx *sql.Tx, need int64) (int64, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, size_bytes FROM sync_queue
		 WHERE kind = ? AND status = 'pending'
		 ORDER BY enqueued_at ASC`,
		string(domain.KindLocation),
	)
	if err != nil {
		return 0, fmt.Errorf("select evictable: %w", err)
	}

	var (
		ids   []string
		freed int64
	)
	for rows.Next() {
		var (
			id   string
			size int64
		)
		if err := rows.Scan(&id, &size); err != nil {
			_ = rows.Close()
			return 0, err
		}
		ids = append(ids, id)
		freed += size
		if freed >= need {
			break
		}
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	query, args := inClause(`DELETE FROM sync_queue WHERE id IN`, ids)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("evict entries: %w", err)
	}
	q.log.WithField("evicted", len(ids)).Debug("evicted location samples for space")
	return freed, nil
}

// PeekBatch returns up to maxN due pending entries, oldest first, and
// marks them syncing in the same transaction. The returned batch is a
// snapshot: concurrent enqueues cannot mutate it and eviction skips
// syncing rows.
func (q *Queue) PeekBatch(ctx context.Context, maxN int) ([]Entry, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin peek: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := toMillis(q.now())
	rows, err := tx.QueryContext(ctx,
		`SELECT id, kind, payload, retry_count, enqueued_at, last_attempt_at, last_error
		 FROM sync_queue
		 WHERE status = 'pending' AND next_retry_at <= ?
		 ORDER BY enqueued_at ASC
		 LIMIT ?`,
		now, maxN,
	)
	if err != nil {
		return nil, fmt.Errorf("select batch: %w", err)
	}

	var (
		entries []Entry
		ids     []string
	)
	for rows.Next() {
		var (
			id          string
			kind        string
			payload     []byte
			retryCount  int
			enqueuedAt  int64
			lastAttempt sql.NullInt64
			lastError   sql.NullString
		)
		if err := rows.Scan(&id, &kind, &payload, &retryCount, &enqueuedAt, &lastAttempt, &lastError); err != nil {
			_ = rows.Close()
			return nil, err
		}
		rec, err := domain.DecodeRecord(domain.RecordKind(kind), payload)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		entry := Entry{
			Record:     rec,
			RetryCount: retryCount,
			EnqueuedAt: fromMillis(enqueuedAt),
			LastError:  lastError.String,
		}
		if lastAttempt.Valid {
			entry.LastAttemptAt = fromMillis(lastAttempt.Int64)
		}
		entries = append(entries, entry)
		ids = append(ids, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) > 0 {
		query, args := inClause(`UPDATE sync_queue SET status = 'syncing', last_attempt_at = ? WHERE id IN`, ids)
		args = append([]any{now}, args...)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("mark syncing: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit peek: %w", err)
	}
	return entries, nil
}

// MarkSynced removes acknowledged entries.
func (q *Queue) MarkSynced(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args := inClause(`DELETE FROM sync_queue WHERE id IN`, ids)
	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	q.refreshGauges(ctx)
	return nil
}

// MarkFailed returns an entry to pending with an incremented retry
// count; it becomes due again at nextRetryAt.
func (q *Queue) MarkFailed(ctx context.Context, id string, cause string, nextRetryAt time.Time) error {
	if _, err := q.db.ExecContext(ctx,
		`UPDATE sync_queue
		 SET status = 'pending', retry_count = retry_count + 1, next_retry_at = ?, last_error = ?
		 WHERE id = ?`,
		toMillis(nextRetryAt), cause, id,
	); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// MarkDropped removes an entry terminally. The caller is responsible
// for reporting critical drops before calling this.
func (q *Queue) MarkDropped(ctx context.Context, id string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark dropped: %w", err)
	}
	q.refreshGauges(ctx)
	return nil
}

// Requeue returns syncing entries to pending without a retry penalty,
// used when a drain cycle is cancelled mid-flight.
func (q *Queue) Requeue(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args := inClause(`UPDATE sync_queue SET status = 'pending' WHERE status = 'syncing' AND id IN`, ids)
	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("requeue: %w", err)
	}
	return nil
}

func (q *Queue) UsageBytes(ctx context.Context) (int64, error) {
	var usage int64
	err := q.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size_bytes), 0) FROM sync_queue`).Scan(&usage)
	return usage, err
}

// PendingCount is the derived metric surfaced to the UI; it counts
// everything not yet acknowledged, including in-flight entries.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n)
	return n, err
}

func (q *Queue) refreshGauges(ctx context.Context) {
	if n, err := q.PendingCount(ctx); err == nil {
		metrics.QueuePending.Set(float64(n))
	}
	if usage, err := q.UsageBytes(ctx); err == nil {
		metrics.QueueUsageBytes.Set(float64(usage))
	}
}

func inClause(prefix string, ids []string) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return prefix + " (" + strings.Join(placeholders, ",") + ")", args
}
