// Package keeper is the durable local store: the ordered queue of
// pending write operations, the per-table read cache, and the
// dead-letter set, all backed by a single SQLite database so they
// survive a process restart while offline.
package keeper

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/halolaba/halolaba-client/pkg/models"
)

// ErrStorageUnavailable reports that the local store could not be read
// or written. Callers must not treat a write wrapped in this error as
// durably queued.
var ErrStorageUnavailable = errors.New("local storage unavailable")

const schema = `
CREATE TABLE IF NOT EXISTS sync_queue (
	enqueued_at INTEGER PRIMARY KEY,
	table_name  TEXT NOT NULL,
	operation   TEXT NOT NULL CHECK(operation IN ('insert','update','delete')),
	target_id   TEXT NOT NULL DEFAULT '',
	payload     TEXT NOT NULL,
	attempts    INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS cache_rows (
	table_name TEXT NOT NULL,
	row_id     TEXT NOT NULL,
	payload    TEXT NOT NULL,
	PRIMARY KEY (table_name, row_id)
);
CREATE TABLE IF NOT EXISTS dead_letters (
	enqueued_at INTEGER PRIMARY KEY,
	table_name  TEXT NOT NULL,
	operation   TEXT NOT NULL,
	target_id   TEXT NOT NULL DEFAULT '',
	payload     TEXT NOT NULL,
	attempts    INTEGER NOT NULL,
	last_error  TEXT NOT NULL DEFAULT '',
	failed_at   TEXT NOT NULL
);
`

// Keeper owns the SQLite database. It is safe for use from multiple
// goroutines; the stamp mutex keeps enqueue timestamps strictly
// increasing even when the clock does not advance between calls.
type Keeper struct {
	db *sql.DB

	mu        sync.Mutex
	lastStamp int64
}

// New opens (or creates) the database at path and bootstraps the schema.
func New(path string) (*Keeper, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, storageErr(err)
	}
	k, err := NewKeeper(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return k, nil
}

// NewKeeper wraps an already opened database, bootstraps the schema and
// restores the stamp high-water mark so restarts never reuse a key.
func NewKeeper(db *sql.DB) (*Keeper, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, storageErr(err)
	}
	k := &Keeper{db: db}
	var last sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(enqueued_at) FROM sync_queue`).Scan(&last); err != nil {
		return nil, storageErr(err)
	}
	if last.Valid {
		k.lastStamp = last.Int64
	}
	return k, nil
}

// Close closes the underlying database.
func (k *Keeper) Close() error {
	return k.db.Close()
}

// stamp returns the next enqueue timestamp: the current nanosecond clock,
// bumped past the previous stamp when needed so keys stay unique and
// strictly increasing in enqueue order.
func (k *Keeper) stamp() int64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	now := time.Now().UnixNano()
	if now <= k.lastStamp {
		now = k.lastStamp + 1
	}
	k.lastStamp = now
	return now
}

// Enqueue persists a pending write operation and returns the stored
// record. A storage failure propagates; the write is not queued then.
func (k *Keeper) Enqueue(ctx context.Context, table string, kind models.OpKind, payload models.Row, targetID string) (models.QueuedOperation, error) {
	op := models.QueuedOperation{
		EnqueuedAt: k.stamp(),
		Table:      table,
		Kind:       kind,
		TargetID:   targetID,
		Payload:    payload,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return models.QueuedOperation{}, fmt.Errorf("encode payload: %w", err)
	}
	_, err = k.db.ExecContext(ctx,
		`INSERT INTO sync_queue (enqueued_at, table_name, operation, target_id, payload) VALUES (?, ?, ?, ?, ?)`,
		op.EnqueuedAt, op.Table, string(op.Kind), op.TargetID, string(body))
	if err != nil {
		return models.QueuedOperation{}, storageErr(err)
	}
	return op, nil
}

// ListAllOrdered returns every pending operation in ascending enqueue
// order, read from durable storage.
func (k *Keeper) ListAllOrdered(ctx context.Context) ([]models.QueuedOperation, error) {
	rows, err := k.db.QueryContext(ctx,
		`SELECT enqueued_at, table_name, operation, target_id, payload, attempts
		 FROM sync_queue ORDER BY enqueued_at ASC`)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var ops []models.QueuedOperation
	for rows.Next() {
		var op models.QueuedOperation
		var kind, body string
		if err := rows.Scan(&op.EnqueuedAt, &op.Table, &kind, &op.TargetID, &body, &op.Attempts); err != nil {
			return nil, storageErr(err)
		}
		op.Kind = models.OpKind(kind)
		if err := json.Unmarshal([]byte(body), &op.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of %d: %w", op.EnqueuedAt, err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}
	return ops, nil
}

// Remove deletes one queued operation by its key. Removing a key that is
// not present is a no-op.
func (k *Keeper) Remove(ctx context.Context, enqueuedAt int64) error {
	if _, err := k.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE enqueued_at = ?`, enqueuedAt); err != nil {
		return storageErr(err)
	}
	return nil
}

// IncrementAttempts bumps the replay attempt counter of one operation.
func (k *Keeper) IncrementAttempts(ctx context.Context, enqueuedAt int64) error {
	if _, err := k.db.ExecContext(ctx,
		`UPDATE sync_queue SET attempts = attempts + 1 WHERE enqueued_at = ?`, enqueuedAt); err != nil {
		return storageErr(err)
	}
	return nil
}

// MoveToDeadLetter atomically takes an operation out of the queue and
// records it, with its final error, in the dead-letter set.
func (k *Keeper) MoveToDeadLetter(ctx context.Context, op models.QueuedOperation, cause error) error {
	tx, err := k.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(err)
	}
	defer tx.Rollback()

	body, err := json.Marshal(op.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO dead_letters (enqueued_at, table_name, operation, target_id, payload, attempts, last_error, failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		op.EnqueuedAt, op.Table, string(op.Kind), op.TargetID, string(body), op.Attempts, msg,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return storageErr(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sync_queue WHERE enqueued_at = ?`, op.EnqueuedAt); err != nil {
		return storageErr(err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr(err)
	}
	return nil
}

// DeadLetters returns the dead-letter set in the order the operations
// were originally enqueued.
func (k *Keeper) DeadLetters(ctx context.Context) ([]models.DeadLetter, error) {
	rows, err := k.db.QueryContext(ctx,
		`SELECT enqueued_at, table_name, operation, target_id, payload, attempts, last_error, failed_at
		 FROM dead_letters ORDER BY enqueued_at ASC`)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var letters []models.DeadLetter
	for rows.Next() {
		var dl models.DeadLetter
		var kind, body, failedAt string
		if err := rows.Scan(&dl.EnqueuedAt, &dl.Table, &kind, &dl.TargetID, &body, &dl.Attempts, &dl.LastError, &failedAt); err != nil {
			return nil, storageErr(err)
		}
		dl.Kind = models.OpKind(kind)
		if err := json.Unmarshal([]byte(body), &dl.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of %d: %w", dl.EnqueuedAt, err)
		}
		if t, err := time.Parse(time.RFC3339, failedAt); err == nil {
			dl.FailedAt = t
		}
		letters = append(letters, dl)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}
	return letters, nil
}

// ReplacePartition swaps the cached snapshot of one table: the partition
// is cleared and repopulated inside a single transaction, so a reader
// never observes it half-cleared. Rows must carry an "id" field.
func (k *Keeper) ReplacePartition(ctx context.Context, table string, rows []models.Row) error {
	tx, err := k.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_rows WHERE table_name = ?`, table); err != nil {
		return storageErr(err)
	}
	for _, row := range rows {
		id, ok := row["id"]
		if !ok {
			return fmt.Errorf("cache row for %s has no id", table)
		}
		body, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("encode cache row: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO cache_rows (table_name, row_id, payload) VALUES (?, ?, ?)`,
			table, fmt.Sprint(id), string(body))
		if err != nil {
			return storageErr(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storageErr(err)
	}
	return nil
}

// ReadPartition returns the cached snapshot of one table. A table that
// has never been populated yields an empty slice, not an error.
func (k *Keeper) ReadPartition(ctx context.Context, table string) ([]models.Row, error) {
	rows, err := k.db.QueryContext(ctx,
		`SELECT payload FROM cache_rows WHERE table_name = ? ORDER BY row_id`, table)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	out := []models.Row{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, storageErr(err)
		}
		var row models.Row
		if err := json.Unmarshal([]byte(body), &row); err != nil {
			return nil, fmt.Errorf("decode cache row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}
	return out, nil
}

func storageErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
