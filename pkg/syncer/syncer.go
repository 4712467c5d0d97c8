// Package syncer replays the offline operation queue against the remote
// service and refreshes the local cache afterwards.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/halolaba/halolaba-client/pkg/keeper"
	"github.com/halolaba/halolaba-client/pkg/models"
	"github.com/halolaba/halolaba-client/pkg/remote"
	"github.com/halolaba/halolaba-client/pkg/syncinfo"
)

// Essential names a table whose snapshot is re-cached after every
// successful drain so the app stays usable offline.
type Essential struct {
	Table string
	Query remote.Query
}

// DefaultEssential is the spec of the data the shop needs offline: the
// whole product catalog and a bounded window of recent transactions.
func DefaultEssential(recentTransactions int) []Essential {
	return []Essential{
		{Table: "products", Query: remote.Query{OrderBy: "name"}},
		{Table: "transactions", Query: remote.Query{OrderBy: "created_at", Descending: true, Limit: recentTransactions}},
	}
}

// Engine drains the queue. Its only states are idle and draining; a
// failed drain leaves it idle and ready for the next attempt.
type Engine struct {
	keeper      *keeper.Keeper
	store       remote.Store
	info        *syncinfo.Manager
	log         *logrus.Logger
	maxAttempts int
	essential   []Essential

	draining atomic.Bool
}

// New creates an Engine. maxAttempts bounds how many times a
// definitively rejected operation is retried before it is dead-lettered;
// transient failures are retried without limit.
func New(k *keeper.Keeper, store remote.Store, info *syncinfo.Manager, log *logrus.Logger, maxAttempts int, essential []Essential) *Engine {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Engine{
		keeper:      k,
		store:       store,
		info:        info,
		log:         log,
		maxAttempts: maxAttempts,
		essential:   essential,
	}
}

// Draining reports whether a drain is currently running.
func (e *Engine) Draining() bool {
	return e.draining.Load()
}

// Drain replays every queued operation in enqueue order. A second call
// while a drain is running is a no-op. Operations that fail stay queued
// (or move to the dead-letter set); a single failure never blocks the
// replay of later, independent operations.
func (e *Engine) Drain(ctx context.Context) error {
	if !e.draining.CompareAndSwap(false, true) {
		e.log.Debug("drain already in progress, skipping")
		return nil
	}
	defer e.draining.Store(false)

	ops, err := e.keeper.ListAllOrdered(ctx)
	if err != nil {
		return fmt.Errorf("list queue: %w", err)
	}
	e.log.WithField("pending", len(ops)).Info("draining offline queue")

	var synced, failed, deadLettered int
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.apply(ctx, op); err != nil {
			var rej *remote.RejectedError
			if errors.As(err, &rej) && op.Attempts+1 >= e.maxAttempts {
				if dlErr := e.keeper.MoveToDeadLetter(ctx, op, err); dlErr != nil {
					return fmt.Errorf("dead-letter %d: %w", op.EnqueuedAt, dlErr)
				}
				deadLettered++
				e.log.WithFields(logrus.Fields{
					"table": op.Table, "kind": op.Kind, "enqueued_at": op.EnqueuedAt,
				}).WithError(err).Warn("operation dead-lettered after repeated rejection")
				continue
			}
			if incErr := e.keeper.IncrementAttempts(ctx, op.EnqueuedAt); incErr != nil {
				return fmt.Errorf("record attempt for %d: %w", op.EnqueuedAt, incErr)
			}
			failed++
			e.log.WithFields(logrus.Fields{
				"table": op.Table, "kind": op.Kind, "enqueued_at": op.EnqueuedAt,
			}).WithError(err).Warn("operation left queued for retry")
			continue
		}
		if err := e.keeper.Remove(ctx, op.EnqueuedAt); err != nil {
			return fmt.Errorf("remove %d: %w", op.EnqueuedAt, err)
		}
		synced++
	}

	e.refreshEssential(ctx)

	if e.info != nil {
		rec := syncinfo.SyncInfo{
			LastSync:     time.Now().UTC(),
			Synced:       synced,
			Failed:       failed,
			DeadLettered: deadLettered,
		}
		if err := e.info.RecordDrain(rec); err != nil {
			e.log.WithError(err).Warn("failed to record drain info")
		}
	}
	e.log.WithFields(logrus.Fields{
		"synced": synced, "failed": failed, "dead_lettered": deadLettered,
	}).Info("drain finished")
	return nil
}

func (e *Engine) apply(ctx context.Context, op models.QueuedOperation) error {
	switch op.Kind {
	case models.OpInsert:
		_, err := e.store.InsertRow(ctx, op.Table, op.Payload)
		return err
	case models.OpUpdate:
		return e.store.UpdateRow(ctx, op.Table, op.TargetID, op.Payload)
	case models.OpDelete:
		return e.store.DeleteRow(ctx, op.Table, op.TargetID)
	default:
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

// refreshEssential replaces the cached snapshot of each essential table
// with the authoritative remote state. Failures are logged and skipped;
// a stale partition is better than an empty one.
func (e *Engine) refreshEssential(ctx context.Context) {
	for _, ess := range e.essential {
		rows, err := e.store.SelectRows(ctx, ess.Table, ess.Query)
		if err != nil {
			e.log.WithField("table", ess.Table).WithError(err).Warn("skipping cache refresh")
			continue
		}
		if err := e.keeper.ReplacePartition(ctx, ess.Table, rows); err != nil {
			e.log.WithField("table", ess.Table).WithError(err).Warn("failed to refresh cache partition")
		}
	}
}
