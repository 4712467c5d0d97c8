package syncer_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halolaba/halolaba-client/pkg/keeper"
	"github.com/halolaba/halolaba-client/pkg/models"
	"github.com/halolaba/halolaba-client/pkg/remote"
	"github.com/halolaba/halolaba-client/pkg/syncer"
	"github.com/halolaba/halolaba-client/pkg/syncinfo"
)

// fakeStore is an in-memory remote.Store with per-key failure injection
// and an optional gate that blocks the first write until released.
type fakeStore struct {
	mu      sync.Mutex
	applied []string
	fail    map[string]error
	tables  map[string][]models.Row

	gate    chan struct{}
	started chan struct{}
	once    sync.Once
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		fail:   map[string]error{},
		tables: map[string][]models.Row{},
	}
}

func (f *fakeStore) record(key string) error {
	if f.gate != nil {
		f.once.Do(func() { close(f.started) })
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail[key]; ok {
		f.applied = append(f.applied, "failed "+key)
		return err
	}
	f.applied = append(f.applied, key)
	return nil
}

func (f *fakeStore) InsertRow(ctx context.Context, table string, row models.Row) (models.Row, error) {
	key := fmt.Sprintf("insert %s %v", table, row["id"])
	if err := f.record(key); err != nil {
		return nil, err
	}
	return row, nil
}

func (f *fakeStore) UpdateRow(ctx context.Context, table, id string, row models.Row) error {
	return f.record(fmt.Sprintf("update %s %s", table, id))
}

func (f *fakeStore) DeleteRow(ctx context.Context, table, id string) error {
	return f.record(fmt.Sprintf("delete %s %s", table, id))
}

func (f *fakeStore) SelectRows(ctx context.Context, table string, q remote.Query) ([]models.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail["select "+table]; ok {
		return nil, err
	}
	return f.tables[table], nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

func (f *fakeStore) appliedOps() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.applied...)
}

func newEngine(t *testing.T, store remote.Store, maxAttempts int) (*syncer.Engine, *keeper.Keeper) {
	t.Helper()
	k, err := keeper.New(filepath.Join(t.TempDir(), "halolaba.db"))
	require.NoError(t, err)
	t.Cleanup(func() { k.Close() })

	info, err := syncinfo.NewManager(filepath.Join(t.TempDir(), "syncinfo.json"))
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)

	return syncer.New(k, store, info, log, maxAttempts, syncer.DefaultEssential(100)), k
}

func TestDrainReplaysInOrderAndRefreshesCache(t *testing.T) {
	store := newFakeStore()
	store.tables["products"] = []models.Row{{"id": "p1", "stock": 7.0}}
	store.tables["transactions"] = []models.Row{{"id": "t1"}, {"id": "t2"}}

	eng, k := newEngine(t, store, 5)
	ctx := context.Background()

	// An offline sale: transaction, two items, two stock decrements.
	_, err := k.Enqueue(ctx, "transactions", models.OpInsert, models.Row{"id": "off-1"}, "")
	require.NoError(t, err)
	_, err = k.Enqueue(ctx, "transaction_items", models.OpInsert, models.Row{"id": "i1", "transaction_id": "off-1"}, "")
	require.NoError(t, err)
	_, err = k.Enqueue(ctx, "transaction_items", models.OpInsert, models.Row{"id": "i2", "transaction_id": "off-1"}, "")
	require.NoError(t, err)
	_, err = k.Enqueue(ctx, "products", models.OpUpdate, models.Row{"stock": 3}, "p1")
	require.NoError(t, err)
	_, err = k.Enqueue(ctx, "products", models.OpUpdate, models.Row{"stock": 9}, "p2")
	require.NoError(t, err)

	require.NoError(t, eng.Drain(ctx))

	assert.Equal(t, []string{
		"insert transactions off-1",
		"insert transaction_items i1",
		"insert transaction_items i2",
		"update products p1",
		"update products p2",
	}, store.appliedOps())

	ops, err := k.ListAllOrdered(ctx)
	require.NoError(t, err)
	assert.Empty(t, ops, "queue must be empty after a fully successful drain")

	products, err := k.ReadPartition(ctx, "products")
	require.NoError(t, err)
	assert.Len(t, products, 1)
	transactions, err := k.ReadPartition(ctx, "transactions")
	require.NoError(t, err)
	assert.Len(t, transactions, 2)
}

func TestAtMostOneConcurrentDrain(t *testing.T) {
	store := newFakeStore()
	store.gate = make(chan struct{})
	store.started = make(chan struct{})

	eng, k := newEngine(t, store, 5)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := k.Enqueue(ctx, "expenses", models.OpInsert, models.Row{"id": fmt.Sprintf("e%d", i)}, "")
		require.NoError(t, err)
	}

	done := make(chan error, 1)
	go func() { done <- eng.Drain(ctx) }()

	select {
	case <-store.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first drain never reached the store")
	}

	// The second request arrives while the first is mid-flight.
	assert.True(t, eng.Draining())
	require.NoError(t, eng.Drain(ctx))

	close(store.gate)
	require.NoError(t, <-done)
	assert.False(t, eng.Draining())

	// Each operation was applied exactly once.
	assert.Equal(t, []string{
		"insert expenses e0",
		"insert expenses e1",
		"insert expenses e2",
	}, store.appliedOps())
}

func TestPartialFailureForwardProgress(t *testing.T) {
	store := newFakeStore()
	store.fail["update products p2"] = fmt.Errorf("%w: connection reset", remote.ErrUnreachable)

	eng, k := newEngine(t, store, 5)
	ctx := context.Background()

	_, err := k.Enqueue(ctx, "products", models.OpUpdate, models.Row{"stock": 1}, "p1")
	require.NoError(t, err)
	second, err := k.Enqueue(ctx, "products", models.OpUpdate, models.Row{"stock": 2}, "p2")
	require.NoError(t, err)
	_, err = k.Enqueue(ctx, "products", models.OpUpdate, models.Row{"stock": 3}, "p3")
	require.NoError(t, err)

	require.NoError(t, eng.Drain(ctx))

	// All three were attempted; the failing one did not block the third.
	assert.Equal(t, []string{
		"update products p1",
		"failed update products p2",
		"update products p3",
	}, store.appliedOps())

	ops, err := k.ListAllOrdered(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, second.EnqueuedAt, ops[0].EnqueuedAt)
	assert.Equal(t, 1, ops[0].Attempts)
}

func TestRejectionDeadLettersAfterMaxAttempts(t *testing.T) {
	store := newFakeStore()
	store.fail["delete products gone"] = &remote.RejectedError{StatusCode: http.StatusNotFound, Message: "no such row"}

	eng, k := newEngine(t, store, 2)
	ctx := context.Background()

	_, err := k.Enqueue(ctx, "products", models.OpDelete, nil, "gone")
	require.NoError(t, err)

	// First drain: rejection counted, operation stays queued.
	require.NoError(t, eng.Drain(ctx))
	ops, err := k.ListAllOrdered(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, 1, ops[0].Attempts)

	// Second drain: attempt budget exhausted, moved to dead letters.
	require.NoError(t, eng.Drain(ctx))
	ops, err = k.ListAllOrdered(ctx)
	require.NoError(t, err)
	assert.Empty(t, ops)

	letters, err := k.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "products", letters[0].Table)
	assert.Contains(t, letters[0].LastError, "no such row")
}

func TestUnreachableNeverDeadLetters(t *testing.T) {
	store := newFakeStore()
	store.fail["insert expenses e1"] = fmt.Errorf("%w: timeout", remote.ErrUnreachable)

	eng, k := newEngine(t, store, 1)
	ctx := context.Background()

	_, err := k.Enqueue(ctx, "expenses", models.OpInsert, models.Row{"id": "e1"}, "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, eng.Drain(ctx))
	}

	ops, err := k.ListAllOrdered(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1, "transient failures must stay queued forever")
	assert.Equal(t, 3, ops[0].Attempts)

	letters, err := k.DeadLetters(ctx)
	require.NoError(t, err)
	assert.Empty(t, letters)
}

func TestCacheRefreshFailureDoesNotFailDrain(t *testing.T) {
	store := newFakeStore()
	store.fail["select products"] = fmt.Errorf("%w: timeout", remote.ErrUnreachable)
	store.tables["transactions"] = []models.Row{{"id": "t1"}}

	eng, k := newEngine(t, store, 5)
	ctx := context.Background()

	require.NoError(t, eng.Drain(ctx))

	// The reachable partition was still refreshed.
	transactions, err := k.ReadPartition(ctx, "transactions")
	require.NoError(t, err)
	assert.Len(t, transactions, 1)
}
