package services_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halolaba/halolaba-client/pkg/config"
	"github.com/halolaba/halolaba-client/pkg/keeper"
	"github.com/halolaba/halolaba-client/pkg/models"
	"github.com/halolaba/halolaba-client/pkg/remote"
	"github.com/halolaba/halolaba-client/pkg/services"
	"github.com/halolaba/halolaba-client/pkg/validate"
)

// fakeConn is a settable Connectivity.
type fakeConn struct{ online bool }

func (f *fakeConn) Online() bool { return f.online }

// fakeSyncer records drain requests.
type fakeSyncer struct {
	drains   int
	draining bool
}

func (f *fakeSyncer) Drain(ctx context.Context) error { f.drains++; return nil }
func (f *fakeSyncer) Draining() bool                  { return f.draining }

// fakeStore is an in-memory remote.Store recording every call.
type fakeStore struct {
	calls     []string
	tables    map[string][]models.Row
	insertID  string
	insertErr error
	updateErr error
	selectErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{tables: map[string][]models.Row{}, insertID: "srv-1"}
}

func (f *fakeStore) InsertRow(ctx context.Context, table string, row models.Row) (models.Row, error) {
	f.calls = append(f.calls, "insert "+table)
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	stored := make(models.Row, len(row)+1)
	for k, v := range row {
		stored[k] = v
	}
	if _, ok := stored["id"]; !ok {
		stored["id"] = f.insertID
	}
	return stored, nil
}

func (f *fakeStore) UpdateRow(ctx context.Context, table, id string, row models.Row) error {
	f.calls = append(f.calls, fmt.Sprintf("update %s %s", table, id))
	return f.updateErr
}

func (f *fakeStore) DeleteRow(ctx context.Context, table, id string) error {
	f.calls = append(f.calls, fmt.Sprintf("delete %s %s", table, id))
	return nil
}

func (f *fakeStore) SelectRows(ctx context.Context, table string, q remote.Query) ([]models.Row, error) {
	f.calls = append(f.calls, "select "+table)
	if f.selectErr != nil {
		return nil, f.selectErr
	}
	return f.tables[table], nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

type fixture struct {
	svc    *services.Service
	keeper *keeper.Keeper
	store  *fakeStore
	conn   *fakeConn
	sync   *fakeSyncer
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()
	k, err := keeper.New(filepath.Join(t.TempDir(), "halolaba.db"))
	require.NoError(t, err)
	t.Cleanup(func() { k.Close() })

	valid, err := validate.New()
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)

	store := newFakeStore()
	conn := &fakeConn{online: online}
	sync := &fakeSyncer{}
	opt := &config.Options{RecentTransactions: 100}

	return &fixture{
		svc:    services.NewService(k, store, sync, conn, valid, log, opt),
		keeper: k,
		store:  store,
		conn:   conn,
		sync:   sync,
	}
}

func saleItems() []services.SaleItem {
	return []services.SaleItem{
		{ProductID: "p1", Quantity: 2, UnitPrice: 1500, TotalPrice: 3000, NewStock: 8},
		{ProductID: "p2", Quantity: 1, UnitPrice: 5000, TotalPrice: 5000, NewStock: 3},
	}
}

func TestOfflineSaleQueuesFiveOperations(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	tx, queued, err := f.svc.CreateTransaction(ctx, models.Transaction{
		TotalAmount: 8000, Profit: 2500,
	}, saleItems())
	require.NoError(t, err, "an offline write must never surface a connectivity error")
	assert.True(t, queued)
	assert.True(t, strings.HasPrefix(tx.ID, "offline_"), "parent id is synthesized locally")
	assert.Empty(t, f.store.calls, "offline path must not touch the network")

	ops, err := f.svc.PendingOperations(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 5)

	// Program order: parent insert, then per line item insert + stock update.
	assert.Equal(t, "transactions", ops[0].Table)
	assert.Equal(t, models.OpInsert, ops[0].Kind)
	assert.Equal(t, tx.ID, ops[0].Payload["id"])
	assert.Equal(t, "transaction_items", ops[1].Table)
	assert.Equal(t, tx.ID, ops[1].Payload["transaction_id"])
	assert.Equal(t, "products", ops[2].Table)
	assert.Equal(t, models.OpUpdate, ops[2].Kind)
	assert.Equal(t, "p1", ops[2].TargetID)
	assert.Equal(t, "transaction_items", ops[3].Table)
	assert.Equal(t, "products", ops[4].Table)
	assert.Equal(t, "p2", ops[4].TargetID)

	for i := 1; i < len(ops); i++ {
		assert.Greater(t, ops[i].EnqueuedAt, ops[i-1].EnqueuedAt)
	}
}

func TestOnlineSaleUsesServerAssignedID(t *testing.T) {
	f := newFixture(t, true)
	f.store.insertID = "tx-42"

	tx, queued, err := f.svc.CreateTransaction(context.Background(), models.Transaction{
		TotalAmount: 3000, Profit: 1000,
	}, saleItems()[:1])
	require.NoError(t, err)
	assert.False(t, queued)
	assert.Equal(t, "tx-42", tx.ID)

	assert.Equal(t, []string{
		"insert transactions",
		"insert transaction_items",
		"update products p1",
	}, f.store.calls)

	ops, err := f.svc.PendingOperations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestOnlineWriteErrorPropagates(t *testing.T) {
	f := newFixture(t, true)
	f.store.insertErr = &remote.RejectedError{StatusCode: http.StatusUnprocessableEntity, Message: "bad row"}

	_, _, err := f.svc.CreateTransaction(context.Background(), models.Transaction{
		TotalAmount: 3000, Profit: 1000,
	}, saleItems()[:1])

	var rej *remote.RejectedError
	require.ErrorAs(t, err, &rej, "a rejected online write propagates unmodified")

	// And it must not be silently queued as a fallback.
	ops, err := f.svc.PendingOperations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestOnlineReadFallsBackToCache(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	cached := []models.Row{{"id": "p1", "name": "Kopi", "stock": 7}}
	require.NoError(t, f.keeper.ReplacePartition(ctx, "products", cached))
	f.store.selectErr = fmt.Errorf("%w: timeout", remote.ErrUnreachable)

	products, err := f.svc.GetProducts(ctx)
	require.NoError(t, err, "a stale read beats a hard failure at the till")
	require.Len(t, products, 1)
	assert.Equal(t, "Kopi", products[0].Name)
}

func TestOnlineReadRefreshesCache(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.store.tables["products"] = []models.Row{
		{"id": "p1", "name": "Kopi", "stock": 7.0},
		{"id": "p2", "name": "Gula", "stock": 2.0},
	}

	products, err := f.svc.GetProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, products, 2)

	rows, err := f.keeper.ReadPartition(ctx, "products")
	require.NoError(t, err)
	assert.Len(t, rows, 2, "successful online reads repopulate the cache")
}

func TestOfflineReadNeverTouchesNetwork(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	require.NoError(t, f.keeper.ReplacePartition(ctx, "products", []models.Row{{"id": "p1", "name": "Kopi"}}))

	products, err := f.svc.GetProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, products, 1)
	assert.Empty(t, f.store.calls)
}

func TestValidationRejectsBeforeQueueing(t *testing.T) {
	f := newFixture(t, false)

	_, _, err := f.svc.CreateProduct(context.Background(), models.Product{
		Name: "Kopi", Stock: -5, MinimalStock: 1, CostPrice: 1000, SellingPrice: 1500,
	})
	require.Error(t, err)

	ops, listErr := f.svc.PendingOperations(context.Background())
	require.NoError(t, listErr)
	assert.Empty(t, ops, "invalid payloads must not reach the queue")
}

func TestMarkDebtPaidOffline(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	queued, err := f.svc.MarkDebtPaid(ctx, "d-1")
	require.NoError(t, err)
	assert.True(t, queued)

	ops, err := f.svc.PendingOperations(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "debts", ops[0].Table)
	assert.Equal(t, models.OpUpdate, ops[0].Kind)
	assert.Equal(t, "d-1", ops[0].TargetID)
	assert.Equal(t, "paid", ops[0].Payload["status"])
}

func TestForceSync(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.svc.ForceSync(context.Background()))
	assert.Equal(t, 1, f.sync.drains)

	// A drain already in progress is not doubled up.
	f.sync.draining = true
	require.NoError(t, f.svc.ForceSync(context.Background()))
	assert.Equal(t, 1, f.sync.drains)

	// Offline, force sync is a quiet no-op.
	f.sync.draining = false
	f.conn.online = false
	require.NoError(t, f.svc.ForceSync(context.Background()))
	assert.Equal(t, 1, f.sync.drains)
}

func TestDashboardStatsOffline(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	require.NoError(t, f.keeper.ReplacePartition(ctx, "transactions", []models.Row{
		{"id": "t1", "type": "sale", "total_amount": 10000.0, "profit": 3000.0},
		{"id": "t2", "type": "sale", "total_amount": 5000.0, "profit": 1000.0},
	}))
	require.NoError(t, f.keeper.ReplacePartition(ctx, "expenses", []models.Row{
		{"id": "e1", "amount": 2500.0},
	}))
	require.NoError(t, f.keeper.ReplacePartition(ctx, "products", []models.Row{
		{"id": "p1", "stock": 2.0, "minimal_stock": 5.0},
		{"id": "p2", "stock": 50.0, "minimal_stock": 5.0},
	}))
	require.NoError(t, f.keeper.ReplacePartition(ctx, "debts", []models.Row{
		{"id": "d1", "status": "unpaid", "amount": 7000.0},
		{"id": "d2", "status": "paid", "amount": 3000.0},
	}))

	stats, err := f.svc.DashboardStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 15000.0, stats.Revenue)
	assert.Equal(t, 4000.0, stats.Profit)
	assert.Equal(t, 2500.0, stats.ExpenseTotal)
	assert.Equal(t, 1500.0, stats.Net)
	assert.Equal(t, 2, stats.SaleCount)
	assert.Equal(t, 1, stats.LowStockCount)
	assert.Equal(t, 1, stats.UnpaidDebtCount)
	assert.Equal(t, 7000.0, stats.UnpaidDebtTotal)
}
