// Package services is the single call surface the rest of the app uses.
// Every method routes between the remote row store and the local
// queue/cache based on current connectivity: online writes go straight
// to the remote service and their errors propagate; offline writes are
// durably queued and reported as queued successes; reads fall back to
// the cached snapshot whenever the network cannot serve them.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/halolaba/halolaba-client/pkg/config"
	"github.com/halolaba/halolaba-client/pkg/keeper"
	"github.com/halolaba/halolaba-client/pkg/models"
	"github.com/halolaba/halolaba-client/pkg/remote"
	"github.com/halolaba/halolaba-client/pkg/validate"
)

// Connectivity is the read side of the connectivity monitor.
type Connectivity interface {
	Online() bool
}

// Syncer is the drain trigger surface of the sync engine.
type Syncer interface {
	Drain(ctx context.Context) error
	Draining() bool
}

// SaleItem is one line of a checkout, restock or debt cart. NewStock is
// the product's stock after this line is applied; the caller computes
// it from the quantity so the stock side effect is explicit.
type SaleItem struct {
	ProductID  string
	Quantity   int
	UnitPrice  float64
	TotalPrice float64
	NewStock   int
}

// Service is the data access facade.
type Service struct {
	keeper *keeper.Keeper
	store  remote.Store
	sync   Syncer
	conn   Connectivity
	valid  *validate.Validator
	log    *logrus.Logger
	opt    *config.Options
}

// NewService wires the facade. All collaborators are injected; the
// facade holds no global state.
func NewService(k *keeper.Keeper, store remote.Store, sync Syncer, conn Connectivity,
	valid *validate.Validator, log *logrus.Logger, opt *config.Options) *Service {
	return &Service{
		keeper: k,
		store:  store,
		sync:   sync,
		conn:   conn,
		valid:  valid,
		log:    log,
		opt:    opt,
	}
}

// Online reports the current connectivity state.
func (s *Service) Online() bool {
	return s.conn.Online()
}

// ForceSync triggers a drain now, if online and not already draining.
func (s *Service) ForceSync(ctx context.Context) error {
	if !s.conn.Online() || s.sync.Draining() {
		return nil
	}
	return s.sync.Drain(ctx)
}

// PendingOperations returns the queued writes awaiting replay.
func (s *Service) PendingOperations(ctx context.Context) ([]models.QueuedOperation, error) {
	return s.keeper.ListAllOrdered(ctx)
}

// DeadLetters returns the operations given up on after repeated
// definitive rejections.
func (s *Service) DeadLetters(ctx context.Context) ([]models.DeadLetter, error) {
	return s.keeper.DeadLetters(ctx)
}

// subWrite is one ordered step of a logical write call.
type subWrite struct {
	table    string
	kind     models.OpKind
	payload  models.Row
	targetID string
}

// applyOnline performs the sub-writes directly against the remote
// service, in program order, stopping at the first error. The error
// propagates to the caller unmodified: an attempted-and-rejected online
// write must not be silently queued, or a sale could be charged twice.
func (s *Service) applyOnline(ctx context.Context, writes []subWrite) error {
	for _, w := range writes {
		var err error
		switch w.kind {
		case models.OpInsert:
			_, err = s.store.InsertRow(ctx, w.table, w.payload)
		case models.OpUpdate:
			err = s.store.UpdateRow(ctx, w.table, w.targetID, w.payload)
		case models.OpDelete:
			err = s.store.DeleteRow(ctx, w.table, w.targetID)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// enqueueAll durably queues the sub-writes in program order. A storage
// failure propagates immediately: the caller must know the write is not
// safely queued.
func (s *Service) enqueueAll(ctx context.Context, writes []subWrite) error {
	for _, w := range writes {
		if _, err := s.keeper.Enqueue(ctx, w.table, w.kind, w.payload, w.targetID); err != nil {
			return err
		}
	}
	return nil
}

// validateAll runs the boundary validation for every sub-write before
// anything touches the network or the queue.
func (s *Service) validateAll(writes []subWrite) error {
	for _, w := range writes {
		var err error
		switch w.kind {
		case models.OpInsert:
			err = s.valid.ValidateInsert(w.table, w.payload)
		case models.OpUpdate:
			err = s.valid.ValidateUpdate(w.table, w.payload)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// writeRouted validates and routes a logical write made of updates and
// deletes. It returns true when the write was queued offline rather
// than committed remotely.
func (s *Service) writeRouted(ctx context.Context, writes []subWrite) (bool, error) {
	if err := s.validateAll(writes); err != nil {
		return false, err
	}
	if s.conn.Online() {
		return false, s.applyOnline(ctx, writes)
	}
	if err := s.enqueueAll(ctx, writes); err != nil {
		return false, err
	}
	return true, nil
}

// createRouted validates and routes a parent insert plus its dependent
// sub-writes, which are built from the parent's identifier.
//
// Online, the parent is inserted without an id so the server assigns
// one, and the dependents are built from the returned id. Offline, the
// parent payload carries localID and every sub-write is queued in the
// same relative order it would have run online.
func (s *Service) createRouted(ctx context.Context, parentTable string, parentRow models.Row,
	localID string, children func(parentID string) []subWrite) (string, bool, error) {

	parent := subWrite{table: parentTable, kind: models.OpInsert, payload: parentRow}
	if err := s.validateAll(append([]subWrite{parent}, children(localID)...)); err != nil {
		return "", false, err
	}

	if s.conn.Online() {
		inserted, err := s.store.InsertRow(ctx, parentTable, parentRow)
		if err != nil {
			return "", false, err
		}
		id := localID
		if v, ok := inserted["id"].(string); ok && v != "" {
			id = v
		}
		if err := s.applyOnline(ctx, children(id)); err != nil {
			return "", false, err
		}
		return id, false, nil
	}

	offlineRow := make(models.Row, len(parentRow)+1)
	for k, v := range parentRow {
		offlineRow[k] = v
	}
	offlineRow["id"] = localID
	parent.payload = offlineRow
	if err := s.enqueueAll(ctx, append([]subWrite{parent}, children(localID)...)); err != nil {
		return "", false, err
	}
	return localID, true, nil
}

// offlineID synthesizes a local identifier for a parent row created
// while offline, before the remote service has seen it.
func offlineID() string {
	return "offline_" + uuid.NewString()
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// stockUpdate is the side-effect write shared by checkout, restock and
// debt carts.
func stockUpdate(item SaleItem) subWrite {
	return subWrite{table: "products", kind: models.OpUpdate, targetID: item.ProductID, payload: models.Row{
		"stock":      item.NewStock,
		"updated_at": nowStamp(),
	}}
}

// CreateTransaction records a sale: the transaction row, one item row
// per cart line, and a stock decrement per line, in that order. The
// returned flag is true when the sale was queued offline.
func (s *Service) CreateTransaction(ctx context.Context, tx models.Transaction, items []SaleItem) (models.Transaction, bool, error) {
	if len(items) == 0 {
		return models.Transaction{}, false, fmt.Errorf("transaction needs at least one item")
	}
	if tx.Type == "" {
		tx.Type = "sale"
	}
	if tx.CreatedAt == "" {
		tx.CreatedAt = nowStamp()
	}
	tx.ID = ""

	row, err := models.ToRow(tx)
	if err != nil {
		return models.Transaction{}, false, err
	}
	children := func(parentID string) []subWrite {
		var writes []subWrite
		for _, item := range items {
			writes = append(writes,
				subWrite{table: "transaction_items", kind: models.OpInsert, payload: models.Row{
					"transaction_id": parentID,
					"product_id":     item.ProductID,
					"quantity":       item.Quantity,
					"unit_price":     item.UnitPrice,
					"total_price":    item.TotalPrice,
				}},
				stockUpdate(item),
			)
		}
		return writes
	}

	id, queued, err := s.createRouted(ctx, "transactions", row, offlineID(), children)
	if err != nil {
		return models.Transaction{}, false, err
	}
	tx.ID = id
	if queued {
		s.log.WithField("transaction_id", tx.ID).Info("sale queued for offline sync")
	}
	return tx, queued, nil
}

// CreateRestock records a stock purchase: the restock transaction, its
// items, and a stock increment per item, mirroring checkout in reverse.
// Item UnitPrice carries the cost price here.
func (s *Service) CreateRestock(ctx context.Context, restock models.RestockTransaction, items []SaleItem) (models.RestockTransaction, bool, error) {
	if len(items) == 0 {
		return models.RestockTransaction{}, false, fmt.Errorf("restock needs at least one item")
	}
	if restock.CreatedAt == "" {
		restock.CreatedAt = nowStamp()
	}
	restock.ID = ""

	row, err := models.ToRow(restock)
	if err != nil {
		return models.RestockTransaction{}, false, err
	}
	children := func(parentID string) []subWrite {
		var writes []subWrite
		for _, item := range items {
			writes = append(writes,
				subWrite{table: "restock_items", kind: models.OpInsert, payload: models.Row{
					"restock_transaction_id": parentID,
					"product_id":             item.ProductID,
					"quantity":               item.Quantity,
					"cost_price":             item.UnitPrice,
					"total_price":            item.TotalPrice,
				}},
				stockUpdate(item),
			)
		}
		return writes
	}

	id, queued, err := s.createRouted(ctx, "restock_transactions", row, offlineID(), children)
	if err != nil {
		return models.RestockTransaction{}, false, err
	}
	restock.ID = id
	return restock, queued, nil
}

// CreateDebt records an on-credit sale: the debt row, its item rows and
// stock decrements. The debt starts unpaid.
func (s *Service) CreateDebt(ctx context.Context, debt models.Debt, items []SaleItem) (models.Debt, bool, error) {
	if debt.Status == "" {
		debt.Status = "unpaid"
	}
	if debt.CreatedAt == "" {
		debt.CreatedAt = nowStamp()
	}
	debt.ID = ""

	row, err := models.ToRow(debt)
	if err != nil {
		return models.Debt{}, false, err
	}
	children := func(parentID string) []subWrite {
		var writes []subWrite
		for _, item := range items {
			writes = append(writes,
				subWrite{table: "debt_items", kind: models.OpInsert, payload: models.Row{
					"debt_id":     parentID,
					"product_id":  item.ProductID,
					"quantity":    item.Quantity,
					"unit_price":  item.UnitPrice,
					"total_price": item.TotalPrice,
				}},
				stockUpdate(item),
			)
		}
		return writes
	}

	id, queued, err := s.createRouted(ctx, "debts", row, offlineID(), children)
	if err != nil {
		return models.Debt{}, false, err
	}
	debt.ID = id
	return debt, queued, nil
}

// MarkDebtPaid settles a debt.
func (s *Service) MarkDebtPaid(ctx context.Context, debtID string) (bool, error) {
	return s.writeRouted(ctx, []subWrite{{
		table: "debts", kind: models.OpUpdate, targetID: debtID,
		payload: models.Row{"status": "paid", "paid_at": nowStamp()},
	}})
}

// MarkDebtUnpaid reverts a settlement.
func (s *Service) MarkDebtUnpaid(ctx context.Context, debtID string) (bool, error) {
	return s.writeRouted(ctx, []subWrite{{
		table: "debts", kind: models.OpUpdate, targetID: debtID,
		payload: models.Row{"status": "unpaid", "paid_at": nil},
	}})
}

// DeleteDebt removes a debt record.
func (s *Service) DeleteDebt(ctx context.Context, debtID string) (bool, error) {
	return s.writeRouted(ctx, []subWrite{{
		table: "debts", kind: models.OpDelete, targetID: debtID,
	}})
}

// CreateProduct adds a catalog entry.
func (s *Service) CreateProduct(ctx context.Context, p models.Product) (models.Product, bool, error) {
	if p.CreatedAt == "" {
		p.CreatedAt = nowStamp()
	}
	p.UpdatedAt = nowStamp()
	p.ID = ""

	row, err := models.ToRow(p)
	if err != nil {
		return models.Product{}, false, err
	}
	id, queued, err := s.createRouted(ctx, "products", row, offlineID(), func(string) []subWrite { return nil })
	if err != nil {
		return models.Product{}, false, err
	}
	p.ID = id
	return p, queued, nil
}

// UpdateProduct applies the given fields to a catalog entry.
func (s *Service) UpdateProduct(ctx context.Context, productID string, fields models.Row) (bool, error) {
	fields["updated_at"] = nowStamp()
	return s.writeRouted(ctx, []subWrite{{
		table: "products", kind: models.OpUpdate, targetID: productID, payload: fields,
	}})
}

// DeleteProduct removes a catalog entry.
func (s *Service) DeleteProduct(ctx context.Context, productID string) (bool, error) {
	return s.writeRouted(ctx, []subWrite{{
		table: "products", kind: models.OpDelete, targetID: productID,
	}})
}

// CreateExpense records an operational expense.
func (s *Service) CreateExpense(ctx context.Context, e models.Expense) (models.Expense, bool, error) {
	if e.CreatedAt == "" {
		e.CreatedAt = nowStamp()
	}
	e.ID = ""

	row, err := models.ToRow(e)
	if err != nil {
		return models.Expense{}, false, err
	}
	id, queued, err := s.createRouted(ctx, "expenses", row, offlineID(), func(string) []subWrite { return nil })
	if err != nil {
		return models.Expense{}, false, err
	}
	e.ID = id
	return e, queued, nil
}

// CreateNotification records an in-app notification.
func (s *Service) CreateNotification(ctx context.Context, n models.Notification) (models.Notification, bool, error) {
	if n.CreatedAt == "" {
		n.CreatedAt = nowStamp()
	}
	n.ID = ""

	row, err := models.ToRow(n)
	if err != nil {
		return models.Notification{}, false, err
	}
	id, queued, err := s.createRouted(ctx, "notifications", row, offlineID(), func(string) []subWrite { return nil })
	if err != nil {
		return models.Notification{}, false, err
	}
	n.ID = id
	return n, queued, nil
}

// MarkNotificationRead marks one notification as read.
func (s *Service) MarkNotificationRead(ctx context.Context, id string) (bool, error) {
	return s.writeRouted(ctx, []subWrite{{
		table: "notifications", kind: models.OpUpdate, targetID: id,
		payload: models.Row{"is_read": true},
	}})
}

// readTable is the routed read path: online fetches refresh the cache
// opportunistically and fall back to it on transient failure; offline
// reads never touch the network.
func (s *Service) readTable(ctx context.Context, table string, q remote.Query) ([]models.Row, error) {
	if !s.conn.Online() {
		return s.keeper.ReadPartition(ctx, table)
	}
	rows, err := s.store.SelectRows(ctx, table, q)
	if err != nil {
		if errors.Is(err, remote.ErrUnreachable) {
			s.log.WithField("table", table).WithError(err).Warn("online fetch failed, serving cache")
			return s.keeper.ReadPartition(ctx, table)
		}
		return nil, err
	}
	if err := s.keeper.ReplacePartition(ctx, table, rows); err != nil {
		s.log.WithField("table", table).WithError(err).Warn("failed to refresh cache")
	}
	return rows, nil
}

// GetProducts lists the catalog, from the remote service or the cache.
func (s *Service) GetProducts(ctx context.Context) ([]models.Product, error) {
	rows, err := s.readTable(ctx, "products", remote.Query{OrderBy: "name"})
	if err != nil {
		return nil, err
	}
	var products []models.Product
	if err := models.DecodeRows(rows, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetTransactions lists the recent transaction window.
func (s *Service) GetTransactions(ctx context.Context) ([]models.Transaction, error) {
	rows, err := s.readTable(ctx, "transactions", remote.Query{
		OrderBy: "created_at", Descending: true, Limit: s.opt.RecentTransactions,
	})
	if err != nil {
		return nil, err
	}
	var txs []models.Transaction
	if err := models.DecodeRows(rows, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// GetExpenses lists recorded expenses.
func (s *Service) GetExpenses(ctx context.Context) ([]models.Expense, error) {
	rows, err := s.readTable(ctx, "expenses", remote.Query{OrderBy: "created_at", Descending: true})
	if err != nil {
		return nil, err
	}
	var expenses []models.Expense
	if err := models.DecodeRows(rows, &expenses); err != nil {
		return nil, err
	}
	return expenses, nil
}

// GetDebts lists debts, newest first.
func (s *Service) GetDebts(ctx context.Context) ([]models.Debt, error) {
	rows, err := s.readTable(ctx, "debts", remote.Query{OrderBy: "created_at", Descending: true})
	if err != nil {
		return nil, err
	}
	var debts []models.Debt
	if err := models.DecodeRows(rows, &debts); err != nil {
		return nil, err
	}
	return debts, nil
}

// GetNotifications lists notifications; unreadOnly narrows to unread.
func (s *Service) GetNotifications(ctx context.Context, unreadOnly bool) ([]models.Notification, error) {
	q := remote.Query{OrderBy: "created_at", Descending: true}
	if unreadOnly {
		q.Filter = map[string]string{"is_read": "false"}
	}
	rows, err := s.readTable(ctx, "notifications", q)
	if err != nil {
		return nil, err
	}
	var ns []models.Notification
	if err := models.DecodeRows(rows, &ns); err != nil {
		return nil, err
	}
	if unreadOnly {
		// The cache path carries no filter; narrow here as well.
		filtered := ns[:0]
		for _, n := range ns {
			if !n.IsRead {
				filtered = append(filtered, n)
			}
		}
		ns = filtered
	}
	return ns, nil
}
