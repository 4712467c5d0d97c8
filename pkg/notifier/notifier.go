// Package notifier runs the periodic shop health checks: products that
// need restocking and debts that have gone stale. Each finding becomes a
// notification row, deduplicated against existing unread ones.
package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/halolaba/halolaba-client/pkg/models"
	"github.com/halolaba/halolaba-client/pkg/services"
)

// overdueAfter is how old an unpaid debt may get before it is flagged.
const overdueAfter = 30 * 24 * time.Hour

// Notifier owns its schedule: Start begins the periodic checks and Stop
// cancels them.
type Notifier struct {
	svc      *services.Service
	interval time.Duration
	log      *logrus.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Notifier checking every interval.
func New(svc *services.Service, interval time.Duration, log *logrus.Logger) *Notifier {
	return &Notifier{
		svc:      svc,
		interval: interval,
		log:      log,
	}
}

// Start runs one check immediately and then keeps checking on the
// interval until Stop is called or ctx is cancelled.
func (n *Notifier) Start(ctx context.Context) {
	ctx, n.cancel = context.WithCancel(ctx)
	n.done = make(chan struct{})
	go func() {
		defer close(n.done)
		n.RunChecks(ctx)
		ticker := time.NewTicker(n.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n.RunChecks(ctx)
			}
		}
	}()
}

// Stop cancels the schedule and waits for the current check to finish.
func (n *Notifier) Stop() {
	if n.cancel == nil {
		return
	}
	n.cancel()
	<-n.done
}

// RunChecks performs one pass of all checks. Offline, the pass is
// skipped entirely: the checks need fresh remote state to be meaningful
// and must not fill the offline queue with stale alerts.
func (n *Notifier) RunChecks(ctx context.Context) {
	if !n.svc.Online() {
		n.log.Debug("offline, skipping notification checks")
		return
	}
	if err := n.checkLowStock(ctx); err != nil {
		n.log.WithError(err).Warn("low stock check failed")
	}
	if err := n.checkOverdueDebts(ctx); err != nil {
		n.log.WithError(err).Warn("overdue debt check failed")
	}
}

func (n *Notifier) checkLowStock(ctx context.Context) error {
	products, err := n.svc.GetProducts(ctx)
	if err != nil {
		return err
	}
	unread, err := n.unreadByRelated(ctx, "low_stock")
	if err != nil {
		return err
	}

	for _, p := range products {
		if p.Stock > p.MinimalStock {
			continue
		}
		if unread[p.ID] {
			continue
		}
		title := "Low stock"
		message := fmt.Sprintf("%s needs restocking (%d left)", p.Name, p.Stock)
		if p.Stock < p.MinimalStock/2 {
			title = "Critical stock"
			message = fmt.Sprintf("%s is almost gone (%d left)", p.Name, p.Stock)
		}
		if _, _, err := n.svc.CreateNotification(ctx, models.Notification{
			Title:     title,
			Message:   message,
			Type:      "low_stock",
			RelatedID: p.ID,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (n *Notifier) checkOverdueDebts(ctx context.Context) error {
	debts, err := n.svc.GetDebts(ctx)
	if err != nil {
		return err
	}
	unread, err := n.unreadByRelated(ctx, "debt_due")
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-overdueAfter)
	for _, d := range debts {
		if d.Status != "unpaid" {
			continue
		}
		created, err := time.Parse(time.RFC3339, d.CreatedAt)
		if err != nil || created.After(cutoff) {
			continue
		}
		if unread[d.ID] {
			continue
		}
		days := int(time.Since(created).Hours() / 24)
		if _, _, err := n.svc.CreateNotification(ctx, models.Notification{
			Title:     "Debt overdue",
			Message:   fmt.Sprintf("%s has owed %.0f for %d days", d.CustomerName, d.Amount, days),
			Type:      "debt_due",
			RelatedID: d.ID,
		}); err != nil {
			return err
		}
	}
	return nil
}

// unreadByRelated indexes the unread notifications of one type by their
// related row id, for dedup.
func (n *Notifier) unreadByRelated(ctx context.Context, typ string) (map[string]bool, error) {
	unread, err := n.svc.GetNotifications(ctx, true)
	if err != nil {
		return nil, err
	}
	index := make(map[string]bool)
	for _, u := range unread {
		if u.Type == typ {
			index[u.RelatedID] = true
		}
	}
	return index, nil
}
