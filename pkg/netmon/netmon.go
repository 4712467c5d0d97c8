// Package netmon watches reachability of the remote service. There is
// no platform online/offline event to subscribe to, so reachability is
// derived by probing the service's health endpoint on an interval.
package netmon

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/halolaba/halolaba-client/pkg/remote"
)

// Monitor owns the process-wide online flag. An offline-to-online
// transition invokes the onOnline callback exactly once per transition;
// the callback is where the sync engine's drain is hooked in.
type Monitor struct {
	store    remote.Store
	interval time.Duration
	onOnline func(ctx context.Context)
	log      *logrus.Logger

	online atomic.Bool
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Monitor probing store every interval. onOnline may be
// nil when no transition hook is needed.
func New(store remote.Store, interval time.Duration, onOnline func(ctx context.Context), log *logrus.Logger) *Monitor {
	return &Monitor{
		store:    store,
		interval: interval,
		onOnline: onOnline,
		log:      log,
	}
}

// Online reports the current connectivity state.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Start performs an initial probe to seed the flag, then keeps probing
// in the background until Stop is called or ctx is cancelled. The
// initial probe does not fire the transition hook; it establishes the
// starting state, and if we start online the caller decides whether to
// kick off an initial drain.
func (m *Monitor) Start(ctx context.Context) {
	m.online.Store(m.probe(ctx))
	m.log.WithField("online", m.Online()).Info("connectivity monitor started")

	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.run(ctx)
}

// Stop halts the background probing and waits for it to wind down.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := m.probe(ctx)
			was := m.online.Swap(now)
			switch {
			case !was && now:
				m.log.Info("back online, starting sync")
				if m.onOnline != nil {
					m.onOnline(ctx)
				}
			case was && !now:
				m.log.Warn("gone offline, switching to offline mode")
			}
		}
	}
}

func (m *Monitor) probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()
	return m.store.Ping(probeCtx) == nil
}
