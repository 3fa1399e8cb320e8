/*
scheduler.go - Periodic snapshot resync

PURPOSE:
  Periodically re-publishes every subscribed user's snapshot. Clients count
  snapshots to expire optimistic changes the server never confirmed, so an
  idle wallet still needs snapshots to arrive. A date change is also a
  period boundary for monthly benefits; clients recompute periods from the
  fresh snapshot.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Only users with a live stream subscriber are published
  - Logs when the calendar date rolls over between ticks

CONFIGURATION:
  - Interval: How often to resync (default: 1 minute)
  - Enabled:  Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewResyncScheduler(handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - stream.go: Hub and websocket handler
  - wallet/state.go: ApplySnapshot and pending expiry
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/warp/card-wallet/generic"
)

// ResyncScheduler pushes snapshots to subscribers on a timer.
type ResyncScheduler struct {
	Handler  *Handler
	Interval time.Duration
	Enabled  bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	// dateMu guards lastDate. It is separate from mu because Stop holds mu
	// while waiting for the ticker goroutine, which may be inside RunNow.
	dateMu   sync.Mutex
	lastDate generic.Date
}

// NewResyncScheduler creates a new scheduler.
func NewResyncScheduler(handler *Handler) *ResyncScheduler {
	return &ResyncScheduler{
		Handler:  handler,
		Interval: time.Minute,
		Enabled:  true,
	}
}

// Start begins the scheduler.
func (rs *ResyncScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	log := rs.Handler.Logger.With("component", "scheduler")
	if !rs.Enabled || rs.Interval <= 0 {
		log.Info("resync disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.Interval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run()

	log.Info("resync started", "interval", rs.Interval)
}

// Stop stops the scheduler and waits for an in-progress resync.
func (rs *ResyncScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.Handler.Logger.Info("resync stopped", "component", "scheduler")
	}
}

func (rs *ResyncScheduler) run() {
	defer rs.wg.Done()

	for {
		select {
		case <-rs.ticker.C:
			rs.RunNow()
		case <-rs.stop:
			return
		}
	}
}

// RunNow publishes every subscribed user's snapshot and returns how many
// users were resynced.
func (rs *ResyncScheduler) RunNow() int {
	h := rs.Handler
	today := h.Now()

	rs.dateMu.Lock()
	previous := rs.lastDate
	rs.lastDate = today
	rs.dateMu.Unlock()

	if !previous.IsZero() && !today.Equal(previous) {
		h.Logger.Info("date rolled over", "component", "scheduler", "from", previous.String(), "to", today.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), rs.timeout())
	defer cancel()

	users := h.Hub.Users()
	for _, user := range users {
		h.publish(ctx, user)
	}
	if len(users) > 0 {
		h.Logger.Debug("resync complete", "component", "scheduler", "users", len(users))
	}
	return len(users)
}

func (rs *ResyncScheduler) timeout() time.Duration {
	if rs.Interval > 0 && rs.Interval < 30*time.Second {
		return rs.Interval
	}
	return 30 * time.Second
}
