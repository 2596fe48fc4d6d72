package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Handle names one armed alarm. A new handle is minted every time an entry
// is armed, so a late fire of an old alarm can be told apart.
type Handle string

func newHandle(entryID string, now time.Time, seq uint64) Handle {
	return Handle(fmt.Sprintf("post:%s:%d-%d", entryID, now.UnixMilli(), seq))
}

// FireFunc is invoked when an alarm goes off.
type FireFunc func(ctx context.Context, entryID string, h Handle)

// Alarms is the one-shot wake-up facility.
type Alarms interface {
	Arm(ctx context.Context, h Handle, entryID string, at time.Time) error
	Disarm(ctx context.Context, h Handle) error
	// DisarmAll drops every alarm the backend holds, including ones this
	// process never armed. It returns how many were dropped.
	DisarmAll(ctx context.Context) (int, error)
}

// LocalAlarms keeps alarms in process memory. They do not survive a restart;
// Queue.Reconcile re-arms persisted entries on start-up.
type LocalAlarms struct {
	mu     sync.Mutex
	timers map[Handle]*time.Timer
	fire   FireFunc
}

func NewLocalAlarms() *LocalAlarms {
	return &LocalAlarms{timers: make(map[Handle]*time.Timer)}
}

// SetFireFunc must be called before the first alarm goes off.
func (a *LocalAlarms) SetFireFunc(fire FireFunc) {
	a.mu.Lock()
	a.fire = fire
	a.mu.Unlock()
}

func (a *LocalAlarms) Arm(_ context.Context, h Handle, entryID string, at time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if old, ok := a.timers[h]; ok {
		old.Stop()
	}
	a.timers[h] = time.AfterFunc(max(0, time.Until(at)), func() {
		a.mu.Lock()
		delete(a.timers, h)
		fire := a.fire
		a.mu.Unlock()

		if fire == nil {
			slog.Warn("alarm fired with no handler", "handle", h)
			return
		}
		fire(context.Background(), entryID, h)
	})
	return nil
}

func (a *LocalAlarms) Disarm(_ context.Context, h Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t, ok := a.timers[h]; ok {
		t.Stop()
		delete(a.timers, h)
	}
	return nil
}

func (a *LocalAlarms) DisarmAll(context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(a.timers)
	for h, t := range a.timers {
		t.Stop()
		delete(a.timers, h)
	}
	return n, nil
}

// Len reports how many alarms are armed.
func (a *LocalAlarms) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.timers)
}
