// Package service implements the four periodic worker threads and the
// Service Controller that wires every other package together into the
// long-running surveillance engine.
package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cwbrier63/canslim-monitor/internal/calendar"
)

// ThreadState is a worker thread's coarse lifecycle state, reported
// through GET_STATUS.
type ThreadState string

const (
	ThreadIdle    ThreadState = "idle"
	ThreadRunning ThreadState = "running"
	ThreadStopped ThreadState = "stopped"
)

// Stats is the rolling per-thread statistics block every BaseThread
// exposes.
type Stats struct {
	State         ThreadState `json:"state"`
	CycleCount    int64       `json:"cycleCount"`
	MessageCount  int64       `json:"messageCount"`
	ErrorCount    int64       `json:"errorCount"`
	LastCheck     time.Time   `json:"lastCheck"`
	LastError     string      `json:"lastError,omitempty"`
	AvgCycleMS    float64     `json:"avgCycleMs"`
	IsMarketHours bool        `json:"isMarketHours"`
}

// Gate decides whether a cycle should run right now, given the shared
// market calendar.
type Gate func(cal *calendar.Calendar, now time.Time) bool

// AlwaysGate runs every tick regardless of market hours.
func AlwaysGate(*calendar.Calendar, time.Time) bool { return true }

// MarketHoursGate restricts a thread to regular trading hours.
func MarketHoursGate(cal *calendar.Calendar, now time.Time) bool { return cal.IsMarketOpen(now) }

// OffHoursGate restricts a thread to the period the market is closed —
// the Maintenance thread's after-close duty.
func OffHoursGate(cal *calendar.Calendar, now time.Time) bool { return !cal.IsMarketOpen(now) }

// BaseThread is the scheduled poll loop every worker thread embeds:
// shutdown event, per-cycle timing, rolling stats, and market-calendar
// gating. Concrete threads supply a name, period, gate, and
// a cycle function; BaseThread owns the loop and statistics bookkeeping.
type BaseThread struct {
	name   string
	period time.Duration
	gate   Gate
	cal    *calendar.Calendar
	logger *zap.Logger
	cycle  func(ctx context.Context) error

	mu           sync.Mutex
	stats        Stats
	stopCh       chan struct{}
	stopOnce     sync.Once
	doneCh       chan struct{}
	periodUpdate chan time.Duration
}

// NewBaseThread constructs a thread ready to Start.
func NewBaseThread(name string, period time.Duration, gate Gate, cal *calendar.Calendar, logger *zap.Logger, cycle func(ctx context.Context) error) *BaseThread {
	return &BaseThread{
		name:         name,
		period:       period,
		gate:         gate,
		cal:          cal,
		logger:       logger.With(zap.String("thread", name)),
		cycle:        cycle,
		stats:        Stats{State: ThreadIdle},
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
		periodUpdate: make(chan time.Duration, 1),
	}
}

// SetPeriod changes the poll interval applied on the next tick, for a
// running thread picking up a reloaded config without a restart. A
// pending update that Start hasn't consumed yet is replaced rather
// than queued.
func (t *BaseThread) SetPeriod(period time.Duration) {
	if period <= 0 {
		return
	}
	select {
	case <-t.periodUpdate:
	default:
	}
	t.periodUpdate <- period
}

// Start runs the poll loop until Stop is called or ctx is cancelled.
// It returns immediately; the loop runs on its own goroutine.
func (t *BaseThread) Start(ctx context.Context) {
	go t.run(ctx)
}

// Stop signals the loop to exit after its current cycle and blocks up
// to timeout for it to do so.
func (t *BaseThread) Stop(timeout time.Duration) (exited bool) {
	t.stopOnce.Do(func() { close(t.stopCh) })
	select {
	case <-t.doneCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// ForceCheck runs one cycle immediately, outside the regular schedule.
func (t *BaseThread) ForceCheck(ctx context.Context) error {
	return t.runCycle(ctx)
}

// Stats returns a copy of the current rolling statistics.
func (t *BaseThread) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

func (t *BaseThread) run(ctx context.Context) {
	defer close(t.doneCh)
	t.setState(ThreadRunning)

	ticker := time.NewTicker(t.period)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			t.setState(ThreadStopped)
			return
		case <-ctx.Done():
			t.setState(ThreadStopped)
			return
		case <-ticker.C:
			if err := t.runCycle(ctx); err != nil {
				t.logger.Warn("cycle failed", zap.Error(err))
			}
		case period := <-t.periodUpdate:
			t.mu.Lock()
			t.period = period
			t.mu.Unlock()
			ticker.Reset(period)
		}
	}
}

func (t *BaseThread) runCycle(ctx context.Context) error {
	now := t.cal.Now()
	marketHours := t.cal.IsMarketOpen(now)

	t.mu.Lock()
	t.stats.IsMarketHours = marketHours
	t.mu.Unlock()

	if !t.gate(t.cal, now) {
		return nil
	}

	start := time.Now()
	err := t.cycle(ctx)
	elapsed := time.Since(start)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.CycleCount++
	t.stats.LastCheck = time.Now()
	if t.stats.AvgCycleMS == 0 {
		t.stats.AvgCycleMS = float64(elapsed.Milliseconds())
	} else {
		t.stats.AvgCycleMS = t.stats.AvgCycleMS*0.8 + float64(elapsed.Milliseconds())*0.2
	}
	if err != nil {
		t.stats.ErrorCount++
		t.stats.LastError = err.Error()
	}
	return err
}

// RecordMessage increments the message counter, used by threads that
// count alerts emitted rather than just cycles run.
func (t *BaseThread) RecordMessage(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.MessageCount += n
}

func (t *BaseThread) setState(s ThreadState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.State = s
}
