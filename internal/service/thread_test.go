package service_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/cwbrier63/canslim-monitor/internal/calendar"
	"github.com/cwbrier63/canslim-monitor/internal/service"
)

func newTestCalendar(t *testing.T) *calendar.Calendar {
	t.Helper()
	cal, err := calendar.New(zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("calendar.New: %v", err)
	}
	return cal
}

func TestBaseThreadForceCheckRunsCycleImmediately(t *testing.T) {
	cal := newTestCalendar(t)
	var calls int32
	th := service.NewBaseThread("test", time.Hour, service.AlwaysGate, cal, zap.NewNop(), func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	if err := th.ForceCheck(context.Background()); err != nil {
		t.Fatalf("ForceCheck: %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("cycle invoked %d times, want 1", calls)
	}
	if th.Stats().CycleCount != 1 {
		t.Errorf("CycleCount = %d, want 1", th.Stats().CycleCount)
	}
}

func TestBaseThreadGateSkipsCycleWithoutCountingIt(t *testing.T) {
	cal := newTestCalendar(t)
	var calls int32
	neverGate := func(*calendar.Calendar, time.Time) bool { return false }
	th := service.NewBaseThread("test", time.Hour, neverGate, cal, zap.NewNop(), func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	if err := th.ForceCheck(context.Background()); err != nil {
		t.Fatalf("ForceCheck: %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Error("a closed gate should prevent the cycle function from running")
	}
	if th.Stats().CycleCount != 0 {
		t.Errorf("CycleCount = %d, want 0 when gated", th.Stats().CycleCount)
	}
}

func TestBaseThreadRecordsErrorFromFailedCycle(t *testing.T) {
	cal := newTestCalendar(t)
	th := service.NewBaseThread("test", time.Hour, service.AlwaysGate, cal, zap.NewNop(), func(ctx context.Context) error {
		return context.DeadlineExceeded
	})

	if err := th.ForceCheck(context.Background()); err == nil {
		t.Fatal("expected ForceCheck to propagate the cycle error")
	}
	stats := th.Stats()
	if stats.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", stats.ErrorCount)
	}
	if stats.LastError == "" {
		t.Error("expected LastError to be populated")
	}
}

func TestBaseThreadRecordMessageAccumulates(t *testing.T) {
	cal := newTestCalendar(t)
	th := service.NewBaseThread("test", time.Hour, service.AlwaysGate, cal, zap.NewNop(), func(ctx context.Context) error { return nil })

	th.RecordMessage(3)
	th.RecordMessage(2)
	if th.Stats().MessageCount != 5 {
		t.Errorf("MessageCount = %d, want 5", th.Stats().MessageCount)
	}
}

func TestBaseThreadStartAndStopTransitionsState(t *testing.T) {
	cal := newTestCalendar(t)
	th := service.NewBaseThread("test", 10*time.Millisecond, service.AlwaysGate, cal, zap.NewNop(), func(ctx context.Context) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	th.Start(ctx)

	if !th.Stop(2 * time.Second) {
		t.Fatal("expected Stop to report a clean exit within the timeout")
	}
	if th.Stats().State != service.ThreadStopped {
		t.Errorf("State = %v, want stopped after Stop", th.Stats().State)
	}
}

func TestAlwaysGateAndOffHoursGateAreComplementaryToMarketHoursGate(t *testing.T) {
	cal := newTestCalendar(t)
	now := time.Now()
	if !service.AlwaysGate(cal, now) {
		t.Error("AlwaysGate should always return true")
	}
	marketOpen := cal.IsMarketOpen(now)
	if service.MarketHoursGate(cal, now) != marketOpen {
		t.Error("MarketHoursGate should mirror calendar.IsMarketOpen")
	}
	if service.OffHoursGate(cal, now) == marketOpen {
		t.Error("OffHoursGate should be the complement of MarketHoursGate")
	}
}
