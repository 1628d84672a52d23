package providers_test

import (
	"errors"
	"testing"

	"github.com/cwbrier63/canslim-monitor/internal/providers"
)

func TestHealthStartsHealthy(t *testing.T) {
	h := providers.NewHealth()
	snap := h.Snapshot()
	if snap.Status != providers.StatusHealthy {
		t.Errorf("initial status = %s, want healthy", snap.Status)
	}
	if !h.IsConnected() {
		t.Error("a fresh Health should report connected")
	}
}

func TestHealthDegradesAfterThreeFailures(t *testing.T) {
	h := providers.NewHealth()
	for i := 0; i < 2; i++ {
		h.RecordFailure(errors.New("boom"))
	}
	if h.Snapshot().Status != providers.StatusHealthy {
		t.Error("two consecutive failures should not yet degrade status")
	}
	h.RecordFailure(errors.New("boom"))
	if h.Snapshot().Status != providers.StatusDegraded {
		t.Errorf("status after 3 failures = %s, want degraded", h.Snapshot().Status)
	}
	if !h.IsConnected() {
		t.Error("degraded should still report connected")
	}
}

func TestHealthGoesDownAfterEightFailures(t *testing.T) {
	h := providers.NewHealth()
	for i := 0; i < 8; i++ {
		h.RecordFailure(errors.New("boom"))
	}
	if h.Snapshot().Status != providers.StatusDown {
		t.Errorf("status after 8 failures = %s, want down", h.Snapshot().Status)
	}
	if h.IsConnected() {
		t.Error("down status should report not connected")
	}
}

func TestHealthSuccessResetsFailureCount(t *testing.T) {
	h := providers.NewHealth()
	for i := 0; i < 5; i++ {
		h.RecordFailure(errors.New("boom"))
	}
	h.RecordSuccess()
	snap := h.Snapshot()
	if snap.Status != providers.StatusHealthy {
		t.Errorf("status after RecordSuccess = %s, want healthy", snap.Status)
	}
	if snap.ConsecutiveFailures != 0 {
		t.Errorf("consecutive failures after success = %d, want 0", snap.ConsecutiveFailures)
	}
	if snap.LastError != "" {
		t.Errorf("lastError after success = %q, want empty", snap.LastError)
	}
}
