package providers

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cwbrier63/canslim-monitor/internal/models"
)

// Throttle enforces a provider's call budget: a per-minute sliding
// window (via a token-bucket limiter sized in calls/second) plus a
// minimum inter-call delay, matching the persisted throttle profile.
// A single Throttle instance is shared across the Position, Regime,
// and Maintenance threads, so lastCallAt is mutex-guarded.
type Throttle struct {
	limiter  *rate.Limiter
	minDelay time.Duration

	mu         sync.Mutex
	lastCallAt time.Time
}

// NewThrottle builds a limiter from a ThrottleProfile. The limiter is
// expressed per-second (rate.Limiter's native unit); calls_per_minute
// is converted accordingly, following a per-endpoint-class limiter
// pattern.
func NewThrottle(profile models.ThrottleProfile) *Throttle {
	perSecond := float64(profile.CallsPerMinute) / 60.0
	if perSecond <= 0 {
		perSecond = 1
	}
	burst := profile.BurstSize
	if burst <= 0 {
		burst = 1
	}
	return &Throttle{
		limiter:  rate.NewLimiter(rate.Limit(perSecond), burst),
		minDelay: time.Duration(profile.MinDelaySeconds) * time.Second,
	}
}

// Wait blocks until a slot is available under both the sliding-window
// budget and the minimum inter-call delay.
func (t *Throttle) Wait(ctx context.Context) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	t.mu.Lock()
	last := t.lastCallAt
	t.mu.Unlock()

	if t.minDelay > 0 && !last.IsZero() {
		elapsed := time.Since(last)
		if elapsed < t.minDelay {
			select {
			case <-time.After(t.minDelay - elapsed):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	t.mu.Lock()
	t.lastCallAt = time.Now()
	t.mu.Unlock()
	return nil
}
