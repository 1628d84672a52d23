package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cwbrier63/canslim-monitor/internal/monitor"
	"github.com/cwbrier63/canslim-monitor/internal/providers"
)

// technicalsCacheTTL is how long a symbol's technicals are served from
// the cache before the next Get re-fetches them; the Position and
// Breakout threads read the same cache since both need the same
// moving-average/volume baseline.
const technicalsCacheTTL = 4 * time.Hour

const barsLookback = 260 // >= 250 trading days plus headroom for MA warmup

type techEntry struct {
	tech      monitor.Technicals
	fetchedAt time.Time
}

// TechnicalsCache refreshes a symbol's moving averages/volume baseline
// from the historical provider at most once per TTL, shared across the
// Breakout and Position worker threads.
type TechnicalsCache struct {
	mu      sync.Mutex
	entries map[string]techEntry
}

func NewTechnicalsCache() *TechnicalsCache {
	return &TechnicalsCache{entries: make(map[string]techEntry)}
}

// Get returns cached technicals for symbol, refreshing from hp if the
// entry is missing or stale.
func (c *TechnicalsCache) Get(ctx context.Context, hp providers.HistoricalProvider, symbol string) (monitor.Technicals, error) {
	c.mu.Lock()
	entry, ok := c.entries[symbol]
	c.mu.Unlock()
	if ok && time.Since(entry.fetchedAt) < technicalsCacheTTL {
		return entry.tech, nil
	}

	bars, err := hp.GetBars(ctx, symbol, barsLookback)
	if err != nil {
		if ok {
			return entry.tech, nil // serve stale data rather than fail the cycle
		}
		return monitor.Technicals{}, fmt.Errorf("fetch bars for %s: %w", symbol, err)
	}

	tech := monitor.ComputeTechnicals(bars)
	c.mu.Lock()
	c.entries[symbol] = techEntry{tech: tech, fetchedAt: time.Now()}
	c.mu.Unlock()
	return tech, nil
}

// Invalidate forces the next Get for symbol to refetch.
func (c *TechnicalsCache) Invalidate(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, symbol)
}
