package providers

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cwbrier63/canslim-monitor/internal/models"
)

// BarCache is a file-backed daily-bar cache shared by every
// HistoricalProvider implementation. The Maintenance worker thread
// trims it; nothing refreshes it on a schedule, so a symbol's bars
// change only when a caller fetches them and calls Put. It exists so repeated
// same-day calls for SPY/QQQ/DIA/IWM and watchlist symbols don't each
// re-fetch from the upstream API under the provider's rate limit.
type BarCache struct {
	mu      sync.RWMutex
	logger  *zap.Logger
	dataDir string
	cache   map[string][]models.Bar
}

// NewBarCache opens (creating if necessary) a bar cache rooted at dataDir.
func NewBarCache(logger *zap.Logger, dataDir string) (*BarCache, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create bar cache directory: %w", err)
	}
	return &BarCache{logger: logger, dataDir: dataDir, cache: make(map[string][]models.Bar)}, nil
}

func (c *BarCache) fileFor(symbol string) string {
	return filepath.Join(c.dataDir, fmt.Sprintf("%s.json", symbol))
}

// Get returns the cached bars for symbol, reading through to disk on a
// memory-cache miss. It does not go to the network; callers populate
// the cache via Put after fetching from a provider.
func (c *BarCache) Get(symbol string) ([]models.Bar, bool) {
	c.mu.RLock()
	if bars, ok := c.cache[symbol]; ok {
		c.mu.RUnlock()
		return bars, true
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if bars, ok := c.cache[symbol]; ok {
		return bars, true
	}
	data, err := os.ReadFile(c.fileFor(symbol))
	if err != nil {
		return nil, false
	}
	var bars []models.Bar
	if err := json.Unmarshal(data, &bars); err != nil {
		c.logger.Warn("bar cache file corrupt, ignoring", zap.String("symbol", symbol), zap.Error(err))
		return nil, false
	}
	c.cache[symbol] = bars
	return bars, true
}

// Put stores freshly-fetched bars both in memory and on disk, sorted
// ascending by date.
func (c *BarCache) Put(symbol string, bars []models.Bar) error {
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	c.mu.Lock()
	c.cache[symbol] = bars
	c.mu.Unlock()

	data, err := json.Marshal(bars)
	if err != nil {
		return fmt.Errorf("marshal bars for %s: %w", symbol, err)
	}
	if err := os.WriteFile(c.fileFor(symbol), data, 0o644); err != nil {
		return fmt.Errorf("write bar cache for %s: %w", symbol, err)
	}
	return nil
}

// Trim drops bars older than maxAge for every cached symbol, matching
// the Maintenance thread's history-trimming duty.
func (c *BarCache) Trim(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)
	c.mu.Lock()
	defer c.mu.Unlock()
	for symbol, bars := range c.cache {
		kept := bars[:0]
		for _, b := range bars {
			if b.Date.After(cutoff) {
				kept = append(kept, b)
			}
		}
		c.cache[symbol] = kept
	}
}

// Clear drops the in-memory cache, forcing the next Get to read through
// from disk.
func (c *BarCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string][]models.Bar)
}

// Size returns the number of symbols currently cached in memory.
func (c *BarCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
