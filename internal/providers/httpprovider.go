package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cwbrier63/canslim-monitor/internal/models"
)

func init() {
	RegisterHistorical("massive", newHTTPHistoricalProvider)
}

// httpHistoricalProvider is a generic REST historical-bar provider
// (named "massive" in the config, matching the vendor-neutral naming
// convention the registry uses). It is the default
// HistoricalProvider implementation; the rate limiter enforced here is
// the same Throttle the factory builds from the persisted
// ProviderConfig row, so calls_per_minute/burst_size/min_delay_seconds
// are honored regardless of which vendor backs it.
type httpHistoricalProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	throttle   *Throttle
	cache      *BarCache
	health     *Health
}

func newHTTPHistoricalProvider(cfg *models.ProviderConfig, creds map[string]string, throttle *Throttle) (HistoricalProvider, error) {
	baseURL, _ := cfg.Settings["base_url"].(string)
	if baseURL == "" {
		return nil, fmt.Errorf("provider %s: settings.base_url is required", cfg.Name)
	}
	dataDir, _ := cfg.Settings["cache_dir"].(string)
	if dataDir == "" {
		dataDir = "./data/bars"
	}

	// BarCache construction is deliberately lightweight (file IO only on
	// first touch of a symbol); it is safe to build here per-provider
	// since the factory caches the provider instance itself.
	cache, err := NewBarCache(zap.NewNop(), dataDir)
	if err != nil {
		return nil, err
	}

	return &httpHistoricalProvider{
		baseURL:    baseURL,
		apiKey:     creds["api_key"],
		httpClient: &http.Client{Timeout: 15 * time.Second},
		throttle:   throttle,
		cache:      cache,
		health:     NewHealth(),
	}, nil
}

func (p *httpHistoricalProvider) Health() *Health { return p.health }

// TrimCache drops bars older than maxAge from the provider's bar cache,
// the capability the Maintenance worker thread's history-trimming duty
// looks for.
func (p *httpHistoricalProvider) TrimCache(maxAge time.Duration) {
	p.cache.Trim(maxAge)
}

// GetBars returns the last `lookback` daily bars for symbol, serving
// from the bar cache when available and falling back to the upstream
// API (throttled) on a cache miss.
func (p *httpHistoricalProvider) GetBars(ctx context.Context, symbol string, lookback int) ([]models.Bar, error) {
	if cached, ok := p.cache.Get(symbol); ok && len(cached) >= lookback {
		return lastN(cached, lookback), nil
	}

	if err := p.throttle.Wait(ctx); err != nil {
		return nil, fmt.Errorf("throttle wait: %w", err)
	}

	url := fmt.Sprintf("%s/v1/bars/%s?lookback=%d&apiKey=%s", p.baseURL, symbol, lookback, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.health.RecordFailure(err)
		return nil, fmt.Errorf("fetch bars for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		err := fmt.Errorf("upstream returned status %d", resp.StatusCode)
		p.health.RecordFailure(err)
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching bars for %s", resp.StatusCode, symbol)
	}

	var bars []models.Bar
	if err := json.NewDecoder(resp.Body).Decode(&bars); err != nil {
		p.health.RecordFailure(err)
		return nil, fmt.Errorf("decode bars for %s: %w", symbol, err)
	}
	p.health.RecordSuccess()

	if err := p.cache.Put(symbol, bars); err != nil {
		return nil, fmt.Errorf("cache bars for %s: %w", symbol, err)
	}
	return lastN(bars, lookback), nil
}

// GetMovingAverage computes a simple moving average over `period` bars
// of cached/fetched history.
func (p *httpHistoricalProvider) GetMovingAverage(ctx context.Context, symbol string, period int) (float64, error) {
	bars, err := p.GetBars(ctx, symbol, period)
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, fmt.Errorf("no bars available for %s", symbol)
	}
	sum := 0.0
	for _, b := range bars {
		f, _ := b.Close.Float64()
		sum += f
	}
	return sum / float64(len(bars)), nil
}

// GetAverageDollarVolume computes average daily $ volume over `days` bars.
func (p *httpHistoricalProvider) GetAverageDollarVolume(ctx context.Context, symbol string, days int) (float64, error) {
	bars, err := p.GetBars(ctx, symbol, days)
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, fmt.Errorf("no bars available for %s", symbol)
	}
	sum := 0.0
	for _, b := range bars {
		close, _ := b.Close.Float64()
		vol, _ := b.Volume.Float64()
		sum += close * vol
	}
	return sum / float64(len(bars)), nil
}

func lastN(bars []models.Bar, n int) []models.Bar {
	if n <= 0 || n >= len(bars) {
		return bars
	}
	return bars[len(bars)-n:]
}
