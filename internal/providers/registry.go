package providers

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cwbrier63/canslim-monitor/internal/models"
	"github.com/cwbrier63/canslim-monitor/internal/persistence"
)

// HistoricalFactoryFunc builds a HistoricalProvider from a persisted
// config row. RealtimeFactoryFunc/FuturesFactoryFunc are analogous.
// Implementations self-register under a name (`massive`, `ibkr`, ...)
// for the domain they serve.
type HistoricalFactoryFunc func(cfg *models.ProviderConfig, creds map[string]string, throttle *Throttle) (HistoricalProvider, error)
type RealtimeFactoryFunc func(cfg *models.ProviderConfig, creds map[string]string, throttle *Throttle) (RealtimeProvider, error)
type FuturesFactoryFunc func(cfg *models.ProviderConfig, creds map[string]string, throttle *Throttle, shared SharedConnection) (FuturesProvider, error)

// SharedConnection is the interface a realtime implementation exposes
// so a futures implementation on the same underlying connection
// (e.g. one IBKR client feeding both realtime quotes and futures
// snapshots) can be injected rather than opening a second connection.
type SharedConnection interface {
	Identity() string
	Disconnect() error
}

var (
	registryMu         sync.Mutex
	historicalRegistry = map[string]HistoricalFactoryFunc{}
	realtimeRegistry   = map[string]RealtimeFactoryFunc{}
	futuresRegistry    = map[string]FuturesFactoryFunc{}
)

// RegisterHistorical registers a HistoricalProvider implementation.
// Call from an implementation package's init().
func RegisterHistorical(name string, fn HistoricalFactoryFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	historicalRegistry[name] = fn
}

// RegisterRealtime registers a RealtimeProvider implementation.
func RegisterRealtime(name string, fn RealtimeFactoryFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	realtimeRegistry[name] = fn
}

// RegisterFutures registers a FuturesProvider implementation.
func RegisterFutures(name string, fn FuturesFactoryFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	futuresRegistry[name] = fn
}

// Factory reads ProviderConfig rows from persistence, instantiates the
// highest-priority enabled implementation per domain, and caches
// instances so repeated calls return the same object.
type Factory struct {
	logger   *zap.Logger
	configs  *persistence.ProviderConfigRepository

	mu         sync.Mutex
	historical map[string]HistoricalProvider // keyed by provider id
	realtime   map[string]RealtimeProvider
	futures    map[string]FuturesProvider
	shared     map[string]SharedConnection // keyed by connection identity, deduplicated
}

func NewFactory(logger *zap.Logger, configs *persistence.ProviderConfigRepository) *Factory {
	return &Factory{
		logger:     logger,
		configs:    configs,
		historical: make(map[string]HistoricalProvider),
		realtime:   make(map[string]RealtimeProvider),
		futures:    make(map[string]FuturesProvider),
		shared:     make(map[string]SharedConnection),
	}
}

// Historical returns (constructing and caching if needed) the primary
// historical provider.
func (f *Factory) Historical(ctx context.Context) (HistoricalProvider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cfg, err := f.configs.GetPrimaryForDomain(ctx, models.DomainHistorical)
	if err != nil {
		return nil, fmt.Errorf("load historical provider config: %w", err)
	}
	if cfg == nil {
		return nil, fmt.Errorf("no enabled historical provider configured")
	}
	if p, ok := f.historical[cfg.ID]; ok {
		return p, nil
	}

	registryMu.Lock()
	fn, ok := historicalRegistry[cfg.Implementation]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown historical provider implementation %q", cfg.Implementation)
	}

	creds, err := f.credentialMap(ctx, cfg.ID)
	if err != nil {
		return nil, err
	}
	p, err := fn(cfg, creds, NewThrottle(cfg.Throttle))
	if err != nil {
		return nil, fmt.Errorf("construct historical provider %q: %w", cfg.Name, err)
	}
	f.historical[cfg.ID] = p
	f.logger.Info("historical provider ready", zap.String("provider", cfg.Name))
	return p, nil
}

// Realtime returns (constructing and caching if needed) the primary
// realtime provider.
func (f *Factory) Realtime(ctx context.Context) (RealtimeProvider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cfg, err := f.configs.GetPrimaryForDomain(ctx, models.DomainRealtime)
	if err != nil {
		return nil, fmt.Errorf("load realtime provider config: %w", err)
	}
	if cfg == nil {
		return nil, fmt.Errorf("no enabled realtime provider configured")
	}
	if p, ok := f.realtime[cfg.ID]; ok {
		return p, nil
	}

	registryMu.Lock()
	fn, ok := realtimeRegistry[cfg.Implementation]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown realtime provider implementation %q", cfg.Implementation)
	}

	creds, err := f.credentialMap(ctx, cfg.ID)
	if err != nil {
		return nil, err
	}
	p, err := fn(cfg, creds, NewThrottle(cfg.Throttle))
	if err != nil {
		return nil, fmt.Errorf("construct realtime provider %q: %w", cfg.Name, err)
	}
	if sc, ok := p.(SharedConnection); ok {
		f.shared[sc.Identity()] = sc
	}
	f.realtime[cfg.ID] = p
	f.logger.Info("realtime provider ready", zap.String("provider", cfg.Name))
	return p, nil
}

// Futures returns (constructing and caching if needed) the primary
// futures provider, injecting a shared connection when the chosen
// implementation reuses the realtime provider's underlying client.
func (f *Factory) Futures(ctx context.Context) (FuturesProvider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cfg, err := f.configs.GetPrimaryForDomain(ctx, models.DomainFutures)
	if err != nil {
		return nil, fmt.Errorf("load futures provider config: %w", err)
	}
	if cfg == nil {
		return nil, fmt.Errorf("no enabled futures provider configured")
	}
	if p, ok := f.futures[cfg.ID]; ok {
		return p, nil
	}

	registryMu.Lock()
	fn, ok := futuresRegistry[cfg.Implementation]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown futures provider implementation %q", cfg.Implementation)
	}

	creds, err := f.credentialMap(ctx, cfg.ID)
	if err != nil {
		return nil, err
	}

	var shared SharedConnection
	for _, sc := range f.shared {
		shared = sc // at most one shared connection is expected in practice
		break
	}

	p, err := fn(cfg, creds, NewThrottle(cfg.Throttle), shared)
	if err != nil {
		return nil, fmt.Errorf("construct futures provider %q: %w", cfg.Name, err)
	}
	f.futures[cfg.ID] = p
	f.logger.Info("futures provider ready", zap.String("provider", cfg.Name))
	return p, nil
}

// DisconnectAll tears down every shared connection exactly once,
// de-duplicating by identity.
func (f *Factory) DisconnectAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for identity, sc := range f.shared {
		if err := sc.Disconnect(); err != nil {
			f.logger.Warn("provider disconnect failed", zap.String("connection", identity), zap.Error(err))
		}
	}
	f.shared = make(map[string]SharedConnection)
}

func (f *Factory) credentialMap(ctx context.Context, providerID string) (map[string]string, error) {
	creds, err := f.configs.GetAllCredentials(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	out := make(map[string]string, len(creds))
	for _, c := range creds {
		out[c.Key] = c.Value
	}
	return out, nil
}
