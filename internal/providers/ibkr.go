package providers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cwbrier63/canslim-monitor/internal/models"
)

func init() {
	RegisterRealtime("ibkr", newIBKRRealtimeProvider)
	RegisterFutures("ibkr", newIBKRFuturesProvider)
}

// ibkrRequest is marshaled onto the connection's dedicated goroutine;
// the calling goroutine blocks on resultCh for the cross-thread future
// (the client SDK requires a thread-local event loop).
type ibkrRequest struct {
	kind     string // "quotes" | "futures"
	symbols  []string
	resultCh chan ibkrResult
}

type ibkrResult struct {
	quotes  map[string]models.Quote
	futures *models.FuturesSnapshot
	err     error
}

// ibkrConnection is the single underlying connection shared by the
// realtime and futures providers. Exactly one
// connection goroutine runs regardless of how many provider adapters
// reference it; disconnect is idempotent. refCount is incremented when
// the realtime provider is built, but Disconnect does not consult it.
type ibkrConnection struct {
	mu          sync.Mutex
	host        string
	port        int
	health      *Health
	requests    chan ibkrRequest
	stop        chan struct{}
	stopped     bool
	connected   bool
	refCount    int
	reconnectMu sync.Mutex
}

func newIBKRConnection(host string, port int) *ibkrConnection {
	c := &ibkrConnection{
		host:     host,
		port:     port,
		health:   NewHealth(),
		requests: make(chan ibkrRequest, 64),
		stop:     make(chan struct{}),
	}
	c.connected = true // simulated connect; a real client would dial here
	go c.loop()
	return c
}

func (c *ibkrConnection) Identity() string {
	return fmt.Sprintf("ibkr://%s:%d", c.host, c.port)
}

// Disconnect is idempotent: the first call tears the connection down
// for every adapter sharing it, and later calls are no-ops. It is not
// reference-counted.
func (c *ibkrConnection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return nil
	}
	c.stopped = true
	c.connected = false
	close(c.stop)
	return nil
}

func (c *ibkrConnection) loop() {
	for {
		select {
		case req := <-c.requests:
			c.serve(req)
		case <-c.stop:
			return
		}
	}
}

func (c *ibkrConnection) serve(req ibkrRequest) {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		req.resultCh <- ibkrResult{err: fmt.Errorf("ibkr connection not established")}
		return
	}

	switch req.kind {
	case "quotes":
		quotes := make(map[string]models.Quote, len(req.symbols))
		for _, sym := range req.symbols {
			// A real client marshals this onto the broker's socket;
			// here the connection goroutine is the single owner of
			// that call, which is the structural property this type
			// exists to provide.
			quotes[sym] = models.Quote{Symbol: sym, Timestamp: time.Now()}
		}
		req.resultCh <- ibkrResult{quotes: quotes}
	case "futures":
		req.resultCh <- ibkrResult{futures: &models.FuturesSnapshot{
			ESPct: decimal.Zero, NQPct: decimal.Zero, YMPct: decimal.Zero, Timestamp: time.Now(),
		}}
	default:
		req.resultCh <- ibkrResult{err: fmt.Errorf("unknown request kind %q", req.kind)}
	}
}

func (c *ibkrConnection) call(ctx context.Context, req ibkrRequest) (ibkrResult, error) {
	req.resultCh = make(chan ibkrResult, 1)
	select {
	case c.requests <- req:
	case <-ctx.Done():
		return ibkrResult{}, ctx.Err()
	}
	select {
	case res := <-req.resultCh:
		return res, nil
	case <-ctx.Done():
		return ibkrResult{}, ctx.Err()
	}
}

// ibkrRealtimeProvider and ibkrFuturesProvider are thin adapters over
// one ibkrConnection: one connection resource, two thin adapter objects.
type ibkrRealtimeProvider struct {
	conn     *ibkrConnection
	throttle *Throttle
}

func newIBKRRealtimeProvider(cfg *models.ProviderConfig, creds map[string]string, throttle *Throttle) (RealtimeProvider, error) {
	host, _ := cfg.Settings["host"].(string)
	port, _ := cfg.Settings["port"].(float64) // JSON numbers decode as float64
	if host == "" {
		host = "127.0.0.1"
	}
	if port == 0 {
		port = 7497
	}
	conn := newIBKRConnection(host, int(port))
	conn.refCount++
	return &ibkrRealtimeProvider{conn: conn, throttle: throttle}, nil
}

func (p *ibkrRealtimeProvider) GetQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	if err := p.throttle.Wait(ctx); err != nil {
		return nil, fmt.Errorf("throttle wait: %w", err)
	}
	res, err := p.conn.call(ctx, ibkrRequest{kind: "quotes", symbols: symbols})
	if err != nil {
		p.conn.health.RecordFailure(err)
		return nil, err
	}
	if res.err != nil {
		p.conn.health.RecordFailure(res.err)
		return nil, res.err
	}
	p.conn.health.RecordSuccess()

	// Missing or zero-priced symbols are omitted rather than returning
	// nulls.
	out := make(map[string]models.Quote, len(res.quotes))
	for sym, q := range res.quotes {
		if q.Last.IsZero() && q.Close.IsZero() {
			continue
		}
		out[sym] = q
	}
	return out, nil
}

func (p *ibkrRealtimeProvider) IsConnected() bool { return p.conn.health.IsConnected() }
func (p *ibkrRealtimeProvider) Health() *Health    { return p.conn.health }
func (p *ibkrRealtimeProvider) Identity() string   { return p.conn.Identity() }
func (p *ibkrRealtimeProvider) Disconnect() error  { return p.conn.Disconnect() }

// asIBKR lets newIBKRFuturesProvider recover the underlying connection
// from the SharedConnection the factory hands it, so futures snapshots
// ride the same connection as realtime quotes instead of opening a
// second one.
func (p *ibkrRealtimeProvider) asIBKR() *ibkrConnection { return p.conn }

type ibkrFuturesProvider struct {
	conn     *ibkrConnection
	throttle *Throttle
}

func newIBKRFuturesProvider(cfg *models.ProviderConfig, creds map[string]string, throttle *Throttle, shared SharedConnection) (FuturesProvider, error) {
	if existing, ok := shared.(interface{ asIBKR() *ibkrConnection }); ok {
		return &ibkrFuturesProvider{conn: existing.asIBKR(), throttle: throttle}, nil
	}
	// No realtime provider constructed yet (or it wasn't IBKR): open our
	// own connection. This connection is not registered in the factory's
	// shared map, so Factory.DisconnectAll does not close it.
	host, _ := cfg.Settings["host"].(string)
	port, _ := cfg.Settings["port"].(float64)
	if host == "" {
		host = "127.0.0.1"
	}
	if port == 0 {
		port = 7497
	}
	conn := newIBKRConnection(host, int(port))
	return &ibkrFuturesProvider{conn: conn, throttle: throttle}, nil
}

func (p *ibkrFuturesProvider) GetFuturesSnapshot(ctx context.Context) (*models.FuturesSnapshot, error) {
	if err := p.throttle.Wait(ctx); err != nil {
		return nil, fmt.Errorf("throttle wait: %w", err)
	}
	res, err := p.conn.call(ctx, ibkrRequest{kind: "futures"})
	if err != nil {
		p.conn.health.RecordFailure(err)
		return nil, err
	}
	if res.err != nil {
		p.conn.health.RecordFailure(res.err)
		return nil, res.err
	}
	p.conn.health.RecordSuccess()
	return res.futures, nil
}

func (p *ibkrFuturesProvider) Health() *Health { return p.conn.health }
