// Package events provides the in-process pub/sub bus that decouples
// alert and regime production (the worker threads in internal/service)
// from the read-only consumers in internal/api (WebSocket broadcast,
// metrics). A fixed worker pool fans each published event out to every
// matching subscriber so a slow WS client can never stall a cycle.
package events

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cwbrier63/canslim-monitor/internal/models"
)

// EventType categorizes what a subscriber is listening for.
type EventType string

const (
	EventTypeAlert     EventType = "alert"
	EventTypeRegime    EventType = "regime"
	EventTypeHeartbeat EventType = "heartbeat"
)

// Event is the interface every concrete event satisfies.
type Event interface {
	GetType() EventType
	GetTimestamp() time.Time
	GetID() string
}

// BaseEvent provides the common Event plumbing.
type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *BaseEvent) GetType() EventType      { return e.Type }
func (e *BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e *BaseEvent) GetID() string           { return e.ID }

var eventCounter atomic.Int64

func generateEventID(prefix string) string {
	n := eventCounter.Add(1)
	return prefix + "_" + time.Now().Format("20060102150405") + "_" + itoa(n)
}

func itoa(i int64) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// AlertEvent carries a newly-created alert out to WebSocket clients.
type AlertEvent struct {
	BaseEvent
	Alert *models.Alert `json:"alert"`
}

// NewAlertEvent wraps an alert for publication.
func NewAlertEvent(a *models.Alert) *AlertEvent {
	return &AlertEvent{
		BaseEvent: BaseEvent{ID: generateEventID("alert"), Type: EventTypeAlert, Timestamp: time.Now()},
		Alert:     a,
	}
}

// RegimeEvent carries a freshly-persisted market regime snapshot.
type RegimeEvent struct {
	BaseEvent
	Regime *models.MarketRegimeAlert `json:"regime"`
}

// NewRegimeEvent wraps a regime snapshot for publication.
func NewRegimeEvent(r *models.MarketRegimeAlert) *RegimeEvent {
	return &RegimeEvent{
		BaseEvent: BaseEvent{ID: generateEventID("regime"), Type: EventTypeRegime, Timestamp: time.Now()},
		Regime:    r,
	}
}

// HeartbeatEvent lets a WS client distinguish "nothing happened" from
// "the connection died" without depending on internal/service types.
type HeartbeatEvent struct {
	BaseEvent
	Threads map[string]string `json:"threads"` // thread name -> state
}

// NewHeartbeatEvent wraps a thread-state snapshot for publication.
func NewHeartbeatEvent(threads map[string]string) *HeartbeatEvent {
	return &HeartbeatEvent{
		BaseEvent: BaseEvent{ID: generateEventID("hb"), Type: EventTypeHeartbeat, Timestamp: time.Now()},
		Threads:   threads,
	}
}

// EventHandler processes one event; a returned error is logged, never
// propagated to the publisher.
type EventHandler func(event Event) error

// EventFilter selectively admits events to a handler.
type EventFilter func(event Event) bool

// SubscriptionOptions configures how a subscription is invoked.
type SubscriptionOptions struct {
	Filter     EventFilter
	Async      bool
	BufferSize int
}

// Subscription is a live registration returned by Subscribe.
type Subscription struct {
	ID        string
	EventType EventType
	Handler   EventHandler
	Options   SubscriptionOptions
	active    atomic.Bool
}

// IsActive reports whether the subscription still receives events.
func (s *Subscription) IsActive() bool { return s.active.Load() }

// Stats summarizes bus throughput, exposed through GET_STATUS-style
// diagnostics and the Prometheus surface in internal/api.
type Stats struct {
	EventsPublished   int64         `json:"eventsPublished"`
	EventsProcessed   int64         `json:"eventsProcessed"`
	EventsDropped     int64         `json:"eventsDropped"`
	ProcessingErrors  int64         `json:"processingErrors"`
	AvgLatencyNs      int64         `json:"avgLatencyNs"`
	MaxLatencyNs      int64         `json:"maxLatencyNs"`
	P99LatencyNs      int64         `json:"p99LatencyNs"`
	P99Latency        time.Duration `json:"p99Latency"`
	ActiveSubscribers int64         `json:"activeSubscribers"`
}

// Config sizes the bus's worker pool and channel buffer.
type Config struct {
	NumWorkers int
	BufferSize int
}

// DefaultConfig returns sane defaults for a single surveillance engine
// instance (a handful of WS clients, not a multi-tenant fan-out).
func DefaultConfig() Config {
	return Config{NumWorkers: 4, BufferSize: 1000}
}

// Bus is the central event router: a buffered channel drained by a
// fixed worker pool, delivering to per-type and "subscribe all"
// listeners.
type Bus struct {
	mu             sync.RWMutex
	subscribers    map[EventType][]*Subscription
	allSubscribers []*Subscription

	eventChan   chan Event
	workerCount int

	eventsPublished   atomic.Int64
	eventsProcessed   atomic.Int64
	eventsDropped     atomic.Int64
	processingErrors  atomic.Int64
	activeSubscribers atomic.Int64

	latencies  []int64
	latencyMu  sync.Mutex
	maxLatency atomic.Int64
	avgLatency atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewBus constructs a bus and starts its worker pool immediately; call
// Stop to shut it down.
func NewBus(logger *zap.Logger, cfg Config) *Bus {
	workerCount := cfg.NumWorkers
	if workerCount <= 0 {
		workerCount = 4
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		subscribers:    make(map[EventType][]*Subscription),
		allSubscribers: make([]*Subscription, 0),
		eventChan:      make(chan Event, bufferSize),
		workerCount:    workerCount,
		ctx:            ctx,
		cancel:         cancel,
		logger:         logger,
		latencies:      make([]int64, 0, 1000),
	}

	for i := 0; i < workerCount; i++ {
		b.wg.Add(1)
		go b.worker()
	}

	b.logger.Info("event bus started", zap.Int("workers", workerCount), zap.Int("buffer_size", bufferSize))
	return b
}

func (b *Bus) worker() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case event := <-b.eventChan:
			start := time.Now()
			b.dispatch(event)
			b.trackLatency(time.Since(start).Nanoseconds())
		}
	}
}

func (b *Bus) dispatch(event Event) {
	b.mu.RLock()
	subs := b.subscribers[event.GetType()]
	allSubs := b.allSubscribers
	b.mu.RUnlock()

	for _, sub := range subs {
		b.deliver(sub, event)
	}
	for _, sub := range allSubs {
		b.deliver(sub, event)
	}
	b.eventsProcessed.Add(1)
}

func (b *Bus) deliver(sub *Subscription, event Event) {
	if !sub.active.Load() {
		return
	}
	if sub.Options.Filter != nil && !sub.Options.Filter(event) {
		return
	}
	if sub.Options.Async {
		go b.invoke(sub, event)
	} else {
		b.invoke(sub, event)
	}
}

func (b *Bus) invoke(sub *Subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.processingErrors.Add(1)
			b.logger.Error("event handler panic",
				zap.String("subscription_id", sub.ID), zap.String("event_type", string(event.GetType())), zap.Any("panic", r))
		}
	}()
	if err := sub.Handler(event); err != nil {
		b.processingErrors.Add(1)
		b.logger.Warn("event handler error",
			zap.String("subscription_id", sub.ID), zap.String("event_type", string(event.GetType())), zap.Error(err))
	}
}

func (b *Bus) trackLatency(latencyNs int64) {
	b.latencyMu.Lock()
	defer b.latencyMu.Unlock()
	b.latencies = append(b.latencies, latencyNs)
	if len(b.latencies) > 1000 {
		b.latencies = b.latencies[500:]
	}
	if latencyNs > b.maxLatency.Load() {
		b.maxLatency.Store(latencyNs)
	}
	cur := b.avgLatency.Load()
	b.avgLatency.Store((cur*9 + latencyNs) / 10)
}

var subscriptionCounter atomic.Int64

func generateSubscriptionID() string {
	n := subscriptionCounter.Add(1)
	return "sub_" + time.Now().Format("20060102150405") + "_" + itoa(n)
}

func newSubscription(t EventType, handler EventHandler, opts []SubscriptionOptions) *Subscription {
	options := SubscriptionOptions{Async: true, BufferSize: 100}
	if len(opts) > 0 {
		options = opts[0]
	}
	sub := &Subscription{ID: generateSubscriptionID(), EventType: t, Handler: handler, Options: options}
	sub.active.Store(true)
	return sub
}

// Subscribe registers handler for one event type.
func (b *Bus) Subscribe(t EventType, handler EventHandler, opts ...SubscriptionOptions) *Subscription {
	sub := newSubscription(t, handler, opts)
	b.mu.Lock()
	b.subscribers[t] = append(b.subscribers[t], sub)
	b.mu.Unlock()
	b.activeSubscribers.Add(1)
	return sub
}

// SubscribeAll registers handler for every event type published.
func (b *Bus) SubscribeAll(handler EventHandler, opts ...SubscriptionOptions) *Subscription {
	sub := newSubscription("*", handler, opts)
	b.mu.Lock()
	b.allSubscribers = append(b.allSubscribers, sub)
	b.mu.Unlock()
	b.activeSubscribers.Add(1)
	return sub
}

// Unsubscribe deactivates a subscription; it is not removed from the
// slice (cheap no-op churn for a handful of long-lived WS clients).
func (b *Bus) Unsubscribe(sub *Subscription) {
	sub.active.Store(false)
	b.activeSubscribers.Add(-1)
}

// Publish delivers event to subscribers without blocking the caller;
// if the internal channel is full the event is dropped and counted,
// never allowed to stall a worker-thread cycle.
func (b *Bus) Publish(event Event) {
	select {
	case b.eventChan <- event:
		b.eventsPublished.Add(1)
	default:
		b.eventsDropped.Add(1)
		b.logger.Warn("event dropped, bus buffer full", zap.String("event_type", string(event.GetType())))
	}
}

// Stats returns a snapshot of bus throughput counters.
func (b *Bus) Stats() Stats {
	p99 := b.p99LatencyNs()
	return Stats{
		EventsPublished:   b.eventsPublished.Load(),
		EventsProcessed:   b.eventsProcessed.Load(),
		EventsDropped:     b.eventsDropped.Load(),
		ProcessingErrors:  b.processingErrors.Load(),
		AvgLatencyNs:      b.avgLatency.Load(),
		MaxLatencyNs:      b.maxLatency.Load(),
		P99LatencyNs:      p99,
		P99Latency:        time.Duration(p99),
		ActiveSubscribers: b.activeSubscribers.Load(),
	}
}

func (b *Bus) p99LatencyNs() int64 {
	b.latencyMu.Lock()
	defer b.latencyMu.Unlock()
	if len(b.latencies) == 0 {
		return 0
	}
	sorted := make([]int64, len(b.latencies))
	copy(sorted, b.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Stop cancels the worker pool and waits up to 5s for the workers to
// exit. Events still queued when the workers see the cancellation are
// not delivered.
func (b *Bus) Stop() {
	b.logger.Info("stopping event bus")
	b.cancel()
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		b.logger.Info("event bus stopped", zap.Int64("events_processed", b.eventsProcessed.Load()))
	case <-time.After(5 * time.Second):
		b.logger.Warn("event bus stop timed out")
	}
}
