package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricsCollector registers the surveillance engine's Prometheus
// gauges/counters on a private registry (never the global default, so
// a second Server in tests never panics on duplicate registration).
type metricsCollector struct {
	registry *prometheus.Registry

	alertsEmitted    *prometheus.CounterVec
	positionsByState prometheus.Gauge
	wsClients        prometheus.Gauge
	busEventsDropped prometheus.Gauge
}

func newMetricsCollector() *metricsCollector {
	reg := prometheus.NewRegistry()
	m := &metricsCollector{
		registry: reg,
		alertsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "canslim_alerts_emitted_total",
			Help: "Alerts dispatched, labeled by type and subtype.",
		}, []string{"type", "subtype"}),
		positionsByState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "canslim_positions_open",
			Help: "Current count of positions in an open (in-position) state.",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "canslim_ws_clients",
			Help: "Currently connected WebSocket clients on the read-only API surface.",
		}),
		busEventsDropped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "canslim_event_bus_dropped_total",
			Help: "Events dropped by the internal event bus because its buffer was full.",
		}),
	}
	reg.MustRegister(m.alertsEmitted, m.positionsByState, m.wsClients, m.busEventsDropped)
	reg.MustRegister(prometheus.NewGoCollector())
	return m
}

func (m *metricsCollector) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsCollector) recordAlert(alertType, subtype string) {
	m.alertsEmitted.WithLabelValues(alertType, subtype).Inc()
}

func (m *metricsCollector) setOpenPositions(n int) {
	m.positionsByState.Set(float64(n))
}

func (m *metricsCollector) setWSClients(n int) {
	m.wsClients.Set(float64(n))
}

func (m *metricsCollector) setBusEventsDropped(n int64) {
	m.busEventsDropped.Set(float64(n))
}
