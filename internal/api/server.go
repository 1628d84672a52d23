// Package api provides the read-only HTTP and WebSocket surface a
// desktop GUI or dashboard polls/subscribes to: current positions,
// recent alerts, the latest market regime snapshot, and a Prometheus
// metrics endpoint. It never mutates surveillance state — every
// stateful command (FORCE_CHECK, RELOAD_CONFIG, SHUTDOWN) stays behind
// the Unix-socket IPC protocol in internal/ipc.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/cwbrier63/canslim-monitor/internal/events"
	"github.com/cwbrier63/canslim-monitor/internal/persistence"
)

// Message is the WebSocket wire envelope: "event" pushes originate
// from the server (new alert, new regime snapshot); "request"/
// "response" carry client-initiated pings and subscription changes.
type Message struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Method    string      `json:"method"`
	Payload   interface{} `json:"payload,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Client is one connected WebSocket subscriber.
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool
}

// Server hosts the REST routes, the WebSocket upgrade endpoint, and
// the Prometheus /metrics handler.
type Server struct {
	mu     sync.RWMutex
	logger *zap.Logger
	host   string
	port   int

	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
	clients    map[string]*Client

	bus        *events.Bus
	metrics    *metricsCollector
	posRepo    *persistence.PositionRepository
	alertRepo  *persistence.AlertRepository
	regimeRepo *persistence.RegimeAlertRepository
}

// NewServer constructs the API server; call Start to begin serving and
// Stop for a graceful shutdown. bus may be nil (no live broadcast, REST
// routes still work).
func NewServer(logger *zap.Logger, host string, port int, bus *events.Bus,
	posRepo *persistence.PositionRepository, alertRepo *persistence.AlertRepository, regimeRepo *persistence.RegimeAlertRepository) *Server {
	s := &Server{
		logger:     logger,
		host:       host,
		port:       port,
		router:     mux.NewRouter(),
		clients:    make(map[string]*Client),
		bus:        bus,
		metrics:    newMetricsCollector(),
		posRepo:    posRepo,
		alertRepo:  alertRepo,
		regimeRepo: regimeRepo,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.setupRoutes()
	if bus != nil {
		bus.SubscribeAll(s.onEvent)
	}
	return s
}

// Router exposes the mux router directly, for wrapping in httptest.Server.
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/v1/positions", s.handlePositions).Methods("GET")
	s.router.HandleFunc("/api/v1/positions/{symbol}", s.handlePosition).Methods("GET")
	s.router.HandleFunc("/api/v1/alerts", s.handleAlerts).Methods("GET")
	s.router.HandleFunc("/api/v1/regime", s.handleRegime).Methods("GET")
	s.router.Handle("/metrics", s.metrics.handler()).Methods("GET")
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Start binds the listener synchronously (so a port conflict surfaces
// immediately) and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	handler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false, // read-only surface, no credentialed cross-origin state
	}).Handler(s.router)

	ln, err := net.Listen("tcp", s.addr())
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("api server stopped unexpectedly", zap.Error(err))
		}
	}()

	go s.refreshMetricsLoop(ctx)

	s.logger.Info("api server listening", zap.String("addr", s.addr()))
	return nil
}

// refreshMetricsLoop keeps the open-position gauge and the bus'
// dropped-event counter current without requiring either producer to
// know about the Prometheus surface directly.
func (s *Server) refreshMetricsLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.posRepo != nil {
				if open, err := s.posRepo.GetInPosition(ctx); err == nil {
					s.metrics.setOpenPositions(len(open))
				}
			}
			if s.bus != nil {
				s.metrics.setBusEventsDropped(s.bus.Stats().EventsDropped)
			}
		}
	}
}

func (s *Server) addr() string {
	return s.host + ":" + strconv.Itoa(s.port)
}

// Stop gracefully closes every WebSocket connection and shuts down the
// HTTP listener.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	for _, c := range s.clients {
		c.conn.Close()
	}
	s.mu.Unlock()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{"status": "ok", "time": time.Now().Unix()})
}

// onEvent is the bus subscription that fans AlertEvent/RegimeEvent out
// to every connected WebSocket client.
func (s *Server) onEvent(e events.Event) error {
	if alertEvt, ok := e.(*events.AlertEvent); ok && alertEvt.Alert != nil {
		s.metrics.recordAlert(string(alertEvt.Alert.Type), alertEvt.Alert.Subtype)
	}

	msg := &Message{
		ID:        uuid.NewString(),
		Type:      "event",
		Method:    string(e.GetType()),
		Payload:   e,
		Timestamp: time.Now().UnixMilli(),
	}
	s.broadcast(msg)
	return nil
}

// broadcast fans a message out to every connected client. A client with
// no active subscriptions receives everything; once it subscribes to at
// least one channel, only messages on a subscribed channel reach it.
func (s *Server) broadcast(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		if len(c.subs) > 0 && !c.subs[msg.Method] {
			continue
		}
		select {
		case c.send <- data:
		default:
			s.logger.Warn("ws client send buffer full, dropping message", zap.String("client_id", c.ID))
		}
	}
}
