// Package api_test exercises the read-only REST/WebSocket surface
// against a real SQLite-backed set of repositories.
package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cwbrier63/canslim-monitor/internal/api"
	"github.com/cwbrier63/canslim-monitor/internal/events"
	"github.com/cwbrier63/canslim-monitor/internal/models"
	"github.com/cwbrier63/canslim-monitor/internal/persistence"
)

type testFixture struct {
	server     *api.Server
	posRepo    *persistence.PositionRepository
	alertRepo  *persistence.AlertRepository
	regimeRepo *persistence.RegimeAlertRepository
	bus        *events.Bus
}

func setupTestServer(t *testing.T) (*testFixture, *httptest.Server) {
	t.Helper()
	logger := zap.NewNop()

	db, err := persistence.Open(filepath.Join(t.TempDir(), "api_test.db"), persistence.ProfileStandard)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	posRepo := persistence.NewPositionRepository(db)
	alertRepo := persistence.NewAlertRepository(db)
	regimeRepo := persistence.NewRegimeAlertRepository(db)
	bus := events.NewBus(logger, events.DefaultConfig())
	t.Cleanup(bus.Stop)

	server := api.NewServer(logger, "127.0.0.1", 0, bus, posRepo, alertRepo, regimeRepo)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	return &testFixture{server: server, posRepo: posRepo, alertRepo: alertRepo, regimeRepo: regimeRepo, bus: bus}, ts
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", result["status"])
	}
}

func TestPositionsEndpointEmpty(t *testing.T) {
	_, ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/positions")
	if err != nil {
		t.Fatalf("positions request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	var result struct {
		Positions []json.RawMessage `json:"positions"`
		Count     int               `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Count != 0 {
		t.Errorf("expected 0 positions, got %d", result.Count)
	}
}

func TestPositionEndpointReturnsSeededRow(t *testing.T) {
	fixture, ts := setupTestServer(t)

	pos := &models.Position{
		Symbol:    "AAPL",
		Portfolio: "default",
		State:     1,
		Pivot:     decimal.NewFromFloat(150.25),
	}
	if err := fixture.posRepo.Create(context.Background(), pos); err != nil {
		t.Fatalf("seed position: %v", err)
	}

	resp, err := http.Get(ts.URL + "/api/v1/positions/AAPL?portfolio=default")
	if err != nil {
		t.Fatalf("position request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	var got models.Position
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Symbol != "AAPL" {
		t.Errorf("expected symbol AAPL, got %q", got.Symbol)
	}
}

func TestPositionEndpointNotFound(t *testing.T) {
	_, ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/positions/NOPE")
	if err != nil {
		t.Fatalf("position request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", resp.StatusCode)
	}
}

func TestAlertsEndpoint(t *testing.T) {
	fixture, ts := setupTestServer(t)

	if err := fixture.alertRepo.Create(context.Background(), &models.Alert{
		Symbol:       "AAPL",
		Type:         models.AlertTypeStop,
		Subtype:      "hard_stop",
		Priority:     models.P0,
		ThreadSource: "position",
		Message:      "stop triggered",
	}); err != nil {
		t.Fatalf("seed alert: %v", err)
	}

	resp, err := http.Get(ts.URL + "/api/v1/alerts?symbol=AAPL&hours=24&limit=10")
	if err != nil {
		t.Fatalf("alerts request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	var result struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Count != 1 {
		t.Errorf("expected 1 alert, got %d", result.Count)
	}
}

func TestRegimeEndpointNotFound(t *testing.T) {
	_, ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/regime")
	if err != nil {
		t.Fatalf("regime request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected status 404 with no snapshot persisted, got %d", resp.StatusCode)
	}
}

func TestRegimeEndpointReturnsLatest(t *testing.T) {
	fixture, ts := setupTestServer(t)

	date := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	snap := &models.MarketRegimeAlert{
		Date:             date,
		RegimeLabel:      models.RegimeBullish,
		ExposureBandLow:  60,
		ExposureBandHigh: 80,
	}
	if _, err := fixture.regimeRepo.UpsertForDate(context.Background(), date, snap, true); err != nil {
		t.Fatalf("seed regime snapshot: %v", err)
	}

	resp, err := http.Get(ts.URL + "/api/v1/regime")
	if err != nil {
		t.Fatalf("regime request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	var got models.MarketRegimeAlert
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.RegimeLabel != models.RegimeBullish {
		t.Errorf("expected bullish regime label, got %q", got.RegimeLabel)
	}
}

func TestMetricsEndpointExposesProcessGauges(t *testing.T) {
	_, ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestWebSocketPingPong(t *testing.T) {
	_, ts := setupTestServer(t)
	wsURL := "ws" + ts.URL[len("http"):] + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer conn.Close()

	req := api.Message{ID: "ping-1", Type: "request", Method: "ping"}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var reply api.Message
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if reply.Error != "" {
		t.Errorf("unexpected error in pong reply: %s", reply.Error)
	}
	if reply.ID != req.ID {
		t.Errorf("expected reply id %q, got %q", req.ID, reply.ID)
	}
}

func TestWebSocketReceivesBroadcastAlert(t *testing.T) {
	fixture, ts := setupTestServer(t)
	wsURL := "ws" + ts.URL[len("http"):] + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer conn.Close()

	// give the upgrade/registration goroutines a moment to register the
	// client before the publish fan-out starts.
	time.Sleep(50 * time.Millisecond)

	fixture.bus.Publish(events.NewAlertEvent(&models.Alert{
		Symbol:  "AAPL",
		Type:    models.AlertTypeStop,
		Subtype: "hard_stop",
	}))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg api.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read broadcast event: %v", err)
	}
	if msg.Type != "event" || msg.Method != string(events.EventTypeAlert) {
		t.Errorf("expected alert event envelope, got type=%s method=%s", msg.Type, msg.Method)
	}
}

func TestWebSocketSubscribeFiltersBroadcast(t *testing.T) {
	fixture, ts := setupTestServer(t)
	wsURL := "ws" + ts.URL[len("http"):] + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer conn.Close()

	sub := api.Message{ID: "sub-1", Type: "request", Method: "subscribe", Payload: string(events.EventTypeRegime)}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var subReply api.Message
	if err := conn.ReadJSON(&subReply); err != nil {
		t.Fatalf("read subscribe reply: %v", err)
	}

	// an alert event should now be filtered out, since this client only
	// subscribed to the regime channel.
	fixture.bus.Publish(events.NewAlertEvent(&models.Alert{Symbol: "AAPL", Type: models.AlertTypeStop}))
	fixture.bus.Publish(events.NewRegimeEvent(&models.MarketRegimeAlert{RegimeLabel: models.RegimeBearish}))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg api.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read filtered broadcast: %v", err)
	}
	if msg.Method != string(events.EventTypeRegime) {
		t.Errorf("expected only the regime event to reach a regime-only subscriber, got method=%s", msg.Method)
	}
}
