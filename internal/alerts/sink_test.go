package alerts_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/cwbrier63/canslim-monitor/internal/alerts"
	"github.com/cwbrier63/canslim-monitor/internal/config"
	"github.com/cwbrier63/canslim-monitor/internal/models"
)

func testAlert() *models.Alert {
	return &models.Alert{
		Symbol: "AAPL", Type: models.AlertTypeStop, Subtype: "hard_stop",
		Priority: models.P0, Message: "hit stop", Action: "close",
		EmittedPrice: decimal.NewFromInt(95),
	}
}

func TestSinkSendDisabledReturnsError(t *testing.T) {
	sink := alerts.NewSink(config.DiscordConfig{Enabled: false})
	if err := sink.Send(context.Background(), "position", testAlert()); err == nil {
		t.Fatal("expected an error when the sink is disabled")
	}
}

func TestSinkSendNoWebhookConfiguredReturnsError(t *testing.T) {
	sink := alerts.NewSink(config.DiscordConfig{Enabled: true})
	if err := sink.Send(context.Background(), "position", testAlert()); err == nil {
		t.Fatal("expected an error with no webhook for the channel and no default")
	}
}

func TestSinkSendSucceedsOnFirstAttempt(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := alerts.NewSink(config.DiscordConfig{Enabled: true, Webhooks: map[string]string{"position": srv.URL}})
	if err := sink.Send(context.Background(), "position", testAlert()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("handler called %d times, want 1", calls)
	}
}

func TestSinkSendFallsBackToDefaultWebhook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := alerts.NewSink(config.DiscordConfig{Enabled: true, Default: srv.URL})
	if err := sink.Send(context.Background(), "unrouted-channel", testAlert()); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestSinkSendRetriesThenFailsOnPersistentServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := alerts.NewSink(config.DiscordConfig{Enabled: true, Webhooks: map[string]string{"position": srv.URL}})
	err := sink.Send(context.Background(), "position", testAlert())
	if err == nil {
		t.Fatal("expected an error after exhausting retries against a persistently failing endpoint")
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("handler called %d times, want 3 (one initial attempt + 2 retries)", calls)
	}
}
