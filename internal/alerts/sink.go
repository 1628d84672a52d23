// Package alerts implements the Alert Service pipeline: severity
// mapping, suppression, cooldown, in-cycle dedup, persistence,
// routing, and chat-sink delivery with retry and rate limiting.
package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/cwbrier63/canslim-monitor/internal/config"
	"github.com/cwbrier63/canslim-monitor/internal/models"
)

// embedColors mirrors the Discord embed color palette used by the
// original webhook notifier, keyed by priority/type instead of a
// free-form string.
var embedColors = map[models.Priority]int{
	models.P0: 0xFF0000,
	models.P1: 0xFF9900,
	models.P2: 0x0099FF,
}

// Sink delivers rendered alerts to Discord webhooks, one per routed
// channel, honoring Discord's own sliding-window rate limit (30
// messages/60s) on top of whatever the Alert Service's own cooldown
// already filtered out.
type Sink struct {
	cfg        config.DiscordConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewSink(cfg config.DiscordConfig) *Sink {
	return &Sink{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(2*time.Second), 1),
	}
}

type discordEmbed struct {
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Timestamp   string              `json:"timestamp"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordPayload struct {
	Username string         `json:"username"`
	Content  string         `json:"content,omitempty"`
	Embeds   []discordEmbed `json:"embeds,omitempty"`
}

// Send renders and delivers one alert to the channel its alert_type
// routes to, retrying with exponential backoff up to 3 attempts capped
// at 10s. It never returns an error that should
// block the pipeline; callers log failures and move on.
func (s *Sink) Send(ctx context.Context, channel string, a *models.Alert) error {
	if !s.cfg.Enabled {
		return fmt.Errorf("discord sink disabled")
	}
	webhookURL := s.cfg.Webhooks[channel]
	if webhookURL == "" {
		webhookURL = s.cfg.Default
	}
	if webhookURL == "" {
		return fmt.Errorf("no webhook configured for channel %q and no default", channel)
	}

	payload := discordPayload{
		Username: "CANSLIM Monitor",
		Embeds:   []discordEmbed{renderEmbed(a)},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	delay := 1 * time.Second
	const maxDelay = 10 * time.Second
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		lastErr = s.post(ctx, webhookURL, body)
		if lastErr == nil {
			return nil
		}
		if attempt < 2 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
		}
	}
	return fmt.Errorf("discord delivery failed after 3 attempts: %w", lastErr)
}

func (s *Sink) post(ctx context.Context, webhookURL string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post to discord: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("discord rate limited (429)")
	default:
		return fmt.Errorf("discord returned status %d", resp.StatusCode)
	}
}

func renderEmbed(a *models.Alert) discordEmbed {
	color, ok := embedColors[a.Priority]
	if !ok {
		color = 0x0099FF
	}
	fields := []discordEmbedField{
		{Name: "Priority", Value: a.Priority.String(), Inline: true},
		{Name: "Subtype", Value: a.Subtype, Inline: true},
	}
	if !a.EmittedPrice.IsZero() {
		fields = append(fields, discordEmbedField{Name: "Price", Value: a.EmittedPrice.String(), Inline: true})
	}
	if !a.PnLPct.IsZero() {
		fields = append(fields, discordEmbedField{Name: "P&L", Value: a.PnLPct.String() + "%", Inline: true})
	}
	if a.Action != "" {
		fields = append(fields, discordEmbedField{Name: "Action", Value: a.Action, Inline: false})
	}

	return discordEmbed{
		Title:       fmt.Sprintf("%s: %s", string(a.Type), a.Symbol),
		Description: a.Message,
		Color:       color,
		Fields:      fields,
		Timestamp:   a.CreatedAt.UTC().Format(time.RFC3339),
	}
}
