package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// WebhookAlerter posts risk events to an HTTP endpoint (SPEC_FULL.md's
// structured-alerting supplement: the teacher has no alerting
// integration, so this follows the webhook-on-risk-event pattern other
// pack repos use, built on stdlib net/http since no example wires a
// dedicated paging SDK).
type WebhookAlerter struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

func NewWebhookAlerter(url string, log zerolog.Logger) *WebhookAlerter {
	return &WebhookAlerter{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		log:    log.With().Str("component", "risk_alerter").Logger(),
	}
}

type alertPayload struct {
	Event  string `json:"event"`
	Detail string `json:"detail"`
	At     string `json:"at"`
}

// Alert posts asynchronously and never blocks the caller on network
// latency; delivery failures are logged, not retried — a missed page is
// preferable to stalling SAFE_MODE escalation.
func (w *WebhookAlerter) Alert(ctx context.Context, event, detail string) {
	go func() {
		body, err := json.Marshal(alertPayload{Event: event, Detail: detail, At: time.Now().UTC().Format(time.RFC3339)})
		if err != nil {
			w.log.Error().Err(err).Msg("failed to marshal alert payload")
			return
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			w.log.Error().Err(err).Msg("failed to build alert request")
			return
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := w.client.Do(req)
		if err != nil {
			w.log.Error().Err(err).Str("event", event).Msg("alert webhook delivery failed")
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			w.log.Error().Int("status", resp.StatusCode).Str("event", event).Msg("alert webhook rejected")
		}
	}()
}
