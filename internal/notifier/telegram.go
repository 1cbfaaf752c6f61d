package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/nexbit/backoffice/internal/observability"
)

const defaultAPIBase = "https://api.telegram.org"

// Route holds the credentials for one Telegram destination.
type Route struct {
	BotToken string
	ChatID   string
}

func (r Route) configured() bool {
	return r.BotToken != "" && r.ChatID != ""
}

// Telegram delivers messages through the Telegram bot sendMessage API.
// Each channel maps to its own bot token and chat id; an unconfigured
// channel degrades to a log line.
type Telegram struct {
	client  *http.Client
	apiBase string
	routes  map[Channel]Route
}

// NewTelegram builds a Telegram notifier from per-channel routes.
func NewTelegram(routes map[Channel]Route) *Telegram {
	return &Telegram{
		client:  &http.Client{Timeout: 5 * time.Second},
		apiBase: defaultAPIBase,
		routes:  routes,
	}
}

// WithAPIBase overrides the Telegram API endpoint.
func (t *Telegram) WithAPIBase(base string) *Telegram {
	if base != "" {
		t.apiBase = base
	}
	return t
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// Notify posts the message to the channel's chat. Failures are logged only.
func (t *Telegram) Notify(ctx context.Context, channel Channel, text string) {
	route, ok := t.routes[channel]
	if !ok || !route.configured() {
		observability.IncrementNotification(string(channel), "skipped")
		zap.L().Debug("telegram channel not configured, skipping notification",
			zap.String("channel", string(channel)),
		)
		return
	}

	if err := t.send(ctx, route, text); err != nil {
		observability.IncrementNotification(string(channel), "failed")
		zap.L().Warn("telegram notification failed",
			zap.Error(err),
			zap.String("channel", string(channel)),
		)
		return
	}
	observability.IncrementNotification(string(channel), "sent")
}

func (t *Telegram) send(ctx context.Context, route Route, text string) error {
	payload, err := json.Marshal(sendMessageRequest{ChatID: route.ChatID, Text: text})
	if err != nil {
		return fmt.Errorf("marshal sendMessage payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, route.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("post sendMessage: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sendMessage status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}
