// Package notify delivers merchant callbacks for pix and withdrawal events.
package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/baharkarakas/pixhub/internal/metrics"
	"github.com/baharkarakas/pixhub/internal/models"
	"github.com/baharkarakas/pixhub/internal/worker"
	"github.com/go-resty/resty/v2"
)

const (
	EventPixCreated      = "pix.created"
	EventPixUpdated      = "pix.updated"
	EventWithdrawCreated = "withdraw.created"
	EventWithdrawUpdated = "withdraw.updated"
)

// Notifier is fire-and-forget: implementations must not block the caller.
type Notifier interface {
	Notify(m models.Merchant, event string, data any)
}

type Nop struct{}

func (Nop) Notify(models.Merchant, string, any) {}

type HTTPNotifier struct {
	client *resty.Client
	secret []byte
	pool   *worker.Pool
}

func NewHTTPNotifier(pool *worker.Pool, signingSecret string, timeout time.Duration) *HTTPNotifier {
	return &HTTPNotifier{
		client: resty.New().SetTimeout(timeout).SetHeader("Content-Type", "application/json"),
		secret: []byte(signingSecret),
		pool:   pool,
	}
}

type envelope struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// URLFor picks the merchant endpoint matching the event direction.
func URLFor(m models.Merchant, event string) string {
	if !m.WebhookEnabled {
		return ""
	}
	if strings.HasPrefix(event, "withdraw.") {
		return m.WebhookOutURL
	}
	return m.WebhookInURL
}

func (n *HTTPNotifier) Notify(m models.Merchant, event string, data any) {
	url := URLFor(m, event)
	if url == "" {
		return
	}
	body, err := json.Marshal(envelope{Event: event, Timestamp: time.Now().UTC(), Data: data})
	if err != nil {
		slog.Error("notify: marshal", "event", event, "merchant_id", m.ID, "err", err)
		return
	}
	ok := n.pool.TrySubmit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := n.send(ctx, url, event, body); err != nil {
			metrics.NotificationsTotal.WithLabelValues("failed").Inc()
			slog.Warn("notify: delivery failed", "event", event, "merchant_id", m.ID, "err", err)
			return
		}
		metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	})
	if !ok {
		metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
		slog.Warn("notify: queue full, dropped", "event", event, "merchant_id", m.ID)
	}
}

func (n *HTTPNotifier) send(ctx context.Context, url, event string, body []byte) error {
	req := n.client.R().SetContext(ctx).SetBody(body).SetHeader("X-Event", event)
	if len(n.secret) > 0 {
		req.SetHeader("X-Signature", Sign(n.secret, body))
	}
	resp, err := req.Post(url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("status %d", resp.StatusCode())
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
