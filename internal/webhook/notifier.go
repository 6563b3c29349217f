// Package webhook delivers best-effort notifications to the downstream
// automation engine. Delivery failures are observational only and never
// propagate into the linking transaction.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/smallbiznis/chatlink/internal/config"
	"github.com/smallbiznis/chatlink/internal/metrics"
	"go.uber.org/zap"
)

const deliverTimeout = 5 * time.Second

type Notifier interface {
	// Notify posts the link payload downstream. Fire-and-forget: the call
	// returns once delivery has been issued, not once it completed.
	Notify(channelID, externalHandle string)
}

// LinkPayload mirrors the automation engine's expected body.
type LinkPayload struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chatId"`
}

type httpNotifier struct {
	endpoint string
	client   *http.Client
	log      *zap.Logger
	metrics  *metrics.Metrics
}

type noopNotifier struct{}

func (noopNotifier) Notify(string, string) {}

func New(cfg config.Config, log *zap.Logger, m *metrics.Metrics) Notifier {
	if cfg.AutomationWebhookURL == "" {
		log.Info("automation webhook disabled")
		return noopNotifier{}
	}
	return &httpNotifier{
		endpoint: cfg.AutomationWebhookURL,
		client:   &http.Client{Timeout: deliverTimeout},
		log:      log.Named("webhook.notifier"),
		metrics:  m,
	}
}

func (n *httpNotifier) Notify(channelID, externalHandle string) {
	go n.deliver(LinkPayload{Channel: channelID, ChatID: externalHandle})
}

func (n *httpNotifier) deliver(payload LinkPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		n.log.Error("webhook payload marshal failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		n.log.Error("webhook request build failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.countDelivery("error")
		n.log.Warn("webhook delivery failed",
			zap.String("endpoint", n.endpoint),
			zap.ByteString("payload", body),
			zap.Error(err),
		)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		n.countDelivery("rejected")
		n.log.Warn("webhook delivery rejected",
			zap.String("endpoint", n.endpoint),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("payload", body),
			zap.ByteString("response", respBody),
		)
		return
	}

	n.countDelivery("ok")
	n.log.Debug("webhook delivered", zap.String("channel", payload.Channel))
}

func (n *httpNotifier) countDelivery(status string) {
	if n.metrics != nil {
		n.metrics.WebhookDelivery.WithLabelValues(status).Inc()
	}
}
