package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/NeuralTrust/TrustShield/pkg/infra/httpx"
	"github.com/NeuralTrust/TrustShield/pkg/types"
)

var ErrFailedWebhookCall = errors.New("webhook delivery failed")

// severityColors follow the usual chat-webhook convention: red for pages,
// muted tones for informational noise.
var severityColors = map[types.Severity]string{
	types.SeverityCritical: "#E01E5A",
	types.SeverityHigh:     "#E8912D",
	types.SeverityMedium:   "#ECB22E",
	types.SeverityLow:      "#2EB67D",
}

type webhookField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type webhookPayload struct {
	Title         string         `json:"title"`
	SeverityColor string         `json:"severityColor"`
	Fields        []webhookField `json:"fields"`
	Timestamp     time.Time      `json:"timestamp"`
}

// WebhookChannel posts alerts to a chat webhook URL.
type WebhookChannel struct {
	client httpx.Client
	url    string
}

func NewWebhookChannel(client httpx.Client, url string) *WebhookChannel {
	if client == nil {
		client = &http.Client{}
	}
	return &WebhookChannel{
		client: client,
		url:    url,
	}
}

func (c *WebhookChannel) Name() string {
	return "webhook"
}

func (c *WebhookChannel) Send(ctx context.Context, alert types.SecurityAlert) error {
	fields := []webhookField{
		{Name: "Event", Value: alert.EventType},
		{Name: "Severity", Value: string(alert.Severity)},
		{Name: "Identifier", Value: alert.Identifier},
	}
	if alert.Path != "" {
		fields = append(fields, webhookField{Name: "Path", Value: alert.Method + " " + alert.Path})
	}
	for key, value := range alert.Details {
		fields = append(fields, webhookField{Name: key, Value: fmt.Sprintf("%v", value)})
	}

	payload := webhookPayload{
		Title:         fmt.Sprintf("Security alert: %s", alert.EventType),
		SeverityColor: severityColors[alert.Severity],
		Fields:        fields,
		Timestamp:     alert.Timestamp,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFailedWebhookCall, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: status %d: %s", ErrFailedWebhookCall, resp.StatusCode, string(detail))
	}
	return nil
}
