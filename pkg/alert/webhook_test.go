package alert_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/NeuralTrust/TrustShield/pkg/alert"
	"github.com/NeuralTrust/TrustShield/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHTTPClient struct {
	status  int
	lastReq *http.Request
	body    []byte
}

func (f *fakeHTTPClient) Do(req *http.Request) (*http.Response, error) {
	f.lastReq = req
	if req.Body != nil {
		f.body, _ = io.ReadAll(req.Body)
	}
	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(nil)),
	}, nil
}

func TestWebhookChannel_Send(t *testing.T) {
	client := &fakeHTTPClient{}
	channel := alert.NewWebhookChannel(client, "https://chat.example/hooks/abc")

	err := channel.Send(context.Background(), types.SecurityAlert{
		Severity:   types.SeverityCritical,
		EventType:  types.EventHoneypotTriggered,
		Identifier: "1.2.3.4",
		Path:       "/admin-backup",
		Method:     "GET",
		Details:    map[string]interface{}{"score": 10.0},
		Timestamp:  time.Now(),
	})
	require.NoError(t, err)

	require.NotNil(t, client.lastReq)
	assert.Equal(t, http.MethodPost, client.lastReq.Method)
	assert.Equal(t, "application/json", client.lastReq.Header.Get("Content-Type"))

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(client.body, &payload))
	assert.Equal(t, "Security alert: HONEYPOT_TRIGGERED", payload["title"])
	assert.Equal(t, "#E01E5A", payload["severityColor"])
	assert.NotEmpty(t, payload["fields"])
}

func TestWebhookChannel_Non2xxIsAnError(t *testing.T) {
	client := &fakeHTTPClient{status: http.StatusBadGateway}
	channel := alert.NewWebhookChannel(client, "https://chat.example/hooks/abc")

	err := channel.Send(context.Background(), types.SecurityAlert{
		Severity:   types.SeverityHigh,
		EventType:  types.EventRuleBlock,
		Identifier: "1.2.3.4",
	})
	assert.ErrorIs(t, err, alert.ErrFailedWebhookCall)
}
