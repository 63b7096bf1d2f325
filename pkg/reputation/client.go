package reputation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/NeuralTrust/TrustShield/pkg/infra/httpx"
	"github.com/sirupsen/logrus"
)

var ErrFailedReputationCall = errors.New("reputation service call failed")

// Score is the externally supplied risk indicator for an identifier.
// AbuseScore is normalized to 0-100 by the provider.
type Score struct {
	AbuseScore float64 `json:"abuse_score"`
}

//go:generate mockery --name=Client --dir=. --output=../../mocks --filename=reputation_client_mock.go --case=underscore --with-expecter
type Client interface {
	Lookup(ctx context.Context, identifier string) (*Score, error)
}

type Credentials struct {
	BaseURL string
	APIKey  string
}

// HTTPClient queries an abuse-score provider over HTTP, guarded by a
// circuit breaker so a flapping provider cannot hold up the request path.
type HTTPClient struct {
	client         httpx.Client
	logger         *logrus.Logger
	circuitBreaker httpx.CircuitBreaker
	credentials    Credentials
}

func NewHTTPClient(
	client httpx.Client,
	logger *logrus.Logger,
	circuitBreaker httpx.CircuitBreaker,
	credentials Credentials,
) Client {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPClient{
		client:         client,
		logger:         logger,
		circuitBreaker: circuitBreaker,
		credentials:    credentials,
	}
}

func (c *HTTPClient) Lookup(ctx context.Context, identifier string) (*Score, error) {
	var result *Score
	var err error

	err = c.circuitBreaker.Execute(func() error {
		result, err = c.executeLookup(ctx, identifier)
		return err
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.logger.WithError(err).Debug("reputation lookup failed (circuit breaker)")
		}
		return nil, err
	}

	return result, nil
}

func (c *HTTPClient) executeLookup(ctx context.Context, identifier string) (*Score, error) {
	endpoint := fmt.Sprintf("%s/v1/check?ip=%s", c.credentials.BaseURL, url.QueryEscape(identifier))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.credentials.APIKey != "" {
		req.Header.Set("Key", c.credentials.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedReputationCall, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrFailedReputationCall, resp.StatusCode, string(body))
	}

	var score Score
	if err := json.NewDecoder(resp.Body).Decode(&score); err != nil {
		return nil, fmt.Errorf("failed to decode reputation response: %w", err)
	}
	return &score, nil
}
