// Package payment talks to the external payment collaborator that moves
// funds on chain and reports the resulting transaction hash.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/axomx/reward-ledger/internal/httputil"
)

var (
	// ErrNotConfigured is returned by the Disabled gateway.
	ErrNotConfigured = errors.New("payment gateway not configured")
	// ErrRejected is returned when the collaborator answers but refuses or
	// fails the payment.
	ErrRejected = errors.New("payment rejected")
)

// Request describes one payment.
type Request struct {
	AmountUSD   decimal.Decimal `json:"amount_usd"`
	Destination string          `json:"destination"`
	Reference   string          `json:"reference"`
	Payer       string          `json:"payer"`
}

// Gateway executes payments. A nil error always comes with a tx hash.
type Gateway interface {
	Pay(ctx context.Context, req Request) (string, error)
}

// Disabled is the gateway used when no payment service is configured.
type Disabled struct{}

func (Disabled) Pay(context.Context, Request) (string, error) {
	return "", ErrNotConfigured
}

// Config configures HTTPGateway.
type Config struct {
	BaseURL     string        `yaml:"base_url" env:"PAYMENT_BASE_URL"`
	APIKey      string        `yaml:"api_key" env:"PAYMENT_API_KEY"`
	Destination string        `yaml:"destination" env:"PAYMENT_DESTINATION"`
	Timeout     time.Duration `yaml:"timeout" env:"PAYMENT_TIMEOUT"`
	MaxRetries  int           `yaml:"max_retries" env:"PAYMENT_MAX_RETRIES"`
}

// HTTPGateway posts payments to the collaborator's /v1/payments endpoint.
type HTTPGateway struct {
	client      *httputil.ServiceClient
	destination string
	timeout     time.Duration
}

// NewHTTPGateway returns a gateway, or Disabled when cfg has no base URL.
func NewHTTPGateway(cfg Config) Gateway {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return Disabled{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPGateway{
		client: httputil.NewServiceClient(httputil.ServiceClientConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Timeout:    timeout,
			MaxRetries: cfg.MaxRetries,
		}),
		destination: cfg.Destination,
		timeout:     timeout,
	}
}

// Pay submits req and waits for the collaborator's verdict. The response
// body is {"tx_hash": "...", "status": "confirmed|pending|failed", "error": "..."}.
func (g *HTTPGateway) Pay(ctx context.Context, req Request) (string, error) {
	if !req.AmountUSD.IsPositive() {
		return "", fmt.Errorf("%w: amount must be positive", ErrRejected)
	}
	if req.Destination == "" {
		req.Destination = g.destination
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Post(ctx, "/v1/payments", req)
	if err != nil {
		return "", fmt.Errorf("payment request: %w", err)
	}
	body, err := httputil.ReadBody(resp)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRejected, err)
	}

	result := gjson.ParseBytes(body)
	if status := strings.ToLower(result.Get("status").String()); status == "failed" || status == "rejected" {
		reason := result.Get("error").String()
		if reason == "" {
			reason = status
		}
		return "", fmt.Errorf("%w: %s", ErrRejected, reason)
	}
	hash := result.Get("tx_hash").String()
	if hash == "" {
		return "", fmt.Errorf("%w: response carried no tx_hash", ErrRejected)
	}
	return hash, nil
}
