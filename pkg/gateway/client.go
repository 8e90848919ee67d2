package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/orderflow/pkg/config"
	"github.com/angelmondragon/orderflow/pkg/logger"
)

var (
	errKeyIDRequired     = errors.New("gateway key id is required")
	errKeySecretRequired = errors.New("gateway key secret is required")
	errBaseURLRequired   = errors.New("gateway base url is required")
)

// Client talks to the payment gateway's REST API with basic auth.
type Client struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
	logg       *logger.Logger
}

// NewClient validates credentials and builds a client whose every call is bounded by cfg.Timeout.
func NewClient(cfg config.GatewayConfig, logg *logger.Logger) (*Client, error) {
	return NewClientWithHTTP(cfg, &http.Client{Timeout: cfg.Timeout}, logg)
}

// NewClientWithHTTP is NewClient with a caller-supplied transport, used by tests.
func NewClientWithHTTP(cfg config.GatewayConfig, httpClient *http.Client, logg *logger.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errBaseURLRequired
	}
	if strings.TrimSpace(cfg.KeyID) == "" {
		return nil, errKeyIDRequired
	}
	if strings.TrimSpace(cfg.KeySecret) == "" {
		return nil, errKeySecretRequired
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Client{
		baseURL:    base,
		keyID:      cfg.KeyID,
		keySecret:  cfg.KeySecret,
		httpClient: httpClient,
		logg:       logg,
	}, nil
}

// CreateOrder registers an order with the gateway. receipt is our order number.
func (c *Client) CreateOrder(ctx context.Context, amountCents int, currency, receipt string) (*Order, error) {
	body := map[string]any{
		"amount":   amountCents,
		"currency": currency,
		"receipt":  receipt,
	}
	var out Order
	if err := c.do(ctx, http.MethodPost, "/orders", body, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("%w: gateway order id missing", ErrAmbiguous)
	}
	return &out, nil
}

// FetchPayment returns the gateway's current view of a payment.
func (c *Client) FetchPayment(ctx context.Context, gatewayPaymentID string) (*PaymentInfo, error) {
	var out PaymentInfo
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(gatewayPaymentID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refund asks the gateway to return amountCents of a captured payment.
// idempotencyKey is our refund id so a retried call cannot refund twice.
func (c *Client) Refund(ctx context.Context, gatewayPaymentID string, amountCents int, idempotencyKey string) (*RefundResult, error) {
	body := map[string]any{
		"amount":  amountCents,
		"receipt": idempotencyKey,
		"notes":   map[string]string{"refund_id": idempotencyKey},
	}
	var out RefundResult
	if err := c.do(ctx, http.MethodPost, "/payments/"+url.PathEscape(gatewayPaymentID)+"/refund", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode gateway request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"gateway_method": method,
		"gateway_path":   path,
		"duration_ms":    time.Since(start).Milliseconds(),
	})
	if err != nil {
		c.logg.Warn(logCtx, "gateway request did not complete")
		return fmt.Errorf("%w: %v", ErrAmbiguous, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrAmbiguous, err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		c.logg.Warn(c.logg.WithField(logCtx, "status", resp.StatusCode), "gateway unavailable")
		return fmt.Errorf("%w: status %d", ErrAmbiguous, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Description = envelope.Error.Description
		}
		if apiErr.Description == "" {
			apiErr.Description = strings.TrimSpace(string(raw))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrAmbiguous, err)
	}
	return nil
}

// IsAmbiguous reports whether err leaves the gateway outcome unknown.
func IsAmbiguous(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAmbiguous) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
