package gateway

import (
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/orderflow/pkg/enums"
)

// ErrAmbiguous means the gateway could not give a definitive answer (timeout,
// transport failure or 5xx). Callers must retry later and never treat it as a failure.
var ErrAmbiguous = errors.New("gateway result ambiguous")

// APIError is a definitive rejection from the gateway.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("gateway error (status %d): %s", e.StatusCode, e.Description)
	}
	return fmt.Sprintf("gateway error %s (status %d): %s", e.Code, e.StatusCode, e.Description)
}

// Order is the gateway-side order a buyer pays against.
type Order struct {
	ID          string `json:"id"`
	AmountCents int    `json:"amount"`
	Currency    string `json:"currency"`
	Receipt     string `json:"receipt"`
	Status      string `json:"status"`
}

// PaymentInfo is the gateway's view of a single payment.
type PaymentInfo struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	AmountCents int    `json:"amount"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	ErrorCode   string `json:"error_code"`
	ErrorReason string `json:"error_description"`
}

// LocalStatus maps the gateway status onto the payment status we store.
// Unknown values report ok=false.
func (p PaymentInfo) LocalStatus() (enums.GatewayPaymentStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(p.Status)) {
	case "created":
		return enums.GatewayPaymentStatusCreated, true
	case "authorized":
		return enums.GatewayPaymentStatusAuthorized, true
	case "captured", "refunded":
		return enums.GatewayPaymentStatusCaptured, true
	case "failed":
		return enums.GatewayPaymentStatusFailed, true
	default:
		return "", false
	}
}

// FailureReason prefers the gateway description and falls back to its code.
func (p PaymentInfo) FailureReason() string {
	if reason := strings.TrimSpace(p.ErrorReason); reason != "" {
		return reason
	}
	if code := strings.TrimSpace(p.ErrorCode); code != "" {
		return code
	}
	return "payment failed at gateway"
}

// RefundResult is the gateway's answer to a refund request.
type RefundResult struct {
	ID          string `json:"id"`
	PaymentID   string `json:"payment_id"`
	AmountCents int    `json:"amount"`
	Status      string `json:"status"`
}

// Processed reports whether the gateway has settled the refund.
func (r RefundResult) Processed() bool {
	return strings.EqualFold(r.Status, "processed")
}

// Failed reports a definitive refund failure.
func (r RefundResult) Failed() bool {
	return strings.EqualFold(r.Status, "failed")
}

// WebhookEvent is the envelope the gateway posts to the webhook endpoint.
type WebhookEvent struct {
	ID      string `json:"id"`
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity PaymentInfo `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

const (
	WebhookPaymentCaptured = "payment.captured"
	WebhookPaymentFailed   = "payment.failed"
)
