package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Signer checks callback and webhook signatures. Every check fails closed:
// an empty secret or signature never verifies.
type Signer struct {
	keySecret     string
	webhookSecret string
}

func NewSigner(keySecret, webhookSecret string) *Signer {
	return &Signer{keySecret: keySecret, webhookSecret: webhookSecret}
}

// SignPayment returns hex(HMAC-SHA256(orderID|paymentID, keySecret)).
func (s *Signer) SignPayment(gatewayOrderID, gatewayPaymentID string) string {
	return sign(s.keySecret, []byte(gatewayOrderID+"|"+gatewayPaymentID))
}

// VerifyPayment checks the signature the client received after checkout.
func (s *Signer) VerifyPayment(gatewayOrderID, gatewayPaymentID, signature string) bool {
	if s == nil || s.keySecret == "" || gatewayOrderID == "" || gatewayPaymentID == "" {
		return false
	}
	return equal(s.SignPayment(gatewayOrderID, gatewayPaymentID), signature)
}

// SignWebhook returns hex(HMAC-SHA256(body, webhookSecret)).
func (s *Signer) SignWebhook(body []byte) string {
	return sign(s.webhookSecret, body)
}

// VerifyWebhook checks the raw request body against the signature header.
func (s *Signer) VerifyWebhook(body []byte, signature string) bool {
	if s == nil || s.webhookSecret == "" || len(body) == 0 {
		return false
	}
	return equal(s.SignWebhook(body), signature)
}

func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func equal(expected, supplied string) bool {
	supplied = strings.ToLower(strings.TrimSpace(supplied))
	if supplied == "" {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(supplied))
}
