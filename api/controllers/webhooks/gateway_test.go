package webhooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
)

type stubWebhookService struct {
	body      []byte
	signature string
	err       error
}

func (s *stubWebhookService) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	s.body = body
	s.signature = signature
	return s.err
}

func TestGatewayWebhookPassesRawBody(t *testing.T) {
	svc := &stubWebhookService{}
	payload := `{"id":"evt_1","event":"payment.captured"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/gateway", strings.NewReader(payload))
	req.Header.Set(SignatureHeader, "sig")

	resp := httptest.NewRecorder()
	GatewayWebhook(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if string(svc.body) != payload || svc.signature != "sig" {
		t.Fatalf("unexpected forwarded payload %q sig %q", svc.body, svc.signature)
	}
}

func TestGatewayWebhookMissingSignature(t *testing.T) {
	svc := &stubWebhookService{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/gateway", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	GatewayWebhook(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.body != nil {
		t.Fatalf("service should not be called without a signature")
	}
}

func TestGatewayWebhookInvalidSignature(t *testing.T) {
	svc := &stubWebhookService{err: pkgerrors.New(pkgerrors.CodeSignatureInvalid, "webhook signature is invalid")}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/gateway", strings.NewReader(`{}`))
	req.Header.Set(SignatureHeader, "forged")
	resp := httptest.NewRecorder()
	GatewayWebhook(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
