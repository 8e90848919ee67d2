package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/orderflow/api/responses"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/logger"
)

const (
	SignatureHeader = "X-Razorpay-Signature"
	maxWebhookBody  = 1 << 20
)

type GatewayWebhookService interface {
	HandleWebhook(ctx context.Context, body []byte, signature string) error
}

// GatewayWebhook accepts payment gateway events. The raw body is passed through
// untouched because the signature covers the exact bytes sent.
func GatewayWebhook(svc GatewayWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := r.Header.Get(SignatureHeader)
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeSignatureInvalid, "gateway signature missing"))
			return
		}

		if err := svc.HandleWebhook(ctx, payload, signature); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, "gateway webhook processed")
		}
		responses.WriteSuccess(w, map[string]bool{"received": true})
	}
}
