package payments

import (
	"context"
	"encoding/json"
	"strings"

	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/gateway"
)

// HandleWebhook verifies and applies a gateway webhook. The body is trusted only
// after its HMAC matches; redelivered event ids are ignored.
func (r *Reconciler) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !r.signer.VerifyWebhook(body, signature) {
		r.metrics.Verification("invalid_signature")
		return pkgerrors.New(pkgerrors.CodeSignatureInvalid, "webhook signature is invalid")
	}

	var event gateway.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode webhook event")
	}
	eventID := strings.TrimSpace(event.ID)
	if eventID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "webhook event id missing")
	}

	if r.guard != nil {
		seen, err := r.guard.CheckAndMark(ctx, eventID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook idempotency")
		}
		if seen {
			r.logg.Info(r.logg.WithField(ctx, "event_id", eventID), "webhook event already processed")
			return nil
		}
	}

	if err := r.dispatchWebhook(ctx, event); err != nil {
		if r.guard != nil {
			_ = r.guard.Delete(ctx, eventID)
		}
		return err
	}
	return nil
}

func (r *Reconciler) dispatchWebhook(ctx context.Context, event gateway.WebhookEvent) error {
	switch event.Event {
	case gateway.WebhookPaymentCaptured, gateway.WebhookPaymentFailed:
	default:
		return nil
	}

	entity := event.Payload.Payment.Entity
	if entity.ID == "" || entity.OrderID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "webhook payment entity incomplete")
	}
	payment, done, err := r.attachPayment(ctx, entity.OrderID, entity.ID, nil)
	if err != nil {
		return err
	}
	if done {
		return nil
	}
	_, err = r.applyGatewayStatus(ctx, payment, &entity, systemActor)
	return err
}
