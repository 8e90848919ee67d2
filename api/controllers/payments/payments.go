package payments

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow/api/controllers/actorcontext"
	"github.com/angelmondragon/orderflow/api/responses"
	"github.com/angelmondragon/orderflow/api/validators"
	internalpayments "github.com/angelmondragon/orderflow/internal/payments"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/logger"
)

// Service is the slice of the payment reconciler the HTTP layer drives.
type Service interface {
	CreateGatewayOrder(ctx context.Context, orderID, buyerID uuid.UUID) (*models.Payment, error)
	VerifyCallback(ctx context.Context, input internalpayments.CallbackInput) (*internalpayments.VerifyResult, error)
	DetectDuplicates(ctx context.Context, orderID uuid.UUID) (*internalpayments.DuplicateReport, error)
	InitiateRefund(ctx context.Context, input internalpayments.RefundInput) (*models.Refund, error)
	ListPayments(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
	ListRefunds(ctx context.Context, orderID uuid.UUID) ([]models.Refund, error)
}

// checkoutSession is what the client needs to open the gateway checkout.
type checkoutSession struct {
	KeyID          string          `json:"key_id"`
	GatewayOrderID string          `json:"gateway_order_id"`
	AmountCents    int             `json:"amount_cents"`
	Currency       string          `json:"currency"`
	Payment        *models.Payment `json:"payment"`
}

type refundRequest struct {
	AmountCents     *int       `json:"amount_cents,omitempty" validate:"omitempty,gt=0"`
	Reason          string     `json:"reason" validate:"required,max=500"`
	ReturnRequestID *uuid.UUID `json:"return_request_id,omitempty"`
}

type paymentHistory struct {
	Payments []models.Payment `json:"payments"`
	Refunds  []models.Refund  `json:"refunds"`
}

// CreateGatewayOrder opens (or reuses) the gateway order for an online order.
func CreateGatewayOrder(svc Service, keyID string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := actorcontext.URLParamUUID(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.CreateGatewayOrder(r.Context(), orderID, actor.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutSession{
			KeyID:          keyID,
			GatewayOrderID: payment.GatewayOrderID,
			AmountCents:    payment.AmountCents,
			Currency:       payment.Currency,
			Payment:        payment,
		})
	}
}

// VerifyPayment handles the client callback after checkout. Failures keep a
// generic message and point the client back to the order page.
func VerifyPayment(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var input internalpayments.CallbackInput
		if err := validators.DecodeJSONBody(w, r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		buyerID := actor.UserID
		input.BuyerID = &buyerID

		result, err := svc.VerifyCallback(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminDuplicates reports whether more than one payment captured money for an order.
func AdminDuplicates(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		orderID, err := actorcontext.URLParamUUID(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := svc.DetectDuplicates(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

func AdminHistory(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		orderID, err := actorcontext.URLParamUUID(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		paymentsList, err := svc.ListPayments(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments"))
			return
		}
		refunds, err := svc.ListRefunds(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list refunds"))
			return
		}
		responses.WriteSuccess(w, paymentHistory{Payments: paymentsList, Refunds: refunds})
	}
}

// AdminRefund refunds part or all of a settled payment.
func AdminRefund(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		paymentID, err := actorcontext.URLParamUUID(r, "paymentId", "payment id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req refundRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		adminID := actor.UserID
		refund, err := svc.InitiateRefund(r.Context(), internalpayments.RefundInput{
			PaymentID:       paymentID,
			AmountCents:     req.AmountCents,
			Reason:          validators.SanitizeString(req.Reason, 500),
			ReturnRequestID: req.ReturnRequestID,
			InitiatedBy:     &adminID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if logg != nil {
			ctx := logg.WithPaymentID(r.Context(), paymentID.String())
			logg.Info(logg.WithFields(ctx, map[string]any{"refund_id": refund.ID.String(), "amount_cents": refund.AmountCents}), "refund initiated")
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, refund)
	}
}
