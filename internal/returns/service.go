package returns

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/internal/ledger"
	"github.com/angelmondragon/orderflow/internal/orders"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/logger"
	"github.com/angelmondragon/orderflow/pkg/outbox"
	"github.com/angelmondragon/orderflow/pkg/outbox/payloads"
)

type txRunner interface {
	WithRetryTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type refunder interface {
	QueueReturnRefundTx(ctx context.Context, tx *gorm.DB, orderID, returnID uuid.UUID, amountCents int, reason string, initiatedBy *uuid.UUID) (*models.Refund, error)
	ProcessRefund(ctx context.Context, refundID uuid.UUID) (*models.Refund, error)
}

type stockAdjuster interface {
	Adjust(ctx context.Context, tx *gorm.DB, sellUnitID uuid.UUID, delta int) (*models.InventoryRecord, error)
}

type orderMarker interface {
	MarkReturnedTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor orders.Actor) (bool, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service runs per-item returns through vendor review and admin sign-off.
type Service interface {
	CreateReturn(ctx context.Context, input CreateInput) (*models.ReturnRequest, error)
	VendorDecision(ctx context.Context, input VendorDecisionInput) (*models.ReturnRequest, error)
	AdminDecision(ctx context.Context, input AdminDecisionInput) (*models.ReturnRequest, error)
	ListForOrder(ctx context.Context, orderID uuid.UUID, actor orders.Actor) ([]models.ReturnRequest, error)
	Get(ctx context.Context, returnID uuid.UUID, actor orders.Actor) (*models.ReturnRequest, error)
}

// Params wires the return service. Refunds may be nil when only cash on
// delivery is enabled; approving a return on an online order then fails.
type Params struct {
	Repo      Repository
	Orders    orders.Repository
	Marker    orderMarker
	Tx        txRunner
	Refunds   refunder
	Inventory stockAdjuster
	Ledger    ledger.Service
	Outbox    outboxPublisher
	Logger    *logger.Logger
	Now       func() time.Time
}

type service struct {
	repo      Repository
	orders    orders.Repository
	marker    orderMarker
	tx        txRunner
	refunds   refunder
	inventory stockAdjuster
	ledger    ledger.Service
	outbox    outboxPublisher
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(p Params) (Service, error) {
	switch {
	case p.Repo == nil:
		return nil, fmt.Errorf("returns repository required")
	case p.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case p.Marker == nil:
		return nil, fmt.Errorf("order service required")
	case p.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case p.Inventory == nil:
		return nil, fmt.Errorf("inventory ledger required")
	case p.Ledger == nil:
		return nil, fmt.Errorf("ledger service required")
	case p.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &service{
		repo:      p.Repo,
		orders:    p.Orders,
		marker:    p.Marker,
		tx:        p.Tx,
		refunds:   p.Refunds,
		inventory: p.Inventory,
		ledger:    p.Ledger,
		outbox:    p.Outbox,
		logg:      p.Logger,
		now:       p.Now,
	}, nil
}

func (s *service) CreateReturn(ctx context.Context, input CreateInput) (*models.ReturnRequest, error) {
	if !input.Reason.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid return reason").
			WithDetails(map[string]any{"reason": input.Reason})
	}
	if len(input.Images) > maxImages {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d images allowed", maxImages))
	}
	description := trimmed(input.Description)
	if description != nil && len(*description) > maxDescriptionLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "description too long")
	}

	var req *models.ReturnRequest
	err := s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.WithTx(tx).LockByID(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if order.BuyerID != input.BuyerID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if order.Status != enums.OrderStatusDelivered {
			return pkgerrors.New(pkgerrors.CodeReturnNotEligible, "only delivered orders can be returned").
				WithDetails(map[string]any{"status": order.Status})
		}
		item := findItem(order, input.OrderItemID)
		if item == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
		}
		if !item.ReturnEligible {
			return pkgerrors.New(pkgerrors.CodeReturnNotEligible, "item is not eligible for return")
		}
		now := s.now().UTC()
		if item.ReturnDeadline == nil || now.After(*item.ReturnDeadline) {
			details := map[string]any{}
			if item.ReturnDeadline != nil {
				details["return_deadline"] = item.ReturnDeadline.UTC().Format(time.RFC3339)
			}
			return pkgerrors.New(pkgerrors.CodeReturnWindowExpired, "return window has closed").WithDetails(details)
		}
		if item.ReturnStatus == enums.ItemReturnStatusReturned {
			return pkgerrors.New(pkgerrors.CodeConflict, "item already returned")
		}
		repo := s.repo.WithTx(tx)
		open, err := repo.HasOpenForItem(ctx, item.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check open returns")
		}
		if open {
			return pkgerrors.New(pkgerrors.CodeConflict, "a return is already open for this item")
		}

		images := input.Images
		if images == nil {
			images = []string{}
		}
		req = &models.ReturnRequest{
			OrderID:     order.ID,
			OrderItemID: item.ID,
			BuyerID:     order.BuyerID,
			VendorID:    order.VendorID,
			Reason:      input.Reason,
			Description: description,
			Images:      images,
			Status:      enums.ReturnStatusRequested,
		}
		if err := repo.Create(ctx, req); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist return request")
		}
		if err := s.orders.WithTx(tx).UpdateItem(ctx, item.ID, map[string]any{"return_status": enums.ItemReturnStatusRequested}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark item return requested")
		}
		return s.emit(ctx, tx, enums.EventReturnRequested, req, userRef(enums.ActorRoleBuyer, input.BuyerID))
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(s.logg.WithOrderID(ctx, req.OrderID.String()), map[string]any{
		"return_id": req.ID.String(),
		"reason":    req.Reason,
	}), "return requested")
	return req, nil
}

func (s *service) VendorDecision(ctx context.Context, input VendorDecisionInput) (*models.ReturnRequest, error) {
	if notes := trimmed(input.Notes); notes != nil && len(*notes) > maxNotesLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notes too long")
	}
	existing, err := s.repo.FindByID(ctx, input.ReturnID)
	if err != nil {
		return nil, err
	}
	if existing.VendorID != input.VendorID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return request not found")
	}

	var req *models.ReturnRequest
	err = s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.WithTx(tx).LockByID(ctx, existing.OrderID)
		if err != nil {
			return err
		}
		repo := s.repo.WithTx(tx)
		req, err = repo.LockByID(ctx, input.ReturnID)
		if err != nil {
			return err
		}
		if req.Status != enums.ReturnStatusRequested {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "return has already been reviewed by the vendor").
				WithDetails(map[string]any{"status": req.Status})
		}
		item := findItem(order, req.OrderItemID)
		if item == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
		}

		now := s.now().UTC()
		decidedBy := input.DecidedBy
		updates := map[string]any{
			"vendor_notes":      trimmed(input.Notes),
			"vendor_decided_by": &decidedBy,
			"vendor_decided_at": now,
		}
		actor := userRef(enums.ActorRoleVendor, input.DecidedBy)

		if !input.Approve {
			return s.reject(ctx, tx, req, enums.ReturnStatusRequested, updates, now, actor)
		}

		amount, err := refundAmount(input.RefundAmountCents, item.TotalPriceCents, item.TotalPriceCents)
		if err != nil {
			return err
		}
		updates["refund_amount_cents"] = amount
		changed, err := repo.UpdateStatus(ctx, req.ID, enums.ReturnStatusRequested, enums.ReturnStatusApproved, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "approve return")
		}
		if !changed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "return changed concurrently")
		}
		req.Status = enums.ReturnStatusApproved
		req.RefundAmountCents = amount
		req.VendorNotes = trimmed(input.Notes)
		req.VendorDecidedBy = &decidedBy
		req.VendorDecidedAt = &now
		return s.emit(ctx, tx, enums.EventReturnVendorDecided, req, actor)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (s *service) AdminDecision(ctx context.Context, input AdminDecisionInput) (*models.ReturnRequest, error) {
	if notes := trimmed(input.Notes); notes != nil && len(*notes) > maxNotesLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notes too long")
	}
	existing, err := s.repo.FindByID(ctx, input.ReturnID)
	if err != nil {
		return nil, err
	}

	var (
		req    *models.ReturnRequest
		refund *models.Refund
	)
	err = s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		refund = nil
		order, err := s.orders.WithTx(tx).LockByID(ctx, existing.OrderID)
		if err != nil {
			return err
		}
		repo := s.repo.WithTx(tx)
		req, err = repo.LockByID(ctx, input.ReturnID)
		if err != nil {
			return err
		}
		if req.Status != enums.ReturnStatusApproved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only vendor-approved returns can be decided").
				WithDetails(map[string]any{"status": req.Status})
		}
		item := findItem(order, req.OrderItemID)
		if item == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
		}

		now := s.now().UTC()
		adminID := input.AdminID
		updates := map[string]any{
			"admin_notes":      trimmed(input.Notes),
			"admin_decided_by": &adminID,
			"admin_decided_at": now,
		}
		actor := userRef(enums.ActorRoleAdmin, input.AdminID)

		if !input.Approve {
			return s.reject(ctx, tx, req, enums.ReturnStatusApproved, updates, now, actor)
		}

		amount, err := refundAmount(input.RefundAmountCents, req.RefundAmountCents, item.TotalPriceCents)
		if err != nil {
			return err
		}
		reason := fmt.Sprintf("return %s: %s", req.ID, req.Reason)

		switch order.PaymentMode {
		case enums.PaymentModeOnline:
			if s.refunds == nil {
				return pkgerrors.New(pkgerrors.CodeDependency, "refunds are not configured")
			}
			refund, err = s.refunds.QueueReturnRefundTx(ctx, tx, order.ID, req.ID, amount, reason, &adminID)
			if err != nil {
				return err
			}
			updates["refund_id"] = &refund.ID
		default:
			if err := s.recordCashRefund(ctx, tx, order, req, amount, &adminID); err != nil {
				return err
			}
		}

		if input.Restock && item.StockQuantityUsed > 0 {
			if _, err := s.inventory.Adjust(ctx, tx, item.SellUnitID, item.StockQuantityUsed); err != nil {
				return err
			}
		}

		updates["refund_amount_cents"] = amount
		updates["restock"] = input.Restock
		updates["resolved_at"] = now
		changed, err := repo.UpdateStatus(ctx, req.ID, enums.ReturnStatusApproved, enums.ReturnStatusCompleted, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "complete return")
		}
		if !changed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "return changed concurrently")
		}
		if err := s.orders.WithTx(tx).UpdateItem(ctx, item.ID, map[string]any{"return_status": enums.ItemReturnStatusReturned}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark item returned")
		}
		if _, err := s.marker.MarkReturnedTx(ctx, tx, order.ID, orders.Actor{UserID: adminID, Role: enums.ActorRoleAdmin}); err != nil {
			return err
		}

		req.Status = enums.ReturnStatusCompleted
		req.RefundAmountCents = amount
		req.Restock = input.Restock
		req.AdminNotes = trimmed(input.Notes)
		req.AdminDecidedBy = &adminID
		req.AdminDecidedAt = &now
		req.ResolvedAt = &now
		if refund != nil {
			req.RefundID = &refund.ID
		}
		return s.emit(ctx, tx, enums.EventReturnCompleted, req, actor)
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, req.OrderID.String()), map[string]any{
		"return_id": req.ID.String(),
		"status":    req.Status,
	})
	s.logg.Info(logCtx, "return decided")
	if refund != nil {
		if _, err := s.refunds.ProcessRefund(ctx, refund.ID); err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeGatewayAmbiguous) {
			s.logg.Error(s.logg.WithField(logCtx, "refund_id", refund.ID.String()), "return refund processing deferred", err)
		}
	}
	return req, nil
}

func (s *service) ListForOrder(ctx context.Context, orderID uuid.UUID, actor orders.Actor) ([]models.ReturnRequest, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !canView(actor, order.BuyerID, order.VendorID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	rows, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list returns")
	}
	return rows, nil
}

func (s *service) Get(ctx context.Context, returnID uuid.UUID, actor orders.Actor) (*models.ReturnRequest, error) {
	req, err := s.repo.FindByID(ctx, returnID)
	if err != nil {
		return nil, err
	}
	if !canView(actor, req.BuyerID, req.VendorID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return request not found")
	}
	return req, nil
}

// reject closes the request and frees the item for a fresh request while the
// window is still open.
func (s *service) reject(ctx context.Context, tx *gorm.DB, req *models.ReturnRequest, from enums.ReturnStatus, updates map[string]any, now time.Time, actor *outbox.ActorRef) error {
	updates["resolved_at"] = now
	changed, err := s.repo.WithTx(tx).UpdateStatus(ctx, req.ID, from, enums.ReturnStatusRejected, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reject return")
	}
	if !changed {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "return changed concurrently")
	}
	if err := s.orders.WithTx(tx).UpdateItem(ctx, req.OrderItemID, map[string]any{"return_status": enums.ItemReturnStatusNone}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reset item return status")
	}
	req.Status = enums.ReturnStatusRejected
	req.ResolvedAt = &now
	return s.emit(ctx, tx, enums.EventReturnRejected, req, actor)
}

// recordCashRefund books the payout adjustment for a cash-on-delivery return.
// The cash itself is handed back outside the platform.
func (s *service) recordCashRefund(ctx context.Context, tx *gorm.DB, order *models.Order, req *models.ReturnRequest, amount int, adminID *uuid.UUID) error {
	reference := "return:" + req.ID.String()
	exists, err := s.ledger.HasEvent(ctx, tx, order.ID, enums.LedgerEventTypeAdjustment, &reference)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check ledger")
	}
	if exists {
		return nil
	}
	meta, err := json.Marshal(map[string]any{
		"kind":          "cod_return_refund",
		"return_id":     req.ID,
		"order_item_id": req.OrderItemID,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode ledger metadata")
	}
	_, err = s.ledger.RecordEvent(ctx, tx, ledger.RecordLedgerEventInput{
		OrderID:     order.ID,
		BuyerID:     order.BuyerID,
		VendorID:    order.VendorID,
		ActorID:     adminID,
		Type:        enums.LedgerEventTypeAdjustment,
		AmountCents: amount,
		Reference:   &reference,
		Metadata:    meta,
	})
	return err
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, req *models.ReturnRequest, actor *outbox.ActorRef) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateReturn,
		AggregateID:   req.ID,
		Actor:         actor,
		Data: payloads.ReturnEvent{
			ReturnID:          req.ID,
			OrderID:           req.OrderID,
			OrderItemID:       req.OrderItemID,
			BuyerID:           req.BuyerID,
			VendorID:          req.VendorID,
			Status:            req.Status,
			RefundAmountCents: req.RefundAmountCents,
		},
	})
}

// refundAmount resolves an optional override against a default, capped by the item total.
func refundAmount(requested *int, fallback, itemTotal int) (int, error) {
	amount := fallback
	if requested != nil {
		amount = *requested
	}
	if amount <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	if amount > itemTotal {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "refund amount exceeds the item total").
			WithDetails(map[string]any{
				"requested_cents":  amount,
				"item_total_cents": itemTotal,
			})
	}
	return amount, nil
}

func findItem(order *models.Order, itemID uuid.UUID) *models.OrderItem {
	for i := range order.Items {
		if order.Items[i].ID == itemID {
			return &order.Items[i]
		}
	}
	return nil
}

func canView(actor orders.Actor, buyerID, vendorID uuid.UUID) bool {
	switch actor.Role {
	case enums.ActorRoleAdmin, enums.ActorRoleSystem:
		return true
	case enums.ActorRoleBuyer:
		return actor.UserID == buyerID
	case enums.ActorRoleVendor:
		return actor.VendorID != nil && *actor.VendorID == vendorID
	}
	return false
}

func userRef(role enums.ActorRole, id uuid.UUID) *outbox.ActorRef {
	return &outbox.ActorRef{Role: string(role), UserID: &id}
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}
