package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
)

// settledStatuses are payments whose money reached us (or is about to).
var settledStatuses = []enums.GatewayPaymentStatus{
	enums.GatewayPaymentStatusCaptured,
	enums.GatewayPaymentStatusPaid,
}

// Repository persists payments and refunds.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreatePayment(ctx context.Context, payment *models.Payment) error
	FindPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	LockPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	// FindOpenPayment returns the order's created/authorized payment, or nil.
	FindOpenPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	// FindByGatewayIDs returns the row for a gateway order + payment pair, or nil.
	FindByGatewayIDs(ctx context.Context, gatewayOrderID, gatewayPaymentID string) (*models.Payment, error)
	// FindLatestByGatewayOrder returns the newest row for a gateway order.
	FindLatestByGatewayOrder(ctx context.Context, gatewayOrderID string) (*models.Payment, error)
	// UpdatePaymentStatus applies updates while the payment is still in from.
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from, to enums.GatewayPaymentStatus, updates map[string]any) (bool, error)
	UpdatePayment(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ListByOrder(ctx context.Context, orderID uuid.UUID, statuses ...enums.GatewayPaymentStatus) ([]models.Payment, error)
	ListAuthorized(ctx context.Context, limit int) ([]models.Payment, error)
	ListCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error)
	ListOrdersWithMultipleSettled(ctx context.Context, since time.Time) ([]uuid.UUID, error)

	CreateRefund(ctx context.Context, refund *models.Refund) error
	FindRefund(ctx context.Context, id uuid.UUID) (*models.Refund, error)
	LockRefund(ctx context.Context, id uuid.UUID) (*models.Refund, error)
	UpdateRefund(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ListRefundsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Refund, error)
	ListPendingRefunds(ctx context.Context, limit int) ([]models.Refund, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, paymentNotFound(err)
	}
	return &p, nil
}

func (r *repository) LockPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&p, "id = ?", id).Error
	if err != nil {
		return nil, paymentNotFound(err)
	}
	return &p, nil
}

func (r *repository) FindOpenPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status IN ?", orderID, []enums.GatewayPaymentStatus{
			enums.GatewayPaymentStatusCreated,
			enums.GatewayPaymentStatusAuthorized,
		}).
		Order("created_at DESC").
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) FindByGatewayIDs(ctx context.Context, gatewayOrderID, gatewayPaymentID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).
		Where("gateway_order_id = ? AND gateway_payment_id = ?", gatewayOrderID, gatewayPaymentID).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) FindLatestByGatewayOrder(ctx context.Context, gatewayOrderID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).
		Where("gateway_order_id = ?", gatewayOrderID).
		Order("created_at DESC").
		First(&p).Error
	if err != nil {
		return nil, paymentNotFound(err)
	}
	return &p, nil
}

func (r *repository) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from, to enums.GatewayPaymentStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpdatePayment(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.Payment{}).Where("id = ?", id).Updates(updates).Error
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID, statuses ...enums.GatewayPaymentStatus) ([]models.Payment, error) {
	var rows []models.Payment
	q := r.db.WithContext(ctx).Where("order_id = ?", orderID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	err := q.Order("created_at ASC").Find(&rows).Error
	return rows, err
}

func (r *repository) ListAuthorized(ctx context.Context, limit int) ([]models.Payment, error) {
	var rows []models.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND gateway_payment_id IS NOT NULL", enums.GatewayPaymentStatusAuthorized).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	var rows []models.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.GatewayPaymentStatusCreated, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListOrdersWithMultipleSettled(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("status IN ? AND created_at >= ?", append([]enums.GatewayPaymentStatus{enums.GatewayPaymentStatusAuthorized}, settledStatuses...), since).
		Group("order_id").
		Having("COUNT(*) > 1").
		Pluck("order_id", &ids).Error
	return ids, err
}

func (r *repository) CreateRefund(ctx context.Context, refund *models.Refund) error {
	return r.db.WithContext(ctx).Create(refund).Error
}

func (r *repository) FindRefund(ctx context.Context, id uuid.UUID) (*models.Refund, error) {
	var rf models.Refund
	if err := r.db.WithContext(ctx).First(&rf, "id = ?", id).Error; err != nil {
		return nil, refundNotFound(err)
	}
	return &rf, nil
}

func (r *repository) LockRefund(ctx context.Context, id uuid.UUID) (*models.Refund, error) {
	var rf models.Refund
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&rf, "id = ?", id).Error
	if err != nil {
		return nil, refundNotFound(err)
	}
	return &rf, nil
}

func (r *repository) UpdateRefund(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.Refund{}).Where("id = ?", id).Updates(updates).Error
}

func (r *repository) ListRefundsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Refund, error) {
	var rows []models.Refund
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at ASC").Find(&rows).Error
	return rows, err
}

func (r *repository) ListPendingRefunds(ctx context.Context, limit int) ([]models.Refund, error) {
	var rows []models.Refund
	err := r.db.WithContext(ctx).
		Where("status = ? AND payment_id IS NOT NULL", enums.RefundStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func paymentNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return err
}

func refundNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "refund not found")
	}
	return err
}
