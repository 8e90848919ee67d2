package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Ledger owns available/reserved stock per sell unit.
//
// Every mutating call accepts the caller's transaction. Passing nil runs the
// call in its own transaction. Callers that reserve several lines reserve them
// all in one transaction so that a failure on any line rolls back every hold.
type Ledger struct {
	db      *gorm.DB
	tx      txRunner
	metrics *metrics.OrderMetrics
}

func NewLedger(db *gorm.DB, tx txRunner, m *metrics.OrderMetrics) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &Ledger{db: db, tx: tx, metrics: m}, nil
}

func (l *Ledger) run(ctx context.Context, tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	if tx != nil {
		return fn(tx.WithContext(ctx))
	}
	return l.tx.WithTx(ctx, fn)
}

// Reserve moves qty from available to reserved and returns the hold.
// The conditional update is a single statement so two reservers can never
// both see enough stock.
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, sellUnitID uuid.UUID, qty int, orderID *uuid.UUID) (*models.InventoryReservation, error) {
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation quantity must be positive")
	}

	var reservation *models.InventoryReservation
	err := l.run(ctx, tx, func(tx *gorm.DB) error {
		res := tx.Model(&models.InventoryRecord{}).
			Where("sell_unit_id = ? AND available_qty >= ?", sellUnitID, qty).
			Updates(map[string]any{
				"available_qty": gorm.Expr("available_qty - ?", qty),
				"reserved_qty":  gorm.Expr("reserved_qty + ?", qty),
			})
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "reserve inventory")
		}
		if res.RowsAffected == 0 {
			l.metrics.ReservationFailed()
			return insufficientStock(tx, sellUnitID, qty)
		}

		row := models.InventoryReservation{
			SellUnitID: sellUnitID,
			OrderID:    orderID,
			Qty:        qty,
			Status:     enums.ReservationStatusHeld,
		}
		if err := tx.Create(&row).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create reservation")
		}
		reservation = &row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

func insufficientStock(tx *gorm.DB, sellUnitID uuid.UUID, requested int) error {
	available := 0
	var record models.InventoryRecord
	if err := tx.Where("sell_unit_id = ?", sellUnitID).Take(&record).Error; err == nil {
		available = record.AvailableQty
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("insufficient stock for sell unit %s", sellUnitID)).
		WithDetails(map[string]any{
			"sell_unit_id": sellUnitID.String(),
			"requested":    requested,
			"available":    available,
		})
}

// Release returns a held reservation to available stock. Releasing a hold
// that is no longer held is a no-op.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, token uuid.UUID) error {
	return l.run(ctx, tx, func(tx *gorm.DB) error {
		r, ok, err := transition(tx, token, enums.ReservationStatusHeld, enums.ReservationStatusReleased)
		if err != nil || !ok {
			return err
		}
		return moveStock(tx, r.SellUnitID, r.Qty, -r.Qty)
	})
}

// Consume turns a held reservation into a sale: reserved stock leaves the ledger.
func (l *Ledger) Consume(ctx context.Context, tx *gorm.DB, token uuid.UUID) error {
	return l.run(ctx, tx, func(tx *gorm.DB) error {
		r, ok, err := transition(tx, token, enums.ReservationStatusHeld, enums.ReservationStatusConsumed)
		if err != nil || !ok {
			return err
		}
		return moveStock(tx, r.SellUnitID, 0, -r.Qty)
	})
}

// Restock puts consumed stock back on the shelf, e.g. when a confirmed order is cancelled.
func (l *Ledger) Restock(ctx context.Context, tx *gorm.DB, token uuid.UUID) error {
	return l.run(ctx, tx, func(tx *gorm.DB) error {
		r, ok, err := transition(tx, token, enums.ReservationStatusConsumed, enums.ReservationStatusReleased)
		if err != nil || !ok {
			return err
		}
		return moveStock(tx, r.SellUnitID, r.Qty, 0)
	})
}

// ReleaseOrder releases every held reservation and restocks every consumed one for an order.
func (l *Ledger) ReleaseOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	return l.run(ctx, tx, func(tx *gorm.DB) error {
		var rows []models.InventoryReservation
		if err := tx.Where("order_id = ?", orderID).Find(&rows).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list reservations")
		}
		for _, r := range rows {
			var err error
			switch r.Status {
			case enums.ReservationStatusHeld:
				err = l.Release(ctx, tx, r.ID)
			case enums.ReservationStatusConsumed:
				err = l.Restock(ctx, tx, r.ID)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ConsumeOrder consumes every held reservation of an order.
func (l *Ledger) ConsumeOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	return l.run(ctx, tx, func(tx *gorm.DB) error {
		var rows []models.InventoryReservation
		if err := tx.Where("order_id = ? AND status = ?", orderID, enums.ReservationStatusHeld).Find(&rows).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list reservations")
		}
		for _, r := range rows {
			if err := l.Consume(ctx, tx, r.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// Adjust applies a vendor stock correction. Stock never goes below zero.
func (l *Ledger) Adjust(ctx context.Context, tx *gorm.DB, sellUnitID uuid.UUID, delta int) (*models.InventoryRecord, error) {
	var record models.InventoryRecord
	err := l.run(ctx, tx, func(tx *gorm.DB) error {
		if delta > 0 {
			seed := models.InventoryRecord{SellUnitID: sellUnitID}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "seed inventory record")
			}
		}
		res := tx.Model(&models.InventoryRecord{}).
			Where("sell_unit_id = ? AND available_qty + ? >= 0", sellUnitID, delta).
			Update("available_qty", gorm.Expr("available_qty + ?", delta))
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "adjust inventory")
		}
		if res.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "adjustment would make available stock negative").
				WithDetails(map[string]any{"sell_unit_id": sellUnitID.String(), "delta": delta})
		}
		return tx.Where("sell_unit_id = ?", sellUnitID).Take(&record).Error
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (l *Ledger) Get(ctx context.Context, sellUnitID uuid.UUID) (*models.InventoryRecord, error) {
	var record models.InventoryRecord
	err := l.db.WithContext(ctx).Where("sell_unit_id = ?", sellUnitID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory record not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load inventory record")
	}
	return &record, nil
}

func (l *Ledger) GetReservation(ctx context.Context, token uuid.UUID) (*models.InventoryReservation, error) {
	var r models.InventoryReservation
	err := l.db.WithContext(ctx).Where("id = ?", token).Take(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load reservation")
	}
	return &r, nil
}

// transition compare-and-swaps a reservation status. ok is false when the
// reservation was not in the expected status, which callers treat as a no-op.
func transition(tx *gorm.DB, token uuid.UUID, from, to enums.ReservationStatus) (*models.InventoryReservation, bool, error) {
	var r models.InventoryReservation
	err := tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Where("id = ?", token).Take(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
	}
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load reservation")
	}
	if r.Status != from {
		return &r, false, nil
	}
	res := tx.Model(&models.InventoryReservation{}).
		Where("id = ? AND status = ?", token, from).
		Update("status", to)
	if res.Error != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "update reservation")
	}
	return &r, res.RowsAffected == 1, nil
}

func moveStock(tx *gorm.DB, sellUnitID uuid.UUID, availableDelta, reservedDelta int) error {
	res := tx.Model(&models.InventoryRecord{}).
		Where("sell_unit_id = ? AND reserved_qty + ? >= 0", sellUnitID, reservedDelta).
		Updates(map[string]any{
			"available_qty": gorm.Expr("available_qty + ?", availableDelta),
			"reserved_qty":  gorm.Expr("reserved_qty + ?", reservedDelta),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "move stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("inventory record for %s out of sync with reservations", sellUnitID))
	}
	return nil
}
