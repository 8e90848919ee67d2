package coupons

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
)

// Service looks up coupons and redeems them at order placement.
type Service interface {
	Evaluate(ctx context.Context, tx *gorm.DB, cart CartSummary, code string) (Discount, error)
	Redeem(ctx context.Context, tx *gorm.DB, couponID uuid.UUID) error
}

type service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository, now func() time.Time) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("coupon repository required")
	}
	if now == nil {
		now = time.Now
	}
	return &service{repo: repo, now: now}, nil
}

func (s *service) Evaluate(ctx context.Context, tx *gorm.DB, cart CartSummary, code string) (Discount, error) {
	if strings.TrimSpace(code) == "" {
		return Discount{}, pkgerrors.New(pkgerrors.CodeInvalidCoupon, "coupon code is required")
	}
	coupon, err := s.repo.WithTx(tx).FindByCode(ctx, code)
	if err != nil {
		return Discount{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load coupon")
	}
	return Evaluate(cart, coupon, s.now())
}

// Redeem consumes one use of the coupon. It fails with INVALID_COUPON when a
// concurrent redemption took the last use.
func (s *service) Redeem(ctx context.Context, tx *gorm.DB, couponID uuid.UUID) error {
	ok, err := s.repo.WithTx(tx).IncrementRedemption(ctx, couponID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "redeem coupon")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeInvalidCoupon, "coupon has been fully redeemed")
	}
	return nil
}
