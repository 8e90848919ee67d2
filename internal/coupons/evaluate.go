package coupons

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
)

// CartSummary is the part of a cart a coupon rule can look at.
type CartSummary struct {
	VendorID      uuid.UUID
	SubtotalCents int
}

// Discount is the frozen result of applying a coupon to a cart.
type Discount struct {
	CouponID    uuid.UUID `json:"coupon_id"`
	Code        string    `json:"code"`
	AmountCents int       `json:"amount_cents"`
}

var hundred = decimal.NewFromInt(100)

// NormalizeCode upper-cases and trims a user supplied code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Evaluate applies coupon rules to the cart. It has no side effects; the
// caller persists the result and redeems the coupon separately.
func Evaluate(cart CartSummary, coupon *models.Coupon, now time.Time) (Discount, error) {
	if coupon == nil || !coupon.Active {
		return Discount{}, pkgerrors.New(pkgerrors.CodeInvalidCoupon, "coupon is not valid")
	}
	if coupon.VendorID != nil && *coupon.VendorID != cart.VendorID {
		return Discount{}, pkgerrors.New(pkgerrors.CodeInvalidCoupon, "coupon does not apply to this vendor")
	}
	if now.Before(coupon.ValidFrom) {
		return Discount{}, pkgerrors.New(pkgerrors.CodeInvalidCoupon, "coupon is not active yet").
			WithDetails(map[string]any{"valid_from": coupon.ValidFrom})
	}
	if !now.Before(coupon.ValidUntil) {
		return Discount{}, pkgerrors.New(pkgerrors.CodeCouponExpired, "coupon has expired").
			WithDetails(map[string]any{"valid_until": coupon.ValidUntil})
	}
	if coupon.MaxRedemptions != nil && coupon.RedemptionCount >= *coupon.MaxRedemptions {
		return Discount{}, pkgerrors.New(pkgerrors.CodeInvalidCoupon, "coupon has been fully redeemed")
	}
	if cart.SubtotalCents < coupon.MinOrderCents {
		return Discount{}, pkgerrors.New(pkgerrors.CodeMinimumNotMet, "order minimum not met for coupon").
			WithDetails(map[string]any{
				"min_order_cents": coupon.MinOrderCents,
				"shortfall_cents": coupon.MinOrderCents - cart.SubtotalCents,
			})
	}

	var amount int
	switch coupon.DiscountType {
	case enums.DiscountTypePercentage:
		amount = int(decimal.NewFromInt(int64(cart.SubtotalCents)).
			Mul(decimal.NewFromInt(int64(coupon.DiscountValue))).
			Div(hundred).
			Round(0).
			IntPart())
		if coupon.MaxDiscountCents != nil && amount > *coupon.MaxDiscountCents {
			amount = *coupon.MaxDiscountCents
		}
	case enums.DiscountTypeFlat:
		amount = coupon.DiscountValue
	default:
		return Discount{}, pkgerrors.New(pkgerrors.CodeInvalidCoupon, "coupon has an unknown discount type")
	}

	if amount < 0 {
		amount = 0
	}
	if amount > cart.SubtotalCents {
		amount = cart.SubtotalCents
	}
	return Discount{CouponID: coupon.ID, Code: coupon.Code, AmountCents: amount}, nil
}
