package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/internal/catalog"
	"github.com/angelmondragon/orderflow/internal/coupons"
	"github.com/angelmondragon/orderflow/internal/orders"
	"github.com/angelmondragon/orderflow/pkg/config"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/logger"
)

const (
	maxLines        = 50
	maxLineQuantity = 99
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderCreator interface {
	CreateOrder(ctx context.Context, input orders.CreateOrderInput) (*models.Order, error)
}

// Service exposes the buyer's cart. Prices shown here are indicative; the
// order re-prices every line from the catalog at placement.
type Service interface {
	Get(ctx context.Context, buyerID uuid.UUID) (*View, error)
	SetItem(ctx context.Context, buyerID, sellUnitID uuid.UUID, quantity int) (*View, error)
	RemoveItem(ctx context.Context, buyerID, sellUnitID uuid.UUID) (*View, error)
	ApplyCoupon(ctx context.Context, buyerID uuid.UUID, code string) (*View, error)
	RemoveCoupon(ctx context.Context, buyerID uuid.UUID) (*View, error)
	Clear(ctx context.Context, buyerID uuid.UUID) error
	Checkout(ctx context.Context, input CheckoutInput) (*models.Order, error)
}

type Params struct {
	Repo    Repository
	Tx      txRunner
	Catalog catalog.Repository
	Coupons coupons.Service
	Orders  orderCreator
	Pricing config.PricingConfig
	Logger  *logger.Logger
}

type service struct {
	repo    Repository
	tx      txRunner
	catalog catalog.Repository
	coupons coupons.Service
	orders  orderCreator
	pricing config.PricingConfig
	logg    *logger.Logger
}

// NewService builds a cart service backed by the provided stack.
func NewService(p Params) (Service, error) {
	switch {
	case p.Repo == nil:
		return nil, fmt.Errorf("cart repository required")
	case p.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case p.Catalog == nil:
		return nil, fmt.Errorf("catalog repository required")
	case p.Coupons == nil:
		return nil, fmt.Errorf("coupon service required")
	case p.Orders == nil:
		return nil, fmt.Errorf("order service required")
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	return &service{
		repo:    p.Repo,
		tx:      p.Tx,
		catalog: p.Catalog,
		coupons: p.Coupons,
		orders:  p.Orders,
		pricing: p.Pricing,
		logg:    p.Logger,
	}, nil
}

func (s *service) Get(ctx context.Context, buyerID uuid.UUID) (*View, error) {
	c, err := s.repo.FindByBuyer(ctx, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	if c == nil {
		return s.build(ctx, nil, &models.Cart{BuyerID: buyerID})
	}
	return s.build(ctx, nil, c)
}

func (s *service) SetItem(ctx context.Context, buyerID, sellUnitID uuid.UUID, quantity int) (*View, error) {
	if quantity <= 0 {
		return s.RemoveItem(ctx, buyerID, sellUnitID)
	}
	if quantity > maxLineQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity cannot exceed %d", maxLineQuantity))
	}
	unit, err := s.catalog.FindByID(ctx, sellUnitID)
	if err != nil {
		return nil, err
	}
	if !unit.Active {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item is no longer available").
			WithDetails(map[string]any{"sell_unit_id": sellUnitID.String()})
	}

	return s.mutate(ctx, buyerID, func(tx *gorm.DB, c *models.Cart) error {
		if c.VendorID != nil && *c.VendorID != unit.VendorID && len(c.Items) > 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart can only contain items from one vendor").
				WithDetails(map[string]any{"cart_vendor_id": c.VendorID.String()})
		}
		if !hasUnit(c, sellUnitID) && len(c.Items) >= maxLines {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("cart cannot hold more than %d lines", maxLines))
		}
		repo := s.repo.WithTx(tx)
		if err := repo.UpsertItem(ctx, c.ID, sellUnitID, quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save cart item")
		}
		if c.VendorID == nil || *c.VendorID != unit.VendorID {
			if err := repo.Update(ctx, c.ID, map[string]any{"vendor_id": unit.VendorID}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "set cart vendor")
			}
		}
		return nil
	})
}

func (s *service) RemoveItem(ctx context.Context, buyerID, sellUnitID uuid.UUID) (*View, error) {
	return s.mutate(ctx, buyerID, func(tx *gorm.DB, c *models.Cart) error {
		repo := s.repo.WithTx(tx)
		if err := repo.DeleteItem(ctx, c.ID, sellUnitID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "remove cart item")
		}
		if len(c.Items) == 1 && c.Items[0].SellUnitID == sellUnitID {
			return repo.Update(ctx, c.ID, emptyCartUpdates())
		}
		return nil
	})
}

func (s *service) ApplyCoupon(ctx context.Context, buyerID uuid.UUID, code string) (*View, error) {
	normalized := coupons.NormalizeCode(code)
	var view *View
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		c, err := repo.Ensure(ctx, buyerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
		}
		if len(c.Items) == 0 || c.VendorID == nil {
			return emptyCart()
		}
		summary, err := s.summary(ctx, tx, c)
		if err != nil {
			return err
		}
		discount, err := s.coupons.Evaluate(ctx, tx, summary, normalized)
		if err != nil {
			return err
		}
		if err := repo.Update(ctx, c.ID, map[string]any{
			"coupon_code":    discount.Code,
			"discount_cents": discount.AmountCents,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply coupon")
		}
		c.CouponCode = &discount.Code
		c.DiscountCents = discount.AmountCents
		view, err = s.build(ctx, tx, c)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *service) RemoveCoupon(ctx context.Context, buyerID uuid.UUID) (*View, error) {
	return s.mutate(ctx, buyerID, func(tx *gorm.DB, c *models.Cart) error {
		return s.repo.WithTx(tx).Update(ctx, c.ID, map[string]any{"coupon_code": nil, "discount_cents": 0})
	})
}

func (s *service) Clear(ctx context.Context, buyerID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		c, err := repo.FindByBuyer(ctx, buyerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
		}
		if c == nil {
			return nil
		}
		if err := repo.DeleteItems(ctx, c.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart items")
		}
		return repo.Update(ctx, c.ID, emptyCartUpdates())
	})
}

// Checkout places an order from the cart and empties it. The coupon code is
// re-validated by the order; the cart's frozen discount is display only.
func (s *service) Checkout(ctx context.Context, input CheckoutInput) (*models.Order, error) {
	c, err := s.repo.FindByBuyer(ctx, input.BuyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	if c == nil || len(c.Items) == 0 {
		return nil, emptyCart()
	}
	lines := make([]orders.CartLine, 0, len(c.Items))
	for _, item := range c.Items {
		lines = append(lines, orders.CartLine{SellUnitID: item.SellUnitID, Quantity: item.Quantity})
	}
	order, err := s.orders.CreateOrder(ctx, orders.CreateOrderInput{
		BuyerID:     input.BuyerID,
		AddressID:   input.AddressID,
		PaymentMode: input.PaymentMode,
		Lines:       lines,
		CouponCode:  c.CouponCode,
	})
	if err != nil {
		return nil, err
	}
	if err := s.Clear(ctx, input.BuyerID); err != nil {
		s.logg.Error(s.logg.WithOrderID(ctx, order.ID.String()), "cart not cleared after checkout", err)
	}
	return order, nil
}

// mutate runs fn against the buyer's cart, then re-prices any applied coupon
// against the new contents and returns the fresh view.
func (s *service) mutate(ctx context.Context, buyerID uuid.UUID, fn func(tx *gorm.DB, c *models.Cart) error) (*View, error) {
	var view *View
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		c, err := repo.Ensure(ctx, buyerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
		}
		if err := fn(tx, c); err != nil {
			return err
		}
		c, err = repo.FindByBuyer(ctx, buyerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload cart")
		}
		warning, err := s.reprice(ctx, tx, c)
		if err != nil {
			return err
		}
		view, err = s.build(ctx, tx, c)
		if err != nil {
			return err
		}
		if warning != "" {
			view.Warnings = append(view.Warnings, warning)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// reprice refreshes the frozen discount and drops a coupon that no longer applies.
func (s *service) reprice(ctx context.Context, tx *gorm.DB, c *models.Cart) (string, error) {
	if c.CouponCode == nil {
		return "", nil
	}
	code := *c.CouponCode
	repo := s.repo.WithTx(tx)
	if len(c.Items) == 0 || c.VendorID == nil {
		c.CouponCode = nil
		c.DiscountCents = 0
		return "", repo.Update(ctx, c.ID, map[string]any{"coupon_code": nil, "discount_cents": 0})
	}
	summary, err := s.summary(ctx, tx, c)
	if err != nil {
		return "", err
	}
	discount, err := s.coupons.Evaluate(ctx, tx, summary, code)
	if err != nil {
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() == pkgerrors.CodeInternal {
			return "", err
		}
		c.CouponCode = nil
		c.DiscountCents = 0
		if err := repo.Update(ctx, c.ID, map[string]any{"coupon_code": nil, "discount_cents": 0}); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "drop coupon")
		}
		return fmt.Sprintf("coupon %s removed: %s", code, typed.Message()), nil
	}
	if discount.AmountCents != c.DiscountCents {
		c.DiscountCents = discount.AmountCents
		if err := repo.Update(ctx, c.ID, map[string]any{"discount_cents": discount.AmountCents}); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reprice coupon")
		}
	}
	return "", nil
}

func (s *service) summary(ctx context.Context, tx *gorm.DB, c *models.Cart) (coupons.CartSummary, error) {
	lines, err := s.lines(ctx, tx, c)
	if err != nil {
		return coupons.CartSummary{}, err
	}
	summary := coupons.CartSummary{VendorID: *c.VendorID}
	for _, line := range lines {
		if line.Available {
			summary.SubtotalCents += line.LineTotalCents
		}
	}
	return summary, nil
}

func (s *service) lines(ctx context.Context, tx *gorm.DB, c *models.Cart) ([]LineView, error) {
	repo := s.catalog.WithTx(tx)
	out := make([]LineView, 0, len(c.Items))
	for _, item := range c.Items {
		line := LineView{SellUnitID: item.SellUnitID, Quantity: item.Quantity}
		unit, err := repo.FindByID(ctx, item.SellUnitID)
		if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, err
		}
		if unit != nil {
			line.ProductName = unit.ProductName
			line.Label = unit.Label
			line.UnitPriceCents = unit.PriceCents
			line.LineTotalCents = unit.PriceCents * item.Quantity
			line.Available = unit.Active
		}
		out = append(out, line)
	}
	return out, nil
}

func (s *service) build(ctx context.Context, tx *gorm.DB, c *models.Cart) (*View, error) {
	lines, err := s.lines(ctx, tx, c)
	if err != nil {
		return nil, err
	}
	view := &View{
		BuyerID:    c.BuyerID,
		VendorID:   c.VendorID,
		CouponCode: c.CouponCode,
		Lines:      lines,
		Currency:   s.pricing.Currency,
	}
	for _, line := range lines {
		if !line.Available {
			view.Warnings = append(view.Warnings, fmt.Sprintf("%s is no longer available", line.displayName()))
			continue
		}
		view.SubtotalCents += line.LineTotalCents
	}
	if len(lines) > 0 {
		view.DiscountCents = min(c.DiscountCents, view.SubtotalCents)
		view.DeliveryFeeCents = s.pricing.DeliveryFeeFor(view.SubtotalCents)
		view.TaxCents = s.pricing.FlatTaxCents
	}
	view.TotalCents = view.SubtotalCents + view.DeliveryFeeCents + view.TaxCents - view.DiscountCents
	return view, nil
}

func hasUnit(c *models.Cart, sellUnitID uuid.UUID) bool {
	for _, item := range c.Items {
		if item.SellUnitID == sellUnitID {
			return true
		}
	}
	return false
}

func emptyCartUpdates() map[string]any {
	return map[string]any{"vendor_id": nil, "coupon_code": nil, "discount_cents": 0}
}

func emptyCart() error {
	return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty").
		WithDetails(map[string]any{"redirect": "cart"})
}
