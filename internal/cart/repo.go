package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/orderflow/pkg/db/models"
)

// Repository persists the buyer's server-owned cart.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// FindByBuyer returns the cart with items, or nil when the buyer has none.
	FindByBuyer(ctx context.Context, buyerID uuid.UUID) (*models.Cart, error)
	// Ensure returns the buyer's cart, creating an empty one on first use.
	Ensure(ctx context.Context, buyerID uuid.UUID) (*models.Cart, error)
	Update(ctx context.Context, cartID uuid.UUID, updates map[string]any) error
	UpsertItem(ctx context.Context, cartID, sellUnitID uuid.UUID, quantity int) error
	DeleteItem(ctx context.Context, cartID, sellUnitID uuid.UUID) error
	DeleteItems(ctx context.Context, cartID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByBuyer(ctx context.Context, buyerID uuid.UUID) (*models.Cart, error) {
	var c models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("buyer_id = ?", buyerID).
		Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repository) Ensure(ctx context.Context, buyerID uuid.UUID) (*models.Cart, error) {
	seed := models.Cart{BuyerID: buyerID}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "buyer_id"}}, DoNothing: true}).
		Create(&seed).Error; err != nil {
		return nil, err
	}
	c, err := r.FindByBuyer(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return c, nil
}

func (r *repository) Update(ctx context.Context, cartID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.Cart{}).Where("id = ?", cartID).Updates(updates).Error
}

func (r *repository) UpsertItem(ctx context.Context, cartID, sellUnitID uuid.UUID, quantity int) error {
	res := r.db.WithContext(ctx).Model(&models.CartItem{}).
		Where("cart_id = ? AND sell_unit_id = ?", cartID, sellUnitID).
		Update("quantity", quantity)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&models.CartItem{CartID: cartID, SellUnitID: sellUnitID, Quantity: quantity}).Error
}

func (r *repository) DeleteItem(ctx context.Context, cartID, sellUnitID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ? AND sell_unit_id = ?", cartID, sellUnitID).
		Delete(&models.CartItem{}).Error
}

func (r *repository) DeleteItems(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&models.CartItem{}).Error
}
