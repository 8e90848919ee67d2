package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/internal/repo"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
)

// Repository reads sell units owned by the catalog service. Orders copy what
// they need at placement and never read the catalog again.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.SellUnit, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.SellUnit, error)
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.SellUnit, error) {
	var unit models.SellUnit
	err := r.DB(ctx).Where("id = ?", id).Take(&unit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sell unit not found").
			WithDetails(map[string]any{"sell_unit_id": id.String()})
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sell unit")
	}
	return &unit, nil
}

// FindByIDs returns every active unit requested. A missing or inactive unit
// is reported as not found with its id.
func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.SellUnit, error) {
	out := make(map[uuid.UUID]models.SellUnit, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var units []models.SellUnit
	if err := r.DB(ctx).Where("id IN ?", ids).Find(&units).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sell units")
	}
	for _, u := range units {
		if u.Active {
			out[u.ID] = u
		}
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sell unit unavailable").
				WithDetails(map[string]any{"sell_unit_id": id.String()})
		}
	}
	return out, nil
}
