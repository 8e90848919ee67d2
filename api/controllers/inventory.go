package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/api/controllers/actorcontext"
	"github.com/angelmondragon/orderflow/api/responses"
	"github.com/angelmondragon/orderflow/api/validators"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/logger"
)

type StockAdjuster interface {
	Adjust(ctx context.Context, tx *gorm.DB, sellUnitID uuid.UUID, delta int) (*models.InventoryRecord, error)
}

type SellUnitFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.SellUnit, error)
}

type adjustStockRequest struct {
	Delta int `json:"delta" validate:"required,ne=0"`
}

// AdjustStock lets a vendor correct available stock for one of its sell units.
// Reserved quantity is never touched here.
func AdjustStock(stock StockAdjuster, catalog SellUnitFinder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if stock == nil || catalog == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		_, vendorID, err := actorcontext.ResolveVendor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		unitID, err := actorcontext.URLParamUUID(r, "sellUnitId", "sell unit id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req adjustStockRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		unit, err := catalog.FindByID(r.Context(), unitID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if unit.VendorID != vendorID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "sell unit not found"))
			return
		}

		record, err := stock.Adjust(r.Context(), nil, unitID, req.Delta)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}
