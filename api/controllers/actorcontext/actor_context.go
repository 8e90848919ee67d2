package actorcontext

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow/api/middleware"
	"github.com/angelmondragon/orderflow/internal/orders"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
)

// Resolve builds the order actor for the authenticated caller.
func Resolve(r *http.Request) (orders.Actor, error) {
	ctx := r.Context()
	rawUser := middleware.UserIDFromContext(ctx)
	if rawUser == "" {
		return orders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(rawUser)
	if err != nil {
		return orders.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	role, err := enums.ParseActorRole(middleware.RoleFromContext(ctx))
	if err != nil {
		return orders.Actor{}, pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "unknown role")
	}

	actor := orders.Actor{UserID: userID, Role: role}
	if raw := middleware.VendorIDFromContext(ctx); raw != "" {
		vendorID, err := uuid.Parse(raw)
		if err != nil {
			return orders.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid vendor id")
		}
		actor.VendorID = &vendorID
	}
	return actor, nil
}

// ResolveVendor is Resolve for vendor-only routes.
func ResolveVendor(r *http.Request) (orders.Actor, uuid.UUID, error) {
	actor, err := Resolve(r)
	if err != nil {
		return actor, uuid.Nil, err
	}
	if actor.Role != enums.ActorRoleVendor || actor.VendorID == nil {
		return actor, uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor access required")
	}
	return actor, *actor.VendorID, nil
}

// URLParamUUID parses a required UUID path parameter.
func URLParamUUID(r *http.Request, param, label string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, param))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, label+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+label)
	}
	return id, nil
}
