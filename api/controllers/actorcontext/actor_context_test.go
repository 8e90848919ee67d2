package actorcontext

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow/api/middleware"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
)

func TestResolveVendorActor(t *testing.T) {
	userID := uuid.New()
	vendorID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(middleware.WithIdentity(req.Context(), userID.String(), string(enums.ActorRoleVendor), vendorID.String()))

	actor, gotVendor, err := ResolveVendor(req)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if actor.UserID != userID || actor.Role != enums.ActorRoleVendor || gotVendor != vendorID {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestResolveRejectsMissingOrBadIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := Resolve(req); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	req = req.WithContext(middleware.WithIdentity(req.Context(), uuid.NewString(), "wizard", ""))
	if _, err := Resolve(req); !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden for unknown role, got %v", err)
	}
}

func TestResolveVendorRequiresVendorRole(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(middleware.WithIdentity(req.Context(), uuid.NewString(), string(enums.ActorRoleBuyer), ""))
	if _, _, err := ResolveVendor(req); !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestURLParamUUID(t *testing.T) {
	rctx := chi.NewRouteContext()
	id := uuid.New()
	rctx.URLParams.Add("orderId", id.String())
	rctx.URLParams.Add("bad", "nope")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	got, err := URLParamUUID(req, "orderId", "order id")
	if err != nil || got != id {
		t.Fatalf("expected %s, got %s (%v)", id, got, err)
	}
	if _, err := URLParamUUID(req, "bad", "order id"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := URLParamUUID(req, "missing", "item id"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for missing param, got %v", err)
	}
}
