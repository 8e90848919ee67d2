package address

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow/pkg/db/dbtest"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
)

func TestSnapshotCopiesOwnedAddress(t *testing.T) {
	conn := dbtest.Open(t)
	svc, err := NewService(conn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	owner := uuid.New()
	addr := models.Address{
		ID:         uuid.New(),
		UserID:     owner,
		Name:       "Asha",
		Phone:      "+919800000000",
		Line1:      "12 MG Road",
		City:       "Pune",
		State:      "MH",
		PostalCode: "411001",
		Country:    "IN",
	}
	if err := conn.Create(&addr).Error; err != nil {
		t.Fatalf("seed address: %v", err)
	}

	got, err := svc.Snapshot(context.Background(), nil, owner, addr.ID)
	if err != nil {
		t.Fatalf("Snapshot error: %v", err)
	}
	if got.Line1 != addr.Line1 || got.PostalCode != addr.PostalCode {
		t.Fatalf("unexpected snapshot: %+v", got)
	}

	_, err = svc.Snapshot(context.Background(), nil, uuid.New(), addr.ID)
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for other user, got %v", err)
	}
}

func TestSnapshotRejectsIncompleteAddress(t *testing.T) {
	conn := dbtest.Open(t)
	svc, _ := NewService(conn)

	owner := uuid.New()
	addr := models.Address{ID: uuid.New(), UserID: owner, Name: "x", Phone: "1", Line1: "", City: "c", State: "s", PostalCode: "p", Country: "IN"}
	if err := conn.Create(&addr).Error; err != nil {
		t.Fatalf("seed address: %v", err)
	}
	if _, err := svc.Snapshot(context.Background(), nil, owner, addr.ID); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
