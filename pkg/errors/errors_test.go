package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestMetadataForDomainCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
	}{
		{code: CodeInsufficientStock, status: http.StatusConflict},
		{code: CodeInvalidCoupon, status: http.StatusUnprocessableEntity},
		{code: CodeCouponExpired, status: http.StatusUnprocessableEntity},
		{code: CodeMinimumNotMet, status: http.StatusUnprocessableEntity},
		{code: CodeInvalidTransition, status: http.StatusConflict},
		{code: CodeInvalidOTP, status: http.StatusUnprocessableEntity},
		{code: CodeOTPLocked, status: http.StatusTooManyRequests},
		{code: CodeSignatureInvalid, status: http.StatusBadRequest},
		{code: CodeRefundExceedsBalance, status: http.StatusUnprocessableEntity},
		{code: CodeReturnWindowExpired, status: http.StatusUnprocessableEntity},
		{code: CodeReturnNotEligible, status: http.StatusUnprocessableEntity},
		{code: CodePaymentInFlight, status: http.StatusConflict, retryable: true},
		{code: CodeGatewayAmbiguous, status: http.StatusAccepted, retryable: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
	}
}

func TestIsCodeFollowsWrappedChain(t *testing.T) {
	inner := New(CodeInsufficientStock, "sell unit out of stock")
	outer := fmt.Errorf("reserve line: %w", inner)

	if !IsCode(outer, CodeInsufficientStock) {
		t.Fatalf("expected wrapped code to be detected")
	}
	if IsCode(outer, CodeConflict) {
		t.Fatalf("unexpected code match")
	}
	if IsCode(nil, CodeInternal) {
		t.Fatalf("nil error must not match")
	}
}

func TestDumpCollectsChain(t *testing.T) {
	err := Wrap(CodeDependency, stdErrors.New("timeout"), "gateway fetch")
	dump := Dump(fmt.Errorf("verify: %w", err))

	if dump.Code != CodeDependency {
		t.Fatalf("expected dependency code in dump, got %s", dump.Code)
	}
	if len(dump.Chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %d: %v", len(dump.Chain), dump.Chain)
	}
}

func TestDumpNamesGuardedInvariant(t *testing.T) {
	stock := Wrap(CodeInternal, &pgconn.PgError{
		Code:           "23514",
		TableName:      "inventory_records",
		ConstraintName: "inventory_records_available_qty_check",
		Message:        "new row violates check constraint",
	}, "reserve stock")
	dump := Dump(stock)
	if dump.Hint != "stock would go negative" || dump.PGTable != "inventory_records" {
		t.Fatalf("unexpected dump %+v", dump)
	}
	if !dump.Retryable {
		t.Fatalf("internal errors are retryable")
	}

	dup := Dump(&pq.Error{Code: "23505", Constraint: "idx_payments_gateway_payment"})
	if dup.Hint != "gateway payment id recorded twice" {
		t.Fatalf("unexpected unique hint %q", dup.Hint)
	}

	ledger := Dump(&pgconn.PgError{Code: "P0001", Message: "ledger_events rows are append-only"})
	if ledger.Hint != "ledger rows cannot be changed" {
		t.Fatalf("unexpected trigger hint %q", ledger.Hint)
	}

	if plain := Dump(stdErrors.New("boom")); plain.Hint != "" || plain.PGCode != "" {
		t.Fatalf("plain errors carry no database fields: %+v", plain)
	}
}
