package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump is the flattened, log-friendly view of an error chain.
type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`
	Retryable  bool   `json:"retryable"`

	Chain []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`

	// Hint names the business rule a database guard enforced, for on-call.
	Hint string `json:"hint,omitempty"`
}

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
	pgRaiseException  = "P0001"
)

// tableHints map check violations to the invariant the table guards. These
// fire only when application checks were bypassed or raced.
var tableHints = map[string]string{
	"inventory_records": "stock would go negative",
	"payments":          "refunds would exceed the captured amount",
	"orders":            "order totals are inconsistent",
	"order_items":       "line total does not match quantity x price",
	"coupons":           "coupon redemption or validity rule broken",
}

var constraintHints = map[string]string{
	"idx_orders_order_number":       "order number collision",
	"idx_payments_gateway_payment":  "gateway payment id recorded twice",
	"idx_return_requests_open_item": "item already has an open return",
	"idx_ledger_events_reference":   "ledger event already recorded",
	"idx_outbox_dlq_event":          "outbox event already dead-lettered",
	"idx_cart_items_cart_sell_unit": "cart already holds this sell unit",
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
		d.Retryable = MetadataFor(te.Code()).Retryable
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgxErr):
		d.PGCode = pgxErr.Code
		d.PGConstraint = pgxErr.ConstraintName
		d.PGTable = pgxErr.TableName
		d.PGColumn = pgxErr.ColumnName
		d.PGDetail = pgxErr.Detail
		d.PGMessage = pgxErr.Message
	case errors.As(err, &pqErr):
		d.PGCode = string(pqErr.Code)
		d.PGConstraint = pqErr.Constraint
		d.PGTable = pqErr.Table
		d.PGColumn = pqErr.Column
		d.PGDetail = pqErr.Detail
		d.PGMessage = pqErr.Message
	}
	d.Hint = hintFor(d)
	return d
}

func hintFor(d ErrorDump) string {
	switch d.PGCode {
	case pgUniqueViolation:
		return constraintHints[d.PGConstraint]
	case pgCheckViolation:
		return tableHints[d.PGTable]
	case pgRaiseException:
		if strings.Contains(d.PGMessage, "append-only") {
			return "ledger rows cannot be changed"
		}
	}
	return ""
}
