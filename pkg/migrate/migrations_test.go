package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/orderflow/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one %s migration, found %d", suffix, len(matches))
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestMigrationsContainConstraints(t *testing.T) {
	cases := map[string][]string{
		"create_inventory": {
			"CREATE TABLE IF NOT EXISTS inventory_records",
			"CHECK (available_qty >= 0)",
			"CHECK (reserved_qty >= 0)",
			"DROP TABLE IF EXISTS inventory_reservations",
		},
		"create_orders": {
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_order_number",
			"CHECK (total_cents = subtotal_cents + delivery_fee_cents + tax_cents - discount_cents)",
			"CHECK (discount_cents >= 0 AND discount_cents <= subtotal_cents)",
			"'out_for_delivery'",
			"DROP TABLE IF EXISTS orders",
		},
		"create_payments": {
			"duplicate_of uuid",
			"verification_attempts integer NOT NULL DEFAULT 0",
			"CHECK (refunded_cents >= 0 AND refunded_cents <= amount_cents)",
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_gateway_payment",
		},
		"create_return_requests": {
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_return_requests_open_item",
			"WHERE status IN ('requested', 'approved')",
		},
		"create_ledger_events": {
			"BEFORE UPDATE OR DELETE ON ledger_events",
			"DROP TABLE IF EXISTS ledger_events",
		},
		"create_outbox": {
			"CREATE TABLE IF NOT EXISTS outbox_events",
			"CREATE TABLE IF NOT EXISTS outbox_dlq",
			"WHERE published_at IS NULL",
		},
	}
	for suffix, checks := range cases {
		content := readMigration(t, suffix)
		for _, sub := range checks {
			if !strings.Contains(content, sub) {
				t.Errorf("%s: missing expected statement %q", suffix, sub)
			}
		}
	}
}
