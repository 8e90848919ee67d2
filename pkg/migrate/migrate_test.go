package migrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"
)

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Refund Index!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(filepath.Base(path), "_add_refund_index.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "-- +goose Up") || !strings.Contains(string(data), "-- +goose Down") {
		t.Fatalf("missing goose markers:\n%s", data)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "orders.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ValidateDir(dir); err == nil {
		t.Fatalf("expected invalid filename error")
	}
}

func TestSourceUsesEmbeddedSetForDefaultDir(t *testing.T) {
	fsys, err := Source(DefaultDir)
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		t.Fatalf("read embedded: %v", err)
	}
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(entries) == 0 || len(entries) != len(onDisk) {
		t.Fatalf("embedded %d migrations, on disk %d", len(entries), len(onDisk))
	}
}

func TestSourceRejectsMissingDir(t *testing.T) {
	if _, err := Source(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatalf("expected missing dir error")
	}
}

func TestCreateSQLMigrationRefusesOutOfOrderVersion(t *testing.T) {
	dir := t.TempDir()
	later := "20990101000000_future_change.sql"
	if err := os.WriteFile(filepath.Join(dir, later), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := CreateSQLMigration(dir, "add refunds index"); err == nil {
		t.Fatalf("expected version ordering error")
	}
}

func TestCreateSQLMigrationUsesClock(t *testing.T) {
	dir := t.TempDir()
	now = func() time.Time { return time.Date(2026, 7, 1, 8, 30, 0, 0, time.UTC) }
	t.Cleanup(func() { now = time.Now })

	path, err := CreateSQLMigration(dir, "  ")
	if err == nil {
		t.Fatalf("expected blank name to be rejected, got %s", path)
	}
	path, err = CreateSQLMigration(dir, "backfill ledger refs")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if filepath.Base(path) != "20260701083000_backfill_ledger_refs.sql" {
		t.Fatalf("unexpected file %s", path)
	}
	if _, err := CreateSQLMigration(dir, "backfill ledger refs"); err == nil {
		t.Fatalf("expected same-second version to be refused")
	}
}

func TestValidateChecksStatementBlocks(t *testing.T) {
	cases := map[string]string{
		"down_first":   "-- +goose Down\nDROP TABLE x;\n-- +goose Up\nCREATE TABLE x();\n",
		"unterminated": "-- +goose Up\n-- +goose StatementBegin\nCREATE FUNCTION f() ...;\n-- +goose Down\nDROP FUNCTION f;\n",
		"stray_end":    "-- +goose Up\n-- +goose StatementEnd\n-- +goose Down\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			fsys := fstest.MapFS{"20260101000000_" + name + ".sql": {Data: []byte(body)}}
			if _, err := Validate(fsys); err == nil {
				t.Fatalf("expected %s to be rejected", name)
			}
		})
	}

	versions, err := Validate(fstest.MapFS{
		"20260102000000_b.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		"20260101000000_a.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		"README.md":            {Data: []byte("notes")},
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(versions) != 2 || versions[0] != "20260101000000" {
		t.Fatalf("unexpected versions %v", versions)
	}
}
