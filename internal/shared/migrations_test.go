package shared

import (
	"database/sql"
	"testing"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ConfigureDatabase(db, 1, 1)
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()

	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&count)
	if err != nil {
		t.Fatalf("failed to query sqlite_master: %v", err)
	}
	return count == 1
}

func TestRunMigrations(t *testing.T) {
	db := newTestDB(t)

	if err := RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}

	for _, table := range []string{"subscriptions", "provider_connections", "schema_migrations"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s missing after migrations", table)
		}
	}

	// applied versions are skipped on the second run
	if err := RunMigrations(db); err != nil {
		t.Errorf("second RunMigrations() error = %v", err)
	}
}

func TestRollbackMigration(t *testing.T) {
	db := newTestDB(t)

	if err := RollbackMigration(db); err == nil {
		t.Error("RollbackMigration() succeeded with nothing applied")
	}

	if err := RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	if err := RollbackMigration(db); err != nil {
		t.Fatalf("RollbackMigration() error = %v", err)
	}

	if tableExists(t, db, "subscriptions") {
		t.Error("subscriptions table still present after rollback")
	}
}

func TestStripSQLComments(t *testing.T) {
	input := `-- leading comment
CREATE TABLE t ( -- trailing comment
	id TEXT
);`
	got := stripSQLComments(input)
	want := "CREATE TABLE t (\nid TEXT\n);"
	if got != want {
		t.Errorf("stripSQLComments() = %q, want %q", got, want)
	}
}
