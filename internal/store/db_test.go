package store

import "testing"

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	return db
}

func TestOpenMigratesSchema(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	for _, table := range []string{"readings", "hazard_zones", "alerts"} {
		var name string
		err := db.conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("expected table %q to exist: %v", table, err)
		}
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	defer db.Close()
	if err := db.migrate(); err != nil {
		t.Errorf("re-running migrate on an already-migrated db should be a no-op: %v", err)
	}
}
