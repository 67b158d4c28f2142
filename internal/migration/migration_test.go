package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func TestAutoMigrateCreatesLedgerTables(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:migration_test?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	for _, table := range []string{"account_balances", "usage_sessions", "usage_events", "payment_credits", "payment_events"} {
		if !db.Migrator().HasTable(table) {
			t.Fatalf("expected table %s", table)
		}
	}
	if !db.Migrator().HasIndex("usage_sessions", "ux_usage_sessions_user_session") {
		t.Fatalf("expected unique session index")
	}
	if !db.Migrator().HasIndex("payment_credits", "ux_payment_credits_reference") {
		t.Fatalf("expected unique payment reference index")
	}

	if err := db.Exec(`INSERT INTO account_balances (user_id, balance_seconds, created_at, updated_at) VALUES ('u', -1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`).Error; err == nil {
		t.Fatalf("expected negative balance to violate the check constraint")
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	ups, downs := 0, 0
	for _, entry := range entries {
		switch {
		case strings.HasSuffix(entry.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(entry.Name(), ".down.sql"):
			downs++
		}
	}
	if ups == 0 || ups != downs {
		t.Fatalf("expected paired migrations, got %d up and %d down", ups, downs)
	}
}

func TestRunMigrationsRequiresHandle(t *testing.T) {
	if err := RunMigrations(nil); err == nil {
		t.Fatalf("expected error for nil handle")
	}
}
