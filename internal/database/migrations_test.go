package database

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/tabletally/internal/tracker"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestOpenMigratesAndNormalizesSharePermissions(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "tabletally.db")
	core, logs := observer.New(zap.InfoLevel)

	database, err := Open(DriverSQLite, databasePath, zap.New(core))
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	if logs.FilterMessage("database migration applied").Len() != 1 {
		testContext.Fatalf("expected the permission migration to be applied on first open")
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationNormalizeSharePermissions).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}

	share := tracker.Share{Kind: "game", OwnerID: "bob", SharedWithID: "alice", EntityID: 1, Permission: "owner"}
	if err := database.Create(&share).Error; err != nil {
		testContext.Fatalf("failed to insert share: %v", err)
	}
	if err := database.Where("name = ?", migrationNormalizeSharePermissions).Delete(&migrationRecord{}).Error; err != nil {
		testContext.Fatalf("failed to reset migration ledger: %v", err)
	}

	if err := Migrate(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to re-run migrations: %v", err)
	}

	var stored tracker.Share
	if err := database.Take(&stored, share.ID).Error; err != nil {
		testContext.Fatalf("failed to reload share: %v", err)
	}
	if stored.Permission != "view" {
		testContext.Fatalf("expected unknown permission to be downgraded to view, got %q", stored.Permission)
	}
}

func TestOpenRejectsUnknownDriver(testContext *testing.T) {
	if _, err := Open("oracle", "dsn", nil); !errors.Is(err, ErrUnsupportedDriver) {
		testContext.Fatalf("expected unsupported driver error, got %v", err)
	}
	if _, err := Open(DriverSQLite, "  ", nil); !errors.Is(err, ErrMissingDSN) {
		testContext.Fatalf("expected missing dsn error, got %v", err)
	}
}
