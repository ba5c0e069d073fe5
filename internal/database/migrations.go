package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/tabletally/internal/sharing"
	"github.com/MarcoPoloResearchLab/tabletally/internal/tracker"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationNormalizeSharePermissions = "2026-03-14_normalize_share_permissions"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeSharePermissions, apply: normalizeSharePermissions},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: time.Now().UTC().Unix()}).Error
		})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// normalizeSharePermissions downgrades share edges carrying anything other than view or edit to view,
// tombstoned edges included since re-sharing restores them.
func normalizeSharePermissions(db *gorm.DB) error {
	return db.Unscoped().
		Model(&tracker.Share{}).
		Where("permission NOT IN ?", []string{string(sharing.PermissionView), string(sharing.PermissionEdit)}).
		Update("permission", string(sharing.PermissionView)).Error
}
