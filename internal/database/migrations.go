package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/cordis/internal/profiles"
	"github.com/MarcoPoloResearchLab/cordis/internal/roles"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationNormalizeProfileRoles  = "2025-06-01_normalize_profile_roles"
	migrationNormalizeProfileEmails = "2025-06-08_normalize_profile_emails"
)

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
		{name: migrationNormalizeProfileRoles, apply: normalizeProfileRoles},
		{name: migrationNormalizeProfileEmails, apply: normalizeProfileEmails},
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
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
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

// normalizeProfileRoles rewrites stored roles into the closed set.
func normalizeProfileRoles(db *gorm.DB) error {
	if err := db.Model(&profiles.Profile{}).
		Where("role IS NOT NULL").
		Update("role", gorm.Expr("LOWER(TRIM(role))")).Error; err != nil {
		return err
	}
	known := make([]string, 0, len(roles.All()))
	for _, role := range roles.All() {
		known = append(known, string(role))
	}
	return db.Model(&profiles.Profile{}).
		Where("role IS NULL OR role NOT IN ?", known).
		Update("role", string(roles.Default)).Error
}

func normalizeProfileEmails(db *gorm.DB) error {
	return db.Model(&profiles.Profile{}).
		Where("email <> LOWER(TRIM(email))").
		Update("email", gorm.Expr("LOWER(TRIM(email))")).Error
}
