package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/foodshare/internal/accounts"
	"github.com/MarcoPoloResearchLab/foodshare/internal/ledger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillNeedResponders = "2026-10-01_backfill_need_responders"
	migrationLowercaseEmails        = "2026-10-08_lowercase_credential_emails"
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
		{name: migrationBackfillNeedResponders, apply: backfillNeedResponders},
		{name: migrationLowercaseEmails, apply: lowercaseCredentialEmails},
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

// backfillNeedResponders gives needs written before responders were tracked an empty set.
func backfillNeedResponders(db *gorm.DB) error {
	return db.Model(&ledger.Need{}).
		Where("responding_actor_ids IS NULL OR responding_actor_ids = ''").
		UpdateColumn("responding_actor_ids", "[]").Error
}

func lowercaseCredentialEmails(db *gorm.DB) error {
	return db.Model(&accounts.Credential{}).
		Where("email <> LOWER(email)").
		UpdateColumn("email", gorm.Expr("LOWER(email)")).Error
}
