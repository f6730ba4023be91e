package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/purgeworks/deletion-engine/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createNotificationsTable(),
		createDeletionTrackingsTable(),
	})

	return m.Migrate()
}

func createNotificationsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_notifications",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.NotificationModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_notifications_recipient_active ON notifications (recipient_id, created_at) WHERE deleted_at IS NULL`,
				`CREATE INDEX IF NOT EXISTS idx_notifications_deleted_at ON notifications (deleted_at) WHERE deleted_at IS NOT NULL`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.NotificationModel{})
		},
	}
}

func createDeletionTrackingsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_deletion_trackings",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DeletionTrackingModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_deletion_trackings_idempotency_key ON deletion_trackings (idempotency_key)`,
				`CREATE INDEX IF NOT EXISTS idx_deletion_trackings_requester ON deletion_trackings (requester_id, created_at)`,
				// Retention sweep scans by age.
				`CREATE INDEX IF NOT EXISTS idx_deletion_trackings_created_at ON deletion_trackings (created_at)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DeletionTrackingModel{})
		},
	}
}
