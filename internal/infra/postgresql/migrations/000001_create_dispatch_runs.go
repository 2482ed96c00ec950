package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/journey-dispatch/internal/repository"
	"gorm.io/gorm"
)

func createDispatchRunsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_dispatch_runs",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DispatchRunModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_dispatch_runs_started_at ON dispatch_runs (started_at)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DispatchRunModel{})
		},
	}
}
