package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/outreach-engine/internal/repository"
	"gorm.io/gorm"
)

func createTemplatesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_templates",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.TemplateModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.TemplateModel{})
		},
	}
}
