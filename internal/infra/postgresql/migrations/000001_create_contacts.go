package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/outreach-engine/internal/repository"
	"gorm.io/gorm"
)

func createContactsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_contacts",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ContactModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_contacts_lower_email ON contacts (lower(email))`,
				`CREATE INDEX IF NOT EXISTS idx_contacts_status ON contacts (status)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ContactModel{})
		},
	}
}
