package repository

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/store"
	"gorm.io/gorm"
)

var _ store.Store = (*GormStore)(nil)

// GormStore keeps contacts and templates in Postgres.
type GormStore struct {
	db       *gorm.DB
	maxBatch int
}

func NewGormStore(db *gorm.DB, maxBatch int) *GormStore {
	if maxBatch <= 0 {
		maxBatch = store.DefaultMaxBatchSize
	}
	return &GormStore{db: db, maxBatch: maxBatch}
}

func (r *GormStore) MaxBatchSize() int {
	return r.maxBatch
}

func (r *GormStore) ReadAllContacts(ctx context.Context) ([]domain.Contact, error) {
	var models []ContactModel
	err := r.db.WithContext(ctx).
		Order("row_number ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read contacts: %w", err)
	}

	contacts := make([]domain.Contact, 0, len(models))
	for i := range models {
		contacts = append(contacts, contactModelToDomain(&models[i]))
	}
	return contacts, nil
}

func (r *GormStore) ReadAllTemplates(ctx context.Context) ([]domain.Template, error) {
	var models []TemplateModel
	err := r.db.WithContext(ctx).
		Order("sequence ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read templates: %w", err)
	}

	templates := make([]domain.Template, 0, len(models))
	for i := range models {
		templates = append(templates, templateModelToDomain(&models[i]))
	}
	return templates, nil
}

func (r *GormStore) ReadColumn(ctx context.Context, field domain.Field) ([]domain.Cell, error) {
	column, ok := fieldColumns[field]
	if !ok {
		return nil, fmt.Errorf("%w: unknown field %q", domain.ErrValidation, field)
	}

	var models []ContactModel
	err := r.db.WithContext(ctx).
		Select("row_number", column).
		Order("row_number ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read column %s: %w", column, err)
	}

	cells := make([]domain.Cell, 0, len(models))
	for i := range models {
		cells = append(cells, domain.Cell{
			Row:   models[i].RowNumber,
			Value: contactFieldValue(&models[i], field),
		})
	}
	return cells, nil
}

// BatchWrite applies all updates in a single transaction.
func (r *GormStore) BatchWrite(ctx context.Context, updates []domain.CellUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	if len(updates) > r.maxBatch {
		return fmt.Errorf("%w: batch of %d updates exceeds limit %d", domain.ErrValidation, len(updates), r.maxBatch)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			column, ok := fieldColumns[u.Field]
			if !ok {
				return fmt.Errorf("%w: unknown field %q", domain.ErrValidation, u.Field)
			}

			var value any = u.Value
			if u.Field == domain.FieldFollowUps {
				value = store.ParseCount(u.Value)
			}

			result := tx.Model(&ContactModel{}).
				Where("row_number = ?", u.Row).
				Update(column, value)
			if result.Error != nil {
				return fmt.Errorf("failed to update row %d %s: %w", u.Row, column, result.Error)
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("row %d: %w", u.Row, domain.ErrNotFound)
			}
		}
		return nil
	})
}
