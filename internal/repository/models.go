package repository

import (
	"time"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/store"
)

// ContactModel is the persistence model for the contacts table.
// RowNumber preserves import order and is the row reference handed to
// the campaign engine.
type ContactModel struct {
	ID               uint   `gorm:"primaryKey"`
	RowNumber        int    `gorm:"not null;uniqueIndex"`
	Email            string `gorm:"type:varchar(320);not null"`
	FirstName        string `gorm:"type:varchar(255);not null;default:''"`
	Status           string `gorm:"type:varchar(64);not null;default:''"`
	LastFollowupDate string `gorm:"type:varchar(32);not null;default:''"`
	FollowupCount    int    `gorm:"not null;default:0"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (ContactModel) TableName() string {
	return "contacts"
}

// TemplateModel is the persistence model for the templates table.
type TemplateModel struct {
	ID        uint   `gorm:"primaryKey"`
	Sequence  int    `gorm:"not null;uniqueIndex"`
	Subject   string `gorm:"type:text;not null"`
	Body      string `gorm:"type:text;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (TemplateModel) TableName() string {
	return "templates"
}

// fieldColumns maps engine fields onto contacts columns.
var fieldColumns = map[domain.Field]string{
	domain.FieldEmail:        "email",
	domain.FieldFirstName:    "first_name",
	domain.FieldStatus:       "status",
	domain.FieldLastActivity: "last_followup_date",
	domain.FieldFollowUps:    "followup_count",
}

func contactModelToDomain(m *ContactModel) domain.Contact {
	ts, _ := store.ParseTimestamp(m.LastFollowupDate)
	return domain.Contact{
		Row:             m.RowNumber,
		Email:           domain.NormalizeEmail(m.Email),
		FirstName:       m.FirstName,
		Status:          m.Status,
		LastActivity:    ts,
		LastActivityRaw: m.LastFollowupDate,
		FollowUps:       m.FollowupCount,
	}
}

func contactFieldValue(m *ContactModel, field domain.Field) string {
	switch field {
	case domain.FieldEmail:
		return m.Email
	case domain.FieldFirstName:
		return m.FirstName
	case domain.FieldStatus:
		return m.Status
	case domain.FieldLastActivity:
		return m.LastFollowupDate
	case domain.FieldFollowUps:
		return store.FormatCount(m.FollowupCount)
	}
	return ""
}

func templateModelToDomain(m *TemplateModel) domain.Template {
	return domain.Template{
		Sequence: m.Sequence,
		Subject:  m.Subject,
		Body:     m.Body,
	}
}
