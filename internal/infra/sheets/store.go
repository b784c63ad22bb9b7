// Package sheets implements the campaign store on top of a Google
// Sheets spreadsheet: one tab of contacts, one tab of templates.
package sheets

import (
	"context"
	"fmt"
	"sync"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/store"
)

// firstDataRow is the sheet row of the first contact; row 1 is the header.
const firstDataRow = 2

var _ store.Store = (*Store)(nil)

type Store struct {
	client       *Client
	contactsTab  string
	templatesTab string
	maxBatch     int

	mu     sync.Mutex
	schema *store.Schema
}

func NewStore(client *Client, contactsTab, templatesTab string, maxBatch int) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("sheets client is required")
	}
	if contactsTab == "" || templatesTab == "" {
		return nil, fmt.Errorf("contacts and templates tab names are required")
	}
	if maxBatch <= 0 {
		maxBatch = store.DefaultMaxBatchSize
	}

	return &Store{
		client:       client,
		contactsTab:  contactsTab,
		templatesTab: templatesTab,
		maxBatch:     maxBatch,
	}, nil
}

func (s *Store) MaxBatchSize() int {
	return s.maxBatch
}

func (s *Store) ReadAllContacts(ctx context.Context) ([]domain.Contact, error) {
	schema, rows, err := s.readContacts(ctx)
	if err != nil {
		return nil, err
	}

	contacts := make([]domain.Contact, 0, len(rows))
	for i, row := range rows {
		contacts = append(contacts, schema.Contact(firstDataRow+i, row))
	}
	return contacts, nil
}

func (s *Store) ReadAllTemplates(ctx context.Context) ([]domain.Template, error) {
	rows, err := s.client.Get(ctx, QuoteTab(s.templatesTab))
	if err != nil {
		return nil, fmt.Errorf("failed to read templates: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	schema := store.NewSchema(rows[0])
	if err := schema.Require(store.ColumnTemplateNumber, store.ColumnSubject, store.ColumnBody); err != nil {
		return nil, fmt.Errorf("templates tab %q: %w", s.templatesTab, err)
	}

	templates := make([]domain.Template, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if tpl, ok := schema.Template(row); ok {
			templates = append(templates, tpl)
		}
	}
	return templates, nil
}

func (s *Store) ReadColumn(ctx context.Context, field domain.Field) ([]domain.Cell, error) {
	if !field.IsValid() {
		return nil, fmt.Errorf("%w: unknown field %q", domain.ErrValidation, field)
	}
	schema, rows, err := s.readContacts(ctx)
	if err != nil {
		return nil, err
	}

	col, ok := schema.Column(string(field))
	if !ok {
		return nil, fmt.Errorf("contacts tab %q: %w: missing column %q", s.contactsTab, domain.ErrValidation, field)
	}

	cells := make([]domain.Cell, len(rows))
	for i, row := range rows {
		cells[i].Row = firstDataRow + i
		if col < len(row) {
			cells[i].Value = row[col]
		}
	}
	return cells, nil
}

func (s *Store) BatchWrite(ctx context.Context, updates []domain.CellUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	if len(updates) > s.maxBatch {
		return fmt.Errorf("%w: batch of %d updates exceeds limit %d", domain.ErrValidation, len(updates), s.maxBatch)
	}
	// Only contact fields are writable, even if the tab has other columns.
	for _, u := range updates {
		if !u.Field.IsValid() {
			return fmt.Errorf("%w: unknown field %q", domain.ErrValidation, u.Field)
		}
	}

	schema, err := s.header(ctx)
	if err != nil {
		return err
	}

	data := make([]ValueRange, 0, len(updates))
	for _, u := range updates {
		col, ok := schema.Column(string(u.Field))
		if !ok {
			return fmt.Errorf("contacts tab %q: %w: missing column %q", s.contactsTab, domain.ErrValidation, u.Field)
		}
		if u.Row < firstDataRow {
			return fmt.Errorf("%w: row %d is not a data row", domain.ErrValidation, u.Row)
		}
		data = append(data, ValueRange{
			Range:  fmt.Sprintf("%s!%s%d", QuoteTab(s.contactsTab), ColumnLetter(col), u.Row),
			Values: [][]any{{u.Value}},
		})
	}

	return s.client.BatchUpdate(ctx, data)
}

func (s *Store) readContacts(ctx context.Context) (store.Schema, [][]string, error) {
	rows, err := s.client.Get(ctx, QuoteTab(s.contactsTab))
	if err != nil {
		return store.Schema{}, nil, fmt.Errorf("failed to read contacts: %w", err)
	}
	if len(rows) == 0 {
		return store.Schema{}, nil, fmt.Errorf("contacts tab %q: %w: header row missing", s.contactsTab, domain.ErrValidation)
	}

	schema := store.NewSchema(rows[0])
	if err := schema.Require(string(domain.FieldEmail)); err != nil {
		return store.Schema{}, nil, fmt.Errorf("contacts tab %q: %w", s.contactsTab, err)
	}

	s.mu.Lock()
	s.schema = &schema
	s.mu.Unlock()

	return schema, rows[1:], nil
}

func (s *Store) header(ctx context.Context) (store.Schema, error) {
	s.mu.Lock()
	cached := s.schema
	s.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	rows, err := s.client.Get(ctx, QuoteTab(s.contactsTab)+"!1:1")
	if err != nil {
		return store.Schema{}, fmt.Errorf("failed to read contacts header: %w", err)
	}
	if len(rows) == 0 {
		return store.Schema{}, fmt.Errorf("contacts tab %q: %w: header row missing", s.contactsTab, domain.ErrValidation)
	}

	schema := store.NewSchema(rows[0])
	s.mu.Lock()
	s.schema = &schema
	s.mu.Unlock()
	return schema, nil
}
