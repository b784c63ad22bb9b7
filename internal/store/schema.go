package store

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
)

// Template sheet columns.
const (
	ColumnTemplateNumber = "template_number"
	ColumnSubject        = "subject"
	ColumnBody           = "body"
)

var headerAliases = map[string]string{
	"e_mail":              string(domain.FieldEmail),
	"email_address":       string(domain.FieldEmail),
	"firstname":           string(domain.FieldFirstName),
	"name":                string(domain.FieldFirstName),
	"followups":           string(domain.FieldFollowUps),
	"follow_up_count":     string(domain.FieldFollowUps),
	"last_followup":       string(domain.FieldLastActivity),
	"last_follow_up_date": string(domain.FieldLastActivity),
	"template":            ColumnTemplateNumber,
	"template_no":         ColumnTemplateNumber,
	"sequence":            ColumnTemplateNumber,
}

var timestampLayouts = []string{
	domain.TimestampLayout,
	"2006-01-02 15:04",
	"2006-01-02",
	time.RFC3339,
}

// NormalizeHeader maps a raw column header to its canonical key.
func NormalizeHeader(header string) string {
	key := strings.ToLower(strings.TrimSpace(header))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if alias, ok := headerAliases[key]; ok {
		return alias
	}
	return key
}

// Schema is the normalized header of a table. Column positions are
// resolved once, so row decoding never compares header strings.
type Schema struct {
	index map[string]int
}

func NewSchema(headers []string) Schema {
	index := make(map[string]int, len(headers))
	for i, header := range headers {
		key := NormalizeHeader(header)
		if key == "" {
			continue
		}
		if _, exists := index[key]; !exists {
			index[key] = i
		}
	}
	return Schema{index: index}
}

// Column returns the zero-based position of a canonical column.
func (s Schema) Column(key string) (int, bool) {
	i, ok := s.index[key]
	return i, ok
}

func (s Schema) Require(keys ...string) error {
	for _, key := range keys {
		if _, ok := s.index[key]; !ok {
			return fmt.Errorf("%w: missing column %q", domain.ErrValidation, key)
		}
	}
	return nil
}

func (s Schema) value(row []string, key string) string {
	i, ok := s.index[key]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Contact decodes one data row. rowRef is the store's row reference.
func (s Schema) Contact(rowRef int, row []string) domain.Contact {
	raw := s.value(row, string(domain.FieldLastActivity))
	ts, _ := ParseTimestamp(raw)
	return domain.Contact{
		Row:             rowRef,
		Email:           domain.NormalizeEmail(s.value(row, string(domain.FieldEmail))),
		FirstName:       s.value(row, string(domain.FieldFirstName)),
		Status:          s.value(row, string(domain.FieldStatus)),
		LastActivity:    ts,
		LastActivityRaw: raw,
		FollowUps:       ParseCount(s.value(row, string(domain.FieldFollowUps))),
	}
}

// Template decodes one template row. ok is false for rows without a
// positive template number.
func (s Schema) Template(row []string) (domain.Template, bool) {
	seq := ParseCount(s.value(row, ColumnTemplateNumber))
	if seq <= 0 {
		return domain.Template{}, false
	}
	return domain.Template{
		Sequence: seq,
		Subject:  s.value(row, ColumnSubject),
		Body:     s.value(row, ColumnBody),
	}, true
}

// MaxCount caps parsed counters. It is far past any template sequence, so
// a corrupt huge counter reads as an exhausted contact rather than wrapping.
const MaxCount = math.MaxInt32

// ParseCount parses counters written as "2", "2.0" or left blank.
// Anything unparseable or negative reads as 0; values above MaxCount, or
// infinite, read as MaxCount.
func ParseCount(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if n, err := strconv.Atoi(raw); err == nil {
		switch {
		case n < 0:
			return 0
		case n > MaxCount:
			return MaxCount
		}
		return n
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0
	}
	switch {
	case math.IsNaN(f), f < 0:
		return 0
	case f >= MaxCount:
		return MaxCount
	}
	return int(f)
}

// ParseTimestamp accepts the layouts the store is known to hold.
func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func FormatCount(n int) string {
	if n < 0 {
		n = 0
	}
	return strconv.Itoa(n)
}
