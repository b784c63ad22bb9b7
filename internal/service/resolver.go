package service

import (
	"fmt"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
)

// TemplateResolver selects the next message of a follow-up sequence.
// It is built once per pass and is safe for concurrent reads.
type TemplateResolver struct {
	bySequence map[int]domain.Template
}

// NewTemplateResolver indexes templates by sequence. Templates that fail
// Validate are ignored; for duplicate sequences the first one wins.
func NewTemplateResolver(templates []domain.Template) *TemplateResolver {
	bySequence := make(map[int]domain.Template, len(templates))
	for _, tpl := range templates {
		if err := tpl.Validate(); err != nil {
			continue
		}
		if _, exists := bySequence[tpl.Sequence]; exists {
			continue
		}
		bySequence[tpl.Sequence] = tpl
	}
	return &TemplateResolver{bySequence: bySequence}
}

// Resolve returns template followUps+1, or ErrTemplateNotFound once the
// sequence is exhausted.
func (r *TemplateResolver) Resolve(followUps int) (domain.Template, error) {
	if followUps < 0 {
		followUps = 0
	}
	if r != nil {
		if tpl, ok := r.bySequence[followUps+1]; ok {
			return tpl, nil
		}
	}
	return domain.Template{}, fmt.Errorf("sequence %d: %w", followUps+1, domain.ErrTemplateNotFound)
}

func (r *TemplateResolver) Len() int {
	if r == nil {
		return 0
	}
	return len(r.bySequence)
}
