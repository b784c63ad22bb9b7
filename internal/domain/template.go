package domain

import (
	"fmt"
	"strings"
)

// NamePlaceholder is the token replaced by the contact's first name.
const NamePlaceholder = "{%name%}"

// Template is one message in the follow-up sequence.
type Template struct {
	Sequence int
	Subject  string
	Body     string
}

func (t Template) Validate() error {
	if t.Sequence <= 0 {
		return fmt.Errorf("%w: template sequence must be positive (got %d)", ErrValidation, t.Sequence)
	}
	if strings.TrimSpace(t.Subject) == "" {
		return fmt.Errorf("%w: template %d has no subject", ErrValidation, t.Sequence)
	}
	if strings.TrimSpace(t.Body) == "" {
		return fmt.Errorf("%w: template %d has no body", ErrValidation, t.Sequence)
	}
	return nil
}
