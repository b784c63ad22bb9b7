package domain

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Status labels written to the store's status column.
const (
	StatusSent         = "Email Sent"
	StatusFailed       = "Send Failed"
	StatusUnsubscribed = "Unsubscribed"
)

// TimestampLayout is the layout of the last-activity column.
const TimestampLayout = "2006-01-02 15:04:05"

// Contact is one row of the contact list.
type Contact struct {
	Row             int
	Email           string
	FirstName       string
	Status          string
	LastActivity    time.Time
	LastActivityRaw string
	FollowUps       int
}

// NormalizeEmail returns the identity form of an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailDomain returns the lower-cased part after the last '@', or "".
func EmailDomain(email string) string {
	normalized := NormalizeEmail(email)
	at := strings.LastIndex(normalized, "@")
	if at < 0 || at == len(normalized)-1 {
		return ""
	}
	return strings.TrimSpace(normalized[at+1:])
}

// IsUnsubscribedStatus reports whether a status label marks the contact as opted out.
func IsUnsubscribedStatus(status string) bool {
	return strings.Contains(strings.ToLower(strings.TrimSpace(status)), strings.ToLower(StatusUnsubscribed))
}

func (c Contact) Key() string {
	return NormalizeEmail(c.Email)
}

func (c Contact) Unsubscribed() bool {
	return IsUnsubscribedStatus(c.Status)
}

// ValidateAddress checks that the contact carries a deliverable-looking address.
func (c Contact) ValidateAddress() error {
	email := c.Key()
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	if !strings.Contains(email, "@") {
		return fmt.Errorf("%w: email %q has no domain", ErrValidation, email)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: email %q: %v", ErrValidation, email, err)
	}
	return nil
}
