package domain

import (
	"errors"
	"testing"
)

func TestIsUnsubscribedStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status string
		want   bool
	}{
		{status: "Unsubscribed", want: true},
		{status: "  unsubscribed ", want: true},
		{status: "🚫 UNSUBSCRIBED", want: true},
		{status: StatusSent, want: false},
		{status: "", want: false},
	}

	for _, tt := range tests {
		if got := IsUnsubscribedStatus(tt.status); got != tt.want {
			t.Fatalf("IsUnsubscribedStatus(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestEmailDomain(t *testing.T) {
	t.Parallel()

	if got := EmailDomain(" Mike@Example.COM "); got != "example.com" {
		t.Fatalf("EmailDomain() = %q, want example.com", got)
	}
	if got := EmailDomain("no-at-sign"); got != "" {
		t.Fatalf("EmailDomain() = %q, want empty", got)
	}
	if got := EmailDomain("trailing@"); got != "" {
		t.Fatalf("EmailDomain() = %q, want empty", got)
	}
}

func TestContactValidateAddress(t *testing.T) {
	t.Parallel()

	valid := Contact{Email: " A@X.com "}
	if err := valid.ValidateAddress(); err != nil {
		t.Fatalf("ValidateAddress() unexpected error = %v", err)
	}

	for _, email := range []string{"", "   ", "nobody", "a@@x"} {
		c := Contact{Email: email}
		if err := c.ValidateAddress(); !errors.Is(err, ErrValidation) {
			t.Fatalf("ValidateAddress(%q) error = %v, want ErrValidation", email, err)
		}
	}
}
