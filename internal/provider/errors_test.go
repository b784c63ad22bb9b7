package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsTransient(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "transient provider error", err: &ProviderError{Code: 421, Transient: true}, want: true},
		{name: "permanent provider error", err: &ProviderError{Code: 550}, want: false},
		{name: "wrapped provider error", err: fmt.Errorf("send: %w", &ProviderError{Transient: true}), want: true},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := IsTransient(tc.err); got != tc.want {
				t.Fatalf("IsTransient() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestProviderErrorMessage(t *testing.T) {
	t.Parallel()

	cause := errors.New("mailbox full")
	err := &ProviderError{Code: 452, Message: "smtp rcpt to rejected", Transient: true, Cause: cause}

	want := "smtp rcpt to rejected (code 452): mailbox full"
	if got := err.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	if got := (&ProviderError{}).Error(); got != "delivery failed" {
		t.Fatalf("empty Error() = %q, want delivery failed", got)
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected ProviderError to unwrap to its cause")
	}
}
