package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ProviderError classifies transport and archive failures as transient or
// permanent. Code is the SMTP reply code or HTTP status when one is known.
type ProviderError struct {
	Code      int
	Message   string
	Transient bool
	Cause     error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var b strings.Builder
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "delivery failed"
	}
	b.WriteString(msg)
	if e.Code > 0 {
		fmt.Fprintf(&b, " (code %d)", e.Code)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransient reports whether the failure is expected to clear on a later pass.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout() || netErr.Temporary()
	}

	return false
}
