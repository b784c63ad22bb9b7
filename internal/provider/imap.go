package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/kursadbilgin/outreach-engine/internal/render"
)

const (
	DefaultIMAPMailbox = "INBOX.Sent"
	defaultIMAPTimeout = 30 * time.Second
)

type IMAPConfig struct {
	Addr     string
	Username string
	Password string
	Mailbox  string
	// Plaintext disables implicit TLS. Only meant for local servers.
	Plaintext bool
	Timeout   time.Duration
}

var _ Archiver = (*IMAPArchiver)(nil)

// IMAPArchiver appends each sent message to a mailbox, marked as seen.
type IMAPArchiver struct {
	cfg IMAPConfig
}

func NewIMAPArchiver(cfg IMAPConfig) (*IMAPArchiver, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("imap address is required")
	}
	if cfg.Mailbox == "" {
		cfg.Mailbox = DefaultIMAPMailbox
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultIMAPTimeout
	}
	return &IMAPArchiver{cfg: cfg}, nil
}

func (a *IMAPArchiver) Name() string {
	return "imap"
}

func (a *IMAPArchiver) Archive(ctx context.Context, msg *render.Message) error {
	if msg == nil {
		return &ProviderError{Message: "message is required"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c, err := a.dial()
	if err != nil {
		return &ProviderError{Message: "imap connect failed", Transient: true, Cause: err}
	}
	defer func() { _ = c.Logout() }()
	c.Timeout = a.cfg.Timeout

	if err := c.Login(a.cfg.Username, a.cfg.Password); err != nil {
		return &ProviderError{Message: "imap login failed", Cause: err}
	}

	date := msg.Date
	if date.IsZero() {
		date = time.Now()
	}
	if err := c.Append(a.cfg.Mailbox, []string{imap.SeenFlag}, date, bytes.NewBuffer(msg.Raw)); err != nil {
		return &ProviderError{
			Message:   fmt.Sprintf("imap append to %s failed", a.cfg.Mailbox),
			Transient: true,
			Cause:     err,
		}
	}
	return nil
}

func (a *IMAPArchiver) dial() (*client.Client, error) {
	dialer := &net.Dialer{Timeout: a.cfg.Timeout}
	if a.cfg.Plaintext {
		return client.DialWithDialer(dialer, a.cfg.Addr)
	}

	host, _, err := net.SplitHostPort(a.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("invalid imap address %q: %w", a.cfg.Addr, err)
	}
	return client.DialWithDialerTLS(dialer, a.cfg.Addr, &tls.Config{ServerName: host})
}
