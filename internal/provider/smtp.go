package provider

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/kursadbilgin/outreach-engine/internal/render"
)

const defaultSMTPTimeout = 30 * time.Second

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration
}

var _ Sender = (*SMTPSender)(nil)

// SMTPSender opens one connection per message: dial, STARTTLS when the
// server offers it, AUTH PLAIN when credentials are set, then MAIL/RCPT/DATA.
type SMTPSender struct {
	cfg    SMTPConfig
	dialer *net.Dialer
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}

	return &SMTPSender{
		cfg:    cfg,
		dialer: &net.Dialer{Timeout: cfg.Timeout},
	}, nil
}

func (s *SMTPSender) Name() string {
	return "smtp"
}

func (s *SMTPSender) Send(ctx context.Context, msg *render.Message) error {
	if msg == nil {
		return &ProviderError{Message: "message is required"}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	conn, err := s.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &ProviderError{
			Message:   fmt.Sprintf("smtp connect to %s failed", addr),
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return classifySMTP("greeting", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			return classifySMTP("starttls", err)
		}
	}

	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return classifySMTP("auth", err)
		}
	}

	if err := client.Mail(msg.From); err != nil {
		return classifySMTP("mail from", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return classifySMTP("rcpt to", err)
	}

	w, err := client.Data()
	if err != nil {
		return classifySMTP("data", err)
	}
	if _, err := w.Write(msg.Raw); err != nil {
		return classifySMTP("data write", err)
	}
	if err := w.Close(); err != nil {
		return classifySMTP("data close", err)
	}

	_ = client.Quit()
	return nil
}

// classifySMTP maps 4xx replies and network errors to transient failures
// and 5xx replies to permanent ones.
func classifySMTP(stage string, err error) error {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return &ProviderError{
			Code:      protoErr.Code,
			Message:   fmt.Sprintf("smtp %s rejected", stage),
			Transient: protoErr.Code >= 400 && protoErr.Code < 500,
			Cause:     err,
		}
	}

	var netErr net.Error
	return &ProviderError{
		Message:   fmt.Sprintf("smtp %s failed", stage),
		Transient: errors.As(err, &netErr),
		Cause:     err,
	}
}
