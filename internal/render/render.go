// Package render turns a contact and a template into a ready-to-send MIME
// message.
package render

import (
	"bytes"
	"fmt"
	"html"
	"mime"
	"mime/quotedprintable"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/osteele/liquid"
)

const (
	DefaultFirstName = "there"
	DefaultCTALabel  = "Book Your Visitor Ticket"
)

var namePlaceholder = regexp.MustCompile(`(?i)\{%\s*name\s*%\}`)

// Personalize replaces every {%name%} placeholder in body.
func Personalize(body string, firstName string) string {
	name := strings.TrimSpace(firstName)
	if name == "" {
		name = DefaultFirstName
	}
	return namePlaceholder.ReplaceAllLiteralString(body, html.EscapeString(name))
}

type Config struct {
	FromEmail          string
	FromName           string
	TrackingBaseURL    string
	UnsubscribeBaseURL string
	EventURL           string
	CTALabel           string
	SignatureHTML      string
}

// Message is a rendered email. Raw holds the full RFC 5322 bytes handed to
// the transport and the archiver.
type Message struct {
	MessageID string
	From      string
	To        string
	Subject   string
	HTML      string
	Date      time.Time
	Raw       []byte
}

type Renderer struct {
	cfg    Config
	from   mail.Address
	layout *liquid.Template
	now    func() time.Time
	newID  func() string
}

func NewRenderer(cfg Config) (*Renderer, error) {
	return newRenderer(cfg, time.Now, func() string { return uuid.NewString() })
}

func newRenderer(cfg Config, nowFn func() time.Time, idFn func() string) (*Renderer, error) {
	from, err := mail.ParseAddress(strings.TrimSpace(cfg.FromEmail))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid sender address %q", domain.ErrValidation, cfg.FromEmail)
	}
	from.Name = strings.TrimSpace(cfg.FromName)

	if strings.TrimSpace(cfg.CTALabel) == "" {
		cfg.CTALabel = DefaultCTALabel
	}
	cfg.TrackingBaseURL = strings.TrimRight(strings.TrimSpace(cfg.TrackingBaseURL), "/")
	cfg.UnsubscribeBaseURL = strings.TrimRight(strings.TrimSpace(cfg.UnsubscribeBaseURL), "/")
	cfg.EventURL = strings.TrimSpace(cfg.EventURL)

	layout, parseErr := liquid.NewEngine().ParseString(layoutSource)
	if parseErr != nil {
		return nil, fmt.Errorf("failed to parse message layout: %w", parseErr)
	}

	return &Renderer{
		cfg:    cfg,
		from:   *from,
		layout: layout,
		now:    nowFn,
		newID:  idFn,
	}, nil
}

// Render builds the message for contact using tpl. The recipient address
// must already be valid.
func (r *Renderer) Render(contact domain.Contact, tpl domain.Template) (*Message, error) {
	to := domain.NormalizeEmail(contact.Email)
	if to == "" {
		return nil, fmt.Errorf("%w: empty recipient", domain.ErrValidation)
	}

	firstName := strings.TrimSpace(contact.FirstName)
	if firstName == "" {
		firstName = DefaultFirstName
	}

	bindings := map[string]any{
		"first_name": html.EscapeString(firstName),
		"body":       Personalize(tpl.Body, firstName),
		"cta_label":  r.cfg.CTALabel,
	}
	if link := r.ctaURL(to, tpl.Subject); link != "" {
		bindings["cta_url"] = link
	}
	if r.cfg.SignatureHTML != "" {
		bindings["signature"] = r.cfg.SignatureHTML
	}
	if link := r.unsubscribeURL(to); link != "" {
		bindings["unsubscribe_url"] = link
	}
	if link := r.pixelURL(to, tpl.Subject); link != "" {
		bindings["pixel_url"] = link
	}

	body, layoutErr := r.layout.RenderString(bindings)
	if layoutErr != nil {
		return nil, fmt.Errorf("failed to render message layout: %w", layoutErr)
	}

	msg := &Message{
		MessageID: fmt.Sprintf("<%s@%s>", r.newID(), domain.EmailDomain(r.from.Address)),
		From:      r.from.Address,
		To:        to,
		Subject:   tpl.Subject,
		HTML:      body,
		Date:      r.now(),
	}

	raw, err := r.assemble(msg)
	if err != nil {
		return nil, err
	}
	msg.Raw = raw
	return msg, nil
}

func (r *Renderer) ctaURL(email string, subject string) string {
	if r.cfg.EventURL == "" {
		return ""
	}
	if r.cfg.TrackingBaseURL == "" {
		return r.cfg.EventURL
	}
	q := url.Values{}
	q.Set("email", email)
	q.Set("url", r.cfg.EventURL)
	q.Set("subject", subject)
	return r.cfg.TrackingBaseURL + "/track/click?" + q.Encode()
}

func (r *Renderer) pixelURL(email string, subject string) string {
	if r.cfg.TrackingBaseURL == "" {
		return ""
	}
	q := url.Values{}
	q.Set("email", email)
	q.Set("subject", subject)
	return r.cfg.TrackingBaseURL + "/track/open?" + q.Encode()
}

func (r *Renderer) unsubscribeURL(email string) string {
	if r.cfg.UnsubscribeBaseURL == "" {
		return ""
	}
	q := url.Values{}
	q.Set("email", email)
	return r.cfg.UnsubscribeBaseURL + "/unsubscribe?" + q.Encode()
}

func (r *Renderer) assemble(msg *Message) ([]byte, error) {
	var buf bytes.Buffer

	header := func(name, value string) {
		buf.WriteString(name)
		buf.WriteString(": ")
		buf.WriteString(value)
		buf.WriteString("\r\n")
	}

	header("From", r.from.String())
	header("To", (&mail.Address{Address: msg.To}).String())
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", msg.Date.Format(time.RFC1123Z))
	header("Message-ID", msg.MessageID)
	header("MIME-Version", "1.0")
	header("Content-Type", `text/html; charset="utf-8"`)
	header("Content-Transfer-Encoding", "quoted-printable")
	buf.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(msg.HTML)); err != nil {
		return nil, fmt.Errorf("failed to encode message body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode message body: %w", err)
	}
	return buf.Bytes(), nil
}
