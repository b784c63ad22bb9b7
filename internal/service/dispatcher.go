package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/observability"
	"github.com/kursadbilgin/outreach-engine/internal/provider"
	"github.com/kursadbilgin/outreach-engine/internal/ratelimit"
	"github.com/kursadbilgin/outreach-engine/internal/render"
	"go.uber.org/zap"
)

const DefaultTimezone = "Europe/London"

// Renderer turns a contact and template into a deliverable message.
type Renderer interface {
	Render(contact domain.Contact, tpl domain.Template) (*render.Message, error)
}

// ContactDispatcher produces exactly one outcome per contact.
type ContactDispatcher interface {
	Dispatch(ctx context.Context, contact domain.Contact, resolver *TemplateResolver, set domain.Suppressions) domain.Outcome
}

// Dispatcher sends one contact the next message of its sequence.
type Dispatcher struct {
	renderer Renderer
	sender   provider.Sender
	archiver provider.Archiver
	limiter  ratelimit.RateLimiter
	location *time.Location
	policy   domain.CounterPolicy
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

func NewDispatcher(
	renderer Renderer,
	sender provider.Sender,
	archiver provider.Archiver,
	limiter ratelimit.RateLimiter,
	location *time.Location,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if archiver == nil {
		archiver = provider.NopArchiver{}
	}
	if location == nil {
		loc, err := time.LoadLocation(DefaultTimezone)
		if err != nil {
			return nil, fmt.Errorf("failed to load default timezone: %w", err)
		}
		location = loc
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		renderer: renderer,
		sender:   sender,
		archiver: archiver,
		limiter:  limiter,
		location: location,
		logger:   logger,
		now:      time.Now,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// SetCounterPolicy controls the follow-up count reported on failed outcomes.
func (d *Dispatcher) SetCounterPolicy(policy domain.CounterPolicy) {
	if d == nil {
		return
	}
	d.policy = policy
}

// Dispatch never panics and never returns an error: every failure is
// folded into the outcome.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	contact domain.Contact,
	resolver *TemplateResolver,
	set domain.Suppressions,
) (outcome domain.Outcome) {
	logger := observability.WithContextLogger(d.logger, ctx).With(zap.Int("row", contact.Row))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("dispatch panicked", zap.Any("panic", r))
			outcome = d.failed(contact, 0, fmt.Sprintf("panic: %v", r))
		}
		d.metrics.IncDispatchOutcome(outcome.Kind.String(), reasonLabel(outcome))
	}()

	if err := contact.ValidateAddress(); err != nil {
		logger.Debug("skipping contact with invalid address", zap.String("email", contact.Email), zap.Error(err))
		return skipped(contact, domain.ReasonInvalidAddress)
	}
	if contact.Unsubscribed() || set.Match(contact.Email) != domain.MatchNone {
		return skipped(contact, domain.ReasonUnsubscribed)
	}

	tpl, err := resolver.Resolve(contact.FollowUps)
	if err != nil {
		if !errors.Is(err, domain.ErrTemplateNotFound) {
			logger.Warn("template resolution failed", zap.Error(err))
		}
		return skipped(contact, domain.ReasonNoTemplate)
	}

	msg, err := d.renderer.Render(contact, tpl)
	if err != nil {
		logger.Warn("failed to render message", zap.Int("sequence", tpl.Sequence), zap.Error(err))
		return d.failed(contact, tpl.Sequence, fmt.Sprintf("render: %v", err))
	}

	d.metrics.IncDispatchInFlight()
	defer d.metrics.DecDispatchInFlight()

	transport := d.sender.Name()
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, transport); err != nil {
			logger.Warn("send throttle failed", zap.String("transport", transport), zap.Error(err))
			return d.failed(contact, tpl.Sequence, fmt.Sprintf("throttle: %v", err))
		}
	}

	sendStart := d.now()
	sendErr := d.sender.Send(ctx, msg)
	d.metrics.ObserveSendDuration(transport, d.now().Sub(sendStart))
	if sendErr != nil {
		logger.Warn("send failed",
			zap.String("transport", transport),
			zap.Int("sequence", tpl.Sequence),
			zap.Bool("transient", provider.IsTransient(sendErr)),
			zap.Error(sendErr),
		)
		return d.failed(contact, tpl.Sequence, sendErr.Error())
	}

	if err := d.archiver.Archive(ctx, msg); err != nil {
		logger.Warn("failed to archive sent message",
			zap.String("archiver", d.archiver.Name()),
			zap.String("messageId", msg.MessageID),
			zap.Error(err),
		)
		d.metrics.IncArchiveFailure(d.archiver.Name())
	}

	logger.Debug("message sent", zap.String("email", contact.Email), zap.Int("sequence", tpl.Sequence))
	return domain.Outcome{
		Row:       contact.Row,
		Email:     contact.Email,
		Kind:      domain.OutcomeSent,
		Sequence:  tpl.Sequence,
		Status:    domain.StatusSent,
		Timestamp: d.now().In(d.location),
		FollowUps: tpl.Sequence,
		Log:       fmt.Sprintf("sent template %d via %s", tpl.Sequence, transport),
	}
}

func (d *Dispatcher) failed(contact domain.Contact, sequence int, reason string) domain.Outcome {
	followUps := contact.FollowUps
	if d.policy.AdvanceOnFailure && sequence > 0 {
		followUps = sequence
	}

	return domain.Outcome{
		Row:       contact.Row,
		Email:     contact.Email,
		Kind:      domain.OutcomeFailed,
		Reason:    reason,
		Sequence:  sequence,
		Status:    domain.StatusFailed,
		Timestamp: d.now().In(d.location),
		FollowUps: followUps,
		Log:       fmt.Sprintf("template %d failed: %s", sequence, reason),
	}
}

func skipped(contact domain.Contact, reason string) domain.Outcome {
	return domain.Outcome{
		Row:       contact.Row,
		Email:     contact.Email,
		Kind:      domain.OutcomeSkipped,
		Reason:    reason,
		Status:    contact.Status,
		FollowUps: contact.FollowUps,
		Log:       "skipped: " + reason,
	}
}

// reasonLabel keeps free-text failure reasons out of metric labels.
func reasonLabel(outcome domain.Outcome) string {
	if outcome.Kind == domain.OutcomeFailed {
		return "error"
	}
	return outcome.Reason
}
