package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/provider"
	"github.com/kursadbilgin/outreach-engine/internal/render"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var fixedNow = time.Date(2024, 5, 6, 9, 30, 0, 0, time.UTC)

func newTestDispatcher(t *testing.T, sender *fakeSender, archiver *fakeArchiver, logger *zap.Logger) *Dispatcher {
	t.Helper()

	if archiver == nil {
		archiver = &fakeArchiver{}
	}
	dispatcher, err := NewDispatcher(&fakeRenderer{}, sender, archiver, nil, time.UTC, logger)
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	dispatcher.now = func() time.Time { return fixedNow }
	return dispatcher
}

func oneTemplate() *TemplateResolver {
	return NewTemplateResolver([]domain.Template{{Sequence: 1, Subject: "Hello", Body: "Hi {%name%}"}})
}

func TestDispatchSendsFirstTemplate(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	archiver := &fakeArchiver{}
	dispatcher := newTestDispatcher(t, sender, archiver, zap.NewNop())

	outcome := dispatcher.Dispatch(context.Background(), domain.Contact{Row: 2, Email: "a@x.com"}, oneTemplate(), domain.Suppressions{})

	if outcome.Kind != domain.OutcomeSent {
		t.Fatalf("kind = %s, want SENT (reason %q)", outcome.Kind, outcome.Reason)
	}
	if outcome.Sequence != 1 || outcome.FollowUps != 1 {
		t.Fatalf("sequence/followUps = %d/%d, want 1/1", outcome.Sequence, outcome.FollowUps)
	}
	if outcome.Status != domain.StatusSent {
		t.Fatalf("status = %q, want %q", outcome.Status, domain.StatusSent)
	}
	if !outcome.Timestamp.Equal(fixedNow) {
		t.Fatalf("timestamp = %s, want %s", outcome.Timestamp, fixedNow)
	}
	if archiver.calls != 1 {
		t.Fatalf("archive calls = %d, want 1", archiver.calls)
	}

	updates := outcome.CellUpdates(domain.CounterPolicy{})
	if len(updates) != 3 {
		t.Fatalf("cell updates = %d, want 3", len(updates))
	}
}

func TestDispatchSkips(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		contact    domain.Contact
		resolver   *TemplateResolver
		set        domain.Suppressions
		wantReason string
	}{
		{
			name:       "empty address",
			contact:    domain.Contact{Row: 2, Email: "  "},
			resolver:   oneTemplate(),
			wantReason: domain.ReasonInvalidAddress,
		},
		{
			name:       "address without domain",
			contact:    domain.Contact{Row: 2, Email: "nobody"},
			resolver:   oneTemplate(),
			wantReason: domain.ReasonInvalidAddress,
		},
		{
			name:       "unsubscribed status",
			contact:    domain.Contact{Row: 2, Email: "a@x.com", Status: "Unsubscribed"},
			resolver:   oneTemplate(),
			wantReason: domain.ReasonUnsubscribed,
		},
		{
			name:       "exact suppression regardless of template",
			contact:    domain.Contact{Row: 2, Email: "B@y.com", FollowUps: 2},
			resolver:   NewTemplateResolver([]domain.Template{{Sequence: 3, Subject: "s", Body: "b"}}),
			set:        domain.NewSuppressions([]string{"b@y.com"}),
			wantReason: domain.ReasonUnsubscribed,
		},
		{
			name:       "domain suppression",
			contact:    domain.Contact{Row: 2, Email: "other@corp.io"},
			resolver:   oneTemplate(),
			set:        domain.NewSuppressions([]string{"boss@corp.io"}),
			wantReason: domain.ReasonUnsubscribed,
		},
		{
			name:       "no template",
			contact:    domain.Contact{Row: 2, Email: "a@x.com"},
			resolver:   NewTemplateResolver(nil),
			wantReason: domain.ReasonNoTemplate,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sender := &fakeSender{}
			dispatcher := newTestDispatcher(t, sender, nil, zap.NewNop())

			outcome := dispatcher.Dispatch(context.Background(), tt.contact, tt.resolver, tt.set)
			if outcome.Kind != domain.OutcomeSkipped {
				t.Fatalf("kind = %s, want SKIPPED", outcome.Kind)
			}
			if outcome.Reason != tt.wantReason {
				t.Fatalf("reason = %q, want %q", outcome.Reason, tt.wantReason)
			}
			if outcome.FollowUps != tt.contact.FollowUps {
				t.Fatalf("followUps = %d, want unchanged %d", outcome.FollowUps, tt.contact.FollowUps)
			}
			if len(sender.sentTo()) != 0 {
				t.Fatalf("sender called for skipped contact: %v", sender.sentTo())
			}
			if updates := outcome.CellUpdates(domain.CounterPolicy{}); len(updates) != 0 {
				t.Fatalf("skipped outcome produced %d updates", len(updates))
			}
		})
	}
}

func TestDispatchSendFailure(t *testing.T) {
	t.Parallel()

	sendErr := &provider.ProviderError{Code: 550, Message: "mailbox unavailable"}
	sender := &fakeSender{sendFn: func(ctx context.Context, msg *render.Message) error { return sendErr }}
	archiver := &fakeArchiver{}
	dispatcher := newTestDispatcher(t, sender, archiver, zap.NewNop())

	contact := domain.Contact{Row: 4, Email: "c@z.com", FollowUps: 0}
	outcome := dispatcher.Dispatch(context.Background(), contact, oneTemplate(), domain.Suppressions{})

	if outcome.Kind != domain.OutcomeFailed {
		t.Fatalf("kind = %s, want FAILED", outcome.Kind)
	}
	if outcome.Sequence != 1 {
		t.Fatalf("sequence = %d, want 1", outcome.Sequence)
	}
	if outcome.FollowUps != 0 {
		t.Fatalf("followUps = %d, want 0 under default policy", outcome.FollowUps)
	}
	if outcome.Timestamp.IsZero() {
		t.Fatal("timestamp should be recorded on failure")
	}
	if archiver.calls != 0 {
		t.Fatalf("archive calls = %d, want 0", archiver.calls)
	}

	for _, u := range outcome.CellUpdates(domain.CounterPolicy{}) {
		if u.Field == domain.FieldFollowUps {
			t.Fatalf("default policy wrote follow-up counter: %+v", u)
		}
	}
}

func TestDispatchSendFailureAdvancesWhenConfigured(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{sendFn: func(ctx context.Context, msg *render.Message) error { return errors.New("boom") }}
	dispatcher := newTestDispatcher(t, sender, nil, zap.NewNop())
	dispatcher.SetCounterPolicy(domain.CounterPolicy{AdvanceOnFailure: true})

	outcome := dispatcher.Dispatch(context.Background(), domain.Contact{Row: 4, Email: "c@z.com"}, oneTemplate(), domain.Suppressions{})
	if outcome.FollowUps != 1 {
		t.Fatalf("followUps = %d, want 1", outcome.FollowUps)
	}

	var counter string
	for _, u := range outcome.CellUpdates(domain.CounterPolicy{AdvanceOnFailure: true}) {
		if u.Field == domain.FieldFollowUps {
			counter = u.Value
		}
	}
	if counter != "1" {
		t.Fatalf("counter update = %q, want 1", counter)
	}
}

func TestDispatchArchiveFailureKeepsSent(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	archiver := &fakeArchiver{archiveFn: func(ctx context.Context, msg *render.Message) error {
		return errors.New("imap down")
	}}
	dispatcher := newTestDispatcher(t, &fakeSender{}, archiver, zap.New(core))

	outcome := dispatcher.Dispatch(context.Background(), domain.Contact{Row: 2, Email: "a@x.com"}, oneTemplate(), domain.Suppressions{})
	if outcome.Kind != domain.OutcomeSent {
		t.Fatalf("kind = %s, want SENT", outcome.Kind)
	}
	if logs.FilterMessage("failed to archive sent message").Len() != 1 {
		t.Fatalf("expected one archive warning, got %v", logs.All())
	}
}

func TestDispatchRenderFailure(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	dispatcher, err := NewDispatcher(&fakeRenderer{
		renderFn: func(contact domain.Contact, tpl domain.Template) (*render.Message, error) {
			return nil, errors.New("bad layout")
		},
	}, sender, nil, nil, time.UTC, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	outcome := dispatcher.Dispatch(context.Background(), domain.Contact{Row: 2, Email: "a@x.com"}, oneTemplate(), domain.Suppressions{})
	if outcome.Kind != domain.OutcomeFailed {
		t.Fatalf("kind = %s, want FAILED", outcome.Kind)
	}
	if len(sender.sentTo()) != 0 {
		t.Fatal("sender should not be called when rendering fails")
	}
}

func TestDispatchRecoversPanics(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{sendFn: func(ctx context.Context, msg *render.Message) error {
		panic("transport exploded")
	}}
	dispatcher := newTestDispatcher(t, sender, nil, zap.NewNop())

	outcome := dispatcher.Dispatch(context.Background(), domain.Contact{Row: 7, Email: "a@x.com"}, oneTemplate(), domain.Suppressions{})
	if outcome.Kind != domain.OutcomeFailed {
		t.Fatalf("kind = %s, want FAILED", outcome.Kind)
	}
	if outcome.Row != 7 {
		t.Fatalf("row = %d, want 7", outcome.Row)
	}
}

func TestDispatchThrottlesBySenderName(t *testing.T) {
	t.Parallel()

	var gotKey string
	limiter := &fakeRateLimiter{waitFn: func(ctx context.Context, key string) error {
		gotKey = key
		return nil
	}}
	dispatcher, err := NewDispatcher(&fakeRenderer{}, &fakeSender{name: "ses"}, nil, limiter, time.UTC, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	outcome := dispatcher.Dispatch(context.Background(), domain.Contact{Row: 2, Email: "a@x.com"}, oneTemplate(), domain.Suppressions{})
	if outcome.Kind != domain.OutcomeSent {
		t.Fatalf("kind = %s, want SENT", outcome.Kind)
	}
	if gotKey != "ses" {
		t.Fatalf("limiter key = %q, want ses", gotKey)
	}
}

func TestDispatchThrottleFailure(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	limiter := &fakeRateLimiter{waitFn: func(ctx context.Context, key string) error {
		return errors.New("redis unavailable")
	}}
	dispatcher, err := NewDispatcher(&fakeRenderer{}, sender, nil, limiter, time.UTC, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	outcome := dispatcher.Dispatch(context.Background(), domain.Contact{Row: 2, Email: "a@x.com"}, oneTemplate(), domain.Suppressions{})
	if outcome.Kind != domain.OutcomeFailed {
		t.Fatalf("kind = %s, want FAILED", outcome.Kind)
	}
	if len(sender.sentTo()) != 0 {
		t.Fatal("sender should not be called when throttling fails")
	}
}

func TestDispatchTimestampUsesLocation(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("BST", 3600)
	dispatcher, err := NewDispatcher(&fakeRenderer{}, &fakeSender{}, nil, nil, loc, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	dispatcher.now = func() time.Time { return fixedNow }

	outcome := dispatcher.Dispatch(context.Background(), domain.Contact{Row: 2, Email: "a@x.com"}, oneTemplate(), domain.Suppressions{})
	if got := outcome.Timestamp.Format(domain.TimestampLayout); got != "2024-05-06 10:30:00" {
		t.Fatalf("timestamp = %q, want 2024-05-06 10:30:00", got)
	}
}

func TestNewDispatcherValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewDispatcher(nil, &fakeSender{}, nil, nil, time.UTC, nil); err == nil {
		t.Fatal("expected error for nil renderer")
	}
	if _, err := NewDispatcher(&fakeRenderer{}, nil, nil, nil, time.UTC, nil); err == nil {
		t.Fatal("expected error for nil sender")
	}
}
