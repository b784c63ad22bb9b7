package service

import (
	"context"
	"sync"
	"time"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/queue"
	"github.com/kursadbilgin/outreach-engine/internal/render"
	"github.com/kursadbilgin/outreach-engine/internal/runstate"
)

// fakeStore keeps cells in memory and applies every successful write, so
// tests can assert on the resulting store state.
type fakeStore struct {
	mu           sync.Mutex
	contacts     []domain.Contact
	templates    []domain.Template
	columns      map[domain.Field][]domain.Cell
	maxBatch     int
	cells        map[int]map[domain.Field]string
	writes       [][]domain.CellUpdate
	readErr      error
	readColErr   error
	batchWriteFn func(ctx context.Context, updates []domain.CellUpdate) error
}

func (f *fakeStore) ReadAllContacts(ctx context.Context) ([]domain.Contact, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return append([]domain.Contact(nil), f.contacts...), nil
}

func (f *fakeStore) ReadAllTemplates(ctx context.Context) ([]domain.Template, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return append([]domain.Template(nil), f.templates...), nil
}

func (f *fakeStore) ReadColumn(ctx context.Context, field domain.Field) ([]domain.Cell, error) {
	if f.readColErr != nil {
		return nil, f.readColErr
	}
	return append([]domain.Cell(nil), f.columns[field]...), nil
}

func (f *fakeStore) BatchWrite(ctx context.Context, updates []domain.CellUpdate) error {
	if f.batchWriteFn != nil {
		if err := f.batchWriteFn(ctx, updates); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cells == nil {
		f.cells = make(map[int]map[domain.Field]string)
	}
	for _, u := range updates {
		if f.cells[u.Row] == nil {
			f.cells[u.Row] = make(map[domain.Field]string)
		}
		f.cells[u.Row][u.Field] = u.Value
	}
	f.writes = append(f.writes, append([]domain.CellUpdate(nil), updates...))
	return nil
}

func (f *fakeStore) MaxBatchSize() int {
	if f.maxBatch <= 0 {
		return 100
	}
	return f.maxBatch
}

func (f *fakeStore) cell(row int, field domain.Field) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cells[row][field]
}

func (f *fakeStore) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

type fakeRenderer struct {
	renderFn func(contact domain.Contact, tpl domain.Template) (*render.Message, error)
}

func (f *fakeRenderer) Render(contact domain.Contact, tpl domain.Template) (*render.Message, error) {
	if f.renderFn != nil {
		return f.renderFn(contact, tpl)
	}
	return &render.Message{
		MessageID: "id@example.com",
		To:        contact.Email,
		Subject:   tpl.Subject,
		HTML:      tpl.Body,
		Raw:       []byte("raw"),
	}, nil
}

type fakeSender struct {
	mu     sync.Mutex
	name   string
	sent   []string
	sendFn func(ctx context.Context, msg *render.Message) error
}

func (f *fakeSender) Send(ctx context.Context, msg *render.Message) error {
	f.mu.Lock()
	f.sent = append(f.sent, msg.To)
	f.mu.Unlock()

	if f.sendFn != nil {
		return f.sendFn(ctx, msg)
	}
	return nil
}

func (f *fakeSender) Name() string {
	if f.name == "" {
		return "smtp"
	}
	return f.name
}

func (f *fakeSender) sentTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type fakeArchiver struct {
	calls     int
	archiveFn func(ctx context.Context, msg *render.Message) error
}

func (f *fakeArchiver) Archive(ctx context.Context, msg *render.Message) error {
	f.calls++
	if f.archiveFn != nil {
		return f.archiveFn(ctx, msg)
	}
	return nil
}

func (f *fakeArchiver) Name() string { return "imap" }

type fakeRateLimiter struct {
	allowFn func(ctx context.Context, key string) (bool, error)
	waitFn  func(ctx context.Context, key string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if f.allowFn != nil {
		return f.allowFn(ctx, key)
	}
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, key string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, key)
	}
	return nil
}

type fakeSuppressionSource struct {
	mu    sync.Mutex
	set   domain.Suppressions
	calls int
}

func (f *fakeSuppressionSource) Fetch(ctx context.Context) domain.Suppressions {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.set
}

type fakeModeStore struct {
	mu     sync.Mutex
	dir    runstate.Direction
	getErr error
	setErr error
	sets   []runstate.Direction
}

func (f *fakeModeStore) GetDirection(ctx context.Context) (runstate.Direction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return "", f.getErr
	}
	if f.dir == "" {
		return runstate.Ascending, nil
	}
	return f.dir, nil
}

func (f *fakeModeStore) SetDirection(ctx context.Context, d runstate.Direction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets = append(f.sets, d)
	if f.setErr != nil {
		return f.setErr
	}
	f.dir = d
	return nil
}

type fakeSyncer struct {
	mu     sync.Mutex
	calls  int
	syncFn func(ctx context.Context) (int, error)
}

func (f *fakeSyncer) Sync(ctx context.Context) (int, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.syncFn != nil {
		return f.syncFn(ctx)
	}
	return 0, nil
}

func (f *fakeSyncer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePublisher struct {
	mu        sync.Mutex
	published []queue.OutcomeMessage
	publishFn func(ctx context.Context, msg queue.OutcomeMessage) error
}

func (f *fakePublisher) Publish(ctx context.Context, msg queue.OutcomeMessage) error {
	if f.publishFn != nil {
		if err := f.publishFn(ctx, msg); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.published = append(f.published, msg)
	f.mu.Unlock()
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched []string
	dispatchFn func(ctx context.Context, contact domain.Contact) domain.Outcome
}

func (f *fakeDispatcher) Dispatch(
	ctx context.Context,
	contact domain.Contact,
	resolver *TemplateResolver,
	set domain.Suppressions,
) domain.Outcome {
	f.mu.Lock()
	f.dispatched = append(f.dispatched, contact.Email)
	f.mu.Unlock()

	if f.dispatchFn != nil {
		return f.dispatchFn(ctx, contact)
	}
	return domain.Outcome{
		Row:       contact.Row,
		Email:     contact.Email,
		Kind:      domain.OutcomeSent,
		Sequence:  contact.FollowUps + 1,
		Status:    domain.StatusSent,
		FollowUps: contact.FollowUps + 1,
	}
}

func (f *fakeDispatcher) dispatchedEmails() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.dispatched...)
}

type fakePassRunner struct {
	mu        sync.Mutex
	calls     int
	executeFn func(ctx context.Context) (runstate.PassSummary, error)
}

func (f *fakePassRunner) Execute(ctx context.Context) (runstate.PassSummary, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.executeFn != nil {
		return f.executeFn(ctx)
	}
	return runstate.PassSummary{Sent: 1}, nil
}

func (f *fakePassRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeLocker struct {
	acquireFn func(ctx context.Context) (bool, error)
	extendFn  func(ctx context.Context) error
	ttl       time.Duration
	released  int

	mu      sync.Mutex
	extends int
}

func (f *fakeLocker) Acquire(ctx context.Context) (bool, error) {
	if f.acquireFn != nil {
		return f.acquireFn(ctx)
	}
	return true, nil
}

func (f *fakeLocker) Extend(ctx context.Context) error {
	f.mu.Lock()
	f.extends++
	f.mu.Unlock()

	if f.extendFn != nil {
		return f.extendFn(ctx)
	}
	return nil
}

func (f *fakeLocker) extendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.extends
}

func (f *fakeLocker) TTL() time.Duration {
	return f.ttl
}

func (f *fakeLocker) Release(ctx context.Context) error {
	f.released++
	return nil
}
