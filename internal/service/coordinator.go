package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/observability"
	"github.com/kursadbilgin/outreach-engine/internal/queue"
	"github.com/kursadbilgin/outreach-engine/internal/runstate"
	"github.com/kursadbilgin/outreach-engine/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize   = 2000
	DefaultConcurrency = 15
	DefaultBatchPause  = 30 * time.Minute
	DefaultWriteSplit  = 2
	minWriteSplit      = 2
)

// ReconcileAfter selects when the coordinator re-runs opt-out
// reconciliation during a pass.
type ReconcileAfter string

const (
	ReconcileAfterNone  ReconcileAfter = "none"
	ReconcileAfterBatch ReconcileAfter = "batch"
	ReconcileAfterPass  ReconcileAfter = "pass"
)

func ParseReconcileAfter(raw string) (ReconcileAfter, error) {
	switch value := ReconcileAfter(strings.ToLower(strings.TrimSpace(raw))); value {
	case ReconcileAfterNone, ReconcileAfterBatch, ReconcileAfterPass:
		return value, nil
	case "":
		return ReconcileAfterPass, nil
	default:
		return "", fmt.Errorf("%w: unknown reconcile mode %q", domain.ErrValidation, raw)
	}
}

// SuppressionSource returns the current opt-out set. Implementations fail
// soft and return an empty set when the source is unreachable.
type SuppressionSource interface {
	Fetch(ctx context.Context) domain.Suppressions
}

// Syncer re-runs opt-out reconciliation against the store.
type Syncer interface {
	Sync(ctx context.Context) (int, error)
}

type CoordinatorConfig struct {
	BatchSize      int
	Concurrency    int
	BatchPause     time.Duration
	WriteSplit     int
	Ordering       OrderingMode
	ReconcileAfter ReconcileAfter
	CounterPolicy  domain.CounterPolicy
}

func (c CoordinatorConfig) withDefaults() CoordinatorConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.BatchPause < 0 {
		c.BatchPause = 0
	}
	if c.WriteSplit < minWriteSplit {
		c.WriteSplit = minWriteSplit
	}
	if c.Ordering == "" {
		c.Ordering = OrderingSequential
	}
	if c.ReconcileAfter == "" {
		c.ReconcileAfter = ReconcileAfterNone
	}
	return c
}

// Coordinator runs one campaign pass: batches of contacts dispatched by a
// bounded pool, each followed by a write-back to the store.
type Coordinator struct {
	store        store.Store
	dispatcher   ContactDispatcher
	suppressions SuppressionSource
	modes        runstate.ModeStore
	reconciler   Syncer
	publisher    queue.Publisher
	cfg          CoordinatorConfig
	logger       *zap.Logger
	metrics      *observability.Metrics
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
}

func NewCoordinator(
	st store.Store,
	dispatcher ContactDispatcher,
	suppressions SuppressionSource,
	cfg CoordinatorConfig,
	logger *zap.Logger,
) (*Coordinator, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if suppressions == nil {
		return nil, fmt.Errorf("suppression source is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Coordinator{
		store:        st,
		dispatcher:   dispatcher,
		suppressions: suppressions,
		cfg:          cfg.withDefaults(),
		logger:       logger,
		now:          time.Now,
		sleep:        sleepContext,
	}, nil
}

func (c *Coordinator) SetMetrics(metrics *observability.Metrics) {
	if c == nil {
		return
	}
	c.metrics = metrics
}

// SetModeStore is required for the alternating ordering mode.
func (c *Coordinator) SetModeStore(modes runstate.ModeStore) {
	if c == nil {
		return
	}
	c.modes = modes
}

func (c *Coordinator) SetReconciler(reconciler Syncer) {
	if c == nil {
		return
	}
	c.reconciler = reconciler
}

func (c *Coordinator) SetPublisher(publisher queue.Publisher) {
	if c == nil {
		return
	}
	c.publisher = publisher
}

// Execute loads suppressions, templates and contacts and runs one pass.
func (c *Coordinator) Execute(ctx context.Context) (runstate.PassSummary, error) {
	set := c.suppressions.Fetch(ctx)

	templates, err := c.store.ReadAllTemplates(ctx)
	if err != nil {
		return runstate.PassSummary{}, fmt.Errorf("failed to load templates: %w", err)
	}
	contacts, err := c.store.ReadAllContacts(ctx)
	if err != nil {
		return runstate.PassSummary{}, fmt.Errorf("failed to load contacts: %w", err)
	}

	resolver := NewTemplateResolver(templates)
	if resolver.Len() == 0 {
		observability.WithContextLogger(c.logger, ctx).Warn("no usable templates loaded, every contact will be skipped")
	}

	return c.RunPass(ctx, contacts, resolver, set), nil
}

// RunPass dispatches every eligible contact. Cancelling ctx stops the pass
// at the next batch boundary; a batch that has started always finishes
// and is written back.
func (c *Coordinator) RunPass(
	ctx context.Context,
	contacts []domain.Contact,
	resolver *TemplateResolver,
	set domain.Suppressions,
) runstate.PassSummary {
	logger := observability.WithContextLogger(c.logger, ctx)
	runID, _ := observability.RunIDFromContext(ctx)

	summary := runstate.PassSummary{
		RunID:     runID,
		StartedAt: c.now(),
		Contacts:  len(contacts),
	}

	eligible := make([]domain.Contact, 0, len(contacts))
	for _, contact := range contacts {
		if contact.Unsubscribed() || set.Match(contact.Email) != domain.MatchNone {
			summary.Suppressed++
			continue
		}
		eligible = append(eligible, contact)
	}
	summary.Eligible = len(eligible)

	direction := runstate.Ascending
	if c.cfg.Ordering == OrderingAlternating {
		direction = c.readDirection(ctx, logger)
	}
	ordered := OrderContacts(eligible, c.cfg.Ordering, direction)

	batches := batchContacts(ordered, c.cfg.BatchSize)
	logger.Info("campaign pass started",
		zap.Int("contacts", summary.Contacts),
		zap.Int("eligible", summary.Eligible),
		zap.Int("batches", len(batches)),
		zap.String("ordering", string(c.cfg.Ordering)),
		zap.String("direction", string(direction)),
	)

	batchStart := 0
	for i, batch := range batches {
		if i > 0 {
			if err := c.sleep(ctx, c.cfg.BatchPause); err != nil {
				summary.Interrupted = true
				logger.Info("campaign pass interrupted between batches", zap.Int("batchesDone", i))
				break
			}
		}

		batchCtx := observability.WithBatch(context.WithoutCancel(ctx), i+1)
		c.runBatch(batchCtx, logger.With(zap.Int("batch", i+1)), batch, batchStart, resolver, set, &summary)
		batchStart += len(batch)
	}

	if !summary.Interrupted && c.cfg.ReconcileAfter == ReconcileAfterPass {
		summary.Marked += c.reconcile(ctx, logger)
	}

	if !summary.Interrupted && c.cfg.Ordering == OrderingAlternating && c.modes != nil {
		next := direction.Flip()
		if err := c.modes.SetDirection(context.WithoutCancel(ctx), next); err != nil {
			logger.Error("failed to persist ordering direction", zap.String("direction", string(next)), zap.Error(err))
		}
	}

	summary.FinishedAt = c.now()
	logger.Info("campaign pass finished",
		zap.Int("batches", summary.Batches),
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("writeFailures", summary.WriteFailures),
		zap.Bool("interrupted", summary.Interrupted),
		zap.Duration("duration", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return summary
}

func (c *Coordinator) runBatch(
	ctx context.Context,
	logger *zap.Logger,
	batch []domain.Contact,
	batchStart int,
	resolver *TemplateResolver,
	set domain.Suppressions,
	summary *runstate.PassSummary,
) {
	logger = logger.With(zap.Int("batchStart", batchStart), zap.Int("batchSize", len(batch)))
	logger.Info("batch started")

	outcomes := make([]domain.Outcome, len(batch))
	g := new(errgroup.Group)
	g.SetLimit(c.cfg.Concurrency)
	for i := range batch {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("dispatcher panicked", zap.Int("row", batch[i].Row), zap.Any("panic", r))
					outcomes[i] = domain.Outcome{
						Row:       batch[i].Row,
						Email:     batch[i].Email,
						Kind:      domain.OutcomeFailed,
						Reason:    fmt.Sprintf("panic: %v", r),
						Status:    domain.StatusFailed,
						Timestamp: c.now(),
						FollowUps: batch[i].FollowUps,
					}
				}
			}()
			outcomes[i] = c.dispatcher.Dispatch(ctx, batch[i], resolver, set)
			return nil
		})
	}
	_ = g.Wait()

	var sent, failed, skipped int
	for _, outcome := range outcomes {
		switch outcome.Kind {
		case domain.OutcomeSent:
			sent++
		case domain.OutcomeFailed:
			failed++
		default:
			skipped++
		}
	}
	summary.Sent += sent
	summary.Failed += failed
	summary.Skipped += skipped

	summary.WriteFailures += c.writeBack(ctx, logger, outcomes)
	summary.Batches++
	c.metrics.IncBatchCompleted()

	logger.Info("batch finished",
		zap.Int("sent", sent),
		zap.Int("failed", failed),
		zap.Int("skipped", skipped),
	)

	if c.cfg.ReconcileAfter == ReconcileAfterBatch {
		summary.Marked += c.reconcile(ctx, logger)
	}
}

// writeBack splits outcomes into WriteSplit parts, each chunked to the
// store's batch limit. A failed chunk is logged and counted and the
// remaining chunks are still written. It returns the number of failed
// chunks.
func (c *Coordinator) writeBack(ctx context.Context, logger *zap.Logger, outcomes []domain.Outcome) int {
	failures := 0
	for part, group := range store.Split(outcomes, c.cfg.WriteSplit) {
		updates := make([]domain.CellUpdate, 0, len(group)*3)
		for _, outcome := range group {
			updates = append(updates, outcome.CellUpdates(c.cfg.CounterPolicy)...)
		}
		if len(updates) == 0 {
			continue
		}

		partWritten := true
		for _, chunk := range store.Chunk(updates, c.store.MaxBatchSize()) {
			if err := c.store.BatchWrite(ctx, chunk); err != nil {
				partWritten = false
				failures++
				c.metrics.IncStoreWriteFailure()
				logger.Error("failed to write outcomes to store",
					zap.Int("part", part+1),
					zap.Int("updates", len(chunk)),
					zap.Error(err),
				)
			}
		}

		if partWritten {
			c.publish(ctx, logger, group)
		}
	}
	return failures
}

func (c *Coordinator) publish(ctx context.Context, logger *zap.Logger, outcomes []domain.Outcome) {
	if c.publisher == nil {
		return
	}

	runID, _ := observability.RunIDFromContext(ctx)
	for _, outcome := range outcomes {
		if outcome.Kind == domain.OutcomeSkipped {
			continue
		}
		msg := queue.NewOutcomeMessage(runID, outcome)
		if err := c.publisher.Publish(ctx, msg); err != nil {
			logger.Warn("failed to publish outcome event",
				zap.String("messageId", msg.MessageID()),
				zap.Error(err),
			)
		}
	}
}

func (c *Coordinator) reconcile(ctx context.Context, logger *zap.Logger) int {
	if c.reconciler == nil {
		return 0
	}
	marked, err := c.reconciler.Sync(ctx)
	if err != nil {
		logger.Warn("opt-out reconciliation failed", zap.Error(err))
	}
	return marked
}

func (c *Coordinator) readDirection(ctx context.Context, logger *zap.Logger) runstate.Direction {
	if c.modes == nil {
		return runstate.Ascending
	}
	dir, err := c.modes.GetDirection(ctx)
	if err != nil {
		logger.Warn("failed to read ordering direction, using ascending", zap.Error(err))
		return runstate.Ascending
	}
	return dir
}

func batchContacts(contacts []domain.Contact, size int) [][]domain.Contact {
	if len(contacts) == 0 {
		return nil
	}
	batches := make([][]domain.Contact, 0, (len(contacts)+size-1)/size)
	for start := 0; start < len(contacts); start += size {
		end := min(start+size, len(contacts))
		batches = append(batches, contacts[start:end])
	}
	return batches
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
