package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/observability"
	"github.com/kursadbilgin/outreach-engine/internal/runstate"
	"github.com/kursadbilgin/outreach-engine/internal/store"
	"go.uber.org/zap"
)

const DefaultReconcileMinInterval = 10 * time.Minute

// Reconciler marks suppressed contacts as unsubscribed in the store.
// Calls made within minInterval of the last successful write are no-ops,
// so any caller may trigger it opportunistically.
type Reconciler struct {
	store       store.Store
	source      SuppressionSource
	state       *runstate.RunState
	minInterval time.Duration
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time

	mu        sync.Mutex
	lastWrite time.Time
}

func NewReconciler(
	st store.Store,
	source SuppressionSource,
	minInterval time.Duration,
	logger *zap.Logger,
) (*Reconciler, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if source == nil {
		return nil, fmt.Errorf("suppression source is required")
	}
	if minInterval < 0 {
		minInterval = DefaultReconcileMinInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Reconciler{
		store:       st,
		source:      source,
		minInterval: minInterval,
		logger:      logger,
		now:         time.Now,
	}, nil
}

func (r *Reconciler) SetMetrics(metrics *observability.Metrics) {
	if r == nil {
		return
	}
	r.metrics = metrics
}

// SetRunState records completed reconciliations for the status endpoint.
func (r *Reconciler) SetRunState(state *runstate.RunState) {
	if r == nil {
		return
	}
	r.state = state
}

// Sync fetches the opt-out list, reads the email and status columns and
// reconciles them. An empty fetched set writes nothing.
func (r *Reconciler) Sync(ctx context.Context) (int, error) {
	logger := observability.WithContextLogger(r.logger, ctx)

	if r.throttled() {
		logger.Debug("reconcile skipped, last write too recent")
		return 0, nil
	}

	set := r.source.Fetch(ctx)
	if set.Empty() {
		logger.Info("suppression set empty, reconcile skipped")
		return 0, nil
	}

	emails, err := r.store.ReadColumn(ctx, domain.FieldEmail)
	if err != nil {
		return 0, fmt.Errorf("failed to read email column: %w", err)
	}
	statuses, err := r.store.ReadColumn(ctx, domain.FieldStatus)
	if err != nil {
		return 0, fmt.Errorf("failed to read status column: %w", err)
	}

	statusByRow := make(map[int]string, len(statuses))
	for _, cell := range statuses {
		statusByRow[cell.Row] = cell.Value
	}
	contacts := make([]domain.Contact, 0, len(emails))
	for _, cell := range emails {
		contacts = append(contacts, domain.Contact{
			Row:    cell.Row,
			Email:  cell.Value,
			Status: statusByRow[cell.Row],
		})
	}

	marked, err := r.Reconcile(ctx, contacts, set)
	if err != nil {
		return marked, err
	}
	if r.state != nil {
		r.state.MarkReconciled(r.now())
	}
	return marked, nil
}

// Reconcile writes the unsubscribed status for every contact matched by
// set, exactly or through its non-free domain. Contacts already marked are
// left alone.
func (r *Reconciler) Reconcile(ctx context.Context, contacts []domain.Contact, set domain.Suppressions) (int, error) {
	logger := observability.WithContextLogger(r.logger, ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	if set.Empty() {
		return 0, nil
	}
	if r.throttledLocked() {
		logger.Debug("reconcile skipped, last write too recent")
		return 0, nil
	}

	var updates []domain.CellUpdate
	matches := make(map[domain.MatchKind]int)
	for _, contact := range contacts {
		if contact.Row <= 0 || contact.Unsubscribed() {
			continue
		}
		match := set.Match(contact.Email)
		if match == domain.MatchNone {
			continue
		}
		matches[match]++
		updates = append(updates, domain.CellUpdate{
			Row:   contact.Row,
			Field: domain.FieldStatus,
			Value: domain.StatusUnsubscribed,
		})
		logger.Debug("marking contact unsubscribed", zap.String("email", contact.Email), zap.String("match", string(match)))
	}

	if len(updates) == 0 {
		logger.Info("no new unsubscribes to mark", zap.Int("suppressions", set.Len()))
		return 0, nil
	}

	written := 0
	for _, chunk := range store.Chunk(updates, r.store.MaxBatchSize()) {
		if err := r.store.BatchWrite(ctx, chunk); err != nil {
			r.metrics.IncStoreWriteFailure()
			if written > 0 {
				r.lastWrite = r.now()
			}
			return written, fmt.Errorf("failed to write unsubscribed statuses: %w", err)
		}
		written += len(chunk)
	}

	r.lastWrite = r.now()
	for match, n := range matches {
		r.metrics.AddSuppressionsMarked(string(match), n)
	}

	logger.Info("marked contacts unsubscribed",
		zap.Int("marked", written),
		zap.Int("exact", matches[domain.MatchExact]),
		zap.Int("domain", matches[domain.MatchDomain]),
	)
	return written, nil
}

func (r *Reconciler) throttled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.throttledLocked()
}

func (r *Reconciler) throttledLocked() bool {
	if r.lastWrite.IsZero() || r.minInterval <= 0 {
		return false
	}
	return r.now().Sub(r.lastWrite) < r.minInterval
}
