package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
	"github.com/custodia-labs/cloudpoll/internal/core/ports/driven"
	"github.com/custodia-labs/cloudpoll/internal/core/ports/driving"
	"github.com/custodia-labs/cloudpoll/internal/logger"
)

const (
	otelScope = "cloudpoll/poll"
	spanCycle = "poll.cycle"
)

// Ensure PollOrchestrator implements the interface.
var _ driving.PollOrchestrator = (*PollOrchestrator)(nil)

// ConnectorSource hands out the connector of an account.
type ConnectorSource interface {
	Get(ctx context.Context, account domain.Account) (driven.Connector, error)
}

// PollOrchestrator runs poll cycles. Accounts poll in parallel; a second
// cycle of an account that is already running is refused.
type PollOrchestrator struct {
	accounts   driven.AccountStore
	positions  driven.PositionStore
	connectors ConnectorSource
	normalizer *ChangeNormalizer
	router     *ActionRouter
	observer   driven.PollObserver
	history    driven.CycleHistory
	tracer     trace.Tracer
	settings   domain.PollSettings

	// newBackOff builds the retry schedule for transient fetch errors.
	newBackOff func() backoff.BackOff

	mu      sync.Mutex
	running map[string]bool
	states  map[string]domain.PollState
	reports map[string]domain.CycleReport
}

// PollOption configures a PollOrchestrator.
type PollOption func(*PollOrchestrator)

// WithObserver sets the metrics observer.
func WithObserver(observer driven.PollObserver) PollOption {
	return func(o *PollOrchestrator) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// WithHistory records every finished cycle.
func WithHistory(history driven.CycleHistory) PollOption {
	return func(o *PollOrchestrator) {
		o.history = history
	}
}

// WithTracer replaces the tracer taken from the global provider.
func WithTracer(tracer trace.Tracer) PollOption {
	return func(o *PollOrchestrator) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithBackOff replaces the transient retry schedule.
func WithBackOff(newBackOff func() backoff.BackOff) PollOption {
	return func(o *PollOrchestrator) {
		o.newBackOff = newBackOff
	}
}

// NewPollOrchestrator creates a poll orchestrator.
func NewPollOrchestrator(
	accounts driven.AccountStore,
	positions driven.PositionStore,
	connectors ConnectorSource,
	normalizer *ChangeNormalizer,
	router *ActionRouter,
	settings domain.PollSettings,
	opts ...PollOption,
) *PollOrchestrator {
	if settings.MaxAttempts < 1 {
		settings.MaxAttempts = 1
	}
	if settings.Concurrency < 1 {
		settings.Concurrency = 1
	}
	o := &PollOrchestrator{
		accounts:   accounts,
		positions:  positions,
		connectors: connectors,
		normalizer: normalizer,
		router:     router,
		observer:   driven.NopObserver{},
		tracer:     otel.Tracer(otelScope),
		settings:   settings,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 30 * time.Second
			return b
		},
		running: make(map[string]bool),
		states:  make(map[string]domain.PollState),
		reports: make(map[string]domain.CycleReport),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Poll runs one cycle for an account.
// The returned report is non-nil whenever the cycle started; on failure
// the error wraps one of the poll error classes.
func (o *PollOrchestrator) Poll(ctx context.Context, accountID string) (*domain.CycleReport, error) {
	if !o.begin(accountID) {
		return nil, domain.ErrPollInProgress
	}
	defer o.end(accountID)

	account, err := o.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	position, err := o.positions.Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get position: %w", err)
	}
	account.Position = position

	cc := domain.CycleContext{
		ID:          uuid.NewString(),
		AccountID:   account.ID,
		AccountType: account.Type,
		Position:    position,
	}
	if o.settings.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.settings.CycleTimeout)
		defer cancel()
		cc.Deadline, _ = ctx.Deadline()
	}

	logger.Infow("poll cycle starting",
		"account_id", cc.AccountID, "cycle_id", cc.ID,
		"account_type", string(cc.AccountType), "initial", cc.Initial())

	ctx, span := o.tracer.Start(ctx, spanCycle, trace.WithAttributes(
		attribute.String("account.id", cc.AccountID),
		attribute.String("account.type", string(cc.AccountType)),
		attribute.String("cycle.id", cc.ID),
		attribute.Bool("cycle.initial", cc.Initial()),
	))
	defer span.End()

	report, err := o.runCycle(ctx, cc, *account)
	report.EndedAt = time.Now()

	span.SetAttributes(
		attribute.Int("cycle.batches", report.Batches),
		attribute.Int("cycle.attempts", report.Attempts),
		attribute.Int("cycle.dispatched", report.Dispatched()),
		attribute.Int("cycle.dropped", report.Dropped),
		attribute.Int("cycle.handler_errors", report.HandlerErrors),
		attribute.Bool("cycle.committed", report.Committed),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, domain.ClassName(err))
	}

	o.mu.Lock()
	o.states[accountID] = report.State
	o.reports[accountID] = *report
	o.mu.Unlock()

	o.observer.CycleFinished(*report, report.Duration())
	if o.history != nil {
		if herr := o.history.Record(context.WithoutCancel(ctx), *report); herr != nil {
			logger.Warnw("recording cycle history", "account_id", accountID, "cycle_id", report.CycleID, "error", herr)
		}
	}
	logCycle(report, err)
	return report, err
}

// runCycle drives FETCHING → NORMALIZING → DISPATCHING until the feed is
// drained, then COMMITTING.
func (o *PollOrchestrator) runCycle(
	ctx context.Context,
	cc domain.CycleContext,
	account domain.Account,
) (*domain.CycleReport, error) {
	report := &domain.CycleReport{
		CycleID:     cc.ID,
		AccountID:   cc.AccountID,
		AccountType: cc.AccountType,
		OldPosition: cc.Position,
		NewPosition: cc.Position,
		State:       domain.PollStateIdle,
		Initial:     cc.Initial(),
		Actions:     make(map[domain.Action]int),
		StartedAt:   time.Now(),
	}

	fail := func(err error) (*domain.CycleReport, error) {
		if ctx.Err() != nil {
			report.Cancelled = true
		}
		report.State = domain.PollStateFailed
		report.Error = err.Error()
		o.setState(cc.AccountID, domain.PollStateFailed)
		return report, err
	}

	o.setState(cc.AccountID, domain.PollStateFetching)
	conn, err := o.connectors.Get(ctx, account)
	if err != nil {
		return fail(domain.NewPollError(classifyConnectorError(err), cc.AccountID, "", "connector.create", err))
	}

	in := NormalizeInput{}
	if resolver, ok := conn.(driven.ParentResolver); ok {
		in.Parents = NewParentCache(resolver)
	}
	if inspector, ok := conn.(driven.DeletionInspector); ok {
		in.Inspector = inspector
	}

	position := cc.Position
	for {
		o.setState(cc.AccountID, domain.PollStateFetching)
		batch, err := o.fetch(ctx, report, account, func() (*domain.FeedBatch, error) {
			return conn.Poll(ctx, position)
		})
		if err != nil {
			return fail(domain.NewPollError(nil, cc.AccountID, "", "feed.poll", err))
		}
		report.Batches++

		items := batch.Items
		if batch.NeedsEnumeration {
			enumerator, ok := conn.(driven.TreeEnumerator)
			if !ok {
				err := domain.Fatal(fmt.Errorf("%s feed requested enumeration but cannot enumerate", account.Type))
				return fail(domain.NewPollError(domain.ErrFatalProvider, cc.AccountID, "", "feed.enumerate", err))
			}
			listed, err := o.fetch(ctx, report, account, func() (*domain.FeedBatch, error) {
				all, err := enumerator.Enumerate(ctx)
				if err != nil {
					return nil, err
				}
				return &domain.FeedBatch{Items: all}, nil
			})
			if err != nil {
				return fail(domain.NewPollError(nil, cc.AccountID, "", "feed.enumerate", err))
			}
			for _, item := range listed.Items {
				item.IsFirstSync = true
				items = append(items, item)
			}
		}

		o.setState(cc.AccountID, domain.PollStateNormalizing)
		records := o.normalizeAll(ctx, account, items, in, report)

		o.setState(cc.AccountID, domain.PollStateDispatching)
		for _, rec := range records {
			if ctx.Err() != nil {
				return fail(fmt.Errorf("cycle interrupted: %w", ctx.Err()))
			}
			derr := o.router.Dispatch(ctx, rec)
			o.observer.Dispatched(account.Type, rec.Action, derr)
			report.Actions[rec.Action]++
			if derr != nil {
				report.HandlerErrors++
			}
		}

		if batch.NewPosition != "" {
			if batch.HasMore && batch.NewPosition == position {
				err := domain.Fatal(fmt.Errorf("feed reported more changes without advancing position"))
				return fail(domain.NewPollError(domain.ErrFatalProvider, cc.AccountID, "", "feed.poll", err))
			}
			position = batch.NewPosition
		} else if batch.HasMore {
			err := domain.Fatal(fmt.Errorf("feed reported more changes without a position"))
			return fail(domain.NewPollError(domain.ErrFatalProvider, cc.AccountID, "", "feed.poll", err))
		}
		if !batch.HasMore {
			break
		}
	}

	if ctx.Err() != nil {
		return fail(fmt.Errorf("cycle interrupted: %w", ctx.Err()))
	}

	o.setState(cc.AccountID, domain.PollStateCommitting)
	if position != cc.Position {
		if err := o.positions.Commit(ctx, cc.AccountID, position); err != nil {
			return fail(fmt.Errorf("commit position: %w", err))
		}
		report.Committed = true
		report.NewPosition = position
	}

	report.State = domain.PollStateIdle
	o.setState(cc.AccountID, domain.PollStateIdle)
	return report, nil
}

// fetch runs one provider call, retrying transient errors with backoff
// against the same position. Fatal errors and cancellation stop at once.
func (o *PollOrchestrator) fetch(
	ctx context.Context,
	report *domain.CycleReport,
	account domain.Account,
	call func() (*domain.FeedBatch, error),
) (*domain.FeedBatch, error) {
	op := func() (*domain.FeedBatch, error) {
		report.Attempts++
		batch, err := call()
		o.observer.FetchAttempt(account.Type, err)
		if err == nil {
			if batch == nil {
				return nil, backoff.Permanent(domain.Fatal(errors.New("feed returned no batch")))
			}
			return batch, nil
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(fmt.Errorf("%w: %w", err, ctx.Err()))
		}
		if errors.Is(err, domain.ErrFatalProvider) {
			return nil, backoff.Permanent(err)
		}
		logger.Warnw("transient provider error",
			"account_id", account.ID, "attempt", report.Attempts,
			"class", "transient", "error", err)
		return nil, err
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(o.newBackOff()),
		backoff.WithMaxTries(uint(o.settings.MaxAttempts)),
	)
}

// normalizeAll maps items to records in provider order, skipping drops.
func (o *PollOrchestrator) normalizeAll(
	ctx context.Context,
	account domain.Account,
	items []domain.RawChangeItem,
	in NormalizeInput,
	report *domain.CycleReport,
) []domain.ActionRecord {
	records := make([]domain.ActionRecord, 0, len(items))
	for _, item := range items {
		rec, ok, err := o.normalizer.Normalize(ctx, account, item, in)
		switch {
		case err != nil:
			report.Dropped++
			o.observer.Dropped(account.Type, DropNormalization)
			logger.Warnw("skipping item",
				"account_id", account.ID, "source_id", item.ID,
				"class", "normalization", "error", err)
		case !ok:
			report.Dropped++
			reason := DropUnknownEvent
			if item.IsFirstSync && (item.Event.IsDeletion() || item.Kind == domain.ItemKindDeleted) {
				reason = DropDeletedInitial
			}
			o.observer.Dropped(account.Type, reason)
		default:
			records = append(records, rec)
		}
	}
	return records
}

// PollAll runs one cycle per account with bounded parallelism.
func (o *PollOrchestrator) PollAll(ctx context.Context) ([]domain.CycleReport, error) {
	accounts, err := o.accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	reports := make([]domain.CycleReport, len(accounts))
	var g errgroup.Group
	g.SetLimit(o.settings.Concurrency)
	for i := range accounts {
		account := accounts[i]
		g.Go(func() error {
			report, err := o.Poll(ctx, account.ID)
			if report != nil {
				reports[i] = *report
				return nil
			}
			reports[i] = domain.CycleReport{
				AccountID:   account.ID,
				AccountType: account.Type,
				State:       domain.PollStateIdle,
				Error:       err.Error(),
			}
			if !errors.Is(err, domain.ErrPollInProgress) {
				reports[i].State = domain.PollStateFailed
			}
			return nil
		})
	}
	_ = g.Wait()

	return reports, nil
}

// Status returns the poll state of an account.
func (o *PollOrchestrator) Status(ctx context.Context, accountID string) (*domain.AccountStatus, error) {
	account, err := o.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if position, err := o.positions.Get(ctx, accountID); err == nil {
		account.Position = position
	}

	o.mu.Lock()
	status := &domain.AccountStatus{
		Account: *account,
		Running: o.running[accountID],
		State:   domain.PollStateIdle,
	}
	state, seen := o.states[accountID]
	if seen {
		status.State = state
	}
	r, ok := o.reports[accountID]
	o.mu.Unlock()

	if ok {
		status.LastReport = &r
	} else if recent, err := o.History(ctx, accountID, 1); err == nil && len(recent) == 1 {
		status.LastReport = &recent[0]
		if !seen {
			status.State = recent[0].State
		}
	}
	return status, nil
}

// History returns recorded cycles, or none when no history is configured.
func (o *PollOrchestrator) History(ctx context.Context, accountID string, limit int) ([]domain.CycleReport, error) {
	if o.history == nil {
		return nil, nil
	}
	if _, err := o.accounts.Get(ctx, accountID); err != nil {
		return nil, err
	}
	return o.history.Recent(ctx, accountID, limit)
}

// begin marks an account running. It reports false when a cycle of the
// account is already in progress.
func (o *PollOrchestrator) begin(accountID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running[accountID] {
		return false
	}
	o.running[accountID] = true
	return true
}

func (o *PollOrchestrator) end(accountID string) {
	o.mu.Lock()
	delete(o.running, accountID)
	o.mu.Unlock()
}

func (o *PollOrchestrator) setState(accountID string, state domain.PollState) {
	o.mu.Lock()
	o.states[accountID] = state
	o.mu.Unlock()
}

// classifyConnectorError treats unclassified construction failures as
// configuration problems.
func classifyConnectorError(err error) error {
	if errors.Is(err, domain.ErrTransientProvider) {
		return domain.ErrTransientProvider
	}
	return domain.ErrFatalProvider
}

func logCycle(report *domain.CycleReport, err error) {
	fields := []any{
		"account_id", report.AccountID,
		"cycle_id", report.CycleID,
		"state", string(report.State),
		"batches", report.Batches,
		"attempts", report.Attempts,
		"dispatched", report.Dispatched(),
		"dropped", report.Dropped,
		"handler_errors", report.HandlerErrors,
		"committed", report.Committed,
		"duration", report.Duration(),
	}
	switch {
	case err == nil:
		logger.Infow("poll cycle finished", fields...)
	case report.Cancelled:
		logger.Warnw("poll cycle cancelled", append(fields, "error", err)...)
	default:
		logger.Errorw("poll cycle failed", append(fields, "class", domain.ClassName(err), "error", err)...)
	}
}
