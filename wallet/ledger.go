package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/warp/card-wallet/generic"
)

// =============================================================================
// USAGE LEDGER - Validated, committed usage transitions
// =============================================================================
//
// Every mutation follows the same flow:
//
//   1. Resolve card, benefit, holding and period. Reject bad input here,
//      before any network call.
//   2. Stage the new record in State (pending layer). Readers see it now.
//   3. Call the Committer with a bounded timeout.
//   4. Success: promote to confirmed. Failure: drop the pending entry so
//      readers see the last confirmed value again.
//
// At most one request per target is outstanding. A second call for the same
// target while the first is waiting fails fast with ErrInFlight.

// DefaultCommitTimeout bounds each Committer call.
const DefaultCommitTimeout = 15 * time.Second

// DefaultBatchConcurrency caps parallel sub-requests in MarkFullToDate.
const DefaultBatchConcurrency = 4

const opMarkFullToDate = "mark-full-to-date"

// IgnoreGuard decides when ignoring a benefit is refused.
type IgnoreGuard string

const (
	// GuardNone allows ignoring regardless of usage.
	GuardNone IgnoreGuard = "none"
	// GuardCurrentPeriod refuses when the current period has usage.
	GuardCurrentPeriod IgnoreGuard = "current_period"
	// GuardYearToDate refuses when the current period or any period of the
	// year has usage.
	GuardYearToDate IgnoreGuard = "year_to_date"
)

func ParseIgnoreGuard(s string) (IgnoreGuard, error) {
	switch g := IgnoreGuard(s); g {
	case "":
		return GuardYearToDate, nil
	case GuardNone, GuardCurrentPeriod, GuardYearToDate:
		return g, nil
	default:
		return "", &generic.ValidationError{Field: "ignore_guard", Message: "expected none, current_period or year_to_date", Value: s}
	}
}

// BatchResult reports what MarkFullToDate changed.
type BatchResult struct {
	TotalAdded generic.Money
	Affected   []generic.PeriodKey
	Failed     []generic.PeriodKey
}

type UsageLedger struct {
	catalog     *Catalog
	state       *State
	committer   generic.Committer
	guard       IgnoreGuard
	timeout     time.Duration
	concurrency int
	now         func() generic.Date
	logger      *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

type LedgerOption func(*UsageLedger)

func WithIgnoreGuard(g IgnoreGuard) LedgerOption {
	return func(l *UsageLedger) { l.guard = g }
}

func WithCommitTimeout(d time.Duration) LedgerOption {
	return func(l *UsageLedger) {
		if d > 0 {
			l.timeout = d
		}
	}
}

func WithBatchConcurrency(n int) LedgerOption {
	return func(l *UsageLedger) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

// WithClock replaces the source of "today".
func WithClock(now func() generic.Date) LedgerOption {
	return func(l *UsageLedger) { l.now = now }
}

func WithLogger(logger *slog.Logger) LedgerOption {
	return func(l *UsageLedger) { l.logger = logger }
}

func NewUsageLedger(catalog *Catalog, state *State, committer generic.Committer, opts ...LedgerOption) *UsageLedger {
	l := &UsageLedger{
		catalog:     catalog,
		state:       state,
		committer:   committer,
		guard:       GuardYearToDate,
		timeout:     DefaultCommitTimeout,
		concurrency: DefaultBatchConcurrency,
		now:         generic.Today,
		logger:      slog.Default(),
		inflight:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *UsageLedger) Guard() IgnoreGuard { return l.guard }

// =============================================================================
// TRANSITIONS
// =============================================================================

// LogUsage overwrites the used amount of one period.
func (l *UsageLedger) LogUsage(ctx context.Context, cardID generic.CardID, benefit generic.BenefitIndex, key generic.PeriodKey, amount generic.Money) (UsageRecord, error) {
	t, err := l.resolve(cardID, benefit, key)
	if err != nil {
		return UsageRecord{}, err
	}
	next, err := t.record.LogUsage(amount, t.period.MaxValue)
	if err != nil {
		return UsageRecord{}, err
	}
	update := generic.UsageUpdate{Amount: amount, PeriodKey: key, IsFull: next.Status == StatusFull}
	if err := l.commitUsage(ctx, t.key, next, update); err != nil {
		return UsageRecord{}, err
	}
	return next, nil
}

// MarkFull sets one period to its maximum.
func (l *UsageLedger) MarkFull(ctx context.Context, cardID generic.CardID, benefit generic.BenefitIndex, key generic.PeriodKey) (UsageRecord, error) {
	t, err := l.resolve(cardID, benefit, key)
	if err != nil {
		return UsageRecord{}, err
	}
	next := t.record.MarkFull(t.period.MaxValue)
	update := generic.UsageUpdate{Amount: next.Used, PeriodKey: key, IsFull: true}
	if err := l.commitUsage(ctx, t.key, next, update); err != nil {
		return UsageRecord{}, err
	}
	return next, nil
}

// Reset clears one period. The ignore flag is untouched.
func (l *UsageLedger) Reset(ctx context.Context, cardID generic.CardID, benefit generic.BenefitIndex, key generic.PeriodKey) (UsageRecord, error) {
	t, err := l.resolve(cardID, benefit, key)
	if err != nil {
		return UsageRecord{}, err
	}
	next := t.record.Reset()
	update := generic.UsageUpdate{Amount: generic.Zero, PeriodKey: key}
	if err := l.commitUsage(ctx, t.key, next, update); err != nil {
		return UsageRecord{}, err
	}
	return next, nil
}

// ToggleIgnore flips the benefit's ignore flag and returns the new value.
// Turning ignore on is subject to the configured guard.
func (l *UsageLedger) ToggleIgnore(ctx context.Context, cardID generic.CardID, benefit generic.BenefitIndex) (bool, error) {
	_, b, err := l.catalog.Lookup(cardID, benefit)
	if err != nil {
		return false, err
	}
	h, ok := l.state.Holding(cardID)
	if !ok {
		return false, &generic.NotFoundError{Kind: "holding", ID: string(cardID)}
	}

	usage := h.Usage(benefit)
	next := !usage.IsIgnored
	key := generic.UsageKey{CardID: cardID, BenefitIndex: benefit}
	if next {
		if err := l.checkGuard(key, h, b, usage); err != nil {
			return usage.IsIgnored, err
		}
	}

	release, err := l.acquire(generic.OpToggleIgnore, key)
	if err != nil {
		return usage.IsIgnored, err
	}
	defer release()

	pk := pendingKey{kind: pendingIgnore, key: key}
	token := l.state.stage(pk, pendingEntry{ignored: next})
	err = l.call(ctx, generic.OpToggleIgnore, func(ctx context.Context) error {
		return l.committer.ToggleIgnore(ctx, cardID, benefit, next)
	})
	if err != nil {
		l.state.rollback(pk, token)
		l.logger.Warn("toggle ignore failed", "key", key.String(), "ignored", next, "error", err)
		return usage.IsIgnored, err
	}
	l.state.confirm(pk, token)
	l.logger.Info("benefit ignore toggled", "key", key.String(), "ignored", next)
	return next, nil
}

func (l *UsageLedger) checkGuard(key generic.UsageKey, h Holding, b Benefit, usage BenefitUsage) error {
	if l.guard == GuardNone {
		return nil
	}
	now := l.now()
	periods := generic.GeneratePeriods(b.Entitlement(), h.AnniversaryDate, now)
	if cur, ok := generic.CurrentPeriod(periods); ok && usage.Record(cur.Key).Used.IsPositive() {
		key.PeriodKey = cur.Key
		return &generic.StateConflictError{Key: key, Reason: "current period has usage; reset it before ignoring"}
	}
	if l.guard == GuardYearToDate && usage.UsedInYear(now.Year()).IsPositive() {
		return &generic.StateConflictError{Key: key, Reason: "benefit has usage this year; reset it before ignoring"}
	}
	return nil
}

// MarkFullToDate marks every period from January through the current one as
// full, skipping periods already full, worth nothing, or unavailable. One
// request per period is issued concurrently. Successful periods stay
// committed even when others fail; the failures come back as a
// *generic.BatchError alongside the partial result.
func (l *UsageLedger) MarkFullToDate(ctx context.Context, cardID generic.CardID, benefit generic.BenefitIndex) (BatchResult, error) {
	result := BatchResult{TotalAdded: generic.Zero}

	_, b, err := l.catalog.Lookup(cardID, benefit)
	if err != nil {
		return result, err
	}
	h, ok := l.state.Holding(cardID)
	if !ok {
		return result, &generic.NotFoundError{Kind: "holding", ID: string(cardID)}
	}

	batchKey := generic.UsageKey{CardID: cardID, BenefitIndex: benefit}
	release, err := l.acquire(opMarkFullToDate, batchKey)
	if err != nil {
		return result, err
	}
	defer release()

	now := l.now()
	usage := h.Usage(benefit)
	var targets []target
	for _, p := range generic.PeriodsToDate(generic.GeneratePeriods(b.Entitlement(), h.AnniversaryDate, now)) {
		r := usage.Record(p.Key)
		if r.Status == StatusFull || !p.MaxValue.IsPositive() || !p.IsAvailable {
			continue
		}
		key := batchKey
		key.PeriodKey = p.Key
		targets = append(targets, target{key: key, period: p, record: r})
	}
	if len(targets) == 0 {
		return result, nil
	}

	// Sub-requests never return an error to the group so one failure does
	// not cancel its siblings.
	errs := make([]error, len(targets))
	var g errgroup.Group
	g.SetLimit(l.concurrency)
	for i, t := range targets {
		g.Go(func() error {
			next := t.record.MarkFull(t.period.MaxValue)
			update := generic.UsageUpdate{Amount: next.Used, PeriodKey: t.key.PeriodKey, IsFull: true}
			errs[i] = l.commitUsage(ctx, t.key, next, update)
			return nil
		})
	}
	_ = g.Wait()

	var failed []error
	for i, t := range targets {
		if errs[i] != nil {
			result.Failed = append(result.Failed, t.period.Key)
			failed = append(failed, fmt.Errorf("%s: %w", t.period.Key, errs[i]))
			continue
		}
		result.Affected = append(result.Affected, t.period.Key)
		result.TotalAdded = result.TotalAdded.Add(t.record.Remaining(t.period.MaxValue))
	}

	l.logger.Info("marked full to date",
		"key", batchKey.String(),
		"affected", len(result.Affected),
		"failed", len(result.Failed),
		"total_added", result.TotalAdded.Display(),
	)
	if len(failed) > 0 {
		return result, &generic.BatchError{Op: opMarkFullToDate, Failed: len(failed), Total: len(targets), Errs: failed}
	}
	return result, nil
}

// =============================================================================
// INTERNALS
// =============================================================================

type target struct {
	key    generic.UsageKey
	period generic.Period
	record UsageRecord
}

// resolve validates a (card, benefit, period) reference against the catalog,
// the wallet and this year's generated periods.
func (l *UsageLedger) resolve(cardID generic.CardID, benefit generic.BenefitIndex, key generic.PeriodKey) (target, error) {
	_, b, err := l.catalog.Lookup(cardID, benefit)
	if err != nil {
		return target{}, err
	}
	if _, _, err := generic.ParsePeriodKey(string(key)); err != nil {
		return target{}, err
	}
	h, ok := l.state.Holding(cardID)
	if !ok {
		return target{}, &generic.NotFoundError{Kind: "holding", ID: string(cardID)}
	}

	p, ok := generic.FindPeriod(generic.GeneratePeriods(b.Entitlement(), h.AnniversaryDate, l.now()), key)
	if !ok {
		return target{}, &generic.ValidationError{Field: "period_key", Message: "not a period of this benefit in the current year", Value: string(key)}
	}
	if !p.IsAvailable {
		return target{}, &generic.ValidationError{Field: "period_key", Message: "period ended before the card was opened", Value: string(key)}
	}

	return target{
		key:    generic.UsageKey{CardID: cardID, BenefitIndex: benefit, PeriodKey: key},
		period: p,
		record: h.Usage(benefit).Record(key),
	}, nil
}

func (l *UsageLedger) commitUsage(ctx context.Context, key generic.UsageKey, next UsageRecord, update generic.UsageUpdate) error {
	release, err := l.acquire(generic.OpUpdateBenefit, key)
	if err != nil {
		return err
	}
	defer release()

	pk := pendingKey{kind: pendingUsage, key: key}
	token := l.state.stage(pk, pendingEntry{record: next})
	err = l.call(ctx, generic.OpUpdateBenefit, func(ctx context.Context) error {
		return l.committer.UpdateBenefit(ctx, key.CardID, key.BenefitIndex, update)
	})
	if err != nil {
		l.state.rollback(pk, token)
		l.logger.Warn("usage commit failed", "key", key.String(), "amount", update.Amount.Display(), "error", err)
		return err
	}
	l.state.confirm(pk, token)
	l.logger.Debug("usage committed", "key", key.String(), "used", next.Used.Display(), "status", string(next.Status))
	return nil
}

// acquire claims the in-flight slot for (op, key).
func (l *UsageLedger) acquire(op string, key generic.UsageKey) (func(), error) {
	slot := op + ":" + key.String()
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.inflight[slot]; busy {
		return nil, fmt.Errorf("%s %s: %w", op, key, generic.ErrInFlight)
	}
	l.inflight[slot] = struct{}{}
	return func() {
		l.mu.Lock()
		delete(l.inflight, slot)
		l.mu.Unlock()
	}, nil
}

// call runs fn under the commit timeout and normalizes its error.
func (l *UsageLedger) call(ctx context.Context, op string, fn func(context.Context) error) error {
	return commit(ctx, l.timeout, op, fn)
}

func commit(ctx context.Context, timeout time.Duration, op string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(ctx)
	if err == nil {
		return nil
	}

	var netErr *generic.NetworkError
	switch {
	case errors.As(err, &netErr), generic.IsClientError(err), generic.IsNotFound(err):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return &generic.NetworkError{Op: op, Message: "timed out", Retryable: true, Err: err}
	default:
		return &generic.NetworkError{Op: op, Err: err}
	}
}
