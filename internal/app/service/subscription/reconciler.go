package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	billingevent "github.com/fatflowers/paysync/internal/app/service/billing_event"
	"github.com/fatflowers/paysync/internal/app/service/ledger"
	"github.com/fatflowers/paysync/internal/models"
	"github.com/fatflowers/paysync/internal/platform/processor"
	"github.com/fatflowers/paysync/pkg/config"
	"github.com/fatflowers/paysync/pkg/logctx"
	"github.com/fatflowers/paysync/pkg/types"
)

// Result describes what applying one event did.
type Result struct {
	Outcome types.EventOutcome
	// Subscription is the row after the change, when one was written.
	Subscription *models.Subscription
	Reason       types.SubscriptionChangeReason
	// Problem is an absorbed, non-retryable condition such as an incomplete
	// or unresolvable event. It is reported, never retried.
	Problem error
}

// ChangeHook observes committed subscription changes. Hooks run after the
// transaction commits and must not write billing state.
type ChangeHook func(ctx context.Context, before, after *models.Subscription, reason types.SubscriptionChangeReason)

// Reconciler is the only writer of subscription rows and
// users.subscription_status.
type Reconciler struct {
	db         *gorm.DB
	ledger     *ledger.Ledger
	processor  processor.Client
	log        *zap.SugaredLogger
	apiTimeout time.Duration
	now        func() time.Time
	hooks      []ChangeHook
}

func NewReconciler(cfg *config.Config, db *gorm.DB, l *ledger.Ledger, pc processor.Client, log *zap.SugaredLogger) *Reconciler {
	return &Reconciler{
		db:         db,
		ledger:     l,
		processor:  pc,
		log:        log,
		apiTimeout: cfg.Stripe.APITimeout,
		now:        time.Now,
	}
}

// OnChange registers a hook for committed changes.
func (r *Reconciler) OnChange(h ChangeHook) {
	r.hooks = append(r.hooks, h)
}

type change struct {
	before, after *models.Subscription
	reason        types.SubscriptionChangeReason
}

// Apply reconciles one verified event. Only transient failures are returned
// as errors; every other condition is folded into Result.
//
// Outbound processor calls happen before the transaction. Inside it, the
// ledger claim, the row lock and every write commit or roll back together.
func (r *Reconciler) Apply(ctx context.Context, ev billingevent.Event) (*Result, error) {
	meta := ev.EventMeta()
	log := logctx.FromCtx(ctx, r.log).With("event_id", meta.ID, "event_type", meta.Type)

	if _, ok := ev.(*billingevent.Unrecognized); ok {
		return &Result{Outcome: types.EventOutcomeIgnored}, nil
	}

	lk, res, err := r.prefetch(ctx, ev)
	if err != nil || res != nil {
		return res, err
	}

	var ch *change
	res = &Result{}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		adm, err := r.ledger.TryBeginProcessing(ctx, tx, meta.ID, meta.Type)
		if err != nil {
			return err
		}
		if adm == ledger.AlreadyProcessed {
			res.Outcome = types.EventOutcomeDuplicate
			return nil
		}

		switch e := ev.(type) {
		case *billingevent.CheckoutCompleted:
			ch, err = r.applyCheckout(ctx, tx, e, lk, res)
		case *billingevent.InvoicePaymentSucceeded:
			ch, err = r.applyInvoice(ctx, tx, e, lk, res)
		case *billingevent.SubscriptionUpdated:
			ch, err = r.applyUpdated(ctx, tx, e, res)
		case *billingevent.SubscriptionDeleted:
			ch, err = r.applyDeleted(ctx, tx, e, res)
		default:
			return fmt.Errorf("unhandled event %T", ev)
		}
		if err != nil {
			return err
		}
		return r.ledger.SetOutcome(ctx, tx, meta.ID, res.Outcome)
	})
	if err != nil {
		log.Errorw("reconcile_failed", "err", err)
		return nil, types.NewTransient(types.TransientStorage, err)
	}

	switch res.Outcome {
	case types.EventOutcomeDuplicate:
		log.Infow("reconcile_duplicate")
	case types.EventOutcomeDeferred:
		if lk.rejected != nil {
			log.Errorw("reconcile_deferred_manual_review", "external_subscription_id", billingevent.SubscriptionRef(ev), "problem", res.Problem)
			break
		}
		log.Warnw("reconcile_deferred_not_found", "external_subscription_id", billingevent.SubscriptionRef(ev), "problem", res.Problem)
	case types.EventOutcomeIncomplete:
		log.Warnw("reconcile_incomplete", "problem", res.Problem)
	case types.EventOutcomeStale:
		log.Infow("reconcile_stale", "external_subscription_id", billingevent.SubscriptionRef(ev))
	default:
		log.Infow("reconcile_applied", "external_subscription_id", billingevent.SubscriptionRef(ev), "reason", res.Reason)
	}

	r.notify(ctx, ch)
	return res, nil
}

// lookup is the outcome of the pre-transaction processor call. A nil snap
// with a nil rejected error means the processor does not know the
// subscription.
type lookup struct {
	snap     *processor.SubscriptionSnapshot
	rejected error
}

// prefetch retrieves the processor snapshot for events that need one. A
// non-nil Result short-circuits Apply.
func (r *Reconciler) prefetch(ctx context.Context, ev billingevent.Event) (*lookup, *Result, error) {
	var externalID string
	switch e := ev.(type) {
	case *billingevent.CheckoutCompleted:
		if e.UserRef == "" || e.ExternalSubscriptionID == "" {
			return &lookup{}, nil, nil
		}
		externalID = e.ExternalSubscriptionID
	case *billingevent.InvoicePaymentSucceeded:
		// An invoice for an unknown subscription is deferred without asking
		// the processor.
		exists, err := r.exists(ctx, e.ExternalSubscriptionID)
		if err != nil {
			return nil, nil, types.NewTransient(types.TransientStorage, err)
		}
		if !exists {
			return &lookup{}, nil, nil
		}
		externalID = e.ExternalSubscriptionID
	default:
		return &lookup{}, nil, nil
	}

	// Redeliveries of committed events skip the outbound call. The ledger
	// claim inside the transaction still decides.
	meta := ev.EventMeta()
	if seen, err := r.ledger.Seen(ctx, meta.ID); err == nil && seen {
		return nil, &Result{Outcome: types.EventOutcomeDuplicate}, nil
	}

	snap, err := r.retrieve(ctx, externalID)
	switch {
	case err == nil:
		return &lookup{snap: snap}, nil, nil
	case errors.Is(err, processor.ErrNotFound):
		// Handled per event inside the transaction.
		return &lookup{}, nil, nil
	case types.IsTransient(err):
		return nil, nil, err
	default:
		return &lookup{rejected: err}, nil, nil
	}
}

// retrieve calls the processor. Timeouts and unavailability come back as
// transient errors; anything else is permanent and returned as is.
func (r *Reconciler) retrieve(ctx context.Context, externalID string) (*processor.SubscriptionSnapshot, error) {
	if r.apiTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.apiTimeout)
		defer cancel()
	}
	snap, err := r.processor.RetrieveSubscription(ctx, externalID)
	if err == nil {
		return snap, nil
	}
	switch {
	case errors.Is(err, processor.ErrNotFound):
		return nil, err
	case errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil:
		return nil, types.NewTransient(types.TransientCollaboratorTimeout, err)
	case processor.IsUnavailable(err):
		return nil, types.NewTransient(types.TransientCollaboratorUnavailable, err)
	default:
		return nil, err
	}
}

func (r *Reconciler) exists(ctx context.Context, externalID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("external_subscription_id = ?", externalID).
		Count(&count).Error
	return count > 0, err
}

func (r *Reconciler) applyCheckout(ctx context.Context, tx *gorm.DB, e *billingevent.CheckoutCompleted, lk *lookup, res *Result) (*change, error) {
	var missing []string
	if e.UserRef == "" {
		missing = append(missing, "user_ref")
	}
	if e.ExternalSubscriptionID == "" {
		missing = append(missing, "external_subscription_id")
	}
	if len(missing) > 0 {
		res.Outcome = types.EventOutcomeIncomplete
		res.Problem = &types.IncompleteEventError{EventID: e.ID, Missing: missing}
		return nil, recordDeferred(ctx, tx, e.Meta, e.ExternalSubscriptionID,
			models.DeferredReasonIncomplete, models.DeferredStatusManualReview, e, res.Problem)
	}
	if lk.rejected != nil {
		return nil, r.deferRejected(ctx, tx, e, e.ExternalSubscriptionID, lk.rejected, res)
	}
	snap := lk.snap
	if snap == nil {
		// The processor does not know the subscription it just completed a
		// checkout for; retry the lookup out of band.
		res.Outcome = types.EventOutcomeDeferred
		res.Problem = &types.ReferentialNotFoundError{ExternalSubscriptionID: e.ExternalSubscriptionID}
		return nil, recordDeferred(ctx, tx, e.Meta, e.ExternalSubscriptionID,
			models.DeferredReasonRemoteNotFound, models.DeferredStatusPending, e, res.Problem)
	}

	existing, err := lockByExternalID(ctx, tx, e.ExternalSubscriptionID)
	if err != nil {
		return nil, err
	}
	if existing.IsStale(e.CreatedAt) {
		res.Outcome = types.EventOutcomeStale
		return nil, nil
	}

	after := clone(existing)
	if after == nil {
		after = &models.Subscription{ExternalSubscriptionID: e.ExternalSubscriptionID}
	}
	after.UserID = e.UserRef
	applySnapshot(after, snap)
	touch(after, e.CreatedAt)

	if err := save(ctx, tx, existing, after, e.ID, types.SubscriptionChangeReasonCheckout); err != nil {
		return nil, err
	}
	if err := setUserStatus(ctx, tx, e.UserRef, after.Status); err != nil {
		return nil, err
	}
	res.Outcome = types.EventOutcomeApplied
	res.Subscription = after
	res.Reason = types.SubscriptionChangeReasonCheckout
	return &change{before: existing, after: after, reason: res.Reason}, nil
}

func (r *Reconciler) applyInvoice(ctx context.Context, tx *gorm.DB, e *billingevent.InvoicePaymentSucceeded, lk *lookup, res *Result) (*change, error) {
	existing, err := r.lockOrDefer(ctx, tx, e, e.ExternalSubscriptionID, res)
	if existing == nil || err != nil {
		return nil, err
	}
	if lk.rejected != nil {
		return nil, r.deferRejected(ctx, tx, e, e.ExternalSubscriptionID, lk.rejected, res)
	}
	snap := lk.snap

	after := clone(existing)
	if existing.IsStale(e.CreatedAt) {
		// A late payment still advances last_payment_at; it is monotonic and
		// carries no status.
		if existing.LastPaymentAt != nil && !e.PaidAt.After(*existing.LastPaymentAt) {
			res.Outcome = types.EventOutcomeStale
			return nil, nil
		}
		after.LastPaymentAt = &e.PaidAt
		res.Outcome = types.EventOutcomeStale
	} else {
		if snap != nil {
			after.Status = snap.Status
			after.EndsAt = snap.EndsAt
		} else if e.PeriodEnd != nil {
			after.EndsAt = e.PeriodEnd
		}
		after.LastPaymentAt = &e.PaidAt
		touch(after, e.CreatedAt)
		res.Outcome = types.EventOutcomeApplied
	}

	if err := save(ctx, tx, existing, after, e.ID, types.SubscriptionChangeReasonPayment); err != nil {
		return nil, err
	}
	res.Subscription = after
	res.Reason = types.SubscriptionChangeReasonPayment
	return &change{before: existing, after: after, reason: res.Reason}, nil
}

func (r *Reconciler) applyUpdated(ctx context.Context, tx *gorm.DB, e *billingevent.SubscriptionUpdated, res *Result) (*change, error) {
	existing, err := r.lockOrDefer(ctx, tx, e, e.ExternalSubscriptionID, res)
	if existing == nil || err != nil {
		return nil, err
	}
	if existing.IsStale(e.CreatedAt) {
		res.Outcome = types.EventOutcomeStale
		return nil, nil
	}

	after := clone(existing)
	after.Status = e.Status
	after.Plan = e.Plan
	after.Amount = types.MinorToMajor(e.AmountMinorUnits, e.Currency)
	if e.Currency != "" {
		after.Currency = e.Currency
	}
	after.StartedAt = e.StartedAt
	after.EndsAt = e.EndsAt
	touch(after, e.CreatedAt)

	if err := save(ctx, tx, existing, after, e.ID, types.SubscriptionChangeReasonUpdate); err != nil {
		return nil, err
	}
	res.Outcome = types.EventOutcomeApplied
	res.Subscription = after
	res.Reason = types.SubscriptionChangeReasonUpdate
	return &change{before: existing, after: after, reason: res.Reason}, nil
}

func (r *Reconciler) applyDeleted(ctx context.Context, tx *gorm.DB, e *billingevent.SubscriptionDeleted, res *Result) (*change, error) {
	existing, err := r.lockOrDefer(ctx, tx, e, e.ExternalSubscriptionID, res)
	if existing == nil || err != nil {
		return nil, err
	}
	if existing.IsStale(e.CreatedAt) {
		res.Outcome = types.EventOutcomeStale
		return nil, nil
	}

	now := r.now().UTC()
	after := clone(existing)
	after.Status = types.SubscriptionStatusCanceled
	after.EndsAt = &now
	touch(after, e.CreatedAt)

	if err := save(ctx, tx, existing, after, e.ID, types.SubscriptionChangeReasonCancel); err != nil {
		return nil, err
	}
	res.Outcome = types.EventOutcomeApplied
	res.Subscription = after
	res.Reason = types.SubscriptionChangeReasonCancel
	return &change{before: existing, after: after, reason: res.Reason}, nil
}

// lockOrDefer returns the locked row, or records the event as deferred and
// returns nil when the subscription is unknown locally.
func (r *Reconciler) lockOrDefer(ctx context.Context, tx *gorm.DB, ev billingevent.Event, externalID string, res *Result) (*models.Subscription, error) {
	existing, err := lockByExternalID(ctx, tx, externalID)
	if err != nil || existing != nil {
		return existing, err
	}
	res.Outcome = types.EventOutcomeDeferred
	res.Problem = &types.ReferentialNotFoundError{ExternalSubscriptionID: externalID}
	return nil, recordDeferred(ctx, tx, ev.EventMeta(), externalID,
		models.DeferredReasonNotFound, models.DeferredStatusPending, ev, res.Problem)
}

// deferRejected parks an event whose processor lookup failed permanently.
// Retrying would get the same answer, so it goes straight to manual review.
func (r *Reconciler) deferRejected(ctx context.Context, tx *gorm.DB, ev billingevent.Event, externalID string, cause error, res *Result) error {
	res.Outcome = types.EventOutcomeDeferred
	res.Problem = cause
	return recordDeferred(ctx, tx, ev.EventMeta(), externalID,
		models.DeferredReasonRemoteRejected, models.DeferredStatusManualReview, ev, cause)
}

func applySnapshot(s *models.Subscription, snap *processor.SubscriptionSnapshot) {
	s.Status = snap.Status
	s.Plan = snap.Plan
	s.Amount = types.MinorToMajor(snap.AmountMinorUnits, snap.Currency)
	s.Currency = snap.Currency
	s.StartedAt = snap.StartedAt
	s.EndsAt = snap.EndsAt
}

// touch advances last_event_at; it never moves backwards.
func touch(s *models.Subscription, eventAt time.Time) {
	if eventAt.IsZero() {
		return
	}
	if s.LastEventAt == nil || eventAt.After(*s.LastEventAt) {
		t := eventAt.UTC()
		s.LastEventAt = &t
	}
}

func (r *Reconciler) notify(ctx context.Context, ch *change) {
	if ch == nil || len(r.hooks) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, h := range r.hooks {
		h(ctx, ch.before, ch.after, ch.reason)
	}
}
