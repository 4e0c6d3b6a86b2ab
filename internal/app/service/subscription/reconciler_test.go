package subscription

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billingevent "github.com/fatflowers/paysync/internal/app/service/billing_event"
	"github.com/fatflowers/paysync/internal/app/service/ledger"
	"github.com/fatflowers/paysync/internal/models"
	"github.com/fatflowers/paysync/internal/platform/db/dbtest"
	"github.com/fatflowers/paysync/internal/platform/processor"
	"github.com/fatflowers/paysync/internal/platform/processor/processortest"
	"github.com/fatflowers/paysync/pkg/config"
	"github.com/fatflowers/paysync/pkg/types"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	r    *Reconciler
	db   *gorm.DB
	fake *processortest.Fake
}

func newFixture(t *testing.T) *fixture {
	gdb := dbtest.New(t)
	log := zap.NewNop().Sugar()
	fake := processortest.NewFake()
	cfg := &config.Config{Stripe: config.StripeConfig{APITimeout: 200 * time.Millisecond}}
	r := NewReconciler(cfg, gdb, ledger.New(gdb, log), fake, log)
	return &fixture{r: r, db: gdb, fake: fake}
}

func (f *fixture) putSub1() {
	f.fake.Put(&processor.SubscriptionSnapshot{
		ID:               "sub_1",
		Status:           types.SubscriptionStatusActive,
		Plan:             "premium",
		AmountMinorUnits: 2900,
		Currency:         "usd",
		StartedAt:        &t0,
		EndsAt:           ptr(t0.AddDate(0, 0, 30)),
	})
}

func ptr[T any](v T) *T { return &v }

func meta(id string, typ types.EventType, at time.Time) billingevent.Meta {
	return billingevent.Meta{ID: id, Type: typ, CreatedAt: at}
}

func checkout(id string, at time.Time) *billingevent.CheckoutCompleted {
	return &billingevent.CheckoutCompleted{
		Meta:                   meta(id, types.EventTypeCheckoutCompleted, at),
		UserRef:                "u1",
		ExternalSubscriptionID: "sub_1",
	}
}

func (f *fixture) sub(t *testing.T, externalID string) *models.Subscription {
	var s models.Subscription
	require.NoError(t, f.db.Where("external_subscription_id = ?", externalID).First(&s).Error)
	return &s
}

func (f *fixture) count(t *testing.T, model any) int64 {
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func (f *fixture) mustApply(t *testing.T, ev billingevent.Event) *Result {
	res, err := f.r.Apply(context.Background(), ev)
	require.NoError(t, err)
	return res
}

func TestApply_CheckoutCreatesSubscription(t *testing.T) {
	f := newFixture(t)
	f.putSub1()

	res := f.mustApply(t, checkout("evt_1", t0))
	require.Equal(t, types.EventOutcomeApplied, res.Outcome)

	s := f.sub(t, "sub_1")
	assert.Equal(t, "u1", s.UserID)
	assert.Equal(t, types.SubscriptionStatusActive, s.Status)
	assert.Equal(t, "premium", s.Plan)
	assert.True(t, decimal.RequireFromString("29.00").Equal(s.Amount), s.Amount.String())
	assert.Equal(t, t0.Unix(), s.StartedAt.Unix())
	assert.Equal(t, t0.AddDate(0, 0, 30).Unix(), s.EndsAt.Unix())
	assert.Equal(t, t0.Unix(), s.LastEventAt.Unix())

	var u models.User
	require.NoError(t, f.db.First(&u, "id = ?", "u1").Error)
	assert.Equal(t, types.SubscriptionStatusActive, u.SubscriptionStatus)

	assert.Equal(t, int64(1), f.count(t, &models.SubscriptionLog{}))
	assert.Equal(t, int64(1), f.count(t, &models.ProcessedEvent{}))
}

func TestApply_RedeliveryIsNoop(t *testing.T) {
	f := newFixture(t)
	f.putSub1()

	f.mustApply(t, checkout("evt_1", t0))
	before := f.sub(t, "sub_1")

	res := f.mustApply(t, checkout("evt_1", t0))
	require.Equal(t, types.EventOutcomeDuplicate, res.Outcome)
	// The fast path skips the processor call for a committed event.
	require.Equal(t, 1, f.fake.RetrieveCalls("sub_1"))

	after := f.sub(t, "sub_1")
	require.Equal(t, before.UpdatedAt, after.UpdatedAt)
	require.Equal(t, int64(1), f.count(t, &models.Subscription{}))
	require.Equal(t, int64(1), f.count(t, &models.SubscriptionLog{}))
}

func TestApply_DuplicateWithoutFastPathStillWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putSub1()
	f.mustApply(t, checkout("evt_1", t0))

	ev := &billingevent.SubscriptionDeleted{
		Meta:                   meta("evt_del", types.EventTypeSubscriptionDeleted, t0.Add(time.Hour)),
		ExternalSubscriptionID: "sub_1",
	}
	f.r.now = func() time.Time { return t0.Add(time.Hour) }
	_, err := f.r.Apply(ctx, ev)
	require.NoError(t, err)
	logs := f.count(t, &models.SubscriptionLog{})

	res, err := f.r.Apply(ctx, ev)
	require.NoError(t, err)
	require.Equal(t, types.EventOutcomeDuplicate, res.Outcome)
	require.Equal(t, logs, f.count(t, &models.SubscriptionLog{}))
}

func TestApply_CheckoutForExistingSubscriptionUpserts(t *testing.T) {
	f := newFixture(t)
	f.putSub1()
	f.mustApply(t, checkout("evt_1", t0))
	id := f.sub(t, "sub_1").ID

	res := f.mustApply(t, checkout("evt_1b", t0.Add(time.Minute)))
	require.Equal(t, types.EventOutcomeApplied, res.Outcome)
	require.Equal(t, id, f.sub(t, "sub_1").ID)
	require.Equal(t, int64(1), f.count(t, &models.Subscription{}))
}

func TestApply_IncompleteCheckoutIsFlagged(t *testing.T) {
	f := newFixture(t)
	ev := checkout("evt_inc", t0)
	ev.UserRef = ""

	res := f.mustApply(t, ev)
	require.Equal(t, types.EventOutcomeIncomplete, res.Outcome)
	var ie *types.IncompleteEventError
	require.ErrorAs(t, res.Problem, &ie)
	require.Equal(t, []string{"user_ref"}, ie.Missing)

	var d models.DeferredEvent
	require.NoError(t, f.db.First(&d, "external_event_id = ?", "evt_inc").Error)
	require.Equal(t, models.DeferredStatusManualReview, d.Status)
	require.Equal(t, models.DeferredReasonIncomplete, d.Reason)
	require.Zero(t, f.count(t, &models.Subscription{}))
	require.Zero(t, f.fake.RetrieveCalls("sub_1"))
}

func TestApply_CheckoutUnknownToProcessorIsDeferred(t *testing.T) {
	f := newFixture(t)
	res := f.mustApply(t, checkout("evt_1", t0))
	require.Equal(t, types.EventOutcomeDeferred, res.Outcome)

	var d models.DeferredEvent
	require.NoError(t, f.db.First(&d, "external_event_id = ?", "evt_1").Error)
	require.Equal(t, models.DeferredReasonRemoteNotFound, d.Reason)
	require.Equal(t, models.DeferredStatusPending, d.Status)
}

func TestApply_InvoiceForUnknownSubscriptionIsDeferred(t *testing.T) {
	f := newFixture(t)
	res := f.mustApply(t, &billingevent.InvoicePaymentSucceeded{
		Meta:                   meta("evt_inv", types.EventTypeInvoicePaymentSucceeded, t0),
		ExternalSubscriptionID: "sub_404",
		PaidAt:                 t0,
	})
	require.Equal(t, types.EventOutcomeDeferred, res.Outcome)
	var nf *types.ReferentialNotFoundError
	require.ErrorAs(t, res.Problem, &nf)

	var d models.DeferredEvent
	require.NoError(t, f.db.First(&d, "external_event_id = ?", "evt_inv").Error)
	require.Equal(t, models.DeferredReasonNotFound, d.Reason)
	require.Equal(t, "sub_404", d.ExternalSubscriptionID)
	require.Zero(t, f.count(t, &models.Subscription{}))
	require.Zero(t, f.fake.RetrieveCalls("sub_404"))
}

func TestApply_InvoiceRefreshesFromProcessor(t *testing.T) {
	f := newFixture(t)
	f.putSub1()
	f.mustApply(t, checkout("evt_1", t0))

	renewedEnd := t0.AddDate(0, 0, 60)
	f.fake.Put(&processor.SubscriptionSnapshot{
		ID: "sub_1", Status: types.SubscriptionStatusActive, Plan: "premium",
		AmountMinorUnits: 2900, Currency: "usd", EndsAt: &renewedEnd,
	})
	paid := t0.AddDate(0, 0, 30)
	res := f.mustApply(t, &billingevent.InvoicePaymentSucceeded{
		Meta:                   meta("evt_inv", types.EventTypeInvoicePaymentSucceeded, paid),
		ExternalSubscriptionID: "sub_1",
		PaidAt:                 paid,
	})
	require.Equal(t, types.EventOutcomeApplied, res.Outcome)

	s := f.sub(t, "sub_1")
	require.Equal(t, paid.Unix(), s.LastPaymentAt.Unix())
	require.Equal(t, renewedEnd.Unix(), s.EndsAt.Unix())
}

func TestApply_UpdateBeforeCheckoutIsDeferred(t *testing.T) {
	f := newFixture(t)
	res := f.mustApply(t, &billingevent.SubscriptionUpdated{
		Meta:                   meta("evt_upd", types.EventTypeSubscriptionUpdated, t0),
		ExternalSubscriptionID: "sub_1",
		Status:                 types.SubscriptionStatusActive,
		Plan:                   "premium",
	})
	require.Equal(t, types.EventOutcomeDeferred, res.Outcome)
	require.Zero(t, f.count(t, &models.Subscription{}))
	require.Equal(t, int64(1), f.count(t, &models.DeferredEvent{}))
}

func TestApply_UpdateOverwritesAndStaleIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.putSub1()
	f.mustApply(t, checkout("evt_1", t0))

	newer := &billingevent.SubscriptionUpdated{
		Meta:                   meta("evt_upd2", types.EventTypeSubscriptionUpdated, t0.Add(2*time.Hour)),
		ExternalSubscriptionID: "sub_1",
		Status:                 types.SubscriptionStatusPastDue,
		Plan:                   "team",
		AmountMinorUnits:       9900,
		Currency:               "usd",
		StartedAt:              &t0,
		EndsAt:                 ptr(t0.AddDate(0, 1, 0)),
	}
	require.Equal(t, types.EventOutcomeApplied, f.mustApply(t, newer).Outcome)

	older := *newer
	older.Meta = meta("evt_upd1", types.EventTypeSubscriptionUpdated, t0.Add(time.Hour))
	older.Status = types.SubscriptionStatusActive
	older.Plan = "premium"
	require.Equal(t, types.EventOutcomeStale, f.mustApply(t, &older).Outcome)

	s := f.sub(t, "sub_1")
	require.Equal(t, types.SubscriptionStatusPastDue, s.Status)
	require.Equal(t, "team", s.Plan)
	require.True(t, decimal.RequireFromString("99").Equal(s.Amount))
	require.Equal(t, t0.Add(2*time.Hour).Unix(), s.LastEventAt.Unix())

	var pe models.ProcessedEvent
	require.NoError(t, f.db.First(&pe, "external_event_id = ?", "evt_upd1").Error)
	require.Equal(t, types.EventOutcomeStale, pe.Outcome)
}

func TestApply_LatePaymentOnlyAdvancesLastPayment(t *testing.T) {
	f := newFixture(t)
	f.putSub1()
	f.mustApply(t, checkout("evt_1", t0.Add(time.Hour)))

	paid := t0.Add(30 * time.Minute)
	res := f.mustApply(t, &billingevent.InvoicePaymentSucceeded{
		Meta:                   meta("evt_inv", types.EventTypeInvoicePaymentSucceeded, t0),
		ExternalSubscriptionID: "sub_1",
		PaidAt:                 paid,
	})
	require.Equal(t, types.EventOutcomeStale, res.Outcome)

	s := f.sub(t, "sub_1")
	require.Equal(t, paid.Unix(), s.LastPaymentAt.Unix())
	require.Equal(t, t0.Add(time.Hour).Unix(), s.LastEventAt.Unix())
}

func TestApply_DeletedCancelsAndKeepsOtherFields(t *testing.T) {
	f := newFixture(t)
	f.putSub1()
	f.mustApply(t, checkout("evt_1", t0))
	before := f.sub(t, "sub_1")

	processedAt := t0.Add(48 * time.Hour)
	f.r.now = func() time.Time { return processedAt }
	res := f.mustApply(t, &billingevent.SubscriptionDeleted{
		Meta:                   meta("evt_del", types.EventTypeSubscriptionDeleted, t0.Add(47*time.Hour)),
		ExternalSubscriptionID: "sub_1",
	})
	require.Equal(t, types.EventOutcomeApplied, res.Outcome)

	s := f.sub(t, "sub_1")
	require.Equal(t, types.SubscriptionStatusCanceled, s.Status)
	require.Equal(t, processedAt.Unix(), s.EndsAt.Unix())
	require.Equal(t, before.StartedAt.Unix(), s.StartedAt.Unix())
	require.Equal(t, before.Plan, s.Plan)
	require.True(t, before.Amount.Equal(s.Amount))

	var u models.User
	require.NoError(t, f.db.First(&u, "id = ?", "u1").Error)
	require.Equal(t, types.SubscriptionStatusActive, u.SubscriptionStatus)
}

func TestApply_ProcessorTimeoutIsTransientAndLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	f.putSub1()
	f.fake.Delay = time.Second

	_, err := f.r.Apply(context.Background(), checkout("evt_1", t0))
	require.True(t, types.IsTransient(err))
	var te *types.TransientError
	require.ErrorAs(t, err, &te)
	require.Equal(t, types.TransientCollaboratorTimeout, te.Kind)
	require.Zero(t, f.count(t, &models.ProcessedEvent{}))

	f.fake.Delay = 0
	require.Equal(t, types.EventOutcomeApplied, f.mustApply(t, checkout("evt_1", t0)).Outcome)
}

func TestApply_UnsupportedRemoteStatusGoesToManualReview(t *testing.T) {
	f := newFixture(t)
	f.fake.Err = fmt.Errorf("%w: subscription sub_1: %w", processor.ErrRejected,
		fmt.Errorf("%w %q", types.ErrUnsupportedStatus, "paused"))

	res, err := f.r.Apply(context.Background(), checkout("evt_paused", t0))
	require.NoError(t, err)
	require.Equal(t, types.EventOutcomeDeferred, res.Outcome)
	require.ErrorIs(t, res.Problem, types.ErrUnsupportedStatus)
	require.Zero(t, f.count(t, &models.Subscription{}))

	var d models.DeferredEvent
	require.NoError(t, f.db.First(&d, "external_event_id = ?", "evt_paused").Error)
	require.Equal(t, models.DeferredStatusManualReview, d.Status)
	require.Equal(t, models.DeferredReasonRemoteRejected, d.Reason)
	require.NotNil(t, d.LastError)
	require.Contains(t, *d.LastError, "paused")

	var pe models.ProcessedEvent
	require.NoError(t, f.db.First(&pe, "external_event_id = ?", "evt_paused").Error)
	require.Equal(t, types.EventOutcomeDeferred, pe.Outcome)

	// Redelivery is a duplicate and does not call the processor again.
	calls := f.fake.RetrieveCalls("sub_1")
	require.Equal(t, types.EventOutcomeDuplicate, f.mustApply(t, checkout("evt_paused", t0)).Outcome)
	require.Equal(t, calls, f.fake.RetrieveCalls("sub_1"))
}

func TestApply_UnclassifiedProcessorErrorIsNotRetried(t *testing.T) {
	f := newFixture(t)
	f.putSub1()
	f.mustApply(t, checkout("evt_1", t0))
	f.fake.Err = fmt.Errorf("invalid request: unknown parameter")

	res, err := f.r.Apply(context.Background(), &billingevent.InvoicePaymentSucceeded{
		Meta:                   meta("evt_inv", types.EventTypeInvoicePaymentSucceeded, t0.Add(time.Hour)),
		ExternalSubscriptionID: "sub_1",
		PaidAt:                 t0.Add(time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, types.EventOutcomeDeferred, res.Outcome)

	var d models.DeferredEvent
	require.NoError(t, f.db.First(&d, "external_event_id = ?", "evt_inv").Error)
	require.Equal(t, models.DeferredStatusManualReview, d.Status)
	require.Nil(t, f.sub(t, "sub_1").LastPaymentAt)
}

func TestApply_ProcessorUnavailableIsTransient(t *testing.T) {
	f := newFixture(t)
	f.fake.Err = fmt.Errorf("%w: breaker open", processor.ErrUnavailable)

	_, err := f.r.Apply(context.Background(), checkout("evt_1", t0))
	var te *types.TransientError
	require.ErrorAs(t, err, &te)
	require.Equal(t, types.TransientCollaboratorUnavailable, te.Kind)
	require.Zero(t, f.count(t, &models.ProcessedEvent{}))
	require.Zero(t, f.count(t, &models.DeferredEvent{}))
}

func TestApply_ConcurrentSameEvent(t *testing.T) {
	f := newFixture(t)
	f.putSub1()

	const n = 2
	results := make([]*Result, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.r.Apply(context.Background(), checkout("evt_race", t0))
		}()
	}
	wg.Wait()

	applied := 0
	for i := range n {
		require.NoError(t, errs[i])
		switch results[i].Outcome {
		case types.EventOutcomeApplied:
			applied++
		default:
			require.Equal(t, types.EventOutcomeDuplicate, results[i].Outcome)
		}
	}
	require.Equal(t, 1, applied)
	require.Equal(t, int64(1), f.count(t, &models.Subscription{}))
	require.Equal(t, int64(1), f.count(t, &models.SubscriptionLog{}))
	require.Equal(t, int64(1), f.count(t, &models.ProcessedEvent{}))
}

func TestApply_UnrecognizedIsIgnored(t *testing.T) {
	f := newFixture(t)
	res := f.mustApply(t, &billingevent.Unrecognized{Meta: meta("evt_x", "customer.created", t0)})
	require.Equal(t, types.EventOutcomeIgnored, res.Outcome)
	require.Zero(t, f.count(t, &models.ProcessedEvent{}))
}

func TestApply_OnChangeHookRunsAfterCommit(t *testing.T) {
	f := newFixture(t)
	f.putSub1()

	var got []types.SubscriptionChangeReason
	f.r.OnChange(func(ctx context.Context, before, after *models.Subscription, reason types.SubscriptionChangeReason) {
		var n int64
		require.NoError(t, f.db.Model(&models.Subscription{}).Where("id = ?", after.ID).Count(&n).Error)
		require.Equal(t, int64(1), n)
		got = append(got, reason)
	})
	f.mustApply(t, checkout("evt_1", t0))
	f.mustApply(t, checkout("evt_1", t0))
	require.Equal(t, []types.SubscriptionChangeReason{types.SubscriptionChangeReasonCheckout}, got)
}

func TestApplySnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	snap := &processor.SubscriptionSnapshot{
		ID: "sub_9", Status: types.SubscriptionStatusTrialing, Plan: "premium",
		AmountMinorUnits: 500, Currency: "jpy",
	}

	res, err := f.r.ApplySnapshot(ctx, snap, "", nil)
	require.NoError(t, err)
	require.Equal(t, types.EventOutcomeDeferred, res.Outcome)
	require.Zero(t, f.count(t, &models.Subscription{}))

	called := false
	snap.UserRef = "u9"
	res, err = f.r.ApplySnapshot(ctx, snap, "", func(tx *gorm.DB) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, called)
	require.Equal(t, types.EventOutcomeApplied, res.Outcome)

	s := f.sub(t, "sub_9")
	require.Equal(t, "u9", s.UserID)
	require.True(t, decimal.NewFromInt(500).Equal(s.Amount))

	var u models.User
	require.NoError(t, f.db.First(&u, "id = ?", "u9").Error)
	require.Equal(t, types.SubscriptionStatusTrialing, u.SubscriptionStatus)
}

func TestApplySnapshot_EventsAfterRetrievalStillApply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.r.now = func() time.Time { return t0.Add(900 * time.Millisecond) }

	_, err := f.r.ApplySnapshot(ctx, &processor.SubscriptionSnapshot{
		ID: "sub_r", Status: types.SubscriptionStatusActive, UserRef: "u_r",
	}, "", nil)
	require.NoError(t, err)
	require.True(t, f.sub(t, "sub_r").LastEventAt.Equal(t0))

	res := f.mustApply(t, &billingevent.SubscriptionUpdated{
		Meta:                   meta("evt_same_second", types.EventTypeSubscriptionUpdated, t0),
		ExternalSubscriptionID: "sub_r",
		Status:                 types.SubscriptionStatusPastDue,
		Currency:               "usd",
	})
	require.Equal(t, types.EventOutcomeApplied, res.Outcome)
	require.Equal(t, types.SubscriptionStatusPastDue, f.sub(t, "sub_r").Status)
}

func TestApplySnapshot_UsesRetrievalTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.r.now = func() time.Time { return t0.Add(time.Hour) }

	_, err := f.r.ApplySnapshot(ctx, &processor.SubscriptionSnapshot{
		ID: "sub_r", Status: types.SubscriptionStatusActive, UserRef: "u_r",
		RetrievedAt: t0,
	}, "", nil)
	require.NoError(t, err)
	require.True(t, f.sub(t, "sub_r").LastEventAt.Equal(t0))

	res := f.mustApply(t, &billingevent.SubscriptionUpdated{
		Meta:                   meta("evt_after", types.EventTypeSubscriptionUpdated, t0.Add(30*time.Second)),
		ExternalSubscriptionID: "sub_r",
		Status:                 types.SubscriptionStatusUnpaid,
		Currency:               "usd",
	})
	require.Equal(t, types.EventOutcomeApplied, res.Outcome)
}

func TestApplySnapshot_OlderThanLocalStateIsStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putSub1()
	f.mustApply(t, checkout("evt_1", t0.Add(time.Minute)))

	called := false
	res, err := f.r.ApplySnapshot(ctx, &processor.SubscriptionSnapshot{
		ID: "sub_1", Status: types.SubscriptionStatusCanceled, RetrievedAt: t0,
	}, "", func(tx *gorm.DB) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, types.EventOutcomeStale, res.Outcome)
	require.True(t, called)
	require.Equal(t, types.SubscriptionStatusActive, f.sub(t, "sub_1").Status)
}
