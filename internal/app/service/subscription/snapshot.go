package subscription

import (
	"context"

	"gorm.io/gorm"

	"github.com/fatflowers/paysync/internal/models"
	"github.com/fatflowers/paysync/internal/platform/processor"
	"github.com/fatflowers/paysync/pkg/logctx"
	"github.com/fatflowers/paysync/pkg/types"
)

// ApplySnapshot overwrites local state with the processor's view of a
// subscription as of snap.RetrievedAt, bypassing the ledger. A missing row is
// created when userRef is known; otherwise the result is deferred and nothing
// is written. A row already touched by an event newer than the snapshot is
// left alone and reported as stale.
//
// within, if set, runs in the same transaction after a write or a stale
// result.
func (r *Reconciler) ApplySnapshot(ctx context.Context, snap *processor.SubscriptionSnapshot, userRef string, within func(tx *gorm.DB) error) (*Result, error) {
	if userRef == "" {
		userRef = snap.UserRef
	}

	asOf := snap.RetrievedAt
	if asOf.IsZero() {
		asOf = r.now()
	}
	asOf = processor.AsOf(asOf)

	var ch *change
	res := &Result{Reason: types.SubscriptionChangeReasonResync}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := lockByExternalID(ctx, tx, snap.ID)
		if err != nil {
			return err
		}
		if existing == nil && userRef == "" {
			res.Outcome = types.EventOutcomeDeferred
			res.Problem = &types.ReferentialNotFoundError{ExternalSubscriptionID: snap.ID}
			return nil
		}

		if existing.IsStale(asOf) {
			res.Outcome = types.EventOutcomeStale
			res.Subscription = existing
			if within != nil {
				return within(tx)
			}
			return nil
		}

		after := clone(existing)
		if after == nil {
			after = &models.Subscription{ExternalSubscriptionID: snap.ID, UserID: userRef}
		}
		applySnapshot(after, snap)
		// Events created after the retrieval second still apply.
		touch(after, asOf)

		if err := save(ctx, tx, existing, after, "", types.SubscriptionChangeReasonResync); err != nil {
			return err
		}
		if existing == nil {
			if err := setUserStatus(ctx, tx, after.UserID, after.Status); err != nil {
				return err
			}
		}
		if within != nil {
			if err := within(tx); err != nil {
				return err
			}
		}
		res.Outcome = types.EventOutcomeApplied
		res.Subscription = after
		ch = &change{before: existing, after: after, reason: res.Reason}
		return nil
	})
	if err != nil {
		return nil, types.NewTransient(types.TransientStorage, err)
	}

	logctx.FromCtx(ctx, r.log).Infow("reconcile_snapshot",
		"external_subscription_id", snap.ID, "outcome", res.Outcome, "created", ch != nil && ch.before == nil)
	r.notify(ctx, ch)
	return res, nil
}
