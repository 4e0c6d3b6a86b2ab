package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	billingevent "github.com/fatflowers/paysync/internal/app/service/billing_event"
	"github.com/fatflowers/paysync/internal/models"
	"github.com/fatflowers/paysync/pkg/tool"
	"github.com/fatflowers/paysync/pkg/types"
)

// Data access helpers. Everything here runs on the caller's transaction.

// lockByExternalID loads and row-locks the subscription. It returns nil, nil
// when no row exists.
func lockByExternalID(ctx context.Context, tx *gorm.DB, externalID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("external_subscription_id = ?", externalID).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock subscription %s: %w", externalID, err)
	}
	return &sub, nil
}

// save writes the subscription and appends its history entry.
func save(ctx context.Context, tx *gorm.DB, before, after *models.Subscription, eventID string, reason types.SubscriptionChangeReason) error {
	if after.ID == "" {
		after.ID = tool.GenerateUUIDV7()
	}
	if err := tx.WithContext(ctx).Save(after).Error; err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	log := &models.SubscriptionLog{
		ID:             tool.GenerateUUIDV7(),
		SubscriptionID: after.ID,
		UserID:         after.UserID,
		EventID:        eventID,
		Reason:         reason,
		Before:         datatypes.NewJSONType(before),
		After:          datatypes.NewJSONType(after),
	}
	if err := tx.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to save subscription log: %w", err)
	}
	return nil
}

// setUserStatus upserts the user's projected status without touching any
// other column of the users row.
func setUserStatus(ctx context.Context, tx *gorm.DB, userID string, status types.SubscriptionStatus) error {
	u := &models.User{ID: userID, SubscriptionStatus: status}
	err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"subscription_status", "updated_at"}),
		}).
		Create(u).Error
	if err != nil {
		return fmt.Errorf("failed to set user %s status: %w", userID, err)
	}
	return nil
}

// recordDeferred stores an event that needs follow-up. A second record for
// the same event id is ignored.
func recordDeferred(ctx context.Context, tx *gorm.DB, meta billingevent.Meta, externalID string, reason models.DeferredReason, status models.DeferredStatus, data any, problem error) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode deferred event: %w", err)
	}
	d := &models.DeferredEvent{
		ID:                     tool.GenerateUUIDV7(),
		ExternalEventID:        meta.ID,
		EventType:              meta.Type,
		ExternalSubscriptionID: externalID,
		Reason:                 reason,
		Status:                 status,
		Data:                   datatypes.JSON(raw),
	}
	if problem != nil {
		msg := problem.Error()
		d.LastError = &msg
	}
	err = tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "external_event_id"}}, DoNothing: true}).
		Create(d).Error
	if err != nil {
		return fmt.Errorf("failed to record deferred event %s: %w", meta.ID, err)
	}
	return nil
}

func clone(s *models.Subscription) *models.Subscription {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
