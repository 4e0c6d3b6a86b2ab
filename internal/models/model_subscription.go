package models

import (
	"time"

	"github.com/fatflowers/paysync/pkg/types"

	"github.com/shopspring/decimal"
)

// Subscription is the local projection of a processor subscription.
// Rows are created by a completed checkout and afterwards only mutated; a
// cancellation is a status change, never a delete.
type Subscription struct {
	ID                     string                   `gorm:"column:id;type:uuid;primary_key" json:"id"`
	ExternalSubscriptionID string                   `gorm:"column:external_subscription_id;type:varchar(128);not null;uniqueIndex" json:"external_subscription_id"`
	UserID                 string                   `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	Status                 types.SubscriptionStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	Plan                   string                   `gorm:"column:plan;type:varchar(128);not null" json:"plan"`
	// Amount is normalized to the currency's major unit.
	Amount   decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null;default:0" json:"amount"`
	Currency string          `gorm:"column:currency;type:varchar(8)" json:"currency"`

	StartedAt     *time.Time `gorm:"column:started_at;default:null" json:"started_at"`
	EndsAt        *time.Time `gorm:"column:ends_at;default:null" json:"ends_at"`
	LastPaymentAt *time.Time `gorm:"column:last_payment_at;default:null" json:"last_payment_at"`
	// LastEventAt is the processor-side creation time of the last applied
	// event. Events created before it are stale and are not applied.
	LastEventAt *time.Time `gorm:"column:last_event_at;default:null" json:"last_event_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscription"
}

// Current reports whether the subscription currently grants access.
func (s *Subscription) Current(now time.Time) bool {
	return s != nil &&
		s.Status.Entitled() &&
		(s.EndsAt == nil || s.EndsAt.After(now))
}

// IsStale reports whether an event created at eventAt predates the last
// applied one.
func (s *Subscription) IsStale(eventAt time.Time) bool {
	return s != nil && s.LastEventAt != nil && !eventAt.IsZero() && eventAt.Before(*s.LastEventAt)
}
