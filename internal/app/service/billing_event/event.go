// Package billingevent turns verified processor payloads into a closed set of
// typed events.
package billingevent

import (
	"time"

	"github.com/fatflowers/paysync/pkg/types"
)

// Meta identifies a processor event.
type Meta struct {
	ID   string          `json:"id" validate:"required"`
	Type types.EventType `json:"type" validate:"required"`
	// CreatedAt is the processor-side creation time.
	CreatedAt time.Time `json:"created_at"`
}

func (m Meta) EventMeta() Meta { return m }

// Event is one of CheckoutCompleted, InvoicePaymentSucceeded,
// SubscriptionUpdated, SubscriptionDeleted or Unrecognized.
type Event interface {
	EventMeta() Meta
	isEvent()
}

// CheckoutCompleted may lack UserRef or ExternalSubscriptionID; the
// reconciler rejects that as incomplete rather than malformed.
type CheckoutCompleted struct {
	Meta
	UserRef                string `json:"user_ref"`
	ExternalSubscriptionID string `json:"external_subscription_id"`
}

type InvoicePaymentSucceeded struct {
	Meta
	ExternalSubscriptionID string     `json:"external_subscription_id" validate:"required"`
	PaidAt                 time.Time  `json:"paid_at" validate:"required"`
	PeriodEnd              *time.Time `json:"period_end,omitempty"`
}

type SubscriptionUpdated struct {
	Meta
	ExternalSubscriptionID string                   `json:"external_subscription_id" validate:"required"`
	Status                 types.SubscriptionStatus `json:"status" validate:"required"`
	Plan                   string                   `json:"plan" validate:"required"`
	AmountMinorUnits       int64                    `json:"amount_minor_units" validate:"gte=0"`
	Currency               string                   `json:"currency"`
	StartedAt              *time.Time               `json:"started_at,omitempty"`
	EndsAt                 *time.Time               `json:"ends_at,omitempty"`
}

type SubscriptionDeleted struct {
	Meta
	ExternalSubscriptionID string `json:"external_subscription_id" validate:"required"`
}

// Unrecognized is any event type this service does not handle.
type Unrecognized struct {
	Meta
}

func (CheckoutCompleted) isEvent()       {}
func (InvoicePaymentSucceeded) isEvent() {}
func (SubscriptionUpdated) isEvent()     {}
func (SubscriptionDeleted) isEvent()     {}
func (Unrecognized) isEvent()            {}

// SubscriptionRef returns the external subscription id an event targets, if any.
func SubscriptionRef(e Event) string {
	switch ev := e.(type) {
	case *CheckoutCompleted:
		return ev.ExternalSubscriptionID
	case *InvoicePaymentSucceeded:
		return ev.ExternalSubscriptionID
	case *SubscriptionUpdated:
		return ev.ExternalSubscriptionID
	case *SubscriptionDeleted:
		return ev.ExternalSubscriptionID
	default:
		return ""
	}
}
