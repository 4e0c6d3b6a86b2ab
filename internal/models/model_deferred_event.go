package models

import (
	"time"

	"github.com/fatflowers/paysync/pkg/types"

	"gorm.io/datatypes"
)

type DeferredReason string

const (
	// DeferredReasonNotFound: the event references a subscription unknown locally.
	DeferredReasonNotFound DeferredReason = "not_found"
	// DeferredReasonIncomplete: a checkout event without its correlating fields.
	DeferredReasonIncomplete DeferredReason = "incomplete"
	// DeferredReasonRemoteNotFound: the processor does not know the subscription either.
	DeferredReasonRemoteNotFound DeferredReason = "remote_not_found"
	// DeferredReasonRemoteRejected: the processor lookup failed permanently,
	// for example on a status with no local mapping.
	DeferredReasonRemoteRejected DeferredReason = "remote_rejected"
)

type DeferredStatus string

const (
	DeferredStatusPending      DeferredStatus = "pending"
	DeferredStatusResolved     DeferredStatus = "resolved"
	DeferredStatusManualReview DeferredStatus = "manual_review"
	DeferredStatusAbandoned    DeferredStatus = "abandoned"
)

// DeferredEvent records an acknowledged event whose effects could not be
// applied in-line and needs out-of-band follow-up.
type DeferredEvent struct {
	ID                     string          `gorm:"column:id;type:uuid;primary_key" json:"id"`
	ExternalEventID        string          `gorm:"column:external_event_id;type:varchar(128);not null;uniqueIndex" json:"external_event_id"`
	EventType              types.EventType `gorm:"column:event_type;type:varchar(128);not null" json:"event_type"`
	ExternalSubscriptionID string          `gorm:"column:external_subscription_id;type:varchar(128);index" json:"external_subscription_id"`
	Reason                 DeferredReason  `gorm:"column:reason;type:varchar(32);not null" json:"reason"`
	Status                 DeferredStatus  `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	Attempts               int             `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LastError              *string         `gorm:"column:last_error;type:text" json:"last_error"`
	// Data is the parsed event variant, kept for manual review.
	Data      datatypes.JSON `gorm:"column:data;type:jsonb" json:"data"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (DeferredEvent) TableName() string { return "deferred_event" }
