package models

import (
	"time"

	"github.com/fatflowers/paysync/pkg/types"

	"gorm.io/datatypes"
)

// SubscriptionLog is the append-only history of subscription mutations.
// The subscription row itself is overwritten in place; past states live here.
type SubscriptionLog struct {
	ID             string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	SubscriptionID string `gorm:"column:subscription_id;type:uuid;index:idx_subscription_log_sub,priority:1;not null" json:"subscription_id"`
	UserID         string `gorm:"column:user_id;type:varchar(64);not null" json:"user_id"`
	// EventID is the processor event that caused the change, if any.
	EventID string                         `gorm:"column:event_id;type:varchar(128)" json:"event_id"`
	Reason  types.SubscriptionChangeReason `gorm:"column:reason;type:varchar(64);not null" json:"reason"`
	// Before stores subscription data before the change in JSON format.
	Before datatypes.JSONType[*Subscription] `gorm:"column:before;type:jsonb;default:'null'" json:"before"`
	// After stores subscription data after the change in JSON format.
	After     datatypes.JSONType[*Subscription] `gorm:"column:after;type:jsonb;default:'null'" json:"after"`
	CreatedAt time.Time                         `gorm:"index:idx_subscription_log_sub,priority:2" json:"created_at"`
}

func (SubscriptionLog) TableName() string {
	return "subscription_log"
}
