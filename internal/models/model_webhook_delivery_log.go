package models

import (
	"time"

	"gorm.io/datatypes"
)

type WebhookDeliveryStatus string

const (
	WebhookDeliveryStatusReceived     WebhookDeliveryStatus = "received"
	WebhookDeliveryStatusHandled      WebhookDeliveryStatus = "handled"
	WebhookDeliveryStatusHandleFailed WebhookDeliveryStatus = "handle_failed"
)

// WebhookDeliveryLog is an audit row per webhook delivery attempt. It is
// written outside the reconcile transaction and may be lost on crash.
type WebhookDeliveryLog struct {
	ID              string                `gorm:"column:id;type:uuid;primary_key" json:"id"`
	TraceID         string                `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	ExternalEventID string                `gorm:"column:external_event_id;type:varchar(128);index" json:"external_event_id"`
	EventType       string                `gorm:"column:event_type;type:varchar(128)" json:"event_type"`
	Outcome         string                `gorm:"column:outcome;type:varchar(32)" json:"outcome"`
	Result          *datatypes.JSON       `gorm:"column:result;type:jsonb" json:"result"`
	Status          WebhookDeliveryStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	ReceivedAt      time.Time             `gorm:"column:received_at" json:"received_at"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

func (WebhookDeliveryLog) TableName() string { return "webhook_delivery_log" }
