package models

import (
	"time"

	"github.com/fatflowers/paysync/pkg/types"
)

// ProcessedEvent is an idempotency ledger entry: one row per processor event
// whose effects have been committed.
type ProcessedEvent struct {
	ExternalEventID string             `gorm:"column:external_event_id;type:varchar(128);primary_key" json:"external_event_id"`
	EventType       types.EventType    `gorm:"column:event_type;type:varchar(128);not null" json:"event_type"`
	Outcome         types.EventOutcome `gorm:"column:outcome;type:varchar(32);not null" json:"outcome"`
	ProcessedAt     time.Time          `gorm:"column:processed_at;not null;index" json:"processed_at"`
}

func (ProcessedEvent) TableName() string { return "processed_event" }
