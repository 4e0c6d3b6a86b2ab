// Package ledger is the idempotency record of processor events whose effects
// have been committed.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/paysync/internal/models"
	"github.com/fatflowers/paysync/pkg/types"
)

type Admission int

const (
	Admitted Admission = iota + 1
	AlreadyProcessed
)

func (a Admission) String() string {
	switch a {
	case Admitted:
		return "admitted"
	case AlreadyProcessed:
		return "already_processed"
	default:
		return "unknown"
	}
}

type Ledger struct {
	db  *gorm.DB
	log *zap.SugaredLogger
	now func() time.Time
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Ledger {
	return &Ledger{db: db, log: log, now: time.Now}
}

// TryBeginProcessing claims eventID inside tx. The insert is a single
// conflict-ignoring statement on the unique event id, so of two concurrent
// claims exactly one is Admitted; the other blocks on the uniqueness check
// until the first commits or rolls back.
func (l *Ledger) TryBeginProcessing(ctx context.Context, tx *gorm.DB, eventID string, eventType types.EventType) (Admission, error) {
	if eventID == "" {
		return 0, errors.New("ledger: empty event id")
	}
	rec := &models.ProcessedEvent{
		ExternalEventID: eventID,
		EventType:       eventType,
		Outcome:         types.EventOutcomeApplied,
		ProcessedAt:     l.now().UTC(),
	}
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "external_event_id"}}, DoNothing: true}).
		Create(rec)
	if res.Error != nil {
		return 0, fmt.Errorf("ledger insert %s: %w", eventID, res.Error)
	}
	if res.RowsAffected == 0 {
		return AlreadyProcessed, nil
	}
	return Admitted, nil
}

// SetOutcome records how an admitted event was resolved. It must run in the
// same transaction as TryBeginProcessing.
func (l *Ledger) SetOutcome(ctx context.Context, tx *gorm.DB, eventID string, outcome types.EventOutcome) error {
	err := tx.WithContext(ctx).Model(&models.ProcessedEvent{}).
		Where("external_event_id = ?", eventID).
		Update("outcome", outcome).Error
	if err != nil {
		return fmt.Errorf("ledger set outcome %s: %w", eventID, err)
	}
	return nil
}

// Seen is a non-authoritative read used to skip outbound work for obvious
// redeliveries. Only TryBeginProcessing decides admission.
func (l *Ledger) Seen(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).Model(&models.ProcessedEvent{}).
		Where("external_event_id = ?", eventID).
		Limit(1).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Prune deletes entries processed before the cutoff and returns how many
// were removed.
func (l *Ledger) Prune(ctx context.Context, before time.Time) (int64, error) {
	res := l.db.WithContext(ctx).Where("processed_at < ?", before.UTC()).Delete(&models.ProcessedEvent{})
	if res.Error != nil {
		return 0, fmt.Errorf("ledger prune: %w", res.Error)
	}
	l.log.Infow("ledger_pruned", "before", before, "deleted", res.RowsAffected)
	return res.RowsAffected, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
