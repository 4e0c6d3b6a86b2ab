package notification_log

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fatflowers/paysync/internal/models"
	"github.com/fatflowers/paysync/pkg/logctx"
	"github.com/fatflowers/paysync/pkg/tool"
)

// Service records webhook deliveries for audit. Writes are asynchronous and
// best effort; they never affect the webhook response.
type Service struct {
	db       *gorm.DB
	log      *zap.SugaredLogger
	inflight sync.WaitGroup
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Save asynchronously persists a delivery log row. Nil input is ignored.
func (s *Service) Save(ctx context.Context, entry *models.WebhookDeliveryLog) {
	if entry == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = tool.GenerateUUIDV7()
	}
	if entry.TraceID == "" {
		entry.TraceID = logctx.TraceID(ctx)
	}
	ctx = context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save webhook delivery log: %v", err)
		}
	}()
}

// Received records that a verified delivery arrived.
func (s *Service) Received(ctx context.Context, eventID, eventType string, at time.Time) {
	s.Save(ctx, &models.WebhookDeliveryLog{
		ExternalEventID: eventID,
		EventType:       eventType,
		Status:          models.WebhookDeliveryStatusReceived,
		ReceivedAt:      at,
	})
}

// Handled records the final outcome of a delivery. A non-nil handleErr marks
// it as failed.
func (s *Service) Handled(ctx context.Context, eventID, eventType, outcome string, at time.Time, result map[string]any, handleErr error) {
	if result == nil {
		result = map[string]any{}
	}
	status := models.WebhookDeliveryStatusHandled
	if handleErr != nil {
		status = models.WebhookDeliveryStatusHandleFailed
		result["error"] = handleErr.Error()
	}
	resBytes, _ := json.Marshal(result)
	s.Save(ctx, &models.WebhookDeliveryLog{
		ExternalEventID: eventID,
		EventType:       eventType,
		Outcome:         outcome,
		Result:          func() *datatypes.JSON { j := datatypes.JSON(resBytes); return &j }(),
		Status:          status,
		ReceivedAt:      at,
	})
}

// Flush waits for pending writes.
func (s *Service) Flush() { s.inflight.Wait() }

// ListByEvent returns the delivery history of one event, oldest first.
func (s *Service) ListByEvent(ctx context.Context, eventID string) ([]*models.WebhookDeliveryLog, error) {
	var rows []*models.WebhookDeliveryLog
	err := s.db.WithContext(ctx).
		Where("external_event_id = ?", eventID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func registerFlush(lc fx.Lifecycle, s *Service) {
	lc.Append(fx.Hook{OnStop: func(context.Context) error {
		s.Flush()
		return nil
	}})
}

var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(registerFlush),
)
