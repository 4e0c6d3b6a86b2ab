package subscription

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/paysync/internal/models"
	"github.com/fatflowers/paysync/pkg/types"
)

// Service serves read-only subscription queries.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

// GetCurrentByUser returns the user's most recent non-canceled subscription,
// falling back to the most recent one. It returns nil when the user has none.
func (s *Service) GetCurrentByUser(ctx context.Context, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order(clause.OrderBy{Expression: clause.Expr{
			SQL:  "CASE WHEN status = ? THEN 1 ELSE 0 END, created_at DESC, id DESC",
			Vars: []any{types.SubscriptionStatusCanceled},
		}}).
		Take(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current subscription: %w", err)
	}
	return &sub, nil
}

func (s *Service) GetByExternalID(ctx context.Context, externalID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).Where("external_subscription_id = ?", externalID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &sub, err
}

type ListRequest struct {
	Filters  []*types.CommonFilter `json:"filters"`
	Page     int                   `json:"page" binding:"omitempty,min=1"`
	PageSize int                   `json:"page_size" binding:"omitempty,min=1,max=200"`
}

var listableFields = map[string]bool{
	"user_id": true, "external_subscription_id": true, "status": true, "plan": true,
	"currency": true, "created_at": true, "updated_at": true, "ends_at": true,
}

// List returns a page of subscriptions matching every filter, newest first.
// Filters on unknown fields are rejected.
func (s *Service) List(ctx context.Context, req *ListRequest) ([]*models.Subscription, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Subscription{})
	for _, f := range req.Filters {
		if err := f.Validate(listableFields); err != nil {
			return nil, 0, err
		}
		q = q.Where(clause.Where{Exprs: []clause.Expression{f}})
	}
	// Count and Find each start from the filtered statement.
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, size := max(req.Page, 1), req.PageSize
	if size <= 0 {
		size = 50
	}
	var items []*models.Subscription
	err := q.Order("created_at DESC").Offset((page - 1) * size).Limit(size).Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// History returns the change log of a subscription, oldest first.
func (s *Service) History(ctx context.Context, subscriptionID string) ([]*models.SubscriptionLog, error) {
	var logs []*models.SubscriptionLog
	err := s.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at ASC").
		Find(&logs).Error
	return logs, err
}
