package statistics

import (
	"context"
	"fmt"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/paysync/internal/models"
	"github.com/fatflowers/paysync/pkg/types"
)

type StatisticType string

const (
	// Subscription state
	StatisticTypeSubscriptionStatusCount StatisticType = "subscription_status_count"
	StatisticTypeEntitledByPlan          StatisticType = "entitled_by_plan"
	StatisticTypeRecurringAmount         StatisticType = "recurring_amount"

	// Event pipeline health
	StatisticTypeDailyEventCount    StatisticType = "daily_event_count"
	StatisticTypeEventOutcomeCount  StatisticType = "event_outcome_count"
	StatisticTypeDeferredEventCount StatisticType = "deferred_event_count"
)

// Filter types that only apply to certain statistic types.
type BillingStatisticFilterType string

const (
	BillingStatisticFilterTypeEventType BillingStatisticFilterType = "event_type"
	BillingStatisticFilterTypePlan      BillingStatisticFilterType = "plan"
)

var filterTypes = []BillingStatisticFilterType{
	BillingStatisticFilterTypeEventType,
	BillingStatisticFilterTypePlan,
}

var filterFields = lo.SliceToMap(filterTypes, func(ft BillingStatisticFilterType) (string, bool) {
	return string(ft), true
})

var validFilters = map[BillingStatisticFilterType][]StatisticType{
	BillingStatisticFilterTypeEventType: {StatisticTypeDailyEventCount, StatisticTypeEventOutcomeCount, StatisticTypeDeferredEventCount},
	BillingStatisticFilterTypePlan:      {StatisticTypeSubscriptionStatusCount, StatisticTypeEntitledByPlan, StatisticTypeRecurringAmount},
}

type BillingStatisticDataItem struct {
	ID StatisticType `json:"id"`
}

type BillingStatisticRequest struct {
	Filters   []*types.CommonFilter       `json:"filters"`
	DataItems []*BillingStatisticDataItem `json:"data_items" binding:"required,min=1"`
}

// GetFilters keeps the filters applicable to statisticType.
func (f *BillingStatisticRequest) GetFilters(statisticType StatisticType) *BillingStatisticRequest {
	if f == nil || len(f.Filters) == 0 {
		return f
	}
	var result BillingStatisticRequest
	for _, filter := range f.Filters {
		if statisticTypes, ok := validFilters[BillingStatisticFilterType(filter.Field)]; ok {
			if lo.Contains(statisticTypes, statisticType) {
				result.Filters = append(result.Filters, filter)
			}
		}
	}
	return &result
}

// Build composes a WHERE clause from the filters.
func (f *BillingStatisticRequest) Build(builder clause.Builder) {
	if f == nil || len(f.Filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	for i, filter := range f.Filters {
		if i > 0 {
			builder.WriteString(" AND ")
		}
		filter.Build(builder)
	}
}

type BillingStatisticResponseDataItem struct {
	Date  string `json:"date,omitempty"`
	Label string `json:"label,omitempty"`
	Value int64  `json:"value"`
	// Amount is set for monetary statistics, in major units.
	Amount string `json:"amount,omitempty"`
}

type BillingStatisticResponse struct {
	DataItems map[StatisticType][]BillingStatisticResponseDataItem `json:"data_items"`
}

// Service provides statistics operations
type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service { return &Service{db: db} }

func (s *Service) where(request *BillingStatisticRequest, st StatisticType) clause.Where {
	return clause.Where{Exprs: []clause.Expression{request.GetFilters(st)}}
}

func (s *Service) getSubscriptionStatusCount(ctx context.Context, request *BillingStatisticRequest) ([]BillingStatisticResponseDataItem, error) {
	var results []BillingStatisticResponseDataItem
	q := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Select("status as label, count(*) as value").
		Where(s.where(request, StatisticTypeSubscriptionStatusCount)).
		Group("status").
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func entitledStatuses() []types.SubscriptionStatus {
	return lo.Filter(types.SubscriptionStatuses, func(s types.SubscriptionStatus, _ int) bool { return s.Entitled() })
}

func (s *Service) getEntitledByPlan(ctx context.Context, request *BillingStatisticRequest) ([]BillingStatisticResponseDataItem, error) {
	var results []BillingStatisticResponseDataItem
	q := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Select("plan as label, count(*) as value").
		Where("status IN ?", entitledStatuses()).
		Where(s.where(request, StatisticTypeEntitledByPlan)).
		Group("plan").
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getRecurringAmount(ctx context.Context, request *BillingStatisticRequest) ([]BillingStatisticResponseDataItem, error) {
	var results []BillingStatisticResponseDataItem
	q := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Select("currency as label, count(*) as value, CAST(SUM(amount) AS TEXT) as amount").
		Where("status IN ?", entitledStatuses()).
		Where(s.where(request, StatisticTypeRecurringAmount)).
		Group("currency").
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyEventCount(ctx context.Context, request *BillingStatisticRequest) ([]BillingStatisticResponseDataItem, error) {
	var results []BillingStatisticResponseDataItem
	q := s.db.WithContext(ctx).Model(&models.ProcessedEvent{}).
		Select("CAST(DATE(processed_at) AS TEXT) as date, count(*) as value").
		Where(s.where(request, StatisticTypeDailyEventCount)).
		Group("CAST(DATE(processed_at) AS TEXT)").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true})
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getEventOutcomeCount(ctx context.Context, request *BillingStatisticRequest) ([]BillingStatisticResponseDataItem, error) {
	var results []BillingStatisticResponseDataItem
	q := s.db.WithContext(ctx).Model(&models.ProcessedEvent{}).
		Select("outcome as label, count(*) as value").
		Where(s.where(request, StatisticTypeEventOutcomeCount)).
		Group("outcome").
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDeferredEventCount(ctx context.Context, request *BillingStatisticRequest) ([]BillingStatisticResponseDataItem, error) {
	var results []BillingStatisticResponseDataItem
	q := s.db.WithContext(ctx).Model(&models.DeferredEvent{}).
		Select("status as label, count(*) as value").
		Where(s.where(request, StatisticTypeDeferredEventCount)).
		Group("status").
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getBillingStatistic(ctx context.Context, request *BillingStatisticRequest, dataItem *BillingStatisticDataItem) ([]BillingStatisticResponseDataItem, error) {
	switch dataItem.ID {
	case StatisticTypeSubscriptionStatusCount:
		return s.getSubscriptionStatusCount(ctx, request)
	case StatisticTypeEntitledByPlan:
		return s.getEntitledByPlan(ctx, request)
	case StatisticTypeRecurringAmount:
		return s.getRecurringAmount(ctx, request)
	case StatisticTypeDailyEventCount:
		return s.getDailyEventCount(ctx, request)
	case StatisticTypeEventOutcomeCount:
		return s.getEventOutcomeCount(ctx, request)
	case StatisticTypeDeferredEventCount:
		return s.getDeferredEventCount(ctx, request)
	default:
		return nil, fmt.Errorf("invalid data item id: %s", dataItem.ID)
	}
}

// GetBillingStatistic computes every requested data item concurrently.
// Filters on a known filter type that does not apply to an item yield a nil
// series for that item.
func (s *Service) GetBillingStatistic(ctx context.Context, request *BillingStatisticRequest) (*BillingStatisticResponse, error) {
	for _, f := range request.Filters {
		if err := f.Validate(filterFields); err != nil {
			return nil, err
		}
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(request.DataItems))
	resChan := make(chan *lo.Entry[StatisticType, []BillingStatisticResponseDataItem], len(request.DataItems))

	for _, item := range request.DataItems {
		wg.Add(1)
		go func(di *BillingStatisticDataItem) {
			defer wg.Done()
			for _, filter := range request.Filters {
				ft := BillingStatisticFilterType(filter.Field)
				if lo.Contains(filterTypes, ft) && !lo.Contains(validFilters[ft], di.ID) {
					resChan <- &lo.Entry[StatisticType, []BillingStatisticResponseDataItem]{Key: di.ID, Value: nil}
					return
				}
			}
			res, err := s.getBillingStatistic(ctx, request, di)
			if err != nil {
				errChan <- err
				return
			}
			resChan <- &lo.Entry[StatisticType, []BillingStatisticResponseDataItem]{Key: di.ID, Value: res}
		}(item)
	}

	wg.Wait()
	close(errChan)
	close(resChan)
	if err, ok := <-errChan; ok {
		return nil, err
	}

	results := make(map[StatisticType][]BillingStatisticResponseDataItem, len(request.DataItems))
	for entry := range resChan {
		results[entry.Key] = entry.Value
	}
	return &BillingStatisticResponse{DataItems: results}, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
