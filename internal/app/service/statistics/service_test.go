package statistics

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fatflowers/paysync/internal/models"
	"github.com/fatflowers/paysync/internal/platform/db/dbtest"
	"github.com/fatflowers/paysync/pkg/types"
)

func TestGetBillingStatistic(t *testing.T) {
	gdb := dbtest.New(t)
	now := time.Now().UTC()

	require.NoError(t, gdb.Create([]*models.Subscription{
		{ID: "1", ExternalSubscriptionID: "sub_1", UserID: "u1", Status: types.SubscriptionStatusActive, Plan: "premium", Amount: decimal.RequireFromString("29"), Currency: "usd"},
		{ID: "2", ExternalSubscriptionID: "sub_2", UserID: "u2", Status: types.SubscriptionStatusTrialing, Plan: "premium", Amount: decimal.RequireFromString("29"), Currency: "usd"},
		{ID: "3", ExternalSubscriptionID: "sub_3", UserID: "u3", Status: types.SubscriptionStatusCanceled, Plan: "basic", Amount: decimal.RequireFromString("9"), Currency: "usd"},
	}).Error)
	require.NoError(t, gdb.Create([]*models.ProcessedEvent{
		{ExternalEventID: "evt_1", EventType: types.EventTypeCheckoutCompleted, Outcome: types.EventOutcomeApplied, ProcessedAt: now},
		{ExternalEventID: "evt_2", EventType: types.EventTypeInvoicePaymentSucceeded, Outcome: types.EventOutcomeDeferred, ProcessedAt: now},
		{ExternalEventID: "evt_3", EventType: types.EventTypeInvoicePaymentSucceeded, Outcome: types.EventOutcomeApplied, ProcessedAt: now},
	}).Error)

	svc := New(gdb)
	resp, err := svc.GetBillingStatistic(context.Background(), &BillingStatisticRequest{
		DataItems: []*BillingStatisticDataItem{
			{ID: StatisticTypeSubscriptionStatusCount},
			{ID: StatisticTypeEntitledByPlan},
			{ID: StatisticTypeEventOutcomeCount},
			{ID: StatisticTypeDailyEventCount},
			{ID: StatisticTypeRecurringAmount},
		},
	})
	require.NoError(t, err)

	require.Equal(t, []BillingStatisticResponseDataItem{
		{Label: "active", Value: 1},
		{Label: "canceled", Value: 1},
		{Label: "trialing", Value: 1},
	}, resp.DataItems[StatisticTypeSubscriptionStatusCount])
	require.Equal(t, []BillingStatisticResponseDataItem{{Label: "premium", Value: 2}}, resp.DataItems[StatisticTypeEntitledByPlan])
	require.Equal(t, []BillingStatisticResponseDataItem{
		{Label: "applied", Value: 2},
		{Label: "deferred", Value: 1},
	}, resp.DataItems[StatisticTypeEventOutcomeCount])

	daily := resp.DataItems[StatisticTypeDailyEventCount]
	require.Len(t, daily, 1)
	require.Equal(t, int64(3), daily[0].Value)
	require.Equal(t, now.Format(time.DateOnly), daily[0].Date)

	amount := resp.DataItems[StatisticTypeRecurringAmount]
	require.Len(t, amount, 1)
	require.True(t, decimal.RequireFromString("58").Equal(decimal.RequireFromString(amount[0].Amount)))
}

func TestGetBillingStatistic_Filters(t *testing.T) {
	gdb := dbtest.New(t)
	require.NoError(t, gdb.Create([]*models.ProcessedEvent{
		{ExternalEventID: "evt_1", EventType: types.EventTypeCheckoutCompleted, Outcome: types.EventOutcomeApplied, ProcessedAt: time.Now()},
		{ExternalEventID: "evt_2", EventType: types.EventTypeSubscriptionDeleted, Outcome: types.EventOutcomeApplied, ProcessedAt: time.Now()},
	}).Error)

	resp, err := New(gdb).GetBillingStatistic(context.Background(), &BillingStatisticRequest{
		Filters: []*types.CommonFilter{{Field: "event_type", Operator: types.CommonFilterOperatorEq, Values: []any{"checkout.session.completed"}}},
		DataItems: []*BillingStatisticDataItem{
			{ID: StatisticTypeEventOutcomeCount},
			{ID: StatisticTypeEntitledByPlan},
		},
	})
	require.NoError(t, err)
	require.Equal(t, []BillingStatisticResponseDataItem{{Label: "applied", Value: 1}}, resp.DataItems[StatisticTypeEventOutcomeCount])
	require.Contains(t, resp.DataItems, StatisticTypeEntitledByPlan)
	require.Nil(t, resp.DataItems[StatisticTypeEntitledByPlan])

	_, err = New(gdb).GetBillingStatistic(context.Background(), &BillingStatisticRequest{
		DataItems: []*BillingStatisticDataItem{{ID: "nope"}},
	})
	require.Error(t, err)

	_, err = New(gdb).GetBillingStatistic(context.Background(), &BillingStatisticRequest{
		Filters:   []*types.CommonFilter{{Field: "user_id", Operator: types.CommonFilterOperatorEq, Values: []any{"u1"}}},
		DataItems: []*BillingStatisticDataItem{{ID: StatisticTypeEventOutcomeCount}},
	})
	require.Error(t, err)
}
