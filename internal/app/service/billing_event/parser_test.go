package billingevent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fatflowers/paysync/internal/app/service/billing_event/eventtest"
	"github.com/fatflowers/paysync/pkg/config"
	"github.com/fatflowers/paysync/pkg/types"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newParser() *Parser {
	return NewParser(&config.Config{Plans: []*types.Plan{{ID: "premium", PriceID: "price_premium"}}})
}

func TestParse_CheckoutCompleted(t *testing.T) {
	ev, err := newParser().Parse(eventtest.CheckoutCompleted("evt_1", "u1", "sub_1", t0))
	require.NoError(t, err)

	cc, ok := ev.(*CheckoutCompleted)
	require.True(t, ok)
	require.Equal(t, "evt_1", cc.ID)
	require.Equal(t, types.EventTypeCheckoutCompleted, cc.Type)
	require.Equal(t, t0, cc.CreatedAt)
	require.Equal(t, "u1", cc.UserRef)
	require.Equal(t, "sub_1", cc.ExternalSubscriptionID)
	require.Equal(t, "sub_1", SubscriptionRef(ev))
}

func TestParse_CheckoutUserRefFromMetadata(t *testing.T) {
	payload := eventtest.Envelope("evt_2", "checkout.session.completed", t0, map[string]any{
		"id":           "cs_2",
		"subscription": map[string]any{"id": "sub_2", "object": "subscription"},
		"metadata":     map[string]any{"user_ref": "u2"},
	})
	ev, err := newParser().Parse(payload)
	require.NoError(t, err)
	cc := ev.(*CheckoutCompleted)
	require.Equal(t, "u2", cc.UserRef)
	require.Equal(t, "sub_2", cc.ExternalSubscriptionID)
}

func TestParse_CheckoutMissingFieldsIsNotMalformed(t *testing.T) {
	ev, err := newParser().Parse(eventtest.CheckoutCompleted("evt_3", "", "", t0))
	require.NoError(t, err)
	cc := ev.(*CheckoutCompleted)
	require.Empty(t, cc.UserRef)
	require.Empty(t, cc.ExternalSubscriptionID)
}

func TestParse_Invoice(t *testing.T) {
	paid := t0.Add(time.Hour)
	ev, err := newParser().Parse(eventtest.InvoicePaid("evt_4", "sub_1", paid, t0))
	require.NoError(t, err)
	inv := ev.(*InvoicePaymentSucceeded)
	require.Equal(t, "sub_1", inv.ExternalSubscriptionID)
	require.Equal(t, paid, inv.PaidAt)
	require.NotNil(t, inv.PeriodEnd)
}

func TestParse_InvoiceLegacySubscriptionFieldAndAlias(t *testing.T) {
	payload := eventtest.Envelope("evt_5", "invoice.paid", t0, map[string]any{
		"id":           "in_5",
		"subscription": "sub_legacy",
	})
	ev, err := newParser().Parse(payload)
	require.NoError(t, err)
	inv := ev.(*InvoicePaymentSucceeded)
	require.Equal(t, "sub_legacy", inv.ExternalSubscriptionID)
	require.Equal(t, t0, inv.PaidAt)
	require.Nil(t, inv.PeriodEnd)
}

func TestParse_SubscriptionUpdated(t *testing.T) {
	payload := eventtest.SubscriptionUpdated("evt_6", eventtest.Subscription{
		ID: "sub_1", Status: "past_due", PriceID: "price_premium", UnitAmount: 2900,
		Currency: "usd", StartDate: t0, PeriodEnd: t0.AddDate(0, 1, 0),
	}, t0)
	ev, err := newParser().Parse(payload)
	require.NoError(t, err)
	su := ev.(*SubscriptionUpdated)
	require.Equal(t, types.SubscriptionStatusPastDue, su.Status)
	require.Equal(t, "premium", su.Plan)
	require.Equal(t, int64(2900), su.AmountMinorUnits)
	require.Equal(t, "usd", su.Currency)
	require.Equal(t, t0, *su.StartedAt)
	require.Equal(t, t0.AddDate(0, 1, 0), *su.EndsAt)
}

func TestParse_SubscriptionUpdatedPlanFallsBackToLookupKey(t *testing.T) {
	payload := eventtest.SubscriptionUpdated("evt_7", eventtest.Subscription{
		ID: "sub_1", Status: "active", PriceID: "price_unknown", LookupKey: "team_yearly",
		UnitAmount: 100, Currency: "usd", PeriodEnd: t0,
	}, t0)
	ev, err := newParser().Parse(payload)
	require.NoError(t, err)
	require.Equal(t, "team_yearly", ev.(*SubscriptionUpdated).Plan)
}

func TestParse_SubscriptionDeleted(t *testing.T) {
	ev, err := newParser().Parse(eventtest.SubscriptionDeleted("evt_8", "sub_1", t0))
	require.NoError(t, err)
	require.Equal(t, "sub_1", ev.(*SubscriptionDeleted).ExternalSubscriptionID)
}

func TestParse_Unrecognized(t *testing.T) {
	ev, err := newParser().Parse(eventtest.Envelope("evt_9", "customer.tax_id.created", t0, map[string]any{"id": "txi_1"}))
	require.NoError(t, err)
	u, ok := ev.(*Unrecognized)
	require.True(t, ok)
	require.Equal(t, types.EventType("customer.tax_id.created"), u.Type)
	require.Empty(t, SubscriptionRef(ev))
}

func TestParse_SubscriptionUpdatedPausedIsVariantMalformed(t *testing.T) {
	payload := eventtest.SubscriptionUpdated("evt_paused", eventtest.Subscription{
		ID: "sub_1", Status: "paused", PriceID: "price_premium", UnitAmount: 2900,
		Currency: "usd", PeriodEnd: t0,
	}, t0)
	_, err := newParser().Parse(payload)
	var me *types.MalformedEventError
	require.ErrorAs(t, err, &me)
	require.False(t, me.Envelope)
	require.Equal(t, "evt_paused", me.EventID)
	require.Contains(t, me.Reason, `"paused"`)
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name     string
		payload  []byte
		envelope bool
	}{
		{name: "not json", payload: []byte(`{"id":`), envelope: true},
		{name: "missing id", payload: []byte(`{"type":"invoice.paid","data":{"object":{}}}`), envelope: true},
		{name: "missing type", payload: []byte(`{"id":"evt_x","data":{"object":{}}}`), envelope: true},
		{name: "unknown status", payload: eventtest.SubscriptionUpdated("evt_x", eventtest.Subscription{
			ID: "sub_1", Status: "paused_forever", PriceID: "p", Currency: "usd", PeriodEnd: t0,
		}, t0)},
		{name: "subscription without items", payload: eventtest.Envelope("evt_x", "customer.subscription.updated", t0,
			map[string]any{"id": "sub_1", "status": "active"})},
		{name: "invoice without subscription", payload: eventtest.Envelope("evt_x", "invoice.payment_succeeded", t0,
			map[string]any{"id": "in_1"})},
		{name: "deleted without id", payload: eventtest.Envelope("evt_x", "customer.subscription.deleted", t0,
			map[string]any{"object": "subscription"})},
		{name: "known type with empty object", payload: []byte(`{"id":"evt_x","type":"customer.subscription.deleted","data":{"object":null}}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newParser().Parse(tt.payload)
			var me *types.MalformedEventError
			require.ErrorAs(t, err, &me)
			require.Equal(t, tt.envelope, me.Envelope)
		})
	}
}
