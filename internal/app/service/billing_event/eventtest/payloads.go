// Package eventtest builds processor webhook payloads for tests.
package eventtest

import (
	"encoding/json"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"
)

// Envelope renders a processor event around object.
func Envelope(id, eventType string, created time.Time, object any) []byte {
	b, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"created":     created.Unix(),
		"api_version": "2025-03-31.basil",
		"data":        map[string]any{"object": object},
	})
	if err != nil {
		panic(err)
	}
	return b
}

func CheckoutCompleted(id, userRef, subscriptionID string, created time.Time) []byte {
	obj := map[string]any{"id": "cs_" + id, "object": "checkout.session", "mode": "subscription"}
	if userRef != "" {
		obj["client_reference_id"] = userRef
	}
	if subscriptionID != "" {
		obj["subscription"] = subscriptionID
	}
	return Envelope(id, "checkout.session.completed", created, obj)
}

func InvoicePaid(id, subscriptionID string, paidAt time.Time, created time.Time) []byte {
	return Envelope(id, "invoice.payment_succeeded", created, map[string]any{
		"id":     "in_" + id,
		"object": "invoice",
		"parent": map[string]any{
			"type":                 "subscription_details",
			"subscription_details": map[string]any{"subscription": subscriptionID},
		},
		"status_transitions": map[string]any{"paid_at": paidAt.Unix()},
		"period_end":         paidAt.Unix(),
	})
}

type Subscription struct {
	ID         string
	Status     string
	PriceID    string
	LookupKey  string
	UnitAmount int64
	Currency   string
	StartDate  time.Time
	PeriodEnd  time.Time
}

func (s Subscription) object() map[string]any {
	price := map[string]any{
		"id":          s.PriceID,
		"object":      "price",
		"unit_amount": s.UnitAmount,
		"currency":    s.Currency,
	}
	if s.LookupKey != "" {
		price["lookup_key"] = s.LookupKey
	}
	obj := map[string]any{
		"id":       s.ID,
		"object":   "subscription",
		"status":   s.Status,
		"currency": s.Currency,
		"items": map[string]any{
			"object": "list",
			"data": []any{map[string]any{
				"id":                 "si_" + s.ID,
				"object":             "subscription_item",
				"quantity":           1,
				"price":              price,
				"current_period_end": s.PeriodEnd.Unix(),
			}},
		},
	}
	if !s.StartDate.IsZero() {
		obj["start_date"] = s.StartDate.Unix()
	}
	return obj
}

func SubscriptionUpdated(id string, sub Subscription, created time.Time) []byte {
	return Envelope(id, "customer.subscription.updated", created, sub.object())
}

func SubscriptionDeleted(id, subscriptionID string, created time.Time) []byte {
	return Envelope(id, "customer.subscription.deleted", created, map[string]any{
		"id":     subscriptionID,
		"object": "subscription",
		"status": "canceled",
	})
}

// Sign returns the signature header value for payload.
func Sign(payload []byte, secret string) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: payload,
		Secret:  secret,
	}).Header
}
