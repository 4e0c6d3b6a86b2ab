package billingevent

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/fx"

	"github.com/fatflowers/paysync/pkg/config"
	"github.com/fatflowers/paysync/pkg/types"
)

const userRefMetadataKey = "user_ref"

// PlanResolver maps a processor price to a local plan id.
type PlanResolver interface {
	ResolvePlan(priceID, lookupKey string) string
}

type Parser struct {
	plans    PlanResolver
	validate *validator.Validate
}

func NewParser(cfg *config.Config) *Parser {
	return &Parser{plans: cfg, validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Parse decodes payload into a typed event. An unreadable envelope yields a
// *types.MalformedEventError with Envelope set; an unreadable or invalid
// object of a known type yields one without.
func (p *Parser) Parse(payload []byte) (Event, error) {
	var env stripe.Event
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, &types.MalformedEventError{Envelope: true, Reason: err.Error()}
	}
	meta := Meta{ID: env.ID, Type: types.EventType(env.Type)}
	if env.Created > 0 {
		meta.CreatedAt = time.Unix(env.Created, 0).UTC()
	}
	if err := p.validate.Struct(meta); err != nil {
		return nil, &types.MalformedEventError{EventID: env.ID, Envelope: true, Reason: err.Error()}
	}

	var raw json.RawMessage
	if env.Data != nil {
		raw = env.Data.Raw
	}

	var (
		ev  Event
		err error
	)
	switch meta.Type {
	case types.EventTypeCheckoutCompleted:
		ev, err = p.parseCheckout(meta, raw)
	case types.EventTypeInvoicePaymentSucceeded, types.EventTypeInvoicePaid:
		ev, err = p.parseInvoice(meta, raw)
	case types.EventTypeSubscriptionUpdated:
		ev, err = p.parseSubscriptionUpdated(meta, raw)
	case types.EventTypeSubscriptionDeleted:
		ev, err = p.parseSubscriptionDeleted(meta, raw)
	default:
		return &Unrecognized{Meta: meta}, nil
	}
	if err != nil {
		return nil, &types.MalformedEventError{EventID: meta.ID, Reason: err.Error()}
	}
	if err := p.validate.Struct(ev); err != nil {
		return nil, &types.MalformedEventError{EventID: meta.ID, Reason: err.Error()}
	}
	return ev, nil
}

func decodeObject(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("missing data.object")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode data.object: %w", err)
	}
	return nil
}

func (p *Parser) parseCheckout(meta Meta, raw json.RawMessage) (Event, error) {
	var sess stripe.CheckoutSession
	if err := decodeObject(raw, &sess); err != nil {
		return nil, err
	}
	ev := &CheckoutCompleted{Meta: meta, UserRef: sess.ClientReferenceID}
	if ev.UserRef == "" {
		ev.UserRef = sess.Metadata[userRefMetadataKey]
	}
	if sess.Subscription != nil {
		ev.ExternalSubscriptionID = sess.Subscription.ID
	}
	return ev, nil
}

// invoiceObject reads the subscription reference from both the legacy
// top-level field and the parent details introduced in later API versions.
type invoiceObject struct {
	ID           string          `json:"id"`
	Subscription json.RawMessage `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription json.RawMessage `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	PeriodEnd         int64 `json:"period_end"`
	StatusTransitions *struct {
		PaidAt int64 `json:"paid_at"`
	} `json:"status_transitions"`
	Lines *struct {
		Data []struct {
			Period *struct {
				End int64 `json:"end"`
			} `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

// expandableID reads an id that may be serialized as a string or an object.
func expandableID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return ""
}

func (p *Parser) parseInvoice(meta Meta, raw json.RawMessage) (Event, error) {
	var inv invoiceObject
	if err := decodeObject(raw, &inv); err != nil {
		return nil, err
	}
	ev := &InvoicePaymentSucceeded{Meta: meta, ExternalSubscriptionID: expandableID(inv.Subscription)}
	if ev.ExternalSubscriptionID == "" && inv.Parent != nil && inv.Parent.SubscriptionDetails != nil {
		ev.ExternalSubscriptionID = expandableID(inv.Parent.SubscriptionDetails.Subscription)
	}

	ev.PaidAt = meta.CreatedAt
	if inv.StatusTransitions != nil && inv.StatusTransitions.PaidAt > 0 {
		ev.PaidAt = time.Unix(inv.StatusTransitions.PaidAt, 0).UTC()
	}

	var periodEnd int64
	if inv.Lines != nil && len(inv.Lines.Data) > 0 && inv.Lines.Data[0].Period != nil {
		periodEnd = inv.Lines.Data[0].Period.End
	}
	if periodEnd == 0 {
		periodEnd = inv.PeriodEnd
	}
	if periodEnd > 0 {
		t := time.Unix(periodEnd, 0).UTC()
		ev.PeriodEnd = &t
	}
	return ev, nil
}

func (p *Parser) parseSubscriptionUpdated(meta Meta, raw json.RawMessage) (Event, error) {
	var sub stripe.Subscription
	if err := decodeObject(raw, &sub); err != nil {
		return nil, err
	}
	status, err := types.ParseSubscriptionStatus(string(sub.Status))
	if err != nil {
		return nil, err
	}
	ev := &SubscriptionUpdated{
		Meta:                   meta,
		ExternalSubscriptionID: sub.ID,
		Status:                 status,
		Currency:               string(sub.Currency),
	}
	if sub.StartDate > 0 {
		t := time.Unix(sub.StartDate, 0).UTC()
		ev.StartedAt = &t
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
		return nil, fmt.Errorf("subscription %s has no priced item", sub.ID)
	}
	item := sub.Items.Data[0]
	ev.Plan = p.plans.ResolvePlan(item.Price.ID, item.Price.LookupKey)
	ev.AmountMinorUnits = item.Price.UnitAmount * max(item.Quantity, 1)
	if ev.Currency == "" {
		ev.Currency = string(item.Price.Currency)
	}
	switch {
	case sub.EndedAt > 0:
		t := time.Unix(sub.EndedAt, 0).UTC()
		ev.EndsAt = &t
	case item.CurrentPeriodEnd > 0:
		t := time.Unix(item.CurrentPeriodEnd, 0).UTC()
		ev.EndsAt = &t
	}
	return ev, nil
}

func (p *Parser) parseSubscriptionDeleted(meta Meta, raw json.RawMessage) (Event, error) {
	var sub stripe.Subscription
	if err := decodeObject(raw, &sub); err != nil {
		return nil, err
	}
	return &SubscriptionDeleted{Meta: meta, ExternalSubscriptionID: sub.ID}, nil
}

var Module = fx.Options(
	fx.Provide(NewParser),
)
