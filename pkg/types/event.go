package types

// EventType is the processor event type name.
type EventType string

const (
	EventTypeCheckoutCompleted       EventType = "checkout.session.completed"
	EventTypeInvoicePaymentSucceeded EventType = "invoice.payment_succeeded"
	EventTypeInvoicePaid             EventType = "invoice.paid"
	EventTypeSubscriptionUpdated     EventType = "customer.subscription.updated"
	EventTypeSubscriptionDeleted     EventType = "customer.subscription.deleted"
)

// EventOutcome is what happened to a delivered event.
type EventOutcome string

const (
	EventOutcomeApplied      EventOutcome = "applied"
	EventOutcomeDuplicate    EventOutcome = "duplicate"
	EventOutcomeIgnored      EventOutcome = "ignored"
	EventOutcomeMalformed    EventOutcome = "malformed"
	EventOutcomeIncomplete   EventOutcome = "incomplete"
	EventOutcomeDeferred     EventOutcome = "deferred"
	EventOutcomeStale        EventOutcome = "stale"
	EventOutcomeInvalidSig   EventOutcome = "invalid_signature"
	EventOutcomeTransientErr EventOutcome = "transient_error"
)
