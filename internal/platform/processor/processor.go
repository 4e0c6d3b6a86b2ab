// Package processor defines the outbound contract with the external payment
// processor. Implementations live in sub-packages.
package processor

import (
	"context"
	"errors"
	"time"

	"github.com/fatflowers/paysync/pkg/types"
)

var (
	// ErrNotFound is returned when the processor has no such object.
	ErrNotFound = errors.New("processor: not found")
	// ErrUnavailable wraps timeouts, open circuit breakers and 5xx responses.
	// Callers should treat it as retryable.
	ErrUnavailable = errors.New("processor: unavailable")
	// ErrRejected marks permanent failures: client-side 4xx responses and
	// objects the service cannot represent, such as an unsupported status.
	// Retrying the same request yields the same answer.
	ErrRejected = errors.New("processor: rejected")
)

// SubscriptionSnapshot is the processor's view of a subscription at
// retrieval time.
type SubscriptionSnapshot struct {
	ID               string
	Status           types.SubscriptionStatus
	Plan             string
	AmountMinorUnits int64
	Currency         string
	StartedAt        *time.Time
	EndsAt           *time.Time
	// UserRef is the account reference attached at checkout, if any.
	UserRef string
	// RetrievedAt is when the processor was asked, truncated to the second
	// like processor event times. Zero means unknown.
	RetrievedAt time.Time
}

// Client is the subset of the processor API the billing service consumes.
type Client interface {
	// CreateCheckoutSession starts a hosted checkout for the given price and
	// returns the redirect URL.
	CreateCheckoutSession(ctx context.Context, priceID, userRef string) (string, error)
	RetrieveSubscription(ctx context.Context, externalID string) (*SubscriptionSnapshot, error)
}

// AsOf returns the retrieval time of a snapshot in processor precision.
func AsOf(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// IsUnavailable reports whether err is a retryable processor failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsRejected reports whether err is a permanent processor failure.
func IsRejected(err error) bool {
	return errors.Is(err, ErrRejected)
}
