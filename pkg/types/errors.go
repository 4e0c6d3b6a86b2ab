package types

import (
	"errors"
	"fmt"
)

// SignatureError means the payload could not be attributed to the processor.
type SignatureError struct {
	Err error
}

func (e *SignatureError) Error() string { return "invalid webhook signature: " + e.Err.Error() }
func (e *SignatureError) Unwrap() error { return e.Err }

// MalformedEventError is a structurally bad payload from a verified sender.
// Envelope is set when the event id or type could not be read at all.
type MalformedEventError struct {
	EventID  string
	Envelope bool
	Reason   string
}

func (e *MalformedEventError) Error() string {
	if e.Envelope {
		return "malformed event envelope: " + e.Reason
	}
	return fmt.Sprintf("malformed event %s: %s", e.EventID, e.Reason)
}

// IncompleteEventError is a checkout event missing its correlating fields.
type IncompleteEventError struct {
	EventID string
	Missing []string
}

func (e *IncompleteEventError) Error() string {
	return fmt.Sprintf("event %s is missing %v", e.EventID, e.Missing)
}

// ReferentialNotFoundError is an event for a subscription unknown locally.
type ReferentialNotFoundError struct {
	ExternalSubscriptionID string
}

func (e *ReferentialNotFoundError) Error() string {
	return "subscription not found: " + e.ExternalSubscriptionID
}

type TransientKind string

const (
	TransientStorage                 TransientKind = "storage"
	TransientCollaboratorTimeout     TransientKind = "collaborator_timeout"
	TransientCollaboratorUnavailable TransientKind = "collaborator_unavailable"
)

// TransientError is a failure that a redelivery may fix.
type TransientError struct {
	Kind TransientKind
	Err  error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient %s: %v", e.Kind, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

func NewTransient(kind TransientKind, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Kind: kind, Err: err}
}

// IsTransient reports whether err should be surfaced as retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
