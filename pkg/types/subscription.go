package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SubscriptionStatus is the local, normalized subscription status vocabulary.
type SubscriptionStatus string

const (
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusTrialing   SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusUnpaid     SubscriptionStatus = "unpaid"
	SubscriptionStatusCanceled   SubscriptionStatus = "canceled"
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
)

// SubscriptionStatuses lists every supported local status.
var SubscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusActive,
	SubscriptionStatusTrialing,
	SubscriptionStatusPastDue,
	SubscriptionStatusUnpaid,
	SubscriptionStatusCanceled,
	SubscriptionStatusIncomplete,
}

// processorStatuses maps processor status strings onto the local enum.
// incomplete_expired is terminal on the processor side and has no local
// counterpart of its own.
var processorStatuses = map[string]SubscriptionStatus{
	"active":             SubscriptionStatusActive,
	"trialing":           SubscriptionStatusTrialing,
	"past_due":           SubscriptionStatusPastDue,
	"unpaid":             SubscriptionStatusUnpaid,
	"canceled":           SubscriptionStatusCanceled,
	"incomplete":         SubscriptionStatusIncomplete,
	"incomplete_expired": SubscriptionStatusCanceled,
}

// ErrUnsupportedStatus is returned for processor statuses with no local
// mapping, such as "paused".
var ErrUnsupportedStatus = errors.New("unsupported subscription status")

// ParseSubscriptionStatus normalizes a processor status string.
func ParseSubscriptionStatus(s string) (SubscriptionStatus, error) {
	if st, ok := processorStatuses[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnsupportedStatus, s)
}

// ProcessorString returns the processor representation of the status.
func (s SubscriptionStatus) ProcessorString() string {
	return string(s)
}

func (s SubscriptionStatus) Valid() bool {
	for _, st := range SubscriptionStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// Entitled reports whether the status grants access to paid features.
func (s SubscriptionStatus) Entitled() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing
}

type SubscriptionChangeReason string

const (
	SubscriptionChangeReasonCheckout SubscriptionChangeReason = "checkout"
	SubscriptionChangeReasonPayment  SubscriptionChangeReason = "payment"
	SubscriptionChangeReasonUpdate   SubscriptionChangeReason = "update"
	SubscriptionChangeReasonCancel   SubscriptionChangeReason = "cancel"
	SubscriptionChangeReasonResync   SubscriptionChangeReason = "resync"
)

type UserSubscriptionInfo struct {
	Status   SubscriptionStatus `json:"status"`
	Plan     string             `json:"plan"`
	Amount   string             `json:"amount"`
	Currency string             `json:"currency"`
	EndsAt   *time.Time         `json:"ends_at"`
	Entitled bool               `json:"entitled"`
}
