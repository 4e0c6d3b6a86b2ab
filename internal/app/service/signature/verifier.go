// Package signature authenticates inbound processor webhooks.
package signature

import (
	"errors"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/fx"

	"github.com/fatflowers/paysync/pkg/config"
	"github.com/fatflowers/paysync/pkg/types"
)

// Verifier checks that payload was produced by the processor. It must be
// given the exact bytes received on the wire.
type Verifier interface {
	Verify(payload []byte, header string) error
}

var errNoSecret = errors.New("webhook secret is not configured")

type StripeVerifier struct {
	secret    string
	tolerance time.Duration
}

func NewStripeVerifier(cfg *config.Config) *StripeVerifier {
	tolerance := cfg.Stripe.WebhookTolerance
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &StripeVerifier{secret: cfg.Stripe.WebhookSecret, tolerance: tolerance}
}

// Verify returns a *types.SignatureError on any failure, including an empty
// header or an unconfigured secret.
func (v *StripeVerifier) Verify(payload []byte, header string) error {
	if v.secret == "" {
		return &types.SignatureError{Err: errNoSecret}
	}
	if header == "" {
		return &types.SignatureError{Err: webhook.ErrNotSigned}
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, header, v.secret, v.tolerance); err != nil {
		return &types.SignatureError{Err: err}
	}
	return nil
}

var Module = fx.Options(
	fx.Provide(
		NewStripeVerifier,
		func(v *StripeVerifier) Verifier { return v },
	),
)
