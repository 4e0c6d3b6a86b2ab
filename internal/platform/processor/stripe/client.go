// Package stripe implements processor.Client on top of stripe-go.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	stripego "github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"

	"github.com/fatflowers/paysync/internal/platform/processor"
	"github.com/fatflowers/paysync/pkg/config"
	"github.com/fatflowers/paysync/pkg/metrics"
	"github.com/fatflowers/paysync/pkg/types"
)

const (
	opCreateCheckout       = "create_checkout_session"
	opRetrieveSubscription = "retrieve_subscription"

	userRefMetadataKey = "user_ref"
)

// PlanResolver maps a processor price to a local plan id.
type PlanResolver interface {
	ResolvePlan(priceID, lookupKey string) string
}

type Client struct {
	sc         *stripego.Client
	cfg        config.StripeConfig
	plans      PlanResolver
	subBreaker *gobreaker.CircuitBreaker[*stripego.Subscription]
	coBreaker  *gobreaker.CircuitBreaker[*stripego.CheckoutSession]
	metrics    *metrics.Business
	logger     *zap.SugaredLogger
}

var _ processor.Client = (*Client)(nil)

func breakerSettings(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		// Client errors such as 404 say nothing about processor health.
		IsSuccessful: func(err error) bool {
			return err == nil || !isServerSide(err)
		},
	}
}

func NewClient(cfg *config.Config, m *metrics.Business, logger *zap.SugaredLogger) *Client {
	return newClient(stripego.NewClient(cfg.Stripe.SecretKey), cfg, m, logger)
}

func newClient(sc *stripego.Client, cfg *config.Config, m *metrics.Business, logger *zap.SugaredLogger) *Client {
	return &Client{
		sc:         sc,
		cfg:        cfg.Stripe,
		plans:      cfg,
		subBreaker: gobreaker.NewCircuitBreaker[*stripego.Subscription](breakerSettings("stripe-subscriptions")),
		coBreaker:  gobreaker.NewCircuitBreaker[*stripego.CheckoutSession](breakerSettings("stripe-checkout")),
		metrics:    m,
		logger:     logger,
	}
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.APITimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.APITimeout)
}

func (c *Client) CreateCheckoutSession(ctx context.Context, priceID, userRef string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	params := &stripego.CheckoutSessionCreateParams{
		Mode:       stripego.String(string(stripego.CheckoutSessionModeSubscription)),
		SuccessURL: stripego.String(c.cfg.SuccessURL),
		CancelURL:  stripego.String(c.cfg.CancelURL),
		LineItems: []*stripego.CheckoutSessionCreateLineItemParams{
			{Price: stripego.String(priceID), Quantity: stripego.Int64(1)},
		},
		ClientReferenceID: stripego.String(userRef),
		SubscriptionData: &stripego.CheckoutSessionCreateSubscriptionDataParams{
			Metadata: map[string]string{userRefMetadataKey: userRef},
		},
	}

	start := time.Now()
	sess, err := c.coBreaker.Execute(func() (*stripego.CheckoutSession, error) {
		return c.sc.V1CheckoutSessions.Create(ctx, params)
	})
	err = classify(ctx, err)
	c.metrics.ObserveProcessorCall(opCreateCheckout, start, err)
	if err != nil {
		c.logger.Warnw("stripe_checkout_failed", "price_id", priceID, "user_ref", userRef, "err", err)
		return "", err
	}
	return sess.URL, nil
}

func (c *Client) RetrieveSubscription(ctx context.Context, externalID string) (*processor.SubscriptionSnapshot, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	params := &stripego.SubscriptionRetrieveParams{}
	params.AddExpand("items.data.price")

	start := time.Now()
	asOf := processor.AsOf(start)
	sub, err := c.subBreaker.Execute(func() (*stripego.Subscription, error) {
		return c.sc.V1Subscriptions.Retrieve(ctx, externalID, params)
	})
	err = classify(ctx, err)
	c.metrics.ObserveProcessorCall(opRetrieveSubscription, start, err)
	if err != nil {
		return nil, err
	}
	snap, err := toSnapshot(sub, c.plans)
	if err != nil {
		c.logger.Warnw("stripe_subscription_rejected", "external_subscription_id", externalID, "err", err)
		return nil, err
	}
	snap.RetrievedAt = asOf
	return snap, nil
}

func toSnapshot(sub *stripego.Subscription, plans PlanResolver) (*processor.SubscriptionSnapshot, error) {
	status, err := types.ParseSubscriptionStatus(string(sub.Status))
	if err != nil {
		return nil, fmt.Errorf("%w: subscription %s: %w", processor.ErrRejected, sub.ID, err)
	}
	snap := &processor.SubscriptionSnapshot{
		ID:       sub.ID,
		Status:   status,
		Currency: string(sub.Currency),
		UserRef:  sub.Metadata[userRefMetadataKey],
	}
	if sub.StartDate > 0 {
		t := time.Unix(sub.StartDate, 0).UTC()
		snap.StartedAt = &t
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return snap, nil
	}
	item := sub.Items.Data[0]
	if item.CurrentPeriodEnd > 0 {
		t := time.Unix(item.CurrentPeriodEnd, 0).UTC()
		snap.EndsAt = &t
	}
	if item.Price != nil {
		snap.Plan = plans.ResolvePlan(item.Price.ID, item.Price.LookupKey)
		snap.AmountMinorUnits = item.Price.UnitAmount * max(item.Quantity, 1)
		if snap.Currency == "" {
			snap.Currency = string(item.Price.Currency)
		}
	}
	return snap, nil
}

// classify maps stripe-go and breaker errors onto the processor error set.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", processor.ErrUnavailable, err)
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", processor.ErrUnavailable, err)
	}
	var se *stripego.Error
	if errors.As(err, &se) {
		if se.HTTPStatusCode == http.StatusNotFound || se.Code == stripego.ErrorCodeResourceMissing {
			return fmt.Errorf("%w: %s", processor.ErrNotFound, se.Msg)
		}
		if isServerSide(se) {
			return fmt.Errorf("%w: %v", processor.ErrUnavailable, err)
		}
		return fmt.Errorf("%w: %w", processor.ErrRejected, err)
	}
	// Network-level failures carry no stripe error body.
	return fmt.Errorf("%w: %v", processor.ErrUnavailable, err)
}

func isServerSide(err error) bool {
	var se *stripego.Error
	if errors.As(err, &se) {
		return se.HTTPStatusCode >= 500 || se.HTTPStatusCode == http.StatusTooManyRequests
	}
	return true
}
