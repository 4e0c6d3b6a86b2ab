// Package processortest provides an in-memory processor.Client for tests.
package processortest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fatflowers/paysync/internal/platform/processor"
)

// Fake is a scriptable processor.Client. Subscriptions not registered with
// Put resolve to processor.ErrNotFound.
type Fake struct {
	mu            sync.Mutex
	subscriptions map[string]*processor.SubscriptionSnapshot
	// Delay is applied to every call; a context deadline shorter than Delay
	// yields processor.ErrUnavailable.
	Delay time.Duration
	// Err, when set, is returned from every call.
	Err error

	retrieveCalls map[string]int
	checkouts     []Checkout
}

type Checkout struct {
	PriceID string
	UserRef string
}

func NewFake() *Fake {
	return &Fake{
		subscriptions: map[string]*processor.SubscriptionSnapshot{},
		retrieveCalls: map[string]int{},
	}
}

func (f *Fake) Put(snap *processor.SubscriptionSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *snap
	f.subscriptions[snap.ID] = &cp
}

func (f *Fake) RetrieveCalls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retrieveCalls[id]
}

func (f *Fake) Checkouts() []Checkout {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Checkout(nil), f.checkouts...)
}

func (f *Fake) wait(ctx context.Context) error {
	if f.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(f.Delay):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", processor.ErrUnavailable, ctx.Err())
	}
}

func (f *Fake) CreateCheckoutSession(ctx context.Context, priceID, userRef string) (string, error) {
	if err := f.wait(ctx); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	f.checkouts = append(f.checkouts, Checkout{PriceID: priceID, UserRef: userRef})
	return fmt.Sprintf("https://checkout.test/%s/%s", priceID, userRef), nil
}

func (f *Fake) RetrieveSubscription(ctx context.Context, externalID string) (*processor.SubscriptionSnapshot, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retrieveCalls[externalID]++
	if f.Err != nil {
		return nil, f.Err
	}
	snap, ok := f.subscriptions[externalID]
	if !ok {
		return nil, fmt.Errorf("%w: subscription %s", processor.ErrNotFound, externalID)
	}
	cp := *snap
	return &cp, nil
}

var _ processor.Client = (*Fake)(nil)
