// Package checkout starts hosted processor checkouts. It keeps no local state.
package checkout

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/paysync/internal/platform/processor"
	"github.com/fatflowers/paysync/pkg/config"
	"github.com/fatflowers/paysync/pkg/logctx"
	"github.com/fatflowers/paysync/pkg/types"
)

var (
	ErrUnknownPlan    = errors.New("unknown plan")
	ErrMissingUserRef = errors.New("user reference is required")
)

type Initiator struct {
	cfg       *config.Config
	processor processor.Client
	log       *zap.SugaredLogger
}

func NewInitiator(cfg *config.Config, pc processor.Client, log *zap.SugaredLogger) *Initiator {
	return &Initiator{cfg: cfg, processor: pc, log: log}
}

// CreateSession returns the hosted checkout URL for planRef. The processor
// later reports completion through the webhook.
func (i *Initiator) CreateSession(ctx context.Context, planRef, userRef string) (string, error) {
	if userRef == "" {
		return "", ErrMissingUserRef
	}
	plan := i.cfg.GetPlanByID(planRef)
	if plan == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownPlan, planRef)
	}

	url, err := i.processor.CreateCheckoutSession(ctx, plan.PriceID, userRef)
	if err != nil {
		if processor.IsUnavailable(err) {
			return "", types.NewTransient(types.TransientCollaboratorUnavailable, err)
		}
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	logctx.FromCtx(ctx, i.log).Infow("checkout_session_created", "plan", plan.ID, "user_ref", userRef)
	return url, nil
}

var Module = fx.Options(
	fx.Provide(NewInitiator),
)
