package notification_handler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	billingevent "github.com/fatflowers/paysync/internal/app/service/billing_event"
	notificationlog "github.com/fatflowers/paysync/internal/app/service/notification_log"
	"github.com/fatflowers/paysync/internal/app/service/signature"
	"github.com/fatflowers/paysync/internal/app/service/subscription"
	"github.com/fatflowers/paysync/pkg/logctx"
	"github.com/fatflowers/paysync/pkg/metrics"
	"github.com/fatflowers/paysync/pkg/types"
)

// Delivery summarizes how one webhook request was handled.
type Delivery struct {
	EventID   string
	EventType types.EventType
	Outcome   types.EventOutcome
}

type NotificationHandler struct {
	verifier   signature.Verifier
	parser     *billingevent.Parser
	reconciler *subscription.Reconciler
	notifSvc   *notificationlog.Service
	metrics    *metrics.Business
	Logger     *zap.SugaredLogger
	now        func() time.Time
}

func NewNotificationHandler(
	verifier signature.Verifier,
	parser *billingevent.Parser,
	reconciler *subscription.Reconciler,
	notif *notificationlog.Service,
	m *metrics.Business,
	log *zap.SugaredLogger,
) *NotificationHandler {
	return &NotificationHandler{
		verifier:   verifier,
		parser:     parser,
		reconciler: reconciler,
		notifSvc:   notif,
		metrics:    m,
		Logger:     log,
		now:        time.Now,
	}
}

// HandleWebhook runs verify, parse and reconcile for one raw delivery.
//
// The returned error is one of *types.SignatureError,
// *types.MalformedEventError or a transient error; every other condition is
// acknowledged and reported through Delivery.Outcome.
func (h *NotificationHandler) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) (d *Delivery, resErr error) {
	log := logctx.FromCtx(ctx, h.Logger)
	receivedAt := h.now()
	d = &Delivery{}

	defer func() {
		eventType := string(d.EventType)
		if eventType == "" {
			eventType = "unknown"
		}
		h.metrics.ObserveWebhook(eventType, string(d.Outcome))
	}()

	if err := h.verifier.Verify(payload, sigHeader); err != nil {
		d.Outcome = types.EventOutcomeInvalidSig
		log.Warnw("webhook_signature_rejected", "err", err, "bytes", len(payload))
		return d, err
	}

	ev, err := h.parser.Parse(payload)
	if err != nil {
		d.Outcome = types.EventOutcomeMalformed
		var me *types.MalformedEventError
		if errors.As(err, &me) {
			d.EventID = me.EventID
		}
		log.Errorw("webhook_malformed", "event_id", d.EventID, "err", err)
		if d.EventID != "" {
			h.notifSvc.Handled(ctx, d.EventID, "", string(d.Outcome), receivedAt, nil, err)
		}
		return d, err
	}

	meta := ev.EventMeta()
	d.EventID, d.EventType = meta.ID, meta.Type
	log = log.With("event_id", meta.ID, "event_type", meta.Type)
	log.Infow("webhook_received")
	h.notifSvc.Received(ctx, meta.ID, string(meta.Type), receivedAt)

	res, err := h.reconciler.Apply(logctx.WithLogger(ctx, log), ev)
	if err != nil {
		d.Outcome = types.EventOutcomeTransientErr
		log.Errorw("webhook_transient_failure", "err", err)
		h.notifSvc.Handled(ctx, meta.ID, string(meta.Type), string(d.Outcome), receivedAt, nil, err)
		return d, err
	}

	d.Outcome = res.Outcome
	result := map[string]any{"outcome": res.Outcome}
	if res.Subscription != nil {
		result["subscription_id"] = res.Subscription.ID
		result["status"] = res.Subscription.Status
	}
	if res.Problem != nil {
		result["problem"] = res.Problem.Error()
	}
	if d.Outcome == types.EventOutcomeDuplicate {
		log.Infow("webhook_duplicate")
	}
	h.notifSvc.Handled(ctx, meta.ID, string(meta.Type), string(d.Outcome), receivedAt, result, nil)
	return d, nil
}
