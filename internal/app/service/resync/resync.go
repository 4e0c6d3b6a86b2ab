// Package resync retries deferred events against the processor's source of
// truth.
package resync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/fatflowers/paysync/internal/app/service/subscription"
	"github.com/fatflowers/paysync/internal/models"
	"github.com/fatflowers/paysync/internal/platform/processor"
	"github.com/fatflowers/paysync/pkg/config"
	"github.com/fatflowers/paysync/pkg/logctx"
	"github.com/fatflowers/paysync/pkg/metrics"
	"github.com/fatflowers/paysync/pkg/types"
)

// Report summarizes one resync pass.
type Report struct {
	Scanned      int `json:"scanned"`
	Resolved     int `json:"resolved"`
	Retried      int `json:"retried"`
	Abandoned    int `json:"abandoned"`
	ManualReview int `json:"manual_review"`
}

func (r *Report) add(o *Report) {
	r.Resolved += o.Resolved
	r.Retried += o.Retried
	r.Abandoned += o.Abandoned
	r.ManualReview += o.ManualReview
}

type Service struct {
	cfg        config.ResyncConfig
	db         *gorm.DB
	processor  processor.Client
	reconciler *subscription.Reconciler
	metrics    *metrics.Business
	log        *zap.SugaredLogger
	now        func() time.Time

	// running guards against overlapping passes from the ticker and the
	// admin trigger.
	running sync.Mutex
}

func NewService(cfg *config.Config, db *gorm.DB, pc processor.Client, r *subscription.Reconciler, m *metrics.Business, log *zap.SugaredLogger) *Service {
	return &Service{cfg: cfg.Resync, db: db, processor: pc, reconciler: r, metrics: m, log: log, now: time.Now}
}

var ErrAlreadyRunning = errors.New("resync already running")

// RunOnce processes one batch of pending deferred events. Events for the same
// subscription share a single processor lookup.
func (s *Service) RunOnce(ctx context.Context) (*Report, error) {
	if !s.running.TryLock() {
		return nil, ErrAlreadyRunning
	}
	defer s.running.Unlock()

	log := logctx.FromCtx(ctx, s.log)
	var pending []*models.DeferredEvent
	err := s.db.WithContext(ctx).
		Where("status = ?", models.DeferredStatusPending).
		Where("external_subscription_id <> ''").
		Order("created_at ASC").
		Limit(max(s.cfg.BatchSize, 1)).
		Find(&pending).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load deferred events: %w", err)
	}

	report := &Report{Scanned: len(pending)}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.cfg.Concurrency, 1))

	for externalID, group := range lo.GroupBy(pending, func(d *models.DeferredEvent) string { return d.ExternalSubscriptionID }) {
		g.Go(func() error {
			out, err := s.resolve(gctx, externalID, group)
			if err != nil {
				if types.IsTransient(err) {
					// Storage trouble ends the pass; the rows stay pending.
					return err
				}
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			report.add(out)
			return nil
		})
	}
	runErr := g.Wait()

	s.refreshGauge(ctx)
	log.Infow("resync_pass_completed", "scanned", report.Scanned, "resolved", report.Resolved,
		"retried", report.Retried, "abandoned", report.Abandoned, "manual_review", report.ManualReview, "err", runErr)
	return report, runErr
}

// resolve handles the deferred rows of one subscription. A returned error
// means nothing was counted for the group.
func (s *Service) resolve(ctx context.Context, externalID string, group []*models.DeferredEvent) (*Report, error) {
	ids := lo.Map(group, func(d *models.DeferredEvent, _ int) string { return d.ID })

	asOf := processor.AsOf(s.now())
	snap, err := s.processor.RetrieveSubscription(ctx, externalID)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, processor.ErrNotFound) || processor.IsUnavailable(err):
		return s.fail(ctx, ids, err)
	default:
		// The processor will keep giving the same answer.
		return s.review(ctx, ids, err)
	}
	snap.RetrievedAt = asOf

	res, err := s.reconciler.ApplySnapshot(ctx, snap, userRefOf(group), func(tx *gorm.DB) error {
		return tx.Model(&models.DeferredEvent{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":     models.DeferredStatusResolved,
				"attempts":   gorm.Expr("attempts + 1"),
				"last_error": nil,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	switch res.Outcome {
	case types.EventOutcomeApplied, types.EventOutcomeStale:
		return &Report{Resolved: len(group)}, nil
	default:
		return s.fail(ctx, ids, res.Problem)
	}
}

// fail counts an attempt and abandons rows that reached the attempt limit.
func (s *Service) fail(ctx context.Context, ids []string, cause error) (*Report, error) {
	msg := "unresolved"
	if cause != nil {
		msg = cause.Error()
	}
	var abandoned int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.DeferredEvent{}).
			Where("id IN ?", ids).
			Updates(map[string]any{"attempts": gorm.Expr("attempts + 1"), "last_error": msg}).Error
		if err != nil {
			return err
		}
		if s.cfg.MaxAttempts <= 0 {
			return nil
		}
		res := tx.Model(&models.DeferredEvent{}).
			Where("id IN ? AND attempts >= ?", ids, s.cfg.MaxAttempts).
			Update("status", models.DeferredStatusAbandoned)
		abandoned = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return nil, types.NewTransient(types.TransientStorage, err)
	}
	if abandoned > 0 {
		logctx.FromCtx(ctx, s.log).Warnw("resync_abandoned", "ids", ids, "last_error", msg)
	}
	return &Report{Retried: len(ids) - int(abandoned), Abandoned: int(abandoned)}, nil
}

// review moves rows the processor permanently rejected to manual review.
func (s *Service) review(ctx context.Context, ids []string, cause error) (*Report, error) {
	err := s.db.WithContext(ctx).Model(&models.DeferredEvent{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"status":     models.DeferredStatusManualReview,
			"reason":     models.DeferredReasonRemoteRejected,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": cause.Error(),
		}).Error
	if err != nil {
		return nil, types.NewTransient(types.TransientStorage, err)
	}
	logctx.FromCtx(ctx, s.log).Errorw("resync_manual_review", "ids", ids, "err", cause)
	return &Report{ManualReview: len(ids)}, nil
}

// userRefOf recovers the account reference from a deferred checkout.
func userRefOf(group []*models.DeferredEvent) string {
	for _, d := range group {
		if d.EventType != types.EventTypeCheckoutCompleted || len(d.Data) == 0 {
			continue
		}
		var payload struct {
			UserRef string `json:"user_ref"`
		}
		if err := json.Unmarshal(d.Data, &payload); err == nil && payload.UserRef != "" {
			return payload.UserRef
		}
	}
	return ""
}

func (s *Service) refreshGauge(ctx context.Context) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.DeferredEvent{}).
		Where("status = ?", models.DeferredStatusPending).Count(&n).Error; err == nil {
		s.metrics.SetDeferredPending(n)
	}
}

type ListRequest struct {
	Status models.DeferredStatus `form:"status"`
	Limit  int                   `form:"limit" binding:"omitempty,min=1,max=500"`
}

// List returns deferred events, newest first.
func (s *Service) List(ctx context.Context, req *ListRequest) ([]*models.DeferredEvent, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(lo.Ternary(req.Limit > 0, req.Limit, 100))
	if req.Status != "" {
		q = q.Where("status = ?", req.Status)
	}
	var rows []*models.DeferredEvent
	return rows, q.Find(&rows).Error
}

// Worker runs RunOnce on a fixed interval until stopped.
type Worker struct {
	svc      *Service
	interval time.Duration
	log      *zap.SugaredLogger
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewWorker(cfg *config.Config, svc *Service, log *zap.SugaredLogger) *Worker {
	return &Worker{svc: svc, interval: cfg.Resync.Interval, log: log}
}

func (w *Worker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := w.svc.RunOnce(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) && ctx.Err() == nil {
					w.log.Errorw("resync_pass_failed", "err", err)
				}
			}
		}
	}()
	w.log.Infow("resync worker started", "interval", w.interval)
}

func (w *Worker) Stop(ctx context.Context) error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
