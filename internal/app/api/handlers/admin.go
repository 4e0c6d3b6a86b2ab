package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	mw "github.com/fatflowers/paysync/internal/app/api/middleware"
	"github.com/fatflowers/paysync/internal/app/service/ledger"
	notificationlog "github.com/fatflowers/paysync/internal/app/service/notification_log"
	"github.com/fatflowers/paysync/internal/app/service/resync"
	"github.com/fatflowers/paysync/internal/app/service/statistics"
	subsvc "github.com/fatflowers/paysync/internal/app/service/subscription"
	"github.com/fatflowers/paysync/internal/models"
	"github.com/fatflowers/paysync/pkg/response"
)

type ListSubscriptionsResponse struct {
	Items []*models.Subscription `json:"items"`
	Total int64                  `json:"total"`
}

// @Summary      List Subscriptions (Admin)
// @Description  Retrieves a paginated and filterable list of local subscriptions.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body subscription.ListRequest true "Filters and pagination"
// @Success      200  {object}  handlers.RespListSubscriptions
// @Router       /api/v1/admin/list_subscriptions [post]
func ApiListSubscriptions(subs *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req subsvc.ListRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		items, total, err := subs.List(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&ListSubscriptionsResponse{Items: items, Total: total}))
	}
}

// @Summary      Subscription History (Admin)
// @Description  Lists every recorded change of a subscription, oldest first.
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Subscription id"
// @Success      200  {object}  handlers.RespSubscriptionHistory
// @Router       /api/v1/admin/subscriptions/{id}/history [get]
func ApiSubscriptionHistory(subs *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		logs, err := subs.History(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(logs))
	}
}

// @Summary      List Deferred Events (Admin)
// @Description  Lists events waiting for, or given up by, asynchronous reconciliation.
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        status query string false "pending, resolved, manual_review or abandoned"
// @Param        limit  query int    false "Maximum rows, default 100"
// @Success      200  {object}  handlers.RespDeferredEvents
// @Router       /api/v1/admin/deferred_events [get]
func ApiListDeferredEvents(svc *resync.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req resync.ListRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		rows, err := svc.List(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(rows))
	}
}

// @Summary      Trigger Resync (Admin)
// @Description  Runs one resync pass over pending deferred events and reports what it did.
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespResyncReport
// @Router       /api/v1/admin/resync [post]
func ApiTriggerResync(svc *resync.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := svc.RunOnce(c.Request.Context())
		if errors.Is(err, resync.ErrAlreadyRunning) {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeUnavailable, err.Error()))
			return
		}
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(report))
	}
}

// @Summary      Get Billing Statistics (Admin)
// @Description  Computes the requested billing summary statistics.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body statistics.BillingStatisticRequest true "Statistic request parameters"
// @Success      200  {object}  handlers.RespBillingStatistic
// @Router       /api/v1/admin/get_billing_statistic [post]
func ApiGetBillingStatistic(svc *statistics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.BillingStatisticRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.GetBillingStatistic(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

type PruneLedgerRequest struct {
	OlderThanDays int `json:"older_than_days" binding:"required,min=1"`
}

type PruneLedgerResponse struct {
	Deleted int64 `json:"deleted"`
}

// @Summary      Prune Event Ledger (Admin)
// @Description  Deletes processed-event records older than the given age. Redeliveries older than that are no longer recognized as duplicates.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body PruneLedgerRequest true "Retention"
// @Success      200  {object}  handlers.RespPruneLedger
// @Router       /api/v1/admin/prune_ledger [post]
func ApiPruneLedger(l *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PruneLedgerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		n, err := l.Prune(c.Request.Context(), time.Now().AddDate(0, 0, -req.OlderThanDays))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&PruneLedgerResponse{Deleted: n}))
	}
}

// @Summary      Webhook Deliveries (Admin)
// @Description  Lists the delivery log rows recorded for one processor event.
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        event_id path string true "Processor event id"
// @Success      200  {object}  handlers.RespWebhookDeliveries
// @Router       /api/v1/admin/webhook_deliveries/{event_id} [get]
func ApiWebhookDeliveries(notif *notificationlog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := notif.ListByEvent(c.Request.Context(), c.Param("event_id"))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(rows))
	}
}

type AdminDeps struct {
	Subscriptions *subsvc.Service
	Resync        *resync.Service
	Statistics    *statistics.Service
	Ledger        *ledger.Ledger
	Deliveries    *notificationlog.Service
}

func AdminRoutes(d AdminDeps) []Route {
	return []Route{
		{Method: http.MethodPost, Path: "/list_subscriptions", Body: mw.BodyJSON, Auth: AuthAdmin, Handler: ApiListSubscriptions(d.Subscriptions)},
		{Method: http.MethodGet, Path: "/subscriptions/:id/history", Auth: AuthAdmin, Handler: ApiSubscriptionHistory(d.Subscriptions)},
		{Method: http.MethodGet, Path: "/deferred_events", Auth: AuthAdmin, Handler: ApiListDeferredEvents(d.Resync)},
		{Method: http.MethodPost, Path: "/resync", Auth: AuthAdmin, Handler: ApiTriggerResync(d.Resync)},
		{Method: http.MethodPost, Path: "/get_billing_statistic", Body: mw.BodyJSON, Auth: AuthAdmin, Handler: ApiGetBillingStatistic(d.Statistics)},
		{Method: http.MethodPost, Path: "/prune_ledger", Body: mw.BodyJSON, Auth: AuthAdmin, Handler: ApiPruneLedger(d.Ledger)},
		{Method: http.MethodGet, Path: "/webhook_deliveries/:event_id", Auth: AuthAdmin, Handler: ApiWebhookDeliveries(d.Deliveries)},
	}
}
