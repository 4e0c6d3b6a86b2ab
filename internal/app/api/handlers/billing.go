package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mw "github.com/fatflowers/paysync/internal/app/api/middleware"
	"github.com/fatflowers/paysync/internal/app/service/checkout"
	nh "github.com/fatflowers/paysync/internal/app/service/notification_handler"
	subsvc "github.com/fatflowers/paysync/internal/app/service/subscription"
	"github.com/fatflowers/paysync/internal/models"
	"github.com/fatflowers/paysync/pkg/logctx"
	"github.com/fatflowers/paysync/pkg/response"
	"github.com/fatflowers/paysync/pkg/types"
)

type CheckoutSessionRequest struct {
	PlanRef string `json:"planRef" binding:"required"`
	// UserRef defaults to the token subject and must match it when given.
	UserRef string `json:"userRef"`
}

type CheckoutSessionResponse struct {
	URL string `json:"url"`
}

type ErrorBody struct {
	Error string `json:"error"`
}

// @Summary      Create Checkout Session
// @Description  Starts a hosted checkout for a configured plan. No local state is written.
// @Tags         Billing
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body CheckoutSessionRequest true "Plan and user reference"
// @Success      200  {object}  handlers.CheckoutSessionResponse
// @Failure      400  {object}  handlers.ErrorBody
// @Failure      403  {object}  handlers.ErrorBody
// @Failure      503  {object}  handlers.ErrorBody
// @Router       /billing/checkout-session [post]
func ApiCreateCheckoutSession(initiator *checkout.Initiator, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CheckoutSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, &ErrorBody{Error: err.Error()})
			return
		}
		subject := mw.UserID(c)
		if req.UserRef == "" {
			req.UserRef = subject
		}
		if req.UserRef != subject {
			c.JSON(http.StatusForbidden, &ErrorBody{Error: "userRef does not match the authenticated user"})
			return
		}

		url, err := initiator.CreateSession(c.Request.Context(), req.PlanRef, req.UserRef)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, &CheckoutSessionResponse{URL: url})
		case errors.Is(err, checkout.ErrUnknownPlan), errors.Is(err, checkout.ErrMissingUserRef):
			c.JSON(http.StatusBadRequest, &ErrorBody{Error: err.Error()})
		case types.IsTransient(err):
			logctx.FromGin(c, log).Warnw("checkout_processor_unavailable", "err", err)
			c.JSON(http.StatusServiceUnavailable, &ErrorBody{Error: "payment processor unavailable"})
		default:
			logctx.FromGin(c, log).Errorw("checkout_failed", "err", err)
			c.JSON(http.StatusBadGateway, &ErrorBody{Error: "failed to create checkout session"})
		}
	}
}

func toUserSubscriptionInfo(sub *models.Subscription) *types.UserSubscriptionInfo {
	if sub == nil {
		return nil
	}
	return &types.UserSubscriptionInfo{
		Status:   sub.Status,
		Plan:     sub.Plan,
		Amount:   sub.Amount.String(),
		Currency: sub.Currency,
		EndsAt:   sub.EndsAt,
		Entitled: sub.Current(time.Now()),
	}
}

// @Summary      Current Subscription
// @Description  Returns the caller's most recent non-canceled subscription, else the most recent one. Data is null when the user has none.
// @Tags         Billing
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespUserSubscription
// @Router       /billing/subscription [get]
func ApiGetSubscription(subs *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, err := subs.GetCurrentByUser(c.Request.Context(), mw.UserID(c))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(toUserSubscriptionInfo(sub)))
	}
}

func BillingRoutes(h *nh.NotificationHandler, initiator *checkout.Initiator, subs *subsvc.Service, log *zap.SugaredLogger) []Route {
	return []Route{
		{Method: http.MethodPost, Path: "/webhook", Body: mw.BodyRaw, Handler: ApiBillingWebhook(h)},
		{Method: http.MethodPost, Path: "/checkout-session", Body: mw.BodyJSON, Auth: AuthUser, Handler: ApiCreateCheckoutSession(initiator, log)},
		{Method: http.MethodGet, Path: "/subscription", Auth: AuthUser, Handler: ApiGetSubscription(subs)},
	}
}
