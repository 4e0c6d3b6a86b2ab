package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	mw "github.com/fatflowers/paysync/internal/app/api/middleware"
	nh "github.com/fatflowers/paysync/internal/app/service/notification_handler"
	"github.com/fatflowers/paysync/pkg/logctx"
	"github.com/fatflowers/paysync/pkg/types"
)

// SignatureHeader carries the processor's webhook signature.
const SignatureHeader = "Stripe-Signature"

type WebhookAck struct {
	Received bool   `json:"received"`
	Error    string `json:"error,omitempty"`
}

// @Summary      Billing Webhook
// @Description  Receives processor billing events. The body is verified against the Stripe-Signature header byte for byte.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        Stripe-Signature header string true "Processor signature"
// @Param        payload body string true "Raw event payload"
// @Success      200  {object}  handlers.WebhookAck
// @Failure      400  {object}  handlers.WebhookAck
// @Failure      500  {object}  handlers.WebhookAck
// @Failure      503  {object}  handlers.WebhookAck
// @Router       /billing/webhook [post]
func ApiBillingWebhook(h *nh.NotificationHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := h.HandleWebhook(c.Request.Context(), mw.RawBodyFrom(c), c.GetHeader(SignatureHeader))
		status := webhookStatus(err)
		if status != http.StatusOK {
			_ = c.Error(err)
			c.JSON(status, &WebhookAck{Received: false, Error: http.StatusText(status)})
			return
		}
		if err != nil {
			logctx.FromGin(c, h.Logger).Warnw("webhook_acknowledged_with_error", "event_id", d.EventID, "err", err)
		}
		c.JSON(http.StatusOK, &WebhookAck{Received: true})
	}
}

// webhookStatus maps a delivery error onto the processor's retry contract:
// 2xx is final, 4xx is never retried, 5xx is redelivered later.
func webhookStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var sigErr *types.SignatureError
	if errors.As(err, &sigErr) {
		return http.StatusBadRequest
	}
	var malformed *types.MalformedEventError
	if errors.As(err, &malformed) {
		if malformed.Envelope {
			return http.StatusBadRequest
		}
		return http.StatusOK
	}
	var te *types.TransientError
	if errors.As(err, &te) && te.Kind != types.TransientStorage {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
