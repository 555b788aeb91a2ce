package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fernlabs/tally/internal/app/service/webhook"
	"github.com/fernlabs/tally/pkg/logctx"
	"github.com/fernlabs/tally/pkg/response"
)

// @Summary      Checkout Webhook
// @Description  Receives asynchronous charge results and setup confirmations from the checkout provider.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        payload body webhook.Event true "Webhook event"
// @Success      200  {object}  response.APIResponse[any]
// @Router       /api/v1/billing/webhook [post]
func ApiCheckoutWebhook(h *webhook.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		logctx.FromCtx(c, h.Logger).Infow("webhook_checkout_received")

		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		traceID := ""
		if v, ok := c.Get("traceID"); ok {
			traceID, _ = v.(string)
		}

		if err := h.HandleEvent(c.Request.Context(), traceID, payload); err != nil {
			logctx.FromCtx(c, h.Logger).Errorw("webhook_checkout_handle_error", "error", err.Error())
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		logctx.FromCtx(c, h.Logger).Infow("webhook_checkout_handled")
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

func RegisterWebhookRoutes(r gin.IRouter, h *webhook.Handler) {
	r.POST("/billing/webhook", ApiCheckoutWebhook(h))
}
