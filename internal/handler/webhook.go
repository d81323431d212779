package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/BirthdayBox/internal/service"
	logger "github.com/Gopher0727/BirthdayBox/middleware/log"
)

const (
	signatureHeader = "Stripe-Signature"
	maxWebhookBody  = 64 << 10
)

type WebhookHandler struct {
	purchaseService service.IPurchaseService
	logger          *logger.Logger
}

func NewWebhookHandler(purchaseService service.IPurchaseService, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		purchaseService: purchaseService,
		logger:          log.Named("webhook_handler"),
	}
}

// Stripe handles POST /api/webhooks/stripe. The raw body is needed for
// signature verification, so it is never bound.
func (h *WebhookHandler) Stripe(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		badRequest(c, "unreadable webhook body")
		return
	}

	if err := h.purchaseService.HandlePaymentWebhook(c.Request.Context(), payload, c.GetHeader(signatureHeader)); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
