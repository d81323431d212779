package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/BirthdayBox/internal/model"
	"github.com/Gopher0727/BirthdayBox/internal/service"
	logger "github.com/Gopher0727/BirthdayBox/middleware/log"
)

type PurchaseHandler struct {
	purchaseService service.IPurchaseService
	logger          *logger.Logger
}

func NewPurchaseHandler(purchaseService service.IPurchaseService, log *logger.Logger) *PurchaseHandler {
	return &PurchaseHandler{
		purchaseService: purchaseService,
		logger:          log.Named("purchase_handler"),
	}
}

type purchaseView struct {
	ID                int64                `json:"id"`
	Email             string               `json:"email"`
	Status            model.PurchaseStatus `json:"status"`
	OriginalMessageID int64                `json:"originalMessageId"`
	CreatedAt         time.Time            `json:"createdAt"`
}

// CreatePurchase handles POST /api/purchases
func (h *PurchaseHandler) CreatePurchase(c *gin.Context) {
	var req service.CreatePurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email and a numeric messageId are required")
		return
	}

	purchase, err := h.purchaseService.CreatePurchase(c.Request.Context(), req.Email, req.MessageID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	h.logger.InfoContext(c.Request.Context(), "purchase opened",
		logger.PurchaseID(purchase.ID), logger.MessageID(purchase.OriginalMessageID))
	c.JSON(http.StatusOK, gin.H{
		"purchaseId": purchase.ID,
		"status":     purchase.Status,
	})
}

// GetPurchase handles GET /api/purchases/:id
func (h *PurchaseHandler) GetPurchase(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	details, err := h.purchaseService.GetPurchase(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	p := details.Purchase
	c.JSON(http.StatusOK, gin.H{
		"purchase": purchaseView{
			ID:                p.ID,
			Email:             p.Email,
			Status:            p.Status,
			OriginalMessageID: p.OriginalMessageID,
			CreatedAt:         p.CreatedAt,
		},
		"premiumMessages": details.PremiumMessages,
		"originalMessage": newMessageView(details.OriginalMessage),
	})
}

// CompletePurchase handles POST /api/purchases/complete, the demo bypass
// that completes a purchase without payment.
func (h *PurchaseHandler) CompletePurchase(c *gin.Context) {
	var req service.CompletePurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "a numeric purchaseId is required")
		return
	}

	purchase, err := h.purchaseService.CompleteTestPurchase(c.Request.Context(), req.PurchaseID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"purchaseId": purchase.ID,
		"status":     purchase.Status,
	})
}

// CreatePaymentIntent handles POST /api/purchases/:id/payment-intent
func (h *PurchaseHandler) CreatePaymentIntent(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	res, err := h.purchaseService.CreatePaymentIntent(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	if res.Simulated {
		c.JSON(http.StatusOK, gin.H{
			"status":    res.Status,
			"simulated": true,
			"amount":    res.Amount,
			"currency":  res.Currency,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"clientSecret":    res.ClientSecret,
		"paymentIntentId": res.PaymentIntentID,
		"amount":          res.Amount,
		"currency":        res.Currency,
		"status":          res.Status,
	})
}
