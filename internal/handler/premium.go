package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/BirthdayBox/internal/service"
	logger "github.com/Gopher0727/BirthdayBox/middleware/log"
)

type PremiumHandler struct {
	premiumService service.IPremiumService
	logger         *logger.Logger
}

func NewPremiumHandler(premiumService service.IPremiumService, log *logger.Logger) *PremiumHandler {
	return &PremiumHandler{
		premiumService: premiumService,
		logger:         log.Named("premium_handler"),
	}
}

// Expand handles POST /api/premium/expand. Safe to call repeatedly.
func (h *PremiumHandler) Expand(c *gin.Context) {
	var req service.ExpandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "numeric messageId and purchaseId are required")
		return
	}

	rows, err := h.premiumService.Expand(c.Request.Context(), req.MessageID, req.PurchaseID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	h.logger.InfoContext(c.Request.Context(), "premium bundle served",
		logger.PurchaseID(req.PurchaseID), zap.Int("count", len(rows)))
	c.JSON(http.StatusOK, gin.H{"messages": rows})
}
