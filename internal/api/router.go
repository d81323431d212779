package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Gopher0727/BirthdayBox/internal/handler"
	"github.com/Gopher0727/BirthdayBox/utils/ratelimit"
)

type Handlers struct {
	Message  *handler.MessageHandler
	Purchase *handler.PurchaseHandler
	Premium  *handler.PremiumHandler
	Webhook  *handler.WebhookHandler
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// NewRouter assembles the engine with every route mounted.
func NewRouter(mode string, mw *MiddlewareManager, h Handlers, checks map[string]HealthCheck) *gin.Engine {
	if mode != "" {
		gin.SetMode(mode)
	}
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(), mw.Logger(), mw.CORS())

	RegisterRoutes(r, mw, h)

	r.GET("/health", healthHandler(checks))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func RegisterRoutes(r *gin.Engine, mw *MiddlewareManager, h Handlers) {
	api := r.Group("/api")
	api.Use(mw.RateLimit(ratelimit.EndpointAPI))

	messages := api.Group("/messages")
	{
		messages.POST("", mw.RateLimit(ratelimit.EndpointMessage), h.Message.CreateMessage)
		messages.GET("/:id", h.Message.GetMessage)
		messages.POST("/:id/send", mw.RateLimit(ratelimit.EndpointMessage), h.Message.SendMessage)
	}
	api.POST("/card-image", mw.RateLimit(ratelimit.EndpointImage), h.Message.GenerateCardImage)

	purchases := api.Group("/purchases")
	purchases.Use(mw.RateLimit(ratelimit.EndpointPurchase))
	{
		purchases.POST("", h.Purchase.CreatePurchase)
		purchases.POST("/complete", h.Purchase.CompletePurchase)
		purchases.GET("/:id", h.Purchase.GetPurchase)
		purchases.POST("/:id/payment-intent", h.Purchase.CreatePaymentIntent)
	}

	api.POST("/premium/expand", mw.RateLimit(ratelimit.EndpointExpand), h.Premium.Expand)

	// not rate limited: the payment provider retries on failure
	r.POST("/api/webhooks/stripe", h.Webhook.Stripe)
}

func healthHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = "down"
				continue
			}
			results[name] = "up"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		c.JSON(status, gin.H{"status": overall, "checks": results})
	}
}
