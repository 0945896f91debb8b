package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/kdrag0n/earlypilot/internal/config"
	"github.com/kdrag0n/earlypilot/internal/http/handler"
	httpmiddleware "github.com/kdrag0n/earlypilot/internal/http/middleware"
	"github.com/kdrag0n/earlypilot/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(
	cfg config.Config,
	benefits *httpmiddleware.Benefits,
	contentHandler *handler.ContentHandler,
	authHandler *handler.AuthHandler,
	buyHandler *handler.BuyHandler,
	webhookHandler *handler.WebhookHandler,
	rateLimiter *middleware.RateLimiter,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/login", authHandler.Login)
	r.GET("/login/callback", authHandler.LoginCallback)
	r.GET("/logout", authHandler.Logout)

	exclusive := r.Group("/exclusive", benefits.Require)
	{
		exclusive.GET("/*filepath", contentHandler.Serve)
		exclusive.HEAD("/*filepath", contentHandler.Serve)
	}

	buy := r.Group("/buy")
	{
		buy.GET("/:productId", buyHandler.Start)
		buy.POST("/:productId", buyHandler.Start)
		buy.GET("/success/:txRefId", buyHandler.Success)
	}

	webhooks := r.Group("/_webhooks")
	{
		webhooks.POST("/stripe/:key", webhookHandler.Payment)
		webhooks.POST("/patreon/:key/:event", webhookHandler.Pledge)
	}

	return r
}
