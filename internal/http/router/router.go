package router

import (
	"github.com/gin-gonic/gin"

	"github.com/goodnight000/kittycourt-backend/internal/config"
	"github.com/goodnight000/kittycourt-backend/internal/http/handlers"
	"github.com/goodnight000/kittycourt-backend/internal/http/middleware"
	"github.com/goodnight000/kittycourt-backend/internal/interface/http/response"
	"github.com/goodnight000/kittycourt-backend/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	courtHandler *handlers.CourtHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")

	// Сокет авторизуется токеном из query, лимит действий внутри соединения.
	api.GET("/ws", wsHandler.Handle)

	court := api.Group("/court")
	court.Use(middleware.AuthMiddleware(tokenManager))
	court.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))
	{
		court.GET("/state", courtHandler.State)
		court.POST("/actions/:action", courtHandler.Action)
		court.GET("/cases/:id", middleware.UUIDValidator("id"), courtHandler.GetCase)
	}

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "маршрут не найден")
	})

	return r
}
