package http

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"upsell-recommender/internal/bootstrap"
	"upsell-recommender/internal/logger"
	"upsell-recommender/internal/transport/http/handler"
	"upsell-recommender/internal/transport/http/middleware"
)

type Handlers struct {
	Health         *handler.HealthHandler
	Recommendation *handler.RecommendationHandler
	Precompute     *handler.PrecomputeHandler
}

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)

	checks := map[string]handler.Check{
		"mysql": func(ctx context.Context) error {
			sqlDB, err := app.MySQL.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error {
			return app.Redis.Ping(ctx).Err()
		},
	}
	if app.MQConn != nil {
		checks["rabbitmq"] = func(context.Context) error {
			if app.MQConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}
	}

	return NewEngine(logger.Component("http"), Handlers{
		Health:         handler.NewHealthHandler(checks),
		Recommendation: handler.NewRecommendationHandler(app.Recommendations),
		Precompute:     handler.NewPrecomputeHandler(app.Scheduler, app.Precompute),
	})
}

// NewEngine registers every route on a fresh engine.
func NewEngine(log zerolog.Logger, h Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log))

	router.GET("/health", h.Health.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.POST("/precompute", h.Precompute.Start)
	api.GET("/precompute/:shop_id/status", h.Precompute.Status)
	api.POST("/recommendations", h.Recommendation.Recommend)

	return router
}
