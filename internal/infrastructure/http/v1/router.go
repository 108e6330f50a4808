package v1

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/plateserve/internal/infrastructure/http/v1/handler"
	"github.com/jaennil/plateserve/pkg/logger"
	"github.com/jaennil/plateserve/pkg/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(handler *handler.Handler, l logger.Logger, telemetryEnabled bool) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())

	if telemetryEnabled {
		r.Use(telemetry.GinMiddleware("plateserve"))
	}

	r.Use(ginZapLogger(l))

	r.GET("/healthz", handler.Healthz)

	// Prometheus metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Tile and WTML paths are suffix patterns, not fixed routes; dispatch
	// handles everything the router itself does not.
	r.NoRoute(handler.Dispatch)

	return r
}

func ginZapLogger(l logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("logger", l)

		start := time.Now()

		c.Next()

		end := time.Now()
		latency := end.Sub(start)

		l.Info("request",
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"ip", c.ClientIP(),
			"latency", latency,
			"size", c.Writer.Size(),
		)
	}
}
