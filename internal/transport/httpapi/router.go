// internal/transport/httpapi/router.go
package httpapi

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"renter-wizard/internal/common/logger"
	"renter-wizard/internal/common/metrics"
)

// NewRouter wires the wizard API. The /metrics route is only mounted when
// exposeMetrics is set; otherwise metrics are served on their own port.
func NewRouter(h *Handler, log logger.Logger, exposeMetrics bool) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log), requestMetrics())

	router.GET("/health", h.Health)
	if exposeMetrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := router.Group("/api/v1")
	{
		api.POST("/sessions", h.OpenSession)

		s := api.Group("/sessions/:id")
		{
			s.GET("", h.GetSession)
			s.DELETE("", h.CloseSession)

			s.PUT("/personal-info", h.SetPersonalInfo)

			s.PUT("/identifications", h.SetIdentifications)
			s.POST("/identifications", h.AddIdentification)
			s.DELETE("/identifications/:index", h.RemoveIdentification)
			s.PUT("/identifications/:index/primary", h.SetPrimaryIdentification)

			s.PUT("/residences/:index", h.SetResidence)
			s.DELETE("/residences/:index", h.RemoveResidence)

			s.PUT("/incomes", h.SetIncomes)
			s.POST("/incomes", h.AddIncome)
			s.DELETE("/incomes/:index", h.RemoveIncome)
			s.PUT("/answers", h.SetAnswers)

			s.POST("/transitions", h.Transition)
			s.POST("/skip", h.Skip)
			s.POST("/submit", h.Submit)
		}
	}
	return router
}

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := map[string]interface{}{
			"method":   c.Request.Method,
			"route":    c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}
		if c.Writer.Status() >= 500 {
			log.Error("request failed", fields)
			return
		}
		log.Debug("request handled", fields)
	}
}

func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
