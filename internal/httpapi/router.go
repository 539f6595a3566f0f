package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(h *Handler, mode string) *gin.Engine {
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())

	r.GET("/health", h.Health)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/pull-data", h.PullData)
		v1.GET("/status", h.Status)
		v1.POST("/clear", h.Clear)
		v1.GET("/analysis", h.Analysis)
	}

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"elapsed": time.Since(started).String(),
		}).Info("request")
	}
}
