// Package api serves the dashboard-facing relay: connectivity status, manual re-check,
// metrics and a resilient proxy to the remote API.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"github.com/rbxdash/admin-relay/internal/workflow"
)

// maxRequestBody bounds proxied request bodies (image uploads included).
const maxRequestBody = 16 << 20

type handler struct {
	session *workflow.Session
	logger  *slog.Logger
}

// NewRouter builds the relay's HTTP surface on top of a session.
func NewRouter(session *workflow.Session, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = session.Logger()
	}
	h := &handler{session: session, logger: logger}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/status", h.status)
	r.POST("/recheck", h.recheck)
	r.GET("/metrics", gin.WrapH(session.Metrics.Handler()))
	r.Any("/api/*path", h.proxy)

	return r
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.Debug("Relay request served",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(started))
	}
}

// writeJSON renders body with go-json instead of gin's default encoder.
func writeJSON(c *gin.Context, status int, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(status, "application/json; charset=utf-8", payload)
}
