package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"diabetes-clinic-server/internal/logger"
)

// RequestLogger logs every completed request through log.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		for _, e := range c.Errors {
			log.WithComponent("http").WithError(e.Err).WithField("path", path).Error("Request error")
		}
		log.HTTPRequest(c.Request.Method, path, c.ClientIP(), c.Writer.Status(), time.Since(start).Milliseconds())
	}
}
