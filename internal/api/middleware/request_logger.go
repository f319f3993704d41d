package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const RequestIDHeader = "X-Request-Id"

// quietPaths are logged at debug so health checks do not flood the output.
var quietPaths = map[string]bool{"/ping": true}

func RequestLogger(l *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()

		reqID := c.GetHeader(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set("request_id", reqID)
		c.Header(RequestIDHeader, reqID)

		c.Next()

		status := c.Writer.Status()
		entry := l.WithFields(logrus.Fields{
			"request_id": reqID,
			"method":     c.Request.Method,
			"route":      c.FullPath(),
			"status":     status,
			"latency_ms": time.Since(started).Milliseconds(),
			"ip":         c.ClientIP(),
		})
		if uid := c.GetString("user_id"); uid != "" {
			entry = entry.WithField("user_id", uid)
		}
		if sid := c.Param("session_id"); sid != "" {
			entry = entry.WithField("session_id", sid)
		}
		if last := c.Errors.Last(); last != nil {
			entry = entry.WithError(last.Err)
		}

		entry.Log(requestLevel(c.Request.URL.Path, status), "http request")
	}
}

func requestLevel(path string, status int) logrus.Level {
	switch {
	case status >= 500:
		return logrus.ErrorLevel
	case status >= 400:
		return logrus.WarnLevel
	case quietPaths[path]:
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}
