package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/groupspeak/internal/utils"
)

const InternalKeyHeader = "X-Internal-Key"

// InternalAPIKey guards service-to-service triggers (webhooks, the AI
// participant, schedulers). Only the bcrypt hash of the key is configured.
func InternalAPIKey(keyHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if keyHash == "" {
			abort(c, http.StatusServiceUnavailable, utils.CodeUnavailable, "internal api is disabled")
			return
		}

		key := strings.TrimSpace(c.GetHeader(InternalKeyHeader))
		if key == "" || utils.CheckSecret(keyHash, key) != nil {
			abort(c, http.StatusUnauthorized, utils.CodeUnauthorized, "invalid internal key")
			return
		}

		c.Set("role", "internal")
		c.Next()
	}
}
