package server

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
)

// CronAuthRequired gates trigger routes on the shared cron secret. The
// check runs before any handler so a bad token never touches the store.
func (s *Server) CronAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := strings.TrimSpace(s.cfg.CronSecret)
		if secret == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// hotelID pulls the tenant identifier the gateway resolved upstream.
// Accepted as a query param or header; handlers validate the value.
func hotelID(c *gin.Context) string {
	if id := strings.TrimSpace(c.Query("hotel_id")); id != "" {
		c.Set("hotel_id", id)
		return id
	}
	id := strings.TrimSpace(c.GetHeader("X-Hotel-Id"))
	if id != "" {
		c.Set("hotel_id", id)
	}
	return id
}
