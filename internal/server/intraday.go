package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetIntradayView(c *gin.Context) {
	offsets, ok := parseOffsets(c.Query("offsets"))
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	views, err := s.intradaySvc.View(c.Request.Context(), hotelID(c), offsets)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": views})
}

// parseOffsets reads "7,14,30"; empty means the policy defaults.
func parseOffsets(raw string) ([]int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}

	parts := strings.Split(raw, ",")
	offsets := make([]int, 0, len(parts))
	for _, part := range parts {
		value, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || value < 0 {
			return nil, false
		}
		offsets = append(offsets, value)
	}
	return offsets, true
}
