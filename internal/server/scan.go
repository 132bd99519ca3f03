package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	collectordomain "github.com/ratepulse/ratepulse/internal/collector/domain"
)

type manualScanRequest struct {
	CompetitorID string `json:"competitor_id"`
}

// TriggerManualScan runs a tenant-initiated refresh for one competitor.
// Quota denials come back as skipped outcomes inside the result, not as
// an HTTP failure; only abuse limits and provider breakage map to errors.
func (s *Server) TriggerManualScan(c *gin.Context) {
	var req manualScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.collectorSvc.ManualScan(c.Request.Context(), collectordomain.ManualScanRequest{
		HotelID:      hotelID(c),
		CompetitorID: req.CompetitorID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) GetUsage(c *gin.Context) {
	ctx := c.Request.Context()

	tenant, err := s.quotaSvc.TenantUsage(ctx, hotelID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	system, err := s.quotaSvc.SystemUsage(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tenant":       tenant,
		"system":       system,
		"safe_mode_on": system.SafeModeOn,
	})
}
