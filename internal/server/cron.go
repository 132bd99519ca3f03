package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	snapshotdomain "github.com/ratepulse/ratepulse/internal/snapshot/domain"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// RunRateRefresh triggers one scheduler pass. A partial run is still a
// 200 with the summary; only a job-level failure maps to 500.
func (s *Server) RunRateRefresh(c *gin.Context) {
	started := time.Now()
	summary, err := s.scheduler.RunOnce(c.Request.Context())
	if err != nil {
		s.log.Error("rate refresh trigger failed", zap.Error(err))
		AbortWithError(c, ErrInternal)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"summary":     summary,
		"duration_ms": time.Since(started).Milliseconds(),
	})
}

func (s *Server) BuildSnapshots(c *gin.Context) {
	started := time.Now()
	summary, err := s.snapshotSvc.Build(c.Request.Context())
	if err != nil {
		s.log.Error("snapshot build trigger failed", zap.Error(err))
		AbortWithError(c, ErrInternal)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"summary":     summary,
		"duration_ms": time.Since(started).Milliseconds(),
	})
}

type backfillRequest struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Frequency   string `json:"frequency"`
	MissingOnly bool   `json:"missing_only"`
	Limit       int    `json:"limit"`
}

func (s *Server) BackfillSnapshots(c *gin.Context) {
	var req backfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	from, err := time.ParseInLocation(dateLayout, strings.TrimSpace(req.From), time.UTC)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	to, err := time.ParseInLocation(dateLayout, strings.TrimSpace(req.To), time.UTC)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	frequency := snapshotdomain.Frequency(strings.TrimSpace(req.Frequency))
	if frequency == "" {
		frequency = snapshotdomain.FrequencyDaily
	}

	started := time.Now()
	summary, err := s.snapshotSvc.Backfill(c.Request.Context(), snapshotdomain.BackfillRequest{
		From:        from,
		To:          to,
		Frequency:   frequency,
		MissingOnly: req.MissingOnly,
		Limit:       req.Limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"summary":     summary,
		"duration_ms": time.Since(started).Milliseconds(),
	})
}

func (s *Server) RunCleanup(c *gin.Context) {
	started := time.Now()
	summary, err := s.purger.Run(c.Request.Context())
	if err != nil {
		s.log.Error("cleanup trigger failed", zap.Error(err))
		AbortWithError(c, ErrInternal)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"summary":     summary,
		"duration_ms": time.Since(started).Milliseconds(),
	})
}
