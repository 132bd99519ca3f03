package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListRecommendations(c *gin.Context) {
	pending, err := s.recommendationSvc.ListPending(c.Request.Context(), hotelID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": pending})
}

type decideRequest struct {
	DecidedBy string `json:"decided_by"`
}

func (s *Server) AcceptRecommendation(c *gin.Context) {
	var req decideRequest
	_ = c.ShouldBindJSON(&req)

	decided, err := s.recommendationSvc.Accept(c.Request.Context(), hotelID(c), c.Param("id"), decidedBy(c, req))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, decided)
}

func (s *Server) RejectRecommendation(c *gin.Context) {
	var req decideRequest
	_ = c.ShouldBindJSON(&req)

	decided, err := s.recommendationSvc.Reject(c.Request.Context(), hotelID(c), c.Param("id"), decidedBy(c, req))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, decided)
}

func decidedBy(c *gin.Context, req decideRequest) string {
	if by := strings.TrimSpace(req.DecidedBy); by != "" {
		return by
	}
	return strings.TrimSpace(c.GetHeader("X-User-Id"))
}
