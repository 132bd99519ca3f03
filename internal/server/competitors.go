package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	competitordomain "github.com/ratepulse/ratepulse/internal/competitor/domain"
)

func (s *Server) ListCompetitors(c *gin.Context) {
	competitors, err := s.competitorSvc.List(c.Request.Context(), hotelID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": competitors})
}

type addCompetitorRequest struct {
	Name          string `json:"name"`
	PropertyToken string `json:"property_token"`
}

func (s *Server) AddCompetitor(c *gin.Context) {
	var req addCompetitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	created, err := s.competitorSvc.Add(c.Request.Context(), competitordomain.AddRequest{
		HotelID:       hotelID(c),
		Name:          req.Name,
		PropertyToken: req.PropertyToken,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) RemoveCompetitor(c *gin.Context) {
	if err := s.competitorSvc.Remove(c.Request.Context(), hotelID(c), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) SearchHotels(c *gin.Context) {
	id := hotelID(c)
	query := strings.TrimSpace(c.Query("q"))

	allowed, err := s.limiter.AllowSearch(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, ErrInternal)
		return
	}
	if !allowed {
		AbortWithError(c, ErrQuotaExceeded)
		return
	}

	result, err := s.competitorSvc.Search(c.Request.Context(), id, query)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
