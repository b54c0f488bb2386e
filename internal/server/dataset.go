package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetDemand(c *gin.Context) {
	groups, err := s.datasetSvc.GetDemand(c.Request.Context(), customerParam(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": groups})
}

func (s *Server) GetSales(c *gin.Context) {
	years, err := s.datasetSvc.GetSales(c.Request.Context(), customerParam(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": years})
}

func (s *Server) GetInsights(c *gin.Context) {
	insights, err := s.datasetSvc.GetInsights(c.Request.Context(), customerParam(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": insights})
}

func (s *Server) GetPrediction(c *gin.Context) {
	prediction, err := s.datasetSvc.GetPrediction(c.Request.Context(), customerParam(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": prediction})
}

func (s *Server) GetSalesPrediction(c *gin.Context) {
	rows, err := s.datasetSvc.GetSalesPrediction(c.Request.Context(), customerParam(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows})
}

func customerParam(c *gin.Context) string {
	return strings.TrimSpace(c.Param("customerId"))
}
