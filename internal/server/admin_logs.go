package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	apperrors "gemini-synapse/internal/errors"
	"gemini-synapse/internal/handlers/common"
)

func (s *Server) registerLogRoutes(rg *gin.RouterGroup) {
	rg.GET("/error-logs", s.listErrorLogs)
	rg.DELETE("/error-logs", s.clearErrorLogs)
	rg.GET("/request-logs", s.listRequestLogs)
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	return page, size
}

func (s *Server) listErrorLogs(c *gin.Context) {
	page, size := pageParams(c)
	result, err := s.deps.Pool.ErrorLogs(c.Request.Context(), page, size)
	if err != nil {
		log.WithError(err).Error("failed to list error logs")
		common.AbortWithAPIError(c, apperrors.Internal("failed to load error logs"))
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) clearErrorLogs(c *gin.Context) {
	if err := s.deps.Pool.ClearErrorLogs(c.Request.Context()); err != nil {
		log.WithError(err).Error("failed to clear error logs")
		common.AbortWithAPIError(c, apperrors.Internal("failed to clear error logs"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Error logs cleared."})
}

func (s *Server) listRequestLogs(c *gin.Context) {
	page, size := pageParams(c)
	result, err := s.deps.Pool.RequestLogs(c.Request.Context(), page, size)
	if err != nil {
		log.WithError(err).Error("failed to list request logs")
		common.AbortWithAPIError(c, apperrors.Internal("failed to load request logs"))
		return
	}
	c.JSON(http.StatusOK, result)
}
