package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"gemini-synapse/internal/constants"
	"gemini-synapse/internal/credential"
	apperrors "gemini-synapse/internal/errors"
	"gemini-synapse/internal/handlers/common"
	"gemini-synapse/internal/upstream"
)

// modelDiscoveryName labels bookkeeping rows produced while fetching
// the model catalog, which has no model of its own.
const modelDiscoveryName = "model-discovery"

func (s *Server) registerStatsRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", s.getStats)
	rg.GET("/available-models", s.listAvailableModels)
}

func (s *Server) getStats(c *gin.Context) {
	stats, err := s.deps.Pool.Stats(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("failed to compute stats")
		common.AbortWithAPIError(c, apperrors.Internal("failed to load stats"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"key_stats": gin.H{
			"total_keys":   stats.TotalKeys,
			"valid_keys":   stats.ValidKeys,
			"invalid_keys": stats.InvalidKeys,
		},
		"call_stats": gin.H{
			"last_minute":   stats.LastMinute,
			"last_hour":     stats.LastHour,
			"last_24_hours": stats.Last24Hours,
			"this_month":    stats.ThisMonth,
		},
	})
}

// listAvailableModels fetches the upstream catalog, rotating through
// pool credentials on failure like the relay does. Failed attempts are
// recorded against the credential so bad keys still accrue failures.
// Exhaustion yields an empty list rather than an error.
func (s *Server) listAvailableModels(c *gin.Context) {
	ctx := c.Request.Context()

	for attempt := 0; attempt < constants.ModelDiscoveryMaxAttempts; attempt++ {
		secret, err := s.deps.Pool.Get(ctx)
		if err != nil {
			if !errors.Is(err, credential.ErrNoCredentials) {
				log.WithError(err).Error("failed to obtain credential for model discovery")
			}
			break
		}

		models, err := s.deps.Validator.ListModels(ctx, secret)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"models": models})
			return
		}

		status, message := http.StatusInternalServerError, err.Error()
		var statusErr *upstream.StatusError
		if errors.As(err, &statusErr) {
			status, message = statusErr.StatusCode, statusErr.Body
		}
		log.WithFields(log.Fields{
			"secret": credential.Mask(secret),
			"status": status,
		}).Warn("model discovery attempt failed")
		if recErr := s.deps.Pool.RecordFailure(ctx, secret, modelDiscoveryName, status, message); recErr != nil {
			log.WithError(recErr).Error("failed to record model discovery failure")
		}
	}

	c.JSON(http.StatusOK, gin.H{"models": []upstream.Model{}})
}
