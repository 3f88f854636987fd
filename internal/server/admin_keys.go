package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"gemini-synapse/internal/constants"
	"gemini-synapse/internal/credential"
	apperrors "gemini-synapse/internal/errors"
	"gemini-synapse/internal/handlers/common"
	"gemini-synapse/internal/store"
)

// apiKeyInfo is the masked credential view returned to the admin UI.
type apiKeyInfo struct {
	ID           int64   `json:"id"`
	KeyPartial   string  `json:"key_partial"`
	IsValid      bool    `json:"is_valid"`
	FailureCount int     `json:"failure_count"`
	LastUsed     *string `json:"last_used"`
}

func toKeyInfo(row store.Credential) apiKeyInfo {
	info := apiKeyInfo{
		ID:           row.ID,
		KeyPartial:   credential.Mask(row.Secret),
		IsValid:      row.Valid,
		FailureCount: row.FailureCount,
	}
	if row.LastUsed.Valid {
		v := row.LastUsed.String
		info.LastUsed = &v
	}
	return info
}

type idsPayload struct {
	KeyIDs []int64 `json:"key_ids"`
}

type secretsPayload struct {
	Keys []string `json:"keys"`
}

func (s *Server) registerKeyRoutes(rg *gin.RouterGroup) {
	rg.GET("/keys", s.listKeys)
	rg.POST("/keys/batch-add", s.batchAddKeys)
	rg.POST("/keys/reveal", s.revealKeys)
	rg.GET("/keys/:id/details", s.keyCallDetails)
	rg.DELETE("/keys/:id", s.deleteKey)
	rg.POST("/keys/batch-delete", s.batchDeleteKeys)
	rg.POST("/keys/batch-delete-by-value", s.batchDeleteKeysByValue)
	rg.POST("/keys/batch-deactivate", s.batchDeactivateKeys)
	rg.POST("/keys/batch-reset", s.batchResetKeys)
	rg.PUT("/keys/:id/status", s.toggleKeyStatus)
	rg.POST("/keys/batch-validate", s.batchValidateKeys)
}

func (s *Server) listKeys(c *gin.Context) {
	rows, err := s.deps.Pool.List(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("failed to list credentials")
		common.AbortWithAPIError(c, apperrors.Internal("failed to list keys"))
		return
	}
	infos := make([]apiKeyInfo, 0, len(rows))
	for _, row := range rows {
		infos = append(infos, toKeyInfo(row))
	}
	c.JSON(http.StatusOK, infos)
}

func (s *Server) batchAddKeys(c *gin.Context) {
	var payload secretsPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		common.AbortWithAPIError(c, apperrors.BadRequest("invalid request body"))
		return
	}

	secrets := dedupeNonEmpty(payload.Keys)
	if len(secrets) == 0 {
		common.AbortWithAPIError(c, apperrors.BadRequest("no keys provided"))
		return
	}

	ctx := c.Request.Context()
	added := 0
	for _, secret := range secrets {
		if err := s.deps.Pool.Add(ctx, secret); err != nil {
			log.WithError(err).Error("failed to add credential")
			common.AbortWithAPIError(c, apperrors.Internal("failed to add keys"))
			return
		}
		added++
	}
	s.deps.Pool.ClearQueue()

	c.JSON(http.StatusOK, gin.H{
		"message":     "keys processed",
		"added_count": added,
	})
}

func (s *Server) revealKeys(c *gin.Context) {
	var payload idsPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		common.AbortWithAPIError(c, apperrors.BadRequest("invalid request body"))
		return
	}
	secrets, err := s.deps.Pool.Secrets(c.Request.Context(), payload.KeyIDs)
	if err != nil {
		log.WithError(err).Error("failed to reveal credentials")
		common.AbortWithAPIError(c, apperrors.Internal("failed to reveal keys"))
		return
	}
	revealed := make(map[string]string, len(secrets))
	for id, secret := range secrets {
		revealed[strconv.FormatInt(id, 10)] = secret
	}
	c.JSON(http.StatusOK, gin.H{"revealed_keys": revealed})
}

func (s *Server) keyCallDetails(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		common.AbortWithAPIError(c, apperrors.BadRequest("invalid key id"))
		return
	}
	details, err := s.deps.Pool.CallDetails(c.Request.Context(), id)
	if err != nil {
		log.WithError(err).Error("failed to load call details")
		common.AbortWithAPIError(c, apperrors.Internal("failed to load call details"))
		return
	}
	c.JSON(http.StatusOK, details)
}

func (s *Server) deleteKey(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		common.AbortWithAPIError(c, apperrors.BadRequest("invalid key id"))
		return
	}
	deleted, err := s.deps.Pool.DeleteByIDs(c.Request.Context(), []int64{id})
	if err != nil {
		log.WithError(err).Error("failed to delete credential")
		common.AbortWithAPIError(c, apperrors.Internal("failed to delete key"))
		return
	}
	if deleted == 0 {
		common.AbortWithAPIError(c, apperrors.NotFound("key not found"))
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) batchDeleteKeys(c *gin.Context) {
	var payload idsPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		common.AbortWithAPIError(c, apperrors.BadRequest("invalid request body"))
		return
	}
	deleted, err := s.deps.Pool.DeleteByIDs(c.Request.Context(), payload.KeyIDs)
	if err != nil {
		log.WithError(err).Error("failed to batch delete credentials")
		common.AbortWithAPIError(c, apperrors.Internal("failed to delete keys"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":       "keys deleted",
		"deleted_count": deleted,
	})
}

func (s *Server) batchDeleteKeysByValue(c *gin.Context) {
	var payload secretsPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		common.AbortWithAPIError(c, apperrors.BadRequest("invalid request body"))
		return
	}
	secrets := dedupeNonEmpty(payload.Keys)
	if len(secrets) == 0 {
		common.AbortWithAPIError(c, apperrors.BadRequest("no keys provided"))
		return
	}
	deleted, err := s.deps.Pool.DeleteBySecrets(c.Request.Context(), secrets)
	if err != nil {
		log.WithError(err).Error("failed to delete credentials by value")
		common.AbortWithAPIError(c, apperrors.Internal("failed to delete keys"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":       "keys deleted",
		"deleted_count": deleted,
	})
}

func (s *Server) batchDeactivateKeys(c *gin.Context) {
	var payload idsPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		common.AbortWithAPIError(c, apperrors.BadRequest("invalid request body"))
		return
	}
	if err := s.deps.Pool.Deactivate(c.Request.Context(), payload.KeyIDs); err != nil {
		log.WithError(err).Error("failed to deactivate credentials")
		common.AbortWithAPIError(c, apperrors.Internal("failed to deactivate keys"))
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) batchResetKeys(c *gin.Context) {
	var payload idsPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		common.AbortWithAPIError(c, apperrors.BadRequest("invalid request body"))
		return
	}
	if err := s.deps.Pool.Reset(c.Request.Context(), payload.KeyIDs); err != nil {
		log.WithError(err).Error("failed to reset credentials")
		common.AbortWithAPIError(c, apperrors.Internal("failed to reset keys"))
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) toggleKeyStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		common.AbortWithAPIError(c, apperrors.BadRequest("invalid key id"))
		return
	}
	row, err := s.deps.Pool.ToggleValidity(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, credential.ErrCredentialNotFound) {
			common.AbortWithAPIError(c, apperrors.NotFound("key not found"))
			return
		}
		log.WithError(err).Error("failed to toggle credential status")
		common.AbortWithAPIError(c, apperrors.Internal("failed to update key status"))
		return
	}
	c.JSON(http.StatusOK, toKeyInfo(*row))
}

// batchValidateKeys probes the selected credentials against the
// validation model, recording the outcome of each probe the same way
// the scheduled revalidation does.
func (s *Server) batchValidateKeys(c *gin.Context) {
	var payload idsPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		common.AbortWithAPIError(c, apperrors.BadRequest("invalid request body"))
		return
	}
	if len(payload.KeyIDs) == 0 {
		common.AbortWithAPIError(c, apperrors.BadRequest("no key ids provided"))
		return
	}

	ctx := c.Request.Context()
	rows, err := s.deps.Pool.SecretsByIDs(ctx, payload.KeyIDs)
	if err != nil {
		log.WithError(err).Error("failed to load credentials for validation")
		common.AbortWithAPIError(c, apperrors.Internal("failed to validate keys"))
		return
	}

	model := s.deps.Settings.ValidationModel(ctx)
	for start := 0; start < len(rows); start += constants.ValidationBatchSize {
		end := start + constants.ValidationBatchSize
		if end > len(rows) {
			end = len(rows)
		}

		var wg sync.WaitGroup
		for _, row := range rows[start:end] {
			row := row
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.validateOne(ctx, row.Secret, model)
			}()
		}
		wg.Wait()

		if end < len(rows) {
			time.Sleep(constants.ValidationBatchPause)
		}
	}

	s.deps.Pool.ClearQueue()
	c.Status(http.StatusNoContent)
}

func (s *Server) validateOne(ctx context.Context, secret, model string) {
	ok, status, message := s.deps.Validator.Probe(ctx, secret, model)
	if ok {
		if err := s.deps.Pool.RecordSuccess(ctx, secret, model); err != nil {
			log.WithError(err).Error("failed to record validation success")
			return
		}
		if err := s.deps.Pool.Reactivate(ctx, secret); err != nil {
			log.WithError(err).Error("failed to reactivate credential")
		}
		return
	}
	if err := s.deps.Pool.RecordFailure(ctx, secret, model, status, message); err != nil {
		log.WithError(err).WithField("secret", credential.Mask(secret)).Error("failed to record validation failure")
	}
}

func dedupeNonEmpty(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
