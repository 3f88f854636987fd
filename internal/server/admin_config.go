package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"gemini-synapse/internal/auth"
	"gemini-synapse/internal/credential"
	apperrors "gemini-synapse/internal/errors"
	"gemini-synapse/internal/handlers/common"
	"gemini-synapse/internal/settings"
)

func (s *Server) registerConfigRoutes(rg *gin.RouterGroup) {
	rg.GET("/config/keys", s.getSecurityKeys)
	rg.POST("/config/access_key", s.setLegacyAccessKey)
	rg.POST("/config/admin_key", s.setAdminKey)
	rg.GET("/config/api", s.getAPIConfig)
	rg.POST("/config/api", s.setAPIConfig)
	rg.GET("/access-keys", s.listAccessKeys)
	rg.POST("/access-keys", s.addAccessKey)
	rg.DELETE("/access-keys", s.deleteAccessKey)
	rg.GET("/scheduler/config", s.getSchedulerConfig)
	rg.POST("/scheduler/config", s.setSchedulerConfig)
}

// getSecurityKeys reports the first configured access key (masked) and
// whether an admin key exists, never the values themselves.
func (s *Server) getSecurityKeys(c *gin.Context) {
	ctx := c.Request.Context()
	keys, err := s.deps.Settings.AccessKeys(ctx)
	if err != nil {
		log.WithError(err).Error("failed to load access keys")
		common.AbortWithAPIError(c, apperrors.Internal("failed to load security config"))
		return
	}
	adminKey, err := s.deps.Settings.AdminKey(ctx)
	if err != nil {
		log.WithError(err).Error("failed to load admin key")
		common.AbortWithAPIError(c, apperrors.Internal("failed to load security config"))
		return
	}

	partial := ""
	if len(keys) > 0 {
		partial = credential.Mask(keys[0])
	}
	c.JSON(http.StatusOK, gin.H{
		"access_key_partial": partial,
		"is_admin_key_set":   adminKey != "",
	})
}

type valuePayload struct {
	Value string `json:"value"`
}

// setLegacyAccessKey replaces the entire access key set with a single
// value. The multi-key endpoints below are the usual path.
func (s *Server) setLegacyAccessKey(c *gin.Context) {
	var payload valuePayload
	if err := c.ShouldBindJSON(&payload); err != nil || strings.TrimSpace(payload.Value) == "" {
		common.AbortWithAPIError(c, apperrors.BadRequest("access key value is required"))
		return
	}
	if err := s.deps.Settings.Set(c.Request.Context(), settings.KeyAccessKeys, strings.TrimSpace(payload.Value)); err != nil {
		log.WithError(err).Error("failed to store access key")
		common.AbortWithAPIError(c, apperrors.Internal("failed to update access key"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Access key updated."})
}

// setAdminKey rotates the admin key and purges every session in the
// same transaction so old cookies die with the old key.
func (s *Server) setAdminKey(c *gin.Context) {
	var payload valuePayload
	if err := c.ShouldBindJSON(&payload); err != nil || strings.TrimSpace(payload.Value) == "" {
		common.AbortWithAPIError(c, apperrors.BadRequest("admin key value is required"))
		return
	}
	value := strings.TrimSpace(payload.Value)

	err := s.deps.Store.WithWriteTx(c.Request.Context(), func(tx *sqlx.Tx) error {
		if err := settings.SetTx(tx, settings.KeyAdminKey, value); err != nil {
			return err
		}
		return auth.PurgeSessionsTx(tx)
	})
	if err != nil {
		log.WithError(err).Error("failed to rotate admin key")
		common.AbortWithAPIError(c, apperrors.Internal("failed to update admin key"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Admin key updated. All sessions have been invalidated."})
}

type apiConfigPayload struct {
	APIBaseURL      *string `json:"api_base_url"`
	MaxFailureCount *int    `json:"max_failure_count"`
	MaxRetryCount   *int    `json:"max_retry_count"`
}

func (s *Server) getAPIConfig(c *gin.Context) {
	ctx := c.Request.Context()
	c.JSON(http.StatusOK, gin.H{
		"api_base_url":      s.deps.Settings.UpstreamBaseURL(ctx),
		"max_failure_count": s.deps.Settings.MaxFailureCount(ctx),
		"max_retry_count":   s.deps.Settings.MaxRetryCount(ctx),
	})
}

func (s *Server) setAPIConfig(c *gin.Context) {
	var payload apiConfigPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		common.AbortWithAPIError(c, apperrors.BadRequest("invalid request body"))
		return
	}
	if payload.MaxFailureCount != nil && (*payload.MaxFailureCount < 1 || *payload.MaxFailureCount > 100) {
		common.AbortWithAPIError(c, apperrors.BadRequest("max_failure_count must be between 1 and 100"))
		return
	}
	if payload.MaxRetryCount != nil && (*payload.MaxRetryCount < 1 || *payload.MaxRetryCount > 20) {
		common.AbortWithAPIError(c, apperrors.BadRequest("max_retry_count must be between 1 and 20"))
		return
	}

	ctx := c.Request.Context()
	if payload.APIBaseURL != nil {
		if err := s.deps.Settings.Set(ctx, settings.KeyUpstreamBaseURL, strings.TrimSpace(*payload.APIBaseURL)); err != nil {
			log.WithError(err).Error("failed to store api base url")
			common.AbortWithAPIError(c, apperrors.Internal("failed to update api config"))
			return
		}
	}
	if payload.MaxFailureCount != nil {
		if err := s.deps.Settings.Set(ctx, settings.KeyMaxFailureCount, strconv.Itoa(*payload.MaxFailureCount)); err != nil {
			log.WithError(err).Error("failed to store max failure count")
			common.AbortWithAPIError(c, apperrors.Internal("failed to update api config"))
			return
		}
	}
	if payload.MaxRetryCount != nil {
		if err := s.deps.Settings.Set(ctx, settings.KeyMaxRetryCount, strconv.Itoa(*payload.MaxRetryCount)); err != nil {
			log.WithError(err).Error("failed to store max retry count")
			common.AbortWithAPIError(c, apperrors.Internal("failed to update api config"))
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "API configuration updated."})
}

type accessKeyPayload struct {
	Key string `json:"key"`
}

func (s *Server) listAccessKeys(c *gin.Context) {
	keys, err := s.deps.Settings.AccessKeys(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("failed to load access keys")
		common.AbortWithAPIError(c, apperrors.Internal("failed to load access keys"))
		return
	}
	masked := make([]gin.H, 0, len(keys))
	for _, key := range keys {
		masked = append(masked, gin.H{"key_partial": credential.Mask(key)})
	}
	c.JSON(http.StatusOK, gin.H{"access_keys": masked})
}

func (s *Server) addAccessKey(c *gin.Context) {
	var payload accessKeyPayload
	if err := c.ShouldBindJSON(&payload); err != nil || strings.TrimSpace(payload.Key) == "" {
		common.AbortWithAPIError(c, apperrors.BadRequest("access key is required"))
		return
	}
	key := strings.TrimSpace(payload.Key)

	ctx := c.Request.Context()
	keys, err := s.deps.Settings.AccessKeys(ctx)
	if err != nil {
		log.WithError(err).Error("failed to load access keys")
		common.AbortWithAPIError(c, apperrors.Internal("failed to add access key"))
		return
	}
	for _, existing := range keys {
		if existing == key {
			common.AbortWithAPIError(c, apperrors.Conflict("access key already exists"))
			return
		}
	}
	keys = append(keys, key)
	if err := s.deps.Settings.Set(ctx, settings.KeyAccessKeys, strings.Join(keys, ",")); err != nil {
		log.WithError(err).Error("failed to store access keys")
		common.AbortWithAPIError(c, apperrors.Internal("failed to add access key"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Access key added."})
}

func (s *Server) deleteAccessKey(c *gin.Context) {
	var payload accessKeyPayload
	if err := c.ShouldBindJSON(&payload); err != nil || strings.TrimSpace(payload.Key) == "" {
		common.AbortWithAPIError(c, apperrors.BadRequest("access key is required"))
		return
	}
	key := strings.TrimSpace(payload.Key)

	ctx := c.Request.Context()
	keys, err := s.deps.Settings.AccessKeys(ctx)
	if err != nil {
		log.WithError(err).Error("failed to load access keys")
		common.AbortWithAPIError(c, apperrors.Internal("failed to delete access key"))
		return
	}
	remaining := keys[:0]
	found := false
	for _, existing := range keys {
		if existing == key {
			found = true
			continue
		}
		remaining = append(remaining, existing)
	}
	if !found {
		common.AbortWithAPIError(c, apperrors.NotFound("access key not found"))
		return
	}
	if err := s.deps.Settings.Set(ctx, settings.KeyAccessKeys, strings.Join(remaining, ",")); err != nil {
		log.WithError(err).Error("failed to store access keys")
		common.AbortWithAPIError(c, apperrors.Internal("failed to delete access key"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Access key deleted."})
}

type schedulerConfigPayload struct {
	ValidationModel         *string `json:"validation_model"`
	ValidationIntervalHours *int    `json:"key_validation_interval_hours"`
	SchedulerTimezone       *string `json:"scheduler_timezone"`
	ErrorLogRetentionDays   *int    `json:"error_log_retention_days"`
	RequestLogRetentionDays *int    `json:"request_log_retention_days"`
}

func (s *Server) getSchedulerConfig(c *gin.Context) {
	ctx := c.Request.Context()
	c.JSON(http.StatusOK, gin.H{
		"validation_model":              s.deps.Settings.ValidationModel(ctx),
		"key_validation_interval_hours": s.deps.Settings.ValidationIntervalHours(ctx),
		"scheduler_timezone":            s.deps.Settings.SchedulerTimezone(ctx),
		"error_log_retention_days":      s.deps.Settings.ErrorLogRetentionDays(ctx),
		"request_log_retention_days":    s.deps.Settings.RequestLogRetentionDays(ctx),
	})
}

// setSchedulerConfig writes the provided settings. Each write to a
// scheduler-affecting key rearms the registry's restart debounce, so a
// full form submit restarts the scheduler once.
func (s *Server) setSchedulerConfig(c *gin.Context) {
	var payload schedulerConfigPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		common.AbortWithAPIError(c, apperrors.BadRequest("invalid request body"))
		return
	}
	if payload.ValidationIntervalHours != nil && *payload.ValidationIntervalHours < 1 {
		common.AbortWithAPIError(c, apperrors.BadRequest("key_validation_interval_hours must be at least 1"))
		return
	}
	if payload.ErrorLogRetentionDays != nil && *payload.ErrorLogRetentionDays < 1 {
		common.AbortWithAPIError(c, apperrors.BadRequest("error_log_retention_days must be at least 1"))
		return
	}
	if payload.RequestLogRetentionDays != nil && *payload.RequestLogRetentionDays < 1 {
		common.AbortWithAPIError(c, apperrors.BadRequest("request_log_retention_days must be at least 1"))
		return
	}

	ctx := c.Request.Context()
	writes := []struct {
		key   string
		value string
		set   bool
	}{
		{settings.KeyValidationModel, deref(payload.ValidationModel), payload.ValidationModel != nil},
		{settings.KeyValidationIntervalHours, itoaPtr(payload.ValidationIntervalHours), payload.ValidationIntervalHours != nil},
		{settings.KeySchedulerTimezone, deref(payload.SchedulerTimezone), payload.SchedulerTimezone != nil},
		{settings.KeyErrorLogRetentionDays, itoaPtr(payload.ErrorLogRetentionDays), payload.ErrorLogRetentionDays != nil},
		{settings.KeyRequestLogRetentionDays, itoaPtr(payload.RequestLogRetentionDays), payload.RequestLogRetentionDays != nil},
	}
	for _, w := range writes {
		if !w.set {
			continue
		}
		if err := s.deps.Settings.Set(ctx, w.key, w.value); err != nil {
			log.WithError(err).WithField("key", w.key).Error("failed to store scheduler setting")
			common.AbortWithAPIError(c, apperrors.Internal("failed to update scheduler config"))
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Scheduler configuration updated."})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func itoaPtr(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}
