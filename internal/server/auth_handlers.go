package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"gemini-synapse/internal/auth"
	"gemini-synapse/internal/constants"
	apperrors "gemini-synapse/internal/errors"
	"gemini-synapse/internal/handlers/common"
)

type loginPayload struct {
	AdminKey string `json:"admin_key"`
}

// handleLogin verifies the admin key and issues a session cookie. A
// fixed delay applies to every attempt and failures pay an extra
// penalty, keeping brute force slow without leaking timing.
func (s *Server) handleLogin(c *gin.Context) {
	time.Sleep(s.successDelay)

	var payload loginPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		time.Sleep(s.failurePenalty)
		common.AbortWithAPIError(c, apperrors.Unauthorized("Invalid admin key."))
		return
	}

	if err := s.deps.Gate.VerifyAdminKey(c.Request.Context(), payload.AdminKey); err != nil {
		if errors.Is(err, auth.ErrInvalidAdminKey) || errors.Is(err, auth.ErrNoAdminKeySet) {
			time.Sleep(s.failurePenalty)
			common.AbortWithAPIError(c, apperrors.Unauthorized("Invalid admin key."))
			return
		}
		log.WithError(err).Error("login verification failed")
		common.AbortWithAPIError(c, apperrors.Internal("An internal error occurred during login."))
		return
	}

	token, err := s.deps.Gate.CreateSession(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("failed to create admin session")
		common.AbortWithAPIError(c, apperrors.Internal("An internal error occurred during login."))
		return
	}

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(
		auth.SessionCookieName,
		token,
		int(constants.SessionLifetime.Seconds()),
		"/",
		"",
		s.cfg.IsProduction(),
		true,
	)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Login successful."})
}

// handleLogout clears the cookie and removes the session row.
func (s *Server) handleLogout(c *gin.Context) {
	if token, err := c.Cookie(auth.SessionCookieName); err == nil && token != "" {
		if err := s.deps.Gate.DeleteSession(c.Request.Context(), token); err != nil {
			log.WithError(err).Warn("failed to delete session on logout")
		}
	}

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(auth.SessionCookieName, "", -1, "/", "", s.cfg.IsProduction(), true)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logout successful."})
}
