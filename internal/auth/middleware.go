package auth

import (
	"errors"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	apperrors "gemini-synapse/internal/errors"
	"gemini-synapse/internal/handlers/common"
)

// RequireAccessKey guards the relay surface.
func (g *Gate) RequireAccessKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := g.VerifyAccessKey(c); err != nil {
			if !errors.Is(err, ErrMissingAccessKey) && !errors.Is(err, ErrNoAccessKeySet) {
				log.WithError(err).Error("access key verification failed")
				common.AbortWithAPIError(c, apperrors.Internal("authentication backend failure"))
				return
			}
			common.AbortWithAPIError(c, apperrors.Unauthorized(err.Error()))
			return
		}
		c.Next()
	}
}

// RequireAdminSession guards the admin surface via the session cookie.
func (g *Gate) RequireAdminSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(SessionCookieName)
		if err != nil {
			common.AbortWithAPIError(c, apperrors.Unauthorized("admin session token not found in cookie"))
			return
		}
		if err := g.VerifySession(c.Request.Context(), token); err != nil {
			if errors.Is(err, ErrInvalidSession) || errors.Is(err, ErrSessionExpired) {
				common.AbortWithAPIError(c, apperrors.Unauthorized(err.Error()))
				return
			}
			log.WithError(err).Error("session verification failed")
			common.AbortWithAPIError(c, apperrors.Internal("authentication backend failure"))
			return
		}
		c.Next()
	}
}
