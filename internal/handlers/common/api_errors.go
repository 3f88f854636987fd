package common

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "gemini-synapse/internal/errors"
)

// AbortWithAPIError serializes the error envelope and aborts the
// request.
func AbortWithAPIError(c *gin.Context, err *apperrors.APIError) {
	if err == nil {
		err = apperrors.Internal("unknown error")
	}

	payload, marshalErr := err.ToJSON()
	if marshalErr != nil {
		c.JSON(safeStatus(err.HTTPStatus), gin.H{
			"error": gin.H{"code": err.Code, "message": err.Message},
		})
		c.Abort()
		return
	}

	c.Data(safeStatus(err.HTTPStatus), "application/json", payload)
	c.Abort()
}

func safeStatus(status int) int {
	if status >= 400 && status <= 599 {
		return status
	}
	return http.StatusInternalServerError
}
