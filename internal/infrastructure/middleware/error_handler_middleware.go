package middleware

import (
	"net/http"

	"lumecast/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandlerMiddleware turns errors attached to the gin context into
// structured responses. Handlers push errors with c.Error and return.
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		appErr := errors.GetAppError(err)
		if appErr == nil {
			appErr = errors.FromDomain(err)
		}

		if appErr.HTTPStatus >= http.StatusInternalServerError {
			logger.Errorw("request failed",
				"code", appErr.Code,
				"message", appErr.Message,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"error", err,
			)
		} else {
			logger.Infow("request rejected",
				"code", appErr.Code,
				"status", appErr.HTTPStatus,
				"path", c.Request.URL.Path,
			)
		}

		c.JSON(appErr.HTTPStatus, gin.H{
			"error":   string(appErr.Code),
			"message": appErr.Message,
		})
	}
}

// RecoveryMiddleware converts panics into 500 responses.
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("panic recovered",
					"error", r,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)
				c.JSON(http.StatusInternalServerError, gin.H{
					"error":   string(errors.ErrCodeInternal),
					"message": "Internal server error",
				})
				c.Abort()
			}
		}()

		c.Next()
	}
}
