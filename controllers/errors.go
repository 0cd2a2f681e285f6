package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"BranchChat/middleware"
	"BranchChat/pkg/logger"
	svc "BranchChat/pkg/services"
)

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, svc.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, svc.ErrInvalidInput), errors.Is(err, svc.ErrInvalidBranchPoint):
		return http.StatusBadRequest
	case errors.Is(err, svc.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with {"msg": ...}. Storage and unknown errors are logged
// and reported generically.
func writeError(c *gin.Context, log *logger.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"msg": "internal error"})
		return
	}
	c.JSON(status, gin.H{"msg": err.Error()})
}

func currentUser(c *gin.Context) (uint, bool) {
	uid, ok := middleware.CurrentUserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "unauthorized"})
	}
	return uid, ok
}
