package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"BranchChat/middleware"
	"BranchChat/pkg/logger"
	svc "BranchChat/pkg/services"
)

// CreateBranch forks the conversation at a past message and activates the fork.
func CreateBranch(branches *svc.BranchService, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := currentUser(c)
		if !ok {
			return
		}
		var body struct {
			RootMessageID string `json:"root_message_id"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.RootMessageID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "root_message_id is required"})
			return
		}
		v, err := branches.CreateBranch(c.Request.Context(), uid, c.Param("id"), body.RootMessageID)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, v)
	}
}

func SwitchActiveVersion(convs *svc.ConversationService, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := currentUser(c)
		if !ok {
			return
		}
		conv, err := convs.SwitchActive(c.Request.Context(), uid, c.Param("id"), c.Param("version_id"))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, conv)
	}
}

// AppendToVersion appends to a specific, possibly inactive, version.
func AppendToVersion(convs *svc.ConversationService, guard *middleware.DuplicateGuard, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := currentUser(c)
		if !ok {
			return
		}
		var body appendBody
		if !body.bind(c) {
			return
		}
		versionID := c.Param("id")
		dupKey, dupText := duplicateKey(uid, versionID), body.Role+":"+body.Content
		if strings.TrimSpace(body.Content) != "" && !guard.Allow(dupKey, dupText) {
			c.JSON(http.StatusConflict, gin.H{"msg": "duplicate message"})
			return
		}
		msg, err := convs.AppendToVersion(c.Request.Context(), uid, versionID, body.Role, body.Content)
		if err != nil {
			guard.Forget(dupKey, dupText)
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, msg)
	}
}
