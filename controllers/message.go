package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"BranchChat/pkg/logger"
	svc "BranchChat/pkg/services"
)

func EditMessage(convs *svc.ConversationService, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := currentUser(c)
		if !ok {
			return
		}
		var body struct {
			Role    *string `json:"role"`
			Content *string `json:"content"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid request"})
			return
		}
		msg, err := convs.EditMessage(c.Request.Context(), uid, c.Param("id"), body.Role, body.Content)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, msg)
	}
}
