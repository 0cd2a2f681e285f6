package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"BranchChat/middleware"
	"BranchChat/models"
	"BranchChat/pkg/logger"
	svc "BranchChat/pkg/services"
)

func ListConversations(convs *svc.ConversationService, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := currentUser(c)
		if !ok {
			return
		}
		list, err := convs.List(c.Request.Context(), uid)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

func CreateConversation(convs *svc.ConversationService, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := currentUser(c)
		if !ok {
			return
		}
		var body struct {
			Title    string           `json:"title"`
			Messages []svc.NewMessage `json:"messages"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid request"})
			return
		}
		for i := range body.Messages {
			if body.Messages[i].Role == "" {
				body.Messages[i].Role = models.RoleUser
			}
		}
		conv, err := convs.Create(c.Request.Context(), uid, body.Title, body.Messages)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, conv)
	}
}

func GetConversation(convs *svc.ConversationService, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := currentUser(c)
		if !ok {
			return
		}
		conv, err := convs.Get(c.Request.Context(), uid, c.Param("id"))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, conv)
	}
}

func RenameConversation(convs *svc.ConversationService, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := currentUser(c)
		if !ok {
			return
		}
		var body struct {
			Title string `json:"title"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid request"})
			return
		}
		conv, err := convs.Rename(c.Request.Context(), uid, c.Param("id"), body.Title)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, conv)
	}
}

func DeleteConversation(convs *svc.ConversationService, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := currentUser(c)
		if !ok {
			return
		}
		if err := convs.SoftDelete(c.Request.Context(), uid, c.Param("id")); err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"msg": "conversation deleted"})
	}
}

type appendBody struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (b *appendBody) bind(c *gin.Context) bool {
	if err := c.ShouldBindJSON(b); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid request"})
		return false
	}
	if strings.TrimSpace(b.Role) == "" {
		b.Role = models.RoleUser
	}
	return true
}

func duplicateKey(uid uint, target string) string {
	return strconv.FormatUint(uint64(uid), 10) + ":" + target
}

// AppendMessage appends to the conversation's active version.
func AppendMessage(convs *svc.ConversationService, guard *middleware.DuplicateGuard, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := currentUser(c)
		if !ok {
			return
		}
		var body appendBody
		if !body.bind(c) {
			return
		}
		convID := c.Param("id")
		dupKey, dupText := duplicateKey(uid, convID), body.Role+":"+body.Content
		if strings.TrimSpace(body.Content) != "" && !guard.Allow(dupKey, dupText) {
			c.JSON(http.StatusConflict, gin.H{"msg": "duplicate message"})
			return
		}
		msg, err := convs.AppendMessage(c.Request.Context(), uid, convID, body.Role, body.Content)
		if err != nil {
			guard.Forget(dupKey, dupText)
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, msg)
	}
}

func ListBranched(branches *svc.BranchService, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := currentUser(c)
		if !ok {
			return
		}
		trees, err := branches.ListBranched(c.Request.Context(), uid)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, trees)
	}
}

func GetBranchedTree(branches *svc.BranchService, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := currentUser(c)
		if !ok {
			return
		}
		tree, err := branches.RenderBranchedTree(c.Request.Context(), uid, c.Param("id"))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, tree)
	}
}
