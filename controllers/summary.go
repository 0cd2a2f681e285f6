package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"BranchChat/pkg/logger"
	svc "BranchChat/pkg/services"
)

func GetSummary(summaries *svc.SummaryService, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := currentUser(c)
		if !ok {
			return
		}
		id := c.Param("id")
		summary, err := summaries.Get(c.Request.Context(), uid, id)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"conversation_id": id, "summary": summary})
	}
}

func ListSummaries(summaries *svc.SummaryService, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := currentUser(c)
		if !ok {
			return
		}
		list, err := summaries.List(c.Request.Context(), uid, c.Query("q"))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}
