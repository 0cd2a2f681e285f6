package summary

import (
	"github.com/gin-gonic/gin"

	"BranchChat/controllers"
	"BranchChat/pkg/logger"
	svc "BranchChat/pkg/services"
)

func Register(g *gin.RouterGroup, summaries *svc.SummaryService, log *logger.Logger) {
	g.GET("/conversations/:id/summary", controllers.GetSummary(summaries, log))
	g.GET("/summaries", controllers.ListSummaries(summaries, log))
}
