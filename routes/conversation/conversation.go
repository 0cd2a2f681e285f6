package conversation

import (
	"github.com/gin-gonic/gin"

	"BranchChat/controllers"
	"BranchChat/middleware"
	"BranchChat/pkg/logger"
	svc "BranchChat/pkg/services"
)

// Register registers conversation routes (protected)
func Register(g *gin.RouterGroup, convs *svc.ConversationService, branches *svc.BranchService, limiter *middleware.RateLimiter, guard *middleware.DuplicateGuard, log *logger.Logger) {
	g.GET("/conversations", controllers.ListConversations(convs, log))
	g.POST("/conversations", limiter.Middleware(), controllers.CreateConversation(convs, log))
	g.GET("/conversations/branched", controllers.ListBranched(branches, log))
	g.GET("/conversations/:id", controllers.GetConversation(convs, log))
	g.GET("/conversations/:id/branched", controllers.GetBranchedTree(branches, log))
	g.PUT("/conversations/:id/title", controllers.RenameConversation(convs, log))
	g.DELETE("/conversations/:id", controllers.DeleteConversation(convs, log))
	// Rate limited like the other chat POST endpoints.
	g.POST("/conversations/:id/messages", limiter.Middleware(), controllers.AppendMessage(convs, guard, log))
}
