package version

import (
	"github.com/gin-gonic/gin"

	"BranchChat/controllers"
	"BranchChat/middleware"
	"BranchChat/pkg/logger"
	svc "BranchChat/pkg/services"
)

func Register(g *gin.RouterGroup, convs *svc.ConversationService, branches *svc.BranchService, limiter *middleware.RateLimiter, guard *middleware.DuplicateGuard, log *logger.Logger) {
	g.POST("/conversations/:id/versions", limiter.Middleware(), controllers.CreateBranch(branches, log))
	g.PUT("/conversations/:id/versions/:version_id/active", controllers.SwitchActiveVersion(convs, log))
	g.POST("/versions/:id/messages", limiter.Middleware(), controllers.AppendToVersion(convs, guard, log))
}
