package message

import (
	"github.com/gin-gonic/gin"

	"BranchChat/controllers"
	"BranchChat/pkg/logger"
	svc "BranchChat/pkg/services"
)

func Register(g *gin.RouterGroup, convs *svc.ConversationService, log *logger.Logger) {
	g.PATCH("/messages/:id", controllers.EditMessage(convs, log))
}
