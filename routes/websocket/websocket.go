package websocket

import (
	"github.com/gin-gonic/gin"

	"BranchChat/controllers"
	"BranchChat/pkg/logger"
	"BranchChat/pkg/realtime"
	svc "BranchChat/pkg/services"
	tokenstore "BranchChat/pkg/token"
)

// Register mounts the event socket. It authenticates from ?token itself
// because browsers cannot set headers on the upgrade request.
func Register(r *gin.Engine, convs *svc.ConversationService, hub *realtime.Hub, secret string, revoked *tokenstore.Store, log *logger.Logger) {
	r.GET("/ws/conversations/:id", controllers.ConversationEvents(convs, hub, secret, revoked, log))
}
