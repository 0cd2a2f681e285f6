package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"BranchChat/middleware"
	"BranchChat/pkg/logger"
	"BranchChat/pkg/realtime"
	svc "BranchChat/pkg/services"
	tokenstore "BranchChat/pkg/token"

	authRoutes "BranchChat/routes/auth"
	convRoutes "BranchChat/routes/conversation"
	messageRoutes "BranchChat/routes/message"
	summaryRoutes "BranchChat/routes/summary"
	versionRoutes "BranchChat/routes/version"
	websocketRoutes "BranchChat/routes/websocket"
)

// Deps is everything the HTTP layer needs.
type Deps struct {
	DB        *gorm.DB
	Log       *logger.Logger
	Secret    string
	Revoked   *tokenstore.Store
	Hub       *realtime.Hub
	Convs     *svc.ConversationService
	Branches  *svc.BranchService
	Summaries *svc.SummaryService
	Limiter   *middleware.RateLimiter
	Guard     *middleware.DuplicateGuard
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "branching chat backend running"})
	})

	websocketRoutes.Register(r, d.Convs, d.Hub, d.Secret, d.Revoked, d.Log)
	authRoutes.RegisterPublic(r, d.DB, d.Secret, d.Log)

	protected := r.Group("/")
	protected.Use(middleware.AuthMiddleware(d.Secret, d.Revoked))
	authRoutes.RegisterProtected(protected, d.Revoked)
	convRoutes.Register(protected, d.Convs, d.Branches, d.Limiter, d.Guard, d.Log)
	versionRoutes.Register(protected, d.Convs, d.Branches, d.Limiter, d.Guard, d.Log)
	messageRoutes.Register(protected, d.Convs, d.Log)
	summaryRoutes.Register(protected, d.Summaries, d.Log)
}
