package auth

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"BranchChat/controllers"
	"BranchChat/pkg/logger"
	tokenstore "BranchChat/pkg/token"
)

// RegisterPublic registers public auth routes: /register, /login
func RegisterPublic(r *gin.Engine, db *gorm.DB, secret string, log *logger.Logger) {
	r.POST("/register", controllers.Register(db, log))
	r.POST("/login", controllers.Login(db, secret))
}

// RegisterProtected registers protected auth routes (e.g. logout)
func RegisterProtected(g *gin.RouterGroup, revoked *tokenstore.Store) {
	g.POST("/logout", controllers.Logout(revoked))
}
