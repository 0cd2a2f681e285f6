package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"BranchChat/middleware"
	"BranchChat/models"
	"BranchChat/pkg/logger"
	tokenstore "BranchChat/pkg/token"
	"BranchChat/pkg/utils"
)

// Register handler
func Register(db *gorm.DB, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Email           string `json:"email"`
			Username        string `json:"username"`
			Password        string `json:"password"`
			ConfirmPassword string `json:"confirm_password"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid request"})
			return
		}

		email := strings.TrimSpace(strings.ToLower(body.Email))
		username := strings.TrimSpace(body.Username)
		if email == "" || username == "" || body.Password == "" || body.ConfirmPassword == "" {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "Email, username, password, and confirm password are required"})
			return
		}
		if body.Password != body.ConfirmPassword {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "Passwords do not match"})
			return
		}
		if !utils.HasLetter(body.Password) || !utils.HasNumber(body.Password) {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "Password must contain at least one letter and one number"})
			return
		}

		var exists models.User
		err := db.WithContext(c.Request.Context()).Where("email = ? OR username = ?", email, username).First(&exists).Error
		if err == nil {
			c.JSON(http.StatusConflict, gin.H{"msg": "Email or username already exists"})
			return
		} else if err != gorm.ErrRecordNotFound {
			log.Error("user lookup failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"msg": "db error"})
			return
		}

		user := models.User{Email: email, Username: username}
		if err := user.SetPassword(body.Password); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"msg": "failed to set password"})
			return
		}
		if err := db.WithContext(c.Request.Context()).Create(&user).Error; err != nil {
			log.Error("create user failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"msg": "failed to create user"})
			return
		}
		log.Info("user registered", "user_id", user.ID)
		c.JSON(http.StatusCreated, gin.H{"msg": "User created", "username": user.Username, "email": user.Email})
	}
}

// Login handler
func Login(db *gorm.DB, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid request"})
			return
		}
		email := strings.TrimSpace(strings.ToLower(body.Email))
		if email == "" || body.Password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "Email and password are required"})
			return
		}

		var user models.User
		if err := db.WithContext(c.Request.Context()).Where("email = ?", email).First(&user).Error; err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"msg": "Invalid credentials"})
			return
		}
		if !user.CheckPassword(body.Password) {
			c.JSON(http.StatusUnauthorized, gin.H{"msg": "Invalid credentials"})
			return
		}

		tokenStr, err := middleware.IssueToken(user.ID, secret)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"msg": "failed to create token"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"access_token": tokenStr, "username": user.Username})
	}
}

// Logout handler
func Logout(revoked *tokenstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		jti := c.GetString(middleware.ContextJTIKey)
		exp, _ := c.Get(middleware.ContextTokenExpKey)
		until, ok := exp.(time.Time)
		if !ok || until.IsZero() {
			until = time.Now().Add(middleware.TokenTTL)
		}
		revoked.Revoke(jti, until)
		c.JSON(http.StatusOK, gin.H{"msg": "logged out"})
	}
}
