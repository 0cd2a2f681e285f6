package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	tokenstore "BranchChat/pkg/token"
)

const (
	ContextUserIDKey   = "current_user_id"
	ContextJTIKey      = "current_jti"
	ContextTokenExpKey = "current_token_exp"

	TokenTTL = 24 * time.Hour
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenRevoked = errors.New("Token has been revoked (logout)")
)

// Claims is the part of a token the handlers care about.
type Claims struct {
	UserID    uint
	JTI       string
	ExpiresAt time.Time
}

// IssueToken signs an HS256 token for userID valid for TokenTTL.
func IssueToken(userID uint, secret string) (string, error) {
	claims := jwt.MapClaims{
		"sub": strconv.FormatUint(uint64(userID), 10),
		"exp": time.Now().Add(TokenTTL).Unix(),
		"jti": uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates tokenStr and rejects revoked tokens.
func ParseToken(tokenStr, secret string, revoked *tokenstore.Store) (*Claims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		// only accept HMAC signing
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	jti, _ := claims["jti"].(string)
	if revoked != nil && revoked.IsRevoked(jti) {
		return nil, ErrTokenRevoked
	}

	var sub string
	if s, ok := claims["sub"].(string); ok {
		sub = s
	} else if f, ok := claims["sub"].(float64); ok {
		// jwt lib may parse numeric as float64
		sub = strconv.Itoa(int(f))
	}
	uid, err := strconv.ParseUint(sub, 10, 64)
	if err != nil || uid == 0 {
		return nil, errors.Wrap(ErrInvalidToken, "subject")
	}

	out := &Claims{UserID: uint(uid), JTI: jti}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

func AuthMiddleware(secret string, revoked *tokenstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "missing authorization header"})
			return
		}
		parts := strings.Fields(auth)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "invalid authorization header"})
			return
		}

		claims, err := ParseToken(parts[1], secret, revoked)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, ErrTokenRevoked) {
				msg = ErrTokenRevoked.Error()
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": msg})
			return
		}

		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextJTIKey, claims.JTI)
		c.Set(ContextTokenExpKey, claims.ExpiresAt)
		c.Next()
	}
}

// CurrentUserID returns the authenticated user id placed by AuthMiddleware.
func CurrentUserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(ContextUserIDKey)
	if !ok {
		return 0, false
	}
	uid, ok := v.(uint)
	return uid, ok && uid != 0
}
