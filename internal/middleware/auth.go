package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/moments-social/moments-backend/internal/common"
	pkgjwt "github.com/moments-social/moments-backend/pkg/jwt"
	pkglogger "github.com/moments-social/moments-backend/pkg/logger"
)

// JWTAuth JWT authentication middleware. Near-expiry tokens are silently
// reissued via the X-New-Token response header so active sessions slide.
func JWTAuth(jwtManager *pkgjwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. Extract Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			common.ErrorResponse(c, 401, "未提供 Token, 访问拒绝", nil)
			c.Abort()
			return
		}

		// 2. Parse Bearer token
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			common.ErrorResponse(c, 401, "Token 格式错误", nil)
			c.Abort()
			return
		}

		tokenString := parts[1]

		// 3. Verify token
		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil {
			if errors.Is(err, pkgjwt.ErrExpiredToken) {
				common.ErrorResponse(c, 401, "Token 已过期", err)
			} else {
				common.ErrorResponse(c, 403, "Token 无效", err)
			}
			c.Abort()
			return
		}

		// 4. Sliding refresh
		if jwtManager.ShouldRefresh(claims) {
			if newToken, genErr := jwtManager.GenerateToken(claims.UserID, claims.Username); genErr == nil {
				c.Header("X-New-Token", newToken)
			} else {
				pkglogger.GetLogger().Warn().Err(genErr).Msg("token refresh failed")
			}
		}

		// 5. Store user info in context
		c.Set("userID", claims.UserID)
		c.Set("username", claims.Username)

		c.Next()
	}
}

// GetUserID extracts the authenticated user ID from context
func GetUserID(c *gin.Context) uint {
	userID, exists := c.Get("userID")
	if !exists {
		return 0
	}
	if id, ok := userID.(uint); ok {
		return id
	}
	return 0
}

// GetUsername extracts the authenticated username from context
func GetUsername(c *gin.Context) string {
	username, exists := c.Get("username")
	if !exists {
		return ""
	}
	if str, ok := username.(string); ok {
		return str
	}
	return ""
}
