package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"sudooom.im.group/internal/jwt"
	apperrors "sudooom.im.group/pkg/errors"
	"sudooom.im.group/pkg/response"
)

const callerIDKey = "caller_id"

// JWTAuth JWT 认证中间件
func JWTAuth(jwtService *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c.GetHeader("Authorization"))
		if token == "" {
			response.Unauthorized(c, apperrors.ErrTokenInvalid)
			return
		}

		claims, err := jwtService.ValidateAccessToken(token)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				response.Unauthorized(c, apperrors.ErrTokenExpired)
			} else {
				response.Unauthorized(c, apperrors.ErrTokenInvalid)
			}
			return
		}

		c.Set(callerIDKey, claims.CallerID())
		c.Next()
	}
}

// extractToken 从 Authorization header 提取 token
func extractToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// GetCallerID 从 context 获取调用方用户 ID
func GetCallerID(c *gin.Context) string {
	return c.GetString(callerIDKey)
}
