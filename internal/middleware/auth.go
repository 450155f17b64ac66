// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"mindscribe-go/internal/service"
	"mindscribe-go/internal/session"
	"mindscribe-go/pkg/log"
	"mindscribe-go/pkg/token"
)

var (
	// ErrInvalidToken 表示 token 无效、过期或类型不对。
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Authenticate 校验 access token 并解析出会话身份，websocket 等不走请求头的入口也使用它。
func Authenticate(ctx context.Context, jwtManager *token.JWTManager, userService service.UserService, tokenString string) (*session.Context, error) {
	claims, err := jwtManager.VerifyAccessToken(tokenString)
	if err != nil {
		return nil, ErrInvalidToken
	}
	revoked, err := userService.IsTokenRevoked(ctx, tokenString)
	if err != nil {
		log.Warnf("[Auth] 检查 token 黑名单失败: %v", err)
	}
	if revoked {
		return nil, service.ErrTokenRevoked
	}
	user, err := userService.GetProfile(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	return &session.Context{User: user, Claims: claims, Token: tokenString}, nil
}

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// 它会从请求头中提取 token，验证其有效性，并把解析出的 session.Context 存入 Gin 的上下文中。
func AuthMiddleware(jwtManager *token.JWTManager, userService service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, http.StatusUnauthorized, "missing authorization header")
			return
		}

		// Token 以 "Bearer <token>" 的形式提供
		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			abort(c, http.StatusUnauthorized, "invalid authorization header format")
			return
		}
		tokenString := strings.TrimPrefix(authHeader, bearerPrefix)

		sc, err := Authenticate(c.Request.Context(), jwtManager, userService, tokenString)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrProfileMissing), errors.Is(err, service.ErrTokenRevoked), errors.Is(err, ErrInvalidToken):
				abort(c, http.StatusUnauthorized, err.Error())
			default:
				log.Errorf("[Auth] 解析会话失败: %v", err)
				abort(c, http.StatusInternalServerError, "failed to load user profile")
			}
			return
		}

		session.Set(c, sc)
		c.Next()
	}
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"code": status, "message": message})
}
