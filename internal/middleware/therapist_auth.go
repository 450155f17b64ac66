package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mindscribe-go/internal/session"
)

// TherapistAuthMiddleware 检查用户是否为治疗师。
// 此中间件必须在 AuthMiddleware 之后使用。
func TherapistAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sc, ok := session.From(c)
		if !ok {
			// AuthMiddleware 未能设置会话，属于服务器内部错误
			abort(c, http.StatusInternalServerError, "session not resolved")
			return
		}
		if !sc.User.IsTherapist() {
			abort(c, http.StatusForbidden, "therapist role required")
			return
		}
		c.Next()
	}
}
