package session

import (
	"github.com/gin-gonic/gin"

	"mindscribe-go/internal/model"
	"mindscribe-go/pkg/token"
)

// contextKey 是 Context 在 gin.Context 中的键。
const contextKey = "session"

// Context 是一次请求的身份信息，由认证中间件解析一次后显式传给 handler 和 service。
type Context struct {
	User   *model.User
	Claims *token.CustomClaims
	Token  string
}

// UID 返回当前用户的 uid。
func (c *Context) UID() string {
	if c == nil || c.User == nil {
		return ""
	}
	return c.User.UID
}

// Set 把 Context 存入 gin.Context。
func Set(c *gin.Context, sc *Context) {
	c.Set(contextKey, sc)
}

// From 从 gin.Context 中取出 Context。
func From(c *gin.Context) (*Context, bool) {
	v, ok := c.Get(contextKey)
	if !ok {
		return nil, false
	}
	sc, ok := v.(*Context)
	return sc, ok && sc != nil && sc.User != nil
}
