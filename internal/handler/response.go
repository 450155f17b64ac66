// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"mindscribe-go/internal/alert"
	"mindscribe-go/internal/repository"
	"mindscribe-go/internal/service"
	"mindscribe-go/internal/session"
	"mindscribe-go/pkg/analysis"
	"mindscribe-go/pkg/log"
)

func success(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": message, "data": data})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"code": status, "message": message, "data": nil})
}

// currentSession 取出 AuthMiddleware 注入的会话，缺失时直接写 500。
func currentSession(c *gin.Context) (*session.Context, bool) {
	sc, ok := session.From(c)
	if !ok {
		fail(c, http.StatusInternalServerError, "session not resolved")
		return nil, false
	}
	return sc, true
}

// statusOf 把业务错误翻译为 HTTP 状态码。
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrEntryNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNotAssigned), errors.Is(err, service.ErrNotTherapist):
		return http.StatusForbidden
	case alert.IsTransitionError(err), errors.Is(err, repository.ErrStaleAlertState), errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, analysis.ErrAnalysisUnavailable), errors.Is(err, service.ErrFeatureDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrProfileMissing), errors.Is(err, service.ErrTokenRevoked), errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrInvalidRole), errors.Is(err, service.ErrInvalidTherapist),
		errors.Is(err, service.ErrEmptyContent), errors.Is(err, service.ErrEmptyQuery):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError 记录并返回业务错误，5xx 不向客户端暴露内部细节。
func writeError(c *gin.Context, op string, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		log.Errorf("%s: %v", op, err)
		fail(c, status, "internal server error")
		return
	}
	log.Warnf("%s: %v", op, err)
	fail(c, status, err.Error())
}

// writeList 返回列表；查询失败时降级为空列表并标记 degraded。
func writeList[T any](c *gin.Context, op string, items []T, err error) {
	if errors.Is(err, service.ErrQueryFailure) {
		log.Errorf("%s: %v", op, err)
		c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "query failed", "data": []T{}, "degraded": true})
		return
	}
	if err != nil {
		writeError(c, op, err)
		return
	}
	if items == nil {
		items = []T{}
	}
	success(c, "success", items)
}

// limitParam 解析 ?limit=，缺省或非法时返回 0（不限制）。
func limitParam(c *gin.Context) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
