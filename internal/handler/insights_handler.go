package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"mindscribe-go/internal/insights"
	"mindscribe-go/internal/service"
	"mindscribe-go/pkg/log"
)

// InsightsHandler 负责仪表盘与应对建议。
type InsightsHandler struct {
	insightsService service.InsightsService
}

// NewInsightsHandler 创建一个新的 InsightsHandler 实例。
func NewInsightsHandler(insightsService service.InsightsService) *InsightsHandler {
	return &InsightsHandler{insightsService: insightsService}
}

// Dashboard 返回当前用户的仪表盘统计。
func (h *InsightsHandler) Dashboard(c *gin.Context) {
	sc, ok := currentSession(c)
	if !ok {
		return
	}
	writeDashboard(c, h.insightsService, sc.UID())
}

// Coping 返回某个情绪对应的应对建议，未知情绪返回默认建议。
func (h *InsightsHandler) Coping(c *gin.Context) {
	success(c, "success", insights.CopingFor(c.Query("emotion")))
}

func writeDashboard(c *gin.Context, svc service.InsightsService, uid string) {
	d, err := svc.Dashboard(c.Request.Context(), uid)
	if errors.Is(err, service.ErrQueryFailure) {
		log.Errorf("Dashboard: %v", err)
		c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "query failed", "data": d, "degraded": true})
		return
	}
	if err != nil {
		writeError(c, "Dashboard", err)
		return
	}
	success(c, "success", d)
}
