package handler

import (
	"github.com/gin-gonic/gin"

	"mindscribe-go/internal/service"
)

// ExportHandler 处理日记导出请求。
type ExportHandler struct {
	exportService service.ExportService
}

// NewExportHandler 创建一个新的 ExportHandler 实例。
func NewExportHandler(exportService service.ExportService) *ExportHandler {
	return &ExportHandler{exportService: exportService}
}

// Export 导出当前用户的全部日记，返回预签名下载链接。
func (h *ExportHandler) Export(c *gin.Context) {
	sc, ok := currentSession(c)
	if !ok {
		return
	}
	res, err := h.exportService.Export(c.Request.Context(), sc.User)
	if err != nil {
		writeError(c, "Export", err)
		return
	}
	success(c, "Export ready", res)
}
