package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"mindscribe-go/internal/service"
	"mindscribe-go/pkg/log"
)

// SearchHandler 结构体定义了日记检索的处理器。
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

// Search 在当前用户的日记中全文检索。
func (h *SearchHandler) Search(c *gin.Context) {
	sc, ok := currentSession(c)
	if !ok {
		return
	}
	query := c.Query("q")
	size, err := strconv.Atoi(c.DefaultQuery("size", "10"))
	if err != nil || size <= 0 {
		size = 10
	}

	results, err := h.searchService.Search(c.Request.Context(), sc.User, query, size)
	if err != nil {
		writeError(c, "[SearchHandler] Search", err)
		return
	}
	log.Infof("[SearchHandler] 检索成功, UserID: %s, 返回 %d 条结果", sc.UID(), len(results))
	success(c, "success", results)
}
