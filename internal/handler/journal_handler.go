package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mindscribe-go/internal/service"
	"mindscribe-go/pkg/log"
)

// JournalHandler 负责处理日记相关的 API 请求。
type JournalHandler struct {
	entryService service.EntryService
}

// NewJournalHandler 创建一个新的 JournalHandler 实例。
func NewJournalHandler(entryService service.EntryService) *JournalHandler {
	return &JournalHandler{entryService: entryService}
}

// CreateEntryRequest 定义了新建日记 API 的请求体结构。
// 分析相关字段由服务端维护，请求中即使携带也会被忽略。
type CreateEntryRequest struct {
	Title   string `json:"title"`
	Content string `json:"content" binding:"required"`
	Mood    string `json:"mood"`
}

// Create 保存一篇新日记，分析在后台进行。
func (h *JournalHandler) Create(c *gin.Context) {
	sc, ok := currentSession(c)
	if !ok {
		return
	}
	var req CreateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("CreateEntry: Invalid request payload, error: %v", err)
		fail(c, http.StatusBadRequest, "invalid request payload: content is required")
		return
	}

	entry, err := h.entryService.Create(c.Request.Context(), sc.User, service.CreateEntryInput{
		Title:   req.Title,
		Content: req.Content,
		Mood:    req.Mood,
	})
	if err != nil {
		writeError(c, "CreateEntry", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"code": http.StatusCreated, "message": "Entry saved", "data": entry})
}

// List 返回当前用户的日记，从新到旧。
func (h *JournalHandler) List(c *gin.Context) {
	sc, ok := currentSession(c)
	if !ok {
		return
	}
	entries, err := h.entryService.List(c.Request.Context(), sc.User, limitParam(c))
	writeList(c, "ListEntries", entries, err)
}

// Get 返回单篇日记。
func (h *JournalHandler) Get(c *gin.Context) {
	sc, ok := currentSession(c)
	if !ok {
		return
	}
	entry, err := h.entryService.Get(c.Request.Context(), sc.User, c.Param("id"))
	if err != nil {
		writeError(c, "GetEntry", err)
		return
	}
	success(c, "success", entry)
}

// Analyze 立即分析一篇日记，分析服务不可用时返回 503。
func (h *JournalHandler) Analyze(c *gin.Context) {
	sc, ok := currentSession(c)
	if !ok {
		return
	}
	entry, err := h.entryService.Analyze(c.Request.Context(), sc.User, c.Param("id"))
	if err != nil {
		writeError(c, "AnalyzeEntry", err)
		return
	}
	success(c, "Analysis complete", entry)
}
