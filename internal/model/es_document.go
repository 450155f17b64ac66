// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// EntryDocument 定义了存储在 Elasticsearch 中的日记文档结构。
type EntryDocument struct {
	EntryID   string    `json:"entry_id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Summary   string    `json:"summary,omitempty"`
	Emotion   string    `json:"emotion,omitempty"`
	Keywords  []string  `json:"keywords,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewEntryDocument 由日记构造索引文档。
func NewEntryDocument(e *JournalEntry) EntryDocument {
	doc := EntryDocument{
		EntryID:   e.ID,
		UserID:    e.UserID,
		Title:     e.Title,
		Content:   e.Content,
		CreatedAt: e.CreatedAt,
	}
	if e.Analysis != nil {
		doc.Summary = e.Analysis.Summary
		doc.Emotion = e.Analysis.Emotion
		doc.Keywords = e.Analysis.Keywords
	}
	return doc
}

// SearchHit 定义了返回给前端的搜索结果结构。
type SearchHit struct {
	EntryID   string    `json:"entryId"`
	Title     string    `json:"title"`
	Snippet   string    `json:"snippet"`
	Emotion   string    `json:"emotion,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Score     float64   `json:"score"`
}
