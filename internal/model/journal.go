package model

import "time"

// AnalysisResult 是外部文本分析服务对一篇日记给出的结果。
type AnalysisResult struct {
	Summary  string   `json:"summary"`
	Emotion  string   `json:"emotion"`
	Alert    bool     `json:"alert"`
	Keywords []string `json:"keywords,omitempty"`
}

// HasKeywords 判断结果中是否带有关键词。
func (r *AnalysisResult) HasKeywords() bool {
	return r != nil && len(r.Keywords) > 0
}

// JournalEntry 定义了 journals 表的 ORM 模型。
// CreatedAt 由服务端在写入时分配；AnalysisAlert 是 Analysis.Alert 的冗余列，用于组合查询。
// Version 在每次写入时递增，订阅方据此丢弃乱序到达的旧状态。
type JournalEntry struct {
	ID                string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID            string          `gorm:"type:varchar(36);not null;index" json:"userId"`
	Title             string          `gorm:"type:varchar(255)" json:"title"`
	Content           string          `gorm:"type:text" json:"content"`
	Mood              string          `gorm:"type:varchar(64)" json:"mood"`
	CreatedAt         time.Time       `gorm:"precision:6;index" json:"createdAt"`
	AnalysisPerformed bool            `gorm:"not null;default:false;index" json:"analysisPerformed"`
	Analysis          *AnalysisResult `gorm:"serializer:json;type:json" json:"analysis,omitempty"`
	AnalysisAlert     bool            `gorm:"not null;default:false;index" json:"analysisAlert"`
	AlertAcknowledged bool            `gorm:"not null;default:false" json:"alertAcknowledged"`
	AlertResolved     bool            `gorm:"not null;default:false" json:"alertResolved"`
	Version           int64           `gorm:"not null;default:1" json:"version"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (JournalEntry) TableName() string {
	return "journals"
}

// Emotion 返回分析得出的情绪标签，未分析时返回空字符串。
func (e *JournalEntry) Emotion() string {
	if !e.AnalysisPerformed || e.Analysis == nil {
		return ""
	}
	return e.Analysis.Emotion
}

// Keywords 返回分析得出的关键词，未分析时返回 nil。
func (e *JournalEntry) Keywords() []string {
	if !e.AnalysisPerformed || e.Analysis == nil {
		return nil
	}
	return e.Analysis.Keywords
}
