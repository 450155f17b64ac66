package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"mindscribe-go/internal/model"
)

// MaxInFilter 是单个查询或订阅中 owner "in" 条件允许的最大 id 数量，超出时由调用方分批。
const MaxInFilter = 30

// ErrFilterTooBroad 表示 owner 列表超过 MaxInFilter。
var ErrFilterTooBroad = errors.New("owner filter exceeds limit")

// Filter 描述日记查询与订阅共用的条件。nil 字段表示不限制，OwnerIDs 为空表示不限 owner。
type Filter struct {
	OwnerIDs          []string
	AnalysisPerformed *bool
	AnalysisAlert     *bool
	AlertResolved     *bool
}

// Bool 返回 b 的指针，便于构造 Filter。
func Bool(b bool) *bool {
	return &b
}

// Validate 检查过滤条件是否可以执行。
func (f Filter) Validate() error {
	if len(f.OwnerIDs) > MaxInFilter {
		return fmt.Errorf("%w: %d owners, max %d", ErrFilterTooBroad, len(f.OwnerIDs), MaxInFilter)
	}
	return nil
}

// Match 判断一篇日记是否满足条件，订阅用它把原始变更换算成相对于过滤条件的增量。
func (f Filter) Match(e *model.JournalEntry) bool {
	if e == nil {
		return false
	}
	if len(f.OwnerIDs) > 0 {
		found := false
		for _, id := range f.OwnerIDs {
			if id == e.UserID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.AnalysisPerformed != nil && e.AnalysisPerformed != *f.AnalysisPerformed {
		return false
	}
	if f.AnalysisAlert != nil && e.AnalysisAlert != *f.AnalysisAlert {
		return false
	}
	if f.AlertResolved != nil && e.AlertResolved != *f.AlertResolved {
		return false
	}
	return true
}

func (f Filter) apply(db *gorm.DB) *gorm.DB {
	if len(f.OwnerIDs) > 0 {
		db = db.Where("user_id IN ?", f.OwnerIDs)
	}
	if f.AnalysisPerformed != nil {
		db = db.Where("analysis_performed = ?", *f.AnalysisPerformed)
	}
	if f.AnalysisAlert != nil {
		db = db.Where("analysis_alert = ?", *f.AnalysisAlert)
	}
	if f.AlertResolved != nil {
		db = db.Where("alert_resolved = ?", *f.AlertResolved)
	}
	return db
}

// ChunkIDs 把 ids 按 size 分批，size <= 0 时使用 MaxInFilter。
func ChunkIDs(ids []string, size int) [][]string {
	if size <= 0 {
		size = MaxInFilter
	}
	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
