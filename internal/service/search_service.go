package service

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"mindscribe-go/internal/model"
	"mindscribe-go/pkg/log"
)

// ErrEmptyQuery 表示规范化后的查询为空。
var ErrEmptyQuery = errors.New("search query must not be empty")

// Searcher 在某个用户的日记中全文检索，es.EntryIndex 实现了它。
type Searcher interface {
	SearchEntries(ctx context.Context, userID, query string, size int) ([]model.SearchHit, error)
}

// SearchService 接口定义了日记检索操作。
type SearchService interface {
	Search(ctx context.Context, user *model.User, query string, size int) ([]model.SearchHit, error)
}

type searchService struct {
	searcher Searcher
}

// NewSearchService 创建一个新的 SearchService 实例。searcher 为 nil 时检索返回 ErrFeatureDisabled。
func NewSearchService(searcher Searcher) SearchService {
	return &searchService{searcher: searcher}
}

// Search 规范化查询后只在用户自己的日记中检索。
func (s *searchService) Search(ctx context.Context, user *model.User, query string, size int) ([]model.SearchHit, error) {
	if s.searcher == nil {
		return nil, ErrFeatureDisabled
	}
	normalized := normalizeQuery(query)
	if normalized == "" {
		return nil, ErrEmptyQuery
	}
	if normalized != query {
		log.Debugf("[SearchService] 规范化查询: '%s' -> '%s'", query, normalized)
	}
	hits, err := s.searcher.SearchEntries(ctx, user.UID, normalized, size)
	if err != nil {
		log.Errorf("[SearchService] 检索失败, UserID: %s, error: %v", user.UID, err)
		return nil, err
	}
	return hits, nil
}

var (
	reURL   = regexp.MustCompile(`https?://\S+|www\.\S+`)
	reKeep  = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	reSpace = regexp.MustCompile(`\s+`)
)

// normalizeQuery 转小写，去掉链接和标点，合并空白。
func normalizeQuery(q string) string {
	lower := strings.ToLower(q)
	lower = reURL.ReplaceAllString(lower, " ")
	kept := reKeep.ReplaceAllString(lower, " ")
	return strings.TrimSpace(reSpace.ReplaceAllString(kept, " "))
}
