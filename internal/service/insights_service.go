package service

import (
	"context"
	"fmt"
	"time"

	"mindscribe-go/internal/insights"
	"mindscribe-go/internal/repository"
	"mindscribe-go/pkg/log"
)

// InsightsService 接口定义了仪表盘统计操作。
type InsightsService interface {
	Dashboard(ctx context.Context, userID string) (insights.Dashboard, error)
}

type insightsService struct {
	entries repository.JournalRepository
	loc     *time.Location
	now     func() time.Time
}

// NewInsightsService 创建一个新的 InsightsService 实例，日历日按 timezone 划分。
func NewInsightsService(entries repository.JournalRepository, timezone string) InsightsService {
	if timezone == "" {
		timezone = "Local"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		log.Warnf("[InsightsService] 无法加载时区 '%s'，使用本地时区: %v", timezone, err)
		loc = time.Local
	}
	return &insightsService{entries: entries, loc: loc, now: time.Now}
}

// Dashboard 读取用户全部日记并重新计算统计。
func (s *insightsService) Dashboard(ctx context.Context, userID string) (insights.Dashboard, error) {
	entries, err := s.entries.FindByOwner(ctx, userID, 0)
	if err != nil {
		return insights.Compute(nil, s.now().In(s.loc)), fmt.Errorf("%w: %v", ErrQueryFailure, err)
	}
	return insights.Compute(entries, s.now().In(s.loc)), nil
}
