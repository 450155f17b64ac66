package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// AnalysisMarker 是尽力而为的“分析进行中”标记，减少并发会话重复调用分析服务。
// 正确性由 SaveAnalysis 的条件写保证，标记失效不会导致重复写入。
type AnalysisMarker interface {
	Acquire(ctx context.Context, entryID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, entryID string) error
}

type redisAnalysisMarker struct {
	redisClient *redis.Client
}

// NewAnalysisMarker 创建一个基于 Redis SETNX 的 AnalysisMarker。
func NewAnalysisMarker(redisClient *redis.Client) AnalysisMarker {
	return &redisAnalysisMarker{redisClient: redisClient}
}

func (m *redisAnalysisMarker) key(entryID string) string {
	return fmt.Sprintf("analysis:inflight:%s", entryID)
}

// Acquire 尝试设置标记，已被占用时返回 false。
func (m *redisAnalysisMarker) Acquire(ctx context.Context, entryID string, ttl time.Duration) (bool, error) {
	ok, err := m.redisClient.SetNX(ctx, m.key(entryID), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire analysis marker: %w", err)
	}
	return ok, nil
}

// Release 删除标记。
func (m *redisAnalysisMarker) Release(ctx context.Context, entryID string) error {
	return m.redisClient.Del(ctx, m.key(entryID)).Err()
}
