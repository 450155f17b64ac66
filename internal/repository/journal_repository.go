// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"mindscribe-go/internal/alert"
	"mindscribe-go/internal/model"
	"mindscribe-go/pkg/log"
)

// ChangesChannelPrefix 是日记原始变更的 Redis pub/sub 频道前缀，每个 owner 一个频道。
const ChangesChannelPrefix = "journals:changes:"

// ChangesChannel 返回某个 owner 的变更频道。
func ChangesChannel(ownerID string) string {
	return ChangesChannelPrefix + ownerID
}

var (
	// ErrAlreadyAnalyzed 表示条件写失败：日记已经写入过分析结果。
	ErrAlreadyAnalyzed = errors.New("entry already analyzed")
	// ErrStaleAlertState 表示条件写失败：告警状态已被其他人修改。
	ErrStaleAlertState = errors.New("alert state changed concurrently")
	// ErrFeedUnavailable 表示没有可用的变更通道，无法订阅。
	ErrFeedUnavailable = errors.New("change feed unavailable")

	errNoRowsMatched = errors.New("no rows matched")
)

// JournalRepository 接口定义了日记数据的持久化与订阅操作。
type JournalRepository interface {
	Create(ctx context.Context, entry *model.JournalEntry) (string, error)
	FindByID(ctx context.Context, id string) (*model.JournalEntry, error)
	FindByOwner(ctx context.Context, ownerID string, limit int) ([]model.JournalEntry, error)
	Find(ctx context.Context, f Filter) ([]model.JournalEntry, error)
	Subscribe(ctx context.Context, f Filter) (*Subscription, error)
	SaveAnalysis(ctx context.Context, id string, result *model.AnalysisResult) error
	Acknowledge(ctx context.Context, id string) error
	Resolve(ctx context.Context, id string) error
}

// journalRepository 是 JournalRepository 接口的 GORM+Redis 实现。
type journalRepository struct {
	db          *gorm.DB
	redisClient *redis.Client
	clock       *monotonicClock
}

// NewJournalRepository 创建一个新的 JournalRepository 实例。redisClient 为 nil 时不发布变更，也无法订阅。
func NewJournalRepository(db *gorm.DB, redisClient *redis.Client) JournalRepository {
	return &journalRepository{
		db:          db,
		redisClient: redisClient,
		clock:       &monotonicClock{now: time.Now},
	}
}

// monotonicClock 保证同一进程内分配的创建时间严格递增（微秒精度，与 MySQL DATETIME(6) 一致）。
type monotonicClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func (c *monotonicClock) next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}

// rawChange 是发布到变更频道的消息。
type rawChange struct {
	Op    string             `json:"op"`
	Entry model.JournalEntry `json:"entry"`
}

func (r *journalRepository) publish(ctx context.Context, op string, entry *model.JournalEntry) {
	if r.redisClient == nil {
		return
	}
	payload, err := json.Marshal(rawChange{Op: op, Entry: *entry})
	if err != nil {
		log.Errorf("[JournalRepository] 序列化变更失败, id: %s, error: %v", entry.ID, err)
		return
	}
	if err := r.redisClient.Publish(ctx, ChangesChannel(entry.UserID), payload).Err(); err != nil {
		log.Warnf("[JournalRepository] 发布变更失败, id: %s, op: %s, error: %v", entry.ID, op, err)
	}
}

// update 在一个事务中执行条件写、递增版本并读回本次写入后的行，提交后发布该行。
// 条件不满足时返回 false。
func (r *journalRepository) update(ctx context.Context, id string, write func(q *gorm.DB) *gorm.DB) (bool, error) {
	var written model.JournalEntry
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := write(tx.Model(&model.JournalEntry{}).Where("id = ?", id))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errNoRowsMatched
		}
		if err := tx.Model(&model.JournalEntry{}).Where("id = ?", id).
			UpdateColumn("version", gorm.Expr("version + 1")).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).First(&written).Error
	})
	if errors.Is(err, errNoRowsMatched) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	r.publish(ctx, "update", &written)
	return true, nil
}

// Create 分配 id 与服务端时间戳，以未分析状态写入日记。
func (r *journalRepository) Create(ctx context.Context, entry *model.JournalEntry) (string, error) {
	entry.ID = uuid.NewString()
	entry.CreatedAt = r.clock.next()
	entry.AnalysisPerformed = false
	entry.Analysis = nil
	entry.AnalysisAlert = false
	entry.AlertAcknowledged = false
	entry.AlertResolved = false
	entry.Version = 1

	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return "", fmt.Errorf("create journal entry: %w", err)
	}
	r.publish(ctx, "create", entry)
	return entry.ID, nil
}

// FindByID 根据 id 查找日记，不存在时返回 gorm.ErrRecordNotFound。
func (r *journalRepository) FindByID(ctx context.Context, id string) (*model.JournalEntry, error) {
	var entry model.JournalEntry
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// FindByOwner 返回某个用户的日记，按创建时间从新到旧排列；limit <= 0 表示全部。
func (r *journalRepository) FindByOwner(ctx context.Context, ownerID string, limit int) ([]model.JournalEntry, error) {
	var entries []model.JournalEntry
	q := r.db.WithContext(ctx).Where("user_id = ?", ownerID).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// Find 执行通用过滤查询，按创建时间从新到旧排列。
func (r *journalRepository) Find(ctx context.Context, f Filter) ([]model.JournalEntry, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	var entries []model.JournalEntry
	q := f.apply(r.db.WithContext(ctx).Model(&model.JournalEntry{})).Order("created_at DESC").Order("id DESC")
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// SaveAnalysis 写入分析结果并初始化告警字段，只对尚未分析的日记生效。
func (r *journalRepository) SaveAnalysis(ctx context.Context, id string, result *model.AnalysisResult) error {
	if result == nil {
		return errors.New("nil analysis result")
	}
	// 未分析的日记处于 NONE，是否进入 UNACKNOWLEDGED 由分析结果决定。
	raised := alert.Raise(alert.None, result.Alert)
	ok, err := r.update(ctx, id, func(q *gorm.DB) *gorm.DB {
		return q.Where("analysis_performed = ?", false).
			Select("analysis_performed", "analysis", "analysis_alert", "alert_acknowledged", "alert_resolved").
			Updates(&model.JournalEntry{
				AnalysisPerformed: true,
				Analysis:          result,
				AnalysisAlert:     raised == alert.Unacknowledged,
			})
	})
	if err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	if !ok {
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyAnalyzed
	}
	return nil
}

// Acknowledge 把未确认的告警标记为已确认。
func (r *journalRepository) Acknowledge(ctx context.Context, id string) error {
	ok, err := r.update(ctx, id, func(q *gorm.DB) *gorm.DB {
		return q.Where("analysis_alert = ? AND alert_acknowledged = ?", true, false).
			Update("alert_acknowledged", true)
	})
	if err != nil {
		return fmt.Errorf("acknowledge alert: %w", err)
	}
	if !ok {
		return ErrStaleAlertState
	}
	return nil
}

// Resolve 把已确认的告警标记为已解决，未确认的告警不会被修改。
func (r *journalRepository) Resolve(ctx context.Context, id string) error {
	ok, err := r.update(ctx, id, func(q *gorm.DB) *gorm.DB {
		return q.Where("analysis_alert = ? AND alert_acknowledged = ? AND alert_resolved = ?", true, true, false).
			Update("alert_resolved", true)
	})
	if err != nil {
		return fmt.Errorf("resolve alert: %w", err)
	}
	if !ok {
		return ErrStaleAlertState
	}
	return nil
}

// Subscribe 订阅满足条件的日记：先为当前匹配的每篇日记推送 added，
// 之后把每条原始变更换算成 added/modified/removed。
// 指定了 owner 时只监听这些 owner 的频道，否则按前缀监听所有频道。
func (r *journalRepository) Subscribe(ctx context.Context, f Filter) (*Subscription, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if r.redisClient == nil {
		return nil, ErrFeedUnavailable
	}

	// 先确认订阅成功再查询初始结果，保证两者之间的写入不会丢失。
	var pubsub *redis.PubSub
	if len(f.OwnerIDs) > 0 {
		channels := make([]string, 0, len(f.OwnerIDs))
		for _, ownerID := range f.OwnerIDs {
			channels = append(channels, ChangesChannel(ownerID))
		}
		pubsub = r.redisClient.Subscribe(ctx, channels...)
	} else {
		pubsub = r.redisClient.PSubscribe(ctx, ChangesChannelPrefix+"*")
	}
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe change feed: %w", err)
	}

	initial, err := r.Find(ctx, f)
	if err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		ch:     make(chan Change),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(subCtx, pubsub, f, initial)
	return s, nil
}
