package repository

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/go-redis/redis/v8"

	"mindscribe-go/internal/model"
	"mindscribe-go/pkg/log"
)

// ChangeType 是订阅推送的增量类型。
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// Change 是订阅推送的一条增量，Entry 是变更后的日记。
type Change struct {
	Type  ChangeType         `json:"type"`
	Entry model.JournalEntry `json:"entry"`
}

// Subscription 是一个日记订阅。C() 在订阅释放后关闭。
type Subscription struct {
	ch     chan Change
	cancel context.CancelFunc
	done   chan struct{}
	queued atomic.Int64
}

// C 返回增量通道。
func (s *Subscription) C() <-chan Change {
	return s.ch
}

// Close 释放订阅并等待后台 goroutine 退出。
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

// run 把 Redis 消息换算成增量并推送给消费者。增量先进入本地队列，读取 Redis 的循环从不等待消费者。
func (s *Subscription) run(ctx context.Context, pubsub *redis.PubSub, f Filter, initial []model.JournalEntry) {
	defer close(s.done)
	defer close(s.ch)
	defer pubsub.Close()

	matching := make(map[string]struct{}, len(initial))
	versions := make(map[string]int64, len(initial))
	queue := make([]Change, 0, len(initial))
	for i := range initial {
		matching[initial[i].ID] = struct{}{}
		versions[initial[i].ID] = initial[i].Version
		queue = append(queue, Change{Type: ChangeAdded, Entry: initial[i]})
	}

	msgs := pubsub.Channel()
	for {
		s.queued.Store(int64(len(queue)))
		var out chan Change
		var next Change
		if len(queue) > 0 {
			out = s.ch
			next = queue[0]
		}
		select {
		case <-ctx.Done():
			return
		case out <- next:
			queue[0] = Change{}
			queue = queue[1:]
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var raw rawChange
			if err := json.Unmarshal([]byte(msg.Payload), &raw); err != nil {
				log.Warnf("[Subscription] 无法解析变更消息: %v", err)
				continue
			}
			// 同一篇日记的发布可能乱序到达，只接受比已见版本更新的状态。
			if raw.Entry.Version <= versions[raw.Entry.ID] {
				continue
			}
			versions[raw.Entry.ID] = raw.Entry.Version
			if change, ok := classify(f, matching, raw.Entry); ok {
				queue = append(queue, change)
			}
		}
	}
}

// classify 根据订阅当前的匹配集合，把一条原始变更换算成增量，并更新匹配集合。
func classify(f Filter, matching map[string]struct{}, entry model.JournalEntry) (Change, bool) {
	_, was := matching[entry.ID]
	now := f.Match(&entry)
	switch {
	case now && !was:
		matching[entry.ID] = struct{}{}
		return Change{Type: ChangeAdded, Entry: entry}, true
	case now && was:
		return Change{Type: ChangeModified, Entry: entry}, true
	case !now && was:
		delete(matching, entry.ID)
		return Change{Type: ChangeRemoved, Entry: entry}, true
	default:
		return Change{}, false
	}
}
