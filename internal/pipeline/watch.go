package pipeline

import (
	"context"
	"sync"

	"mindscribe-go/internal/repository"
	"mindscribe-go/pkg/log"
	"mindscribe-go/pkg/tasks"
)

// watchWorkers 是单个 Watch 同时进行的分析数量上限。
const watchWorkers = 4

// TaskHandler 处理一个分析任务，Processor 实现了它。
type TaskHandler interface {
	Process(ctx context.Context, task tasks.AnalysisTask) error
}

// Watch 消费未分析日记的订阅流，对每个 added/modified 的未分析日记调用 handler。
// handler 在独立的 goroutine 中执行，接收循环不会被慢分析阻塞；同一篇日记同时只有一次分析。
// 通道关闭或 ctx 结束时停止接收，并等待进行中的分析返回。重复投递由 handler 重新读取日记来去重。
func Watch(ctx context.Context, changes <-chan repository.Change, handler TaskHandler) {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inflight = make(map[string]struct{})
		sem      = make(chan struct{}, watchWorkers)
	)
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			if c.Type == repository.ChangeRemoved || c.Entry.AnalysisPerformed {
				continue
			}
			mu.Lock()
			if _, busy := inflight[c.Entry.ID]; busy {
				mu.Unlock()
				continue
			}
			inflight[c.Entry.ID] = struct{}{}
			mu.Unlock()

			task := tasks.AnalysisTask{EntryID: c.Entry.ID, UserID: c.Entry.UserID}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() {
					mu.Lock()
					delete(inflight, task.EntryID)
					mu.Unlock()
				}()
				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					return
				}
				defer func() { <-sem }()
				if err := handler.Process(ctx, task); err != nil {
					log.Warnf("[Watcher] 后台分析失败, EntryID: %s, error: %v", task.EntryID, err)
				}
			}()
		}
	}
}
