// Package pipeline 定义了日记分析的核心流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mindscribe-go/internal/config"
	"mindscribe-go/internal/model"
	"mindscribe-go/internal/repository"
	"mindscribe-go/pkg/analysis"
	"mindscribe-go/pkg/log"
	"mindscribe-go/pkg/tasks"
)

// EntryStore 是 Processor 需要的日记存储能力。
type EntryStore interface {
	FindByID(ctx context.Context, id string) (*model.JournalEntry, error)
	SaveAnalysis(ctx context.Context, id string, result *model.AnalysisResult) error
}

// Indexer 把分析后的日记写入搜索索引。
type Indexer interface {
	IndexEntry(ctx context.Context, entry *model.JournalEntry) error
}

// Processor 封装了日记分析的所有依赖和逻辑。
type Processor struct {
	entries     EntryStore
	analyzer    analysis.Client
	marker      repository.AnalysisMarker
	indexer     Indexer
	fallback    bool
	inflightTTL time.Duration
}

// NewProcessor 创建一个新的 Processor 实例。marker 与 indexer 可以为 nil。
func NewProcessor(
	entries EntryStore,
	analyzer analysis.Client,
	marker repository.AnalysisMarker,
	indexer Indexer,
	cfg config.AnalysisConfig,
) *Processor {
	ttl := time.Duration(cfg.InflightTTLSecond) * time.Second
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Processor{
		entries:     entries,
		analyzer:    analyzer,
		marker:      marker,
		indexer:     indexer,
		fallback:    cfg.FallbackOnFailure,
		inflightTTL: ttl,
	}
}

// Process 是后台分析的主函数，可安全地对同一日记重复调用。
func (p *Processor) Process(ctx context.Context, task tasks.AnalysisTask) error {
	log.Infof("[Processor] 开始处理日记, EntryID: %s, UserID: %s", task.EntryID, task.UserID)

	// 1. 重新读取日记，已分析的直接跳过
	entry, err := p.entries.FindByID(ctx, task.EntryID)
	if err != nil {
		return fmt.Errorf("load entry %s: %w", task.EntryID, err)
	}
	if entry.AnalysisPerformed {
		log.Infof("[Processor] 日记已分析，跳过, EntryID: %s", task.EntryID)
		return nil
	}

	// 2. 尽力而为的进行中标记
	if p.marker != nil {
		acquired, err := p.marker.Acquire(ctx, entry.ID, p.inflightTTL)
		if err != nil {
			log.Warnf("[Processor] 获取进行中标记失败，继续处理, EntryID: %s, error: %v", entry.ID, err)
		} else if !acquired {
			log.Infof("[Processor] 日记正在被其他会话分析，跳过, EntryID: %s", entry.ID)
			return nil
		} else {
			defer func() {
				if err := p.marker.Release(context.Background(), entry.ID); err != nil {
					log.Warnf("[Processor] 释放进行中标记失败, EntryID: %s, error: %v", entry.ID, err)
				}
			}()
		}
	}

	// 3. 调用分析服务
	var result *model.AnalysisResult
	if p.fallback {
		result, err = analysis.AnalyzeOrDefault(ctx, p.analyzer, entry.Content)
		if err != nil {
			log.Warnf("[Processor] 分析失败，使用默认结果, EntryID: %s, error: %v", entry.ID, err)
		}
	} else {
		result, err = p.analyzer.Analyze(ctx, entry.Content)
		if err != nil {
			log.Errorf("[Processor] 分析失败，日记保持未分析状态, EntryID: %s, error: %v", entry.ID, err)
			return err
		}
	}

	// 4. 条件写入
	if err := p.save(ctx, entry.ID, result); err != nil {
		return err
	}
	log.Infof("[Processor] 日记分析完成, EntryID: %s, emotion: %s, alert: %t", entry.ID, result.Emotion, result.Alert)
	return nil
}

// AnalyzeNow 是用户主动触发的前台分析，分析失败时把 analysis.ErrAnalysisUnavailable 返回给调用方。
func (p *Processor) AnalyzeNow(ctx context.Context, entryID string) (*model.JournalEntry, error) {
	entry, err := p.entries.FindByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.AnalysisPerformed {
		return entry, nil
	}
	result, err := p.analyzer.Analyze(ctx, entry.Content)
	if err != nil {
		return nil, err
	}
	if err := p.save(ctx, entry.ID, result); err != nil {
		return nil, err
	}
	return p.entries.FindByID(ctx, entryID)
}

func (p *Processor) save(ctx context.Context, entryID string, result *model.AnalysisResult) error {
	err := p.entries.SaveAnalysis(ctx, entryID, result)
	if errors.Is(err, repository.ErrAlreadyAnalyzed) {
		log.Infof("[Processor] 日记已被其他会话分析，丢弃本次结果, EntryID: %s", entryID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("save analysis for %s: %w", entryID, err)
	}

	if p.indexer != nil {
		stored, err := p.entries.FindByID(ctx, entryID)
		if err == nil {
			err = p.indexer.IndexEntry(ctx, stored)
		}
		if err != nil {
			log.Warnf("[Processor] 更新搜索索引失败, EntryID: %s, error: %v", entryID, err)
		}
	}
	return nil
}
