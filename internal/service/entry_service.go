package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"mindscribe-go/internal/model"
	"mindscribe-go/internal/repository"
	"mindscribe-go/pkg/log"
	"mindscribe-go/pkg/tasks"
)

// TaskPublisher 把分析任务投递到后台队列，kafka.Producer 实现了它。
type TaskPublisher interface {
	PublishAnalysisTask(ctx context.Context, task tasks.AnalysisTask) error
}

// EntryIndexer 把日记写入搜索索引。
type EntryIndexer interface {
	IndexEntry(ctx context.Context, entry *model.JournalEntry) error
}

// ForegroundAnalyzer 执行用户主动触发的分析，pipeline.Processor 实现了它。
type ForegroundAnalyzer interface {
	AnalyzeNow(ctx context.Context, entryID string) (*model.JournalEntry, error)
}

// CreateEntryInput 是新建日记的输入。
type CreateEntryInput struct {
	Title   string
	Content string
	Mood    string
}

// ErrEmptyContent 表示日记正文为空。
var ErrEmptyContent = errors.New("journal content must not be empty")

// EntryService 接口定义了日记相关的业务操作。
type EntryService interface {
	Create(ctx context.Context, user *model.User, in CreateEntryInput) (*model.JournalEntry, error)
	List(ctx context.Context, user *model.User, limit int) ([]model.JournalEntry, error)
	Get(ctx context.Context, viewer *model.User, entryID string) (*model.JournalEntry, error)
	Analyze(ctx context.Context, user *model.User, entryID string) (*model.JournalEntry, error)
	Subscribe(ctx context.Context, user *model.User) (*repository.Subscription, error)
	SubscribeUnanalyzed(ctx context.Context, user *model.User) (*repository.Subscription, error)
}

type entryService struct {
	entries   repository.JournalRepository
	users     repository.UserRepository
	publisher TaskPublisher
	indexer   EntryIndexer
	analyzer  ForegroundAnalyzer
}

// NewEntryService 创建一个新的 EntryService 实例。publisher 与 indexer 可以为 nil。
func NewEntryService(
	entries repository.JournalRepository,
	users repository.UserRepository,
	publisher TaskPublisher,
	indexer EntryIndexer,
	analyzer ForegroundAnalyzer,
) EntryService {
	return &entryService{
		entries:   entries,
		users:     users,
		publisher: publisher,
		indexer:   indexer,
		analyzer:  analyzer,
	}
}

// Create 保存日记，然后尽力投递后台分析任务并写入搜索索引。
func (s *entryService) Create(ctx context.Context, user *model.User, in CreateEntryInput) (*model.JournalEntry, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, ErrEmptyContent
	}
	entry := &model.JournalEntry{
		UserID:  user.UID,
		Title:   strings.TrimSpace(in.Title),
		Content: in.Content,
		Mood:    in.Mood,
	}
	if _, err := s.entries.Create(ctx, entry); err != nil {
		log.Errorf("[EntryService] 保存日记失败, UserID: %s, error: %v", user.UID, err)
		return nil, err
	}

	if s.publisher != nil {
		task := tasks.AnalysisTask{EntryID: entry.ID, UserID: entry.UserID}
		if err := s.publisher.PublishAnalysisTask(ctx, task); err != nil {
			log.Warnf("[EntryService] 投递分析任务失败，等待治疗师会话补偿, EntryID: %s, error: %v", entry.ID, err)
		}
	}
	if s.indexer != nil {
		if err := s.indexer.IndexEntry(ctx, entry); err != nil {
			log.Warnf("[EntryService] 写入搜索索引失败, EntryID: %s, error: %v", entry.ID, err)
		}
	}
	return entry, nil
}

// List 返回用户自己的日记，从新到旧。
func (s *entryService) List(ctx context.Context, user *model.User, limit int) ([]model.JournalEntry, error) {
	entries, err := s.entries.FindByOwner(ctx, user.UID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailure, err)
	}
	return entries, nil
}

// Get 返回单篇日记，只有作者本人或其指定治疗师可以查看。
func (s *entryService) Get(ctx context.Context, viewer *model.User, entryID string) (*model.JournalEntry, error) {
	entry, err := s.entries.FindByID(ctx, entryID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailure, err)
	}
	if entry.UserID == viewer.UID {
		return entry, nil
	}
	if viewer.IsTherapist() {
		if err := checkAssignment(ctx, s.users, viewer, entry.UserID); err != nil {
			return nil, err
		}
		return entry, nil
	}
	return nil, ErrEntryNotFound
}

// Analyze 立即分析用户自己的日记，分析服务不可用时返回 analysis.ErrAnalysisUnavailable。
func (s *entryService) Analyze(ctx context.Context, user *model.User, entryID string) (*model.JournalEntry, error) {
	entry, err := s.entries.FindByID(ctx, entryID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailure, err)
	}
	if entry.UserID != user.UID {
		return nil, ErrEntryNotFound
	}
	if entry.AnalysisPerformed {
		return entry, nil
	}
	return s.analyzer.AnalyzeNow(ctx, entryID)
}

// Subscribe 订阅用户自己的全部日记。
func (s *entryService) Subscribe(ctx context.Context, user *model.User) (*repository.Subscription, error) {
	sub, err := s.entries.Subscribe(ctx, repository.Filter{OwnerIDs: []string{user.UID}})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailure, err)
	}
	return sub, nil
}

// SubscribeUnanalyzed 订阅用户自己尚未分析的日记，供会话内的后台分析使用。
func (s *entryService) SubscribeUnanalyzed(ctx context.Context, user *model.User) (*repository.Subscription, error) {
	sub, err := s.entries.Subscribe(ctx, repository.Filter{
		OwnerIDs:          []string{user.UID},
		AnalysisPerformed: repository.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailure, err)
	}
	return sub, nil
}

// checkAssignment 确认 therapist 是 ownerID 的指定治疗师。
func checkAssignment(ctx context.Context, users repository.UserRepository, therapist *model.User, ownerID string) error {
	if !therapist.IsTherapist() {
		return ErrNotTherapist
	}
	owner, err := users.FindByUID(ctx, ownerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotAssigned
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrQueryFailure, err)
	}
	if owner.TherapistID() != therapist.UID {
		return ErrNotAssigned
	}
	return nil
}
