package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"mindscribe-go/internal/alert"
	"mindscribe-go/internal/model"
	"mindscribe-go/internal/repository"
	"mindscribe-go/pkg/log"
)

// AlertService 接口定义了治疗师处理告警的操作。
type AlertService interface {
	Acknowledge(ctx context.Context, therapist *model.User, entryID string) (*model.JournalEntry, error)
	Resolve(ctx context.Context, therapist *model.User, entryID string) (*model.JournalEntry, error)
}

type alertService struct {
	entries repository.JournalRepository
	users   repository.UserRepository
}

// NewAlertService 创建一个新的 AlertService 实例。
func NewAlertService(entries repository.JournalRepository, users repository.UserRepository) AlertService {
	return &alertService{entries: entries, users: users}
}

// stateOf 由日记的存储标志推导告警状态。
func stateOf(e *model.JournalEntry) alert.State {
	return alert.Derive(e.AnalysisAlert, e.AlertAcknowledged, e.AlertResolved)
}

// checkFlags 用 alert.Validate 检查日记的告警标志，不一致时记录错误日志并返回错误。
func checkFlags(e *model.JournalEntry) error {
	if err := alert.Validate(e.AnalysisAlert, e.AlertAcknowledged, e.AlertResolved); err != nil {
		log.Errorf("[AlertService] 告警标志不一致, EntryID: %s, alert: %t, acknowledged: %t, resolved: %t, error: %v",
			e.ID, e.AnalysisAlert, e.AlertAcknowledged, e.AlertResolved, err)
		return err
	}
	return nil
}

// Acknowledge 把告警从未确认推进到已确认。
func (s *alertService) Acknowledge(ctx context.Context, therapist *model.User, entryID string) (*model.JournalEntry, error) {
	return s.transition(ctx, therapist, entryID, "acknowledge", alert.Acknowledge, s.entries.Acknowledge)
}

// Resolve 把告警从已确认推进到已解决。
func (s *alertService) Resolve(ctx context.Context, therapist *model.User, entryID string) (*model.JournalEntry, error) {
	return s.transition(ctx, therapist, entryID, "resolve", alert.Resolve, s.entries.Resolve)
}

func (s *alertService) transition(
	ctx context.Context,
	therapist *model.User,
	entryID, action string,
	next func(alert.State) (alert.State, error),
	write func(context.Context, string) error,
) (*model.JournalEntry, error) {
	if !therapist.IsTherapist() {
		return nil, ErrNotTherapist
	}

	// 1. 读取日记并校验指定关系
	entry, err := s.entries.FindByID(ctx, entryID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailure, err)
	}
	if err := checkAssignment(ctx, s.users, therapist, entry.UserID); err != nil {
		return nil, err
	}

	// 2. 标志不一致的日记不做迁移
	if err := checkFlags(entry); err != nil {
		return nil, err
	}

	// 3. 纯状态迁移
	if _, err := next(stateOf(entry)); err != nil {
		return nil, err
	}

	// 4. 条件写，守卫失败说明状态已被并发修改
	if err := write(ctx, entry.ID); err != nil {
		if !errors.Is(err, repository.ErrStaleAlertState) {
			log.Errorf("[AlertService] %s 写入失败, EntryID: %s, error: %v", action, entry.ID, err)
		}
		return nil, err
	}
	log.Infof("[AlertService] 告警已%s, EntryID: %s, Therapist: %s", action, entry.ID, therapist.UID)

	updated, err := s.entries.FindByID(ctx, entry.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailure, err)
	}
	return updated, nil
}
