package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"mindscribe-go/internal/alert"
	"mindscribe-go/internal/model"
	"mindscribe-go/internal/repository"
	"mindscribe-go/pkg/log"
)

// AlertItem 是治疗师告警列表中的一项。
type AlertItem struct {
	Entry       model.JournalEntry `json:"entry"`
	PatientName string             `json:"patientName"`
	State       alert.State        `json:"state"`
	Urgency     alert.Urgency      `json:"urgency"`
}

// RosterService 接口定义了治疗师视角下的病人与告警查询。
type RosterService interface {
	PatientsOf(ctx context.Context, therapistID string) ([]model.User, error)
	Patient(ctx context.Context, therapist *model.User, patientID string) (*model.User, error)
	PatientJournals(ctx context.Context, therapist *model.User, patientID string, limit int) ([]model.JournalEntry, error)
	ActiveAlerts(ctx context.Context, patients []model.User) ([]AlertItem, error)
	UnanalyzedIntake(ctx context.Context, patientIDs []string) (<-chan repository.Change, error)
	AlertFeed(ctx context.Context, patientIDs []string) (<-chan repository.Change, error)
}

type rosterService struct {
	entries repository.JournalRepository
	users   repository.UserRepository
}

// NewRosterService 创建一个新的 RosterService 实例。
func NewRosterService(entries repository.JournalRepository, users repository.UserRepository) RosterService {
	return &rosterService{entries: entries, users: users}
}

// activeAlertFilter 是告警列表与告警订阅共用的条件。
func activeAlertFilter(ids []string) repository.Filter {
	return repository.Filter{
		OwnerIDs:      ids,
		AnalysisAlert: repository.Bool(true),
		AlertResolved: repository.Bool(false),
	}
}

func unanalyzedFilter(ids []string) repository.Filter {
	return repository.Filter{
		OwnerIDs:          ids,
		AnalysisPerformed: repository.Bool(false),
	}
}

// PatientsOf 返回指定给该治疗师的病人。
func (s *rosterService) PatientsOf(ctx context.Context, therapistID string) ([]model.User, error) {
	patients, err := s.users.FindByAssignedTherapist(ctx, therapistID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailure, err)
	}
	return patients, nil
}

// Patient 返回治疗师名下的某个病人。
func (s *rosterService) Patient(ctx context.Context, therapist *model.User, patientID string) (*model.User, error) {
	if err := checkAssignment(ctx, s.users, therapist, patientID); err != nil {
		return nil, err
	}
	patient, err := s.users.FindByUID(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailure, err)
	}
	return patient, nil
}

// PatientJournals 返回治疗师名下某个病人的日记，从新到旧。
func (s *rosterService) PatientJournals(ctx context.Context, therapist *model.User, patientID string, limit int) ([]model.JournalEntry, error) {
	if err := checkAssignment(ctx, s.users, therapist, patientID); err != nil {
		return nil, err
	}
	entries, err := s.entries.FindByOwner(ctx, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailure, err)
	}
	for i := range entries {
		_ = checkFlags(&entries[i])
	}
	return entries, nil
}

// ActiveAlerts 按每批不超过 MaxInFilter 个病人查询未解决的告警，合并后从新到旧排列。
func (s *rosterService) ActiveAlerts(ctx context.Context, patients []model.User) ([]AlertItem, error) {
	names := make(map[string]string, len(patients))
	ids := make([]string, 0, len(patients))
	for _, p := range patients {
		names[p.UID] = p.Name
		ids = append(ids, p.UID)
	}

	var merged []model.JournalEntry
	for _, chunk := range repository.ChunkIDs(ids, repository.MaxInFilter) {
		entries, err := s.entries.Find(ctx, activeAlertFilter(chunk))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrQueryFailure, err)
		}
		merged = append(merged, entries...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].CreatedAt.Equal(merged[j].CreatedAt) {
			return merged[i].ID > merged[j].ID
		}
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})

	items := make([]AlertItem, 0, len(merged))
	for i := range merged {
		_ = checkFlags(&merged[i])
		st := stateOf(&merged[i])
		items = append(items, AlertItem{
			Entry:       merged[i],
			PatientName: names[merged[i].UserID],
			State:       st,
			Urgency:     alert.UrgencyOf(st),
		})
	}
	return items, nil
}

// UnanalyzedIntake 订阅病人中尚未分析的日记。
func (s *rosterService) UnanalyzedIntake(ctx context.Context, patientIDs []string) (<-chan repository.Change, error) {
	return s.fanIn(ctx, patientIDs, unanalyzedFilter)
}

// AlertFeed 订阅病人中未解决的告警。
func (s *rosterService) AlertFeed(ctx context.Context, patientIDs []string) (<-chan repository.Change, error) {
	return s.fanIn(ctx, patientIDs, activeAlertFilter)
}

// fanIn 为每批病人建立一个订阅，把所有增量合并到一个通道。
// 返回的通道在 ctx 结束且所有订阅释放后关闭。
func (s *rosterService) fanIn(ctx context.Context, ids []string, filter func([]string) repository.Filter) (<-chan repository.Change, error) {
	chunks := repository.ChunkIDs(ids, repository.MaxInFilter)
	subs := make([]*repository.Subscription, 0, len(chunks))
	for _, chunk := range chunks {
		sub, err := s.entries.Subscribe(ctx, filter(chunk))
		if err != nil {
			for _, opened := range subs {
				opened.Close()
			}
			return nil, fmt.Errorf("%w: %v", ErrQueryFailure, err)
		}
		subs = append(subs, sub)
	}

	out := make(chan repository.Change)
	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub *repository.Subscription) {
			defer wg.Done()
			defer sub.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case c, ok := <-sub.C():
					if !ok {
						return
					}
					select {
					case out <- c:
					case <-ctx.Done():
						return
					}
				}
			}
		}(sub)
	}
	go func() {
		// 没有病人时也要等到 ctx 结束再关闭，调用方以关闭作为会话结束的信号。
		<-ctx.Done()
		wg.Wait()
		close(out)
		log.Debugf("[RosterService] 订阅已释放, 批次数: %d", len(subs))
	}()
	return out, nil
}
