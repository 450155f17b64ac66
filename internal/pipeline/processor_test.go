package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mindscribe-go/internal/config"
	"mindscribe-go/internal/model"
	"mindscribe-go/internal/repository"
	"mindscribe-go/pkg/analysis"
	"mindscribe-go/pkg/tasks"
)

// fakeStore 模拟 repository 的条件写语义。
type fakeStore struct {
	mu      sync.Mutex
	entries map[string]*model.JournalEntry
	saves   int
}

func newFakeStore(entries ...model.JournalEntry) *fakeStore {
	s := &fakeStore{entries: make(map[string]*model.JournalEntry)}
	for i := range entries {
		e := entries[i]
		s.entries[e.ID] = &e
	}
	return s
}

func (s *fakeStore) FindByID(_ context.Context, id string) (*model.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *e
	return &cp, nil
}

func (s *fakeStore) SaveAnalysis(_ context.Context, id string, result *model.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[id]
	if e.AnalysisPerformed {
		return repository.ErrAlreadyAnalyzed
	}
	s.saves++
	e.AnalysisPerformed = true
	e.Analysis = result
	e.AnalysisAlert = result.Alert
	return nil
}

type fakeAnalyzer struct {
	mu        sync.Mutex
	calls     int
	analyzeFn func(text string) (*model.AnalysisResult, error)
}

func (a *fakeAnalyzer) Analyze(_ context.Context, text string) (*model.AnalysisResult, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	return a.analyzeFn(text)
}

type fakeIndexer struct {
	indexed []string
}

func (i *fakeIndexer) IndexEntry(_ context.Context, e *model.JournalEntry) error {
	i.indexed = append(i.indexed, e.ID)
	return nil
}

func okAnalyzer() *fakeAnalyzer {
	return &fakeAnalyzer{analyzeFn: func(string) (*model.AnalysisResult, error) {
		return &model.AnalysisResult{Summary: "s", Emotion: "sadness", Alert: true}, nil
	}}
}

func failingAnalyzer() *fakeAnalyzer {
	return &fakeAnalyzer{analyzeFn: func(string) (*model.AnalysisResult, error) {
		return nil, analysis.ErrAnalysisUnavailable
	}}
}

func TestDuplicateIntakeDeliveryAnalyzesOnce(t *testing.T) {
	store := newFakeStore(model.JournalEntry{ID: "e1", UserID: "u1", Content: "hello"})
	analyzer := okAnalyzer()
	idx := &fakeIndexer{}
	p := NewProcessor(store, analyzer, nil, idx, config.AnalysisConfig{})

	stale := model.JournalEntry{ID: "e1", UserID: "u1", AnalysisPerformed: false}
	changes := make(chan repository.Change, 2)
	changes <- repository.Change{Type: repository.ChangeAdded, Entry: stale}
	changes <- repository.Change{Type: repository.ChangeAdded, Entry: stale}
	close(changes)

	Watch(context.Background(), changes, p)

	if analyzer.calls != 1 {
		t.Errorf("analyzer called %d times, want 1", analyzer.calls)
	}
	if store.saves != 1 {
		t.Errorf("SaveAnalysis applied %d times, want 1", store.saves)
	}
	if len(idx.indexed) != 1 {
		t.Errorf("indexed %d times, want 1", len(idx.indexed))
	}
}

func TestWatchSkipsRemovedAndAnalyzed(t *testing.T) {
	store := newFakeStore(model.JournalEntry{ID: "e1"}, model.JournalEntry{ID: "e2"})
	analyzer := okAnalyzer()
	p := NewProcessor(store, analyzer, nil, nil, config.AnalysisConfig{})

	changes := make(chan repository.Change, 2)
	changes <- repository.Change{Type: repository.ChangeRemoved, Entry: model.JournalEntry{ID: "e1"}}
	changes <- repository.Change{Type: repository.ChangeModified, Entry: model.JournalEntry{ID: "e2", AnalysisPerformed: true}}
	close(changes)

	Watch(context.Background(), changes, p)
	if analyzer.calls != 0 {
		t.Errorf("analyzer called %d times, want 0", analyzer.calls)
	}
}

func TestWatchStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Watch(ctx, make(chan repository.Change), NewProcessor(newFakeStore(), okAnalyzer(), nil, nil, config.AnalysisConfig{}))
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

// blockingHandler 在 e1 上阻塞直到 release 关闭，其余任务立即完成。
type blockingHandler struct {
	release chan struct{}
	done    chan string
}

func (h *blockingHandler) Process(ctx context.Context, task tasks.AnalysisTask) error {
	if task.EntryID == "e1" {
		select {
		case <-h.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h.done <- task.EntryID
	return nil
}

func TestWatchDoesNotBlockOnSlowAnalysis(t *testing.T) {
	h := &blockingHandler{release: make(chan struct{}), done: make(chan string, 4)}
	changes := make(chan repository.Change)
	finished := make(chan struct{})
	go func() {
		Watch(context.Background(), changes, h)
		close(finished)
	}()

	send := func(id string) {
		select {
		case changes <- repository.Change{Type: repository.ChangeAdded, Entry: model.JournalEntry{ID: id}}:
		case <-time.After(2 * time.Second):
			t.Fatalf("Watch stopped receiving while analyzing, could not deliver %s", id)
		}
	}
	send("e1")
	send("e1")
	send("e2")
	send("e3")

	for _, want := range []string{"e2", "e3"} {
		select {
		case got := <-h.done:
			if got == "e1" {
				t.Fatal("e1 finished before release")
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("%s was not analyzed while e1 was pending", want)
		}
	}

	close(h.release)
	close(changes)
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not wait for in-flight analysis and return")
	}
	close(h.done)
	var e1 int
	for id := range h.done {
		if id == "e1" {
			e1++
		}
	}
	if e1 != 1 {
		t.Errorf("e1 analyzed %d times, want 1", e1)
	}
}

func TestProcessFailureLeavesEntryUnanalyzed(t *testing.T) {
	store := newFakeStore(model.JournalEntry{ID: "e1"})
	p := NewProcessor(store, failingAnalyzer(), nil, nil, config.AnalysisConfig{})

	err := p.Process(context.Background(), tasks.AnalysisTask{EntryID: "e1"})
	if !errors.Is(err, analysis.ErrAnalysisUnavailable) {
		t.Fatalf("expected ErrAnalysisUnavailable, got %v", err)
	}
	e, _ := store.FindByID(context.Background(), "e1")
	if e.AnalysisPerformed {
		t.Error("failed analysis must leave the entry unanalyzed")
	}
}

func TestProcessFallback(t *testing.T) {
	store := newFakeStore(model.JournalEntry{ID: "e1"})
	p := NewProcessor(store, failingAnalyzer(), nil, nil, config.AnalysisConfig{FallbackOnFailure: true})

	if err := p.Process(context.Background(), tasks.AnalysisTask{EntryID: "e1"}); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	e, _ := store.FindByID(context.Background(), "e1")
	if !e.AnalysisPerformed || e.Analysis.Emotion != "neutral" || e.Analysis.Alert {
		t.Errorf("expected neutral fallback, got %+v", e.Analysis)
	}
}

type fakeMarker struct {
	held     map[string]bool
	released []string
}

func (m *fakeMarker) Acquire(_ context.Context, id string, _ time.Duration) (bool, error) {
	if m.held[id] {
		return false, nil
	}
	m.held[id] = true
	return true, nil
}

func (m *fakeMarker) Release(_ context.Context, id string) error {
	delete(m.held, id)
	m.released = append(m.released, id)
	return nil
}

func TestProcessRespectsInflightMarker(t *testing.T) {
	store := newFakeStore(model.JournalEntry{ID: "e1"})
	analyzer := okAnalyzer()
	marker := &fakeMarker{held: map[string]bool{"e1": true}}
	p := NewProcessor(store, analyzer, marker, nil, config.AnalysisConfig{})

	if err := p.Process(context.Background(), tasks.AnalysisTask{EntryID: "e1"}); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if analyzer.calls != 0 {
		t.Error("entry held by another session must not be analyzed")
	}

	delete(marker.held, "e1")
	if err := p.Process(context.Background(), tasks.AnalysisTask{EntryID: "e1"}); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if analyzer.calls != 1 || len(marker.released) != 1 {
		t.Errorf("calls=%d released=%v", analyzer.calls, marker.released)
	}
}

func TestAnalyzeNow(t *testing.T) {
	store := newFakeStore(model.JournalEntry{ID: "e1"}, model.JournalEntry{ID: "e2"})

	failing := NewProcessor(store, failingAnalyzer(), nil, nil, config.AnalysisConfig{FallbackOnFailure: true})
	if _, err := failing.AnalyzeNow(context.Background(), "e1"); !errors.Is(err, analysis.ErrAnalysisUnavailable) {
		t.Fatalf("foreground analysis must surface the failure, got %v", err)
	}

	analyzer := okAnalyzer()
	p := NewProcessor(store, analyzer, nil, nil, config.AnalysisConfig{})
	got, err := p.AnalyzeNow(context.Background(), "e2")
	if err != nil {
		t.Fatalf("AnalyzeNow failed: %v", err)
	}
	if !got.AnalysisPerformed || !got.AnalysisAlert {
		t.Errorf("unexpected entry: %+v", got)
	}
	if _, err := p.AnalyzeNow(context.Background(), "e2"); err != nil || analyzer.calls != 1 {
		t.Errorf("re-analysis of analyzed entry: calls=%d err=%v", analyzer.calls, err)
	}
}
