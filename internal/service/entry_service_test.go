package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"mindscribe-go/internal/model"
	"mindscribe-go/internal/repository"
	"mindscribe-go/pkg/analysis"
	"mindscribe-go/pkg/tasks"
)

type fakePublisher struct {
	published []tasks.AnalysisTask
	err       error
}

func (p *fakePublisher) PublishAnalysisTask(_ context.Context, task tasks.AnalysisTask) error {
	p.published = append(p.published, task)
	return p.err
}

type fakeIndexer struct {
	indexed []string
}

func (x *fakeIndexer) IndexEntry(_ context.Context, entry *model.JournalEntry) error {
	x.indexed = append(x.indexed, entry.ID)
	return nil
}

type fakeForeground struct {
	analyzeNowFn func(ctx context.Context, id string) (*model.JournalEntry, error)
	calls        int
}

func (a *fakeForeground) AnalyzeNow(ctx context.Context, id string) (*model.JournalEntry, error) {
	a.calls++
	return a.analyzeNowFn(ctx, id)
}

func TestCreateEntryPublishesAndIndexes(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, "u1", model.RoleUser, "")
	pub := &fakePublisher{err: errors.New("broker down")}
	idx := &fakeIndexer{}
	svc := NewEntryService(f.journals, f.users, pub, idx, nil)

	entry, err := svc.Create(context.Background(), user, CreateEntryInput{Title: " Day ", Content: "a calm walk", Mood: "🙂"})
	if err != nil {
		t.Fatalf("Create should not fail when the queue is down: %v", err)
	}
	if entry.ID == "" || entry.AnalysisPerformed || entry.Title != "Day" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if len(pub.published) != 1 || pub.published[0].EntryID != entry.ID || pub.published[0].UserID != "u1" {
		t.Errorf("unexpected published tasks: %+v", pub.published)
	}
	if len(idx.indexed) != 1 {
		t.Errorf("entry should be indexed once, got %v", idx.indexed)
	}

	if _, err := svc.Create(context.Background(), user, CreateEntryInput{Content: "   "}); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("expected ErrEmptyContent, got %v", err)
	}
}

func TestGetEntryAccess(t *testing.T) {
	f := newFixture(t)
	therapist := f.addUser(t, "th1", model.RoleTherapist, "")
	other := f.addUser(t, "th2", model.RoleTherapist, "")
	owner := f.addUser(t, "u1", model.RoleUser, "th1")
	stranger := f.addUser(t, "u2", model.RoleUser, "th1")
	entry := f.addEntry(t, owner.UID, "hello")
	svc := NewEntryService(f.journals, f.users, nil, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		viewer  *model.User
		wantErr error
	}{
		{"owner", owner, nil},
		{"assigned therapist", therapist, nil},
		{"other therapist", other, ErrNotAssigned},
		{"other user", stranger, ErrEntryNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Get(ctx, tt.viewer, entry.ID)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if err == nil && got.ID != entry.ID {
				t.Errorf("got entry %s, want %s", got.ID, entry.ID)
			}
		})
	}

	if _, err := svc.Get(ctx, owner, "missing"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestAnalyzeEntry(t *testing.T) {
	f := newFixture(t)
	owner := f.addUser(t, "u1", model.RoleUser, "")
	stranger := f.addUser(t, "u2", model.RoleUser, "")
	entry := f.addEntry(t, owner.UID, "hello")
	ctx := context.Background()

	fg := &fakeForeground{analyzeNowFn: func(context.Context, string) (*model.JournalEntry, error) {
		return nil, analysis.ErrAnalysisUnavailable
	}}
	svc := NewEntryService(f.journals, f.users, nil, nil, fg)

	if _, err := svc.Analyze(ctx, stranger, entry.ID); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("expected ErrEntryNotFound for a stranger, got %v", err)
	}
	if _, err := svc.Analyze(ctx, owner, entry.ID); !errors.Is(err, analysis.ErrAnalysisUnavailable) {
		t.Errorf("expected ErrAnalysisUnavailable, got %v", err)
	}

	f.analyze(t, entry.ID, "joy", false)
	got, err := svc.Analyze(ctx, owner, entry.ID)
	if err != nil || !got.AnalysisPerformed {
		t.Fatalf("analyzed entry should be returned as is, got %+v, err %v", got, err)
	}
	if fg.calls != 1 {
		t.Errorf("analyzer should not run for an analyzed entry, calls=%d", fg.calls)
	}
}

func TestSubscribeOwnEntries(t *testing.T) {
	f := newFixture(t)
	owner := f.addUser(t, "u1", model.RoleUser, "")
	f.addUser(t, "u2", model.RoleUser, "")
	existing := f.addEntry(t, owner.UID, "before")
	svc := NewEntryService(f.journals, f.users, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := svc.Subscribe(ctx, owner)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	expect := func(typ repository.ChangeType, id string) {
		t.Helper()
		select {
		case c := <-sub.C():
			if c.Type != typ || c.Entry.ID != id {
				t.Fatalf("expected %s %s, got %s %s", typ, id, c.Type, c.Entry.ID)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s %s", typ, id)
		}
	}
	expect(repository.ChangeAdded, existing.ID)

	f.addEntry(t, "u2", "someone else")
	mine := f.addEntry(t, owner.UID, "after")
	expect(repository.ChangeAdded, mine.ID)
	f.analyze(t, mine.ID, "sadness", false)
	expect(repository.ChangeModified, mine.ID)
}
