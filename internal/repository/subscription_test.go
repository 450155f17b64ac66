package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"mindscribe-go/internal/model"
)

func waitQueued(t *testing.T, sub *Subscription, want int64) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if sub.queued.Load() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("queued = %d, want %d", sub.queued.Load(), want)
}

func TestSubscriptionKeepsDeltasForSlowConsumer(t *testing.T) {
	repo := newTestJournalRepo(t)
	sub, err := repo.Subscribe(context.Background(), Filter{OwnerIDs: []string{"u1"}})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	// 消费者暂不读取，期间产生远超 go-redis 通道缓冲的变更。
	var want []string
	want = append(want, mustCreate(t, repo, "u1", "first"))
	for i := 0; i < 150; i++ {
		mustCreate(t, repo, "u2", fmt.Sprintf("other %d", i))
		want = append(want, mustCreate(t, repo, "u1", fmt.Sprintf("mine %d", i)))
	}

	// 所有属于 u1 的消息都已从 Redis 读出并在本地排队。
	waitQueued(t, sub, int64(len(want)))

	for i, id := range want {
		c := nextChange(t, sub)
		if c.Type != ChangeAdded || c.Entry.ID != id {
			t.Fatalf("delta %d: got %s %s, want added %s", i, c.Type, c.Entry.ID, id)
		}
		if c.Entry.UserID != "u1" {
			t.Fatalf("delta %d belongs to %s", i, c.Entry.UserID)
		}
	}
}

func TestSubscriptionWithoutOwnersSeesAllOwners(t *testing.T) {
	repo := newTestJournalRepo(t)
	sub, err := repo.Subscribe(context.Background(), Filter{AnalysisPerformed: Bool(false)})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	a := mustCreate(t, repo, "u1", "a")
	b := mustCreate(t, repo, "u2", "b")
	if c := nextChange(t, sub); c.Entry.ID != a {
		t.Fatalf("expected %s first, got %s", a, c.Entry.ID)
	}
	if c := nextChange(t, sub); c.Entry.ID != b {
		t.Fatalf("expected %s second, got %s", b, c.Entry.ID)
	}
}

func TestSubscriptionIgnoresStaleState(t *testing.T) {
	repo := newTestJournalRepo(t)
	ctx := context.Background()
	id := mustCreate(t, repo, "u1", "alarming")
	if err := repo.SaveAnalysis(ctx, id, &model.AnalysisResult{Emotion: "sadness", Alert: true}); err != nil {
		t.Fatalf("SaveAnalysis failed: %v", err)
	}

	sub, err := repo.Subscribe(ctx, Filter{OwnerIDs: []string{"u1"}, AnalysisAlert: Bool(true), AlertResolved: Bool(false)})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()
	if c := nextChange(t, sub); c.Type != ChangeAdded || c.Entry.ID != id {
		t.Fatalf("expected initial added, got %s %s", c.Type, c.Entry.ID)
	}

	if err := repo.Acknowledge(ctx, id); err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}
	acknowledged, err := repo.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if c := nextChange(t, sub); c.Type != ChangeModified {
		t.Fatalf("expected modified, got %s", c.Type)
	}
	if err := repo.Resolve(ctx, id); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if c := nextChange(t, sub); c.Type != ChangeRemoved || c.Entry.ID != id {
		t.Fatalf("expected removed, got %s %s", c.Type, c.Entry.ID)
	}

	// 确认操作的状态在解决之后才到达，不能让告警重新出现。
	repo.(*journalRepository).publish(ctx, "update", acknowledged)

	other := mustCreate(t, repo, "u1", "another")
	if err := repo.SaveAnalysis(ctx, other, &model.AnalysisResult{Emotion: "fear", Alert: true}); err != nil {
		t.Fatalf("SaveAnalysis failed: %v", err)
	}
	if c := nextChange(t, sub); c.Type != ChangeAdded || c.Entry.ID != other {
		t.Fatalf("stale state was delivered: got %s %s, want added %s", c.Type, c.Entry.ID, other)
	}
}

func TestWritesBumpVersion(t *testing.T) {
	repo := newTestJournalRepo(t)
	ctx := context.Background()
	id := mustCreate(t, repo, "u1", "alarming")

	steps := []struct {
		name  string
		write func() error
	}{
		{"analysis", func() error {
			return repo.SaveAnalysis(ctx, id, &model.AnalysisResult{Emotion: "sadness", Alert: true})
		}},
		{"acknowledge", func() error { return repo.Acknowledge(ctx, id) }},
		{"resolve", func() error { return repo.Resolve(ctx, id) }},
	}
	for i, step := range steps {
		if err := step.write(); err != nil {
			t.Fatalf("%s failed: %v", step.name, err)
		}
		got, err := repo.FindByID(ctx, id)
		if err != nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		if want := int64(i + 2); got.Version != want {
			t.Errorf("after %s version = %d, want %d", step.name, got.Version, want)
		}
	}

	// 条件不满足的写不改变版本。
	if err := repo.Resolve(ctx, id); err == nil {
		t.Fatal("second resolve must fail")
	}
	if got, _ := repo.FindByID(ctx, id); got.Version != 4 {
		t.Errorf("failed write changed version to %d", got.Version)
	}
}
