package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"mindscribe-go/internal/alert"
	"mindscribe-go/internal/model"
	"mindscribe-go/internal/repository"
)

func TestActiveAlertsAcrossChunks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "th1", model.RoleTherapist, "")
	for i := 0; i < repository.MaxInFilter+5; i++ {
		f.addUser(t, fmt.Sprintf("p%02d", i), model.RoleUser, "th1")
	}
	svc := NewRosterService(f.journals, f.users)

	patients, err := svc.PatientsOf(ctx, "th1")
	if err != nil {
		t.Fatalf("PatientsOf failed: %v", err)
	}
	if len(patients) != repository.MaxInFilter+5 {
		t.Fatalf("expected %d patients, got %d", repository.MaxInFilter+5, len(patients))
	}

	// p00 is in the first chunk, p34 in the second.
	older := f.addEntry(t, "p00", "older alert")
	f.analyze(t, older.ID, "sadness", true)
	newer := f.addEntry(t, "p34", "newer alert")
	f.analyze(t, newer.ID, "fear", true)
	done := f.addEntry(t, "p01", "resolved alert")
	f.analyze(t, done.ID, "anger", true)
	if err := f.journals.Acknowledge(ctx, done.ID); err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}
	if err := f.journals.Resolve(ctx, done.ID); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	calm := f.addEntry(t, "p02", "calm")
	f.analyze(t, calm.ID, "joy", false)
	f.addEntry(t, "outsider", "not a patient")

	if err := f.journals.Acknowledge(ctx, newer.ID); err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}

	items, err := svc.ActiveAlerts(ctx, patients)
	if err != nil {
		t.Fatalf("ActiveAlerts failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 active alerts, got %d: %+v", len(items), items)
	}
	if items[0].Entry.ID != newer.ID || items[1].Entry.ID != older.ID {
		t.Errorf("alerts not newest first: %s, %s", items[0].Entry.ID, items[1].Entry.ID)
	}
	if items[0].PatientName != "Name p34" || items[0].State != alert.Acknowledged || items[0].Urgency != alert.UrgencyMedium {
		t.Errorf("unexpected first item: %+v", items[0])
	}
	if items[1].State != alert.Unacknowledged || items[1].Urgency != alert.UrgencyHigh {
		t.Errorf("unexpected second item: %+v", items[1])
	}
}

func TestPatientAccess(t *testing.T) {
	f := newFixture(t)
	therapist := f.addUser(t, "th1", model.RoleTherapist, "")
	other := f.addUser(t, "th2", model.RoleTherapist, "")
	f.addUser(t, "p1", model.RoleUser, "th1")
	f.addEntry(t, "p1", "one")
	f.addEntry(t, "p1", "two")
	svc := NewRosterService(f.journals, f.users)
	ctx := context.Background()

	if _, err := svc.Patient(ctx, other, "p1"); !errors.Is(err, ErrNotAssigned) {
		t.Errorf("expected ErrNotAssigned, got %v", err)
	}
	patient, err := svc.Patient(ctx, therapist, "p1")
	if err != nil || patient.UID != "p1" {
		t.Fatalf("Patient failed: %+v, %v", patient, err)
	}
	entries, err := svc.PatientJournals(ctx, therapist, "p1", 1)
	if err != nil {
		t.Fatalf("PatientJournals failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Content != "two" {
		t.Errorf("expected the newest entry only, got %+v", entries)
	}
}

func recv(t *testing.T, ch <-chan repository.Change) repository.Change {
	t.Helper()
	select {
	case c, ok := <-ch:
		if !ok {
			t.Fatal("feed closed unexpectedly")
		}
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change")
	}
	return repository.Change{}
}

func TestAlertFeedDeltas(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "th1", model.RoleTherapist, "")
	f.addUser(t, "p1", model.RoleUser, "th1")
	svc := NewRosterService(f.journals, f.users)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed, err := svc.AlertFeed(ctx, []string{"p1"})
	if err != nil {
		t.Fatalf("AlertFeed failed: %v", err)
	}

	entry := f.addEntry(t, "p1", "dark thoughts")
	f.analyze(t, entry.ID, "sadness", true)
	if c := recv(t, feed); c.Type != repository.ChangeAdded || c.Entry.ID != entry.ID {
		t.Fatalf("expected added, got %+v", c)
	}

	if err := f.journals.Acknowledge(context.Background(), entry.ID); err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}
	if c := recv(t, feed); c.Type != repository.ChangeModified || !c.Entry.AlertAcknowledged {
		t.Fatalf("expected modified, got %+v", c)
	}

	if err := f.journals.Resolve(context.Background(), entry.ID); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if c := recv(t, feed); c.Type != repository.ChangeRemoved {
		t.Fatalf("expected removed, got %+v", c)
	}

	cancel()
	select {
	case _, ok := <-feed:
		if ok {
			t.Error("expected feed to be closed after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Error("feed not closed after cancel")
	}
}

func TestUnanalyzedIntakeWithoutPatients(t *testing.T) {
	f := newFixture(t)
	svc := NewRosterService(f.journals, f.users)

	ctx, cancel := context.WithCancel(context.Background())
	feed, err := svc.UnanalyzedIntake(ctx, nil)
	if err != nil {
		t.Fatalf("UnanalyzedIntake failed: %v", err)
	}
	select {
	case <-feed:
		t.Fatal("feed should stay open while the session is alive")
	case <-time.After(50 * time.Millisecond):
	}
	cancel()
	select {
	case _, ok := <-feed:
		if ok {
			t.Error("expected closed feed")
		}
	case <-time.After(2 * time.Second):
		t.Error("feed not closed after cancel")
	}
}

func TestUnanalyzedIntakeFeedUnavailable(t *testing.T) {
	f := newFixture(t)
	svc := NewRosterService(repository.NewJournalRepository(f.db, nil), f.users)
	if _, err := svc.UnanalyzedIntake(context.Background(), []string{"p1"}); !errors.Is(err, ErrQueryFailure) {
		t.Errorf("expected ErrQueryFailure, got %v", err)
	}
}
