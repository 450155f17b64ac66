package service

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mindscribe-go/internal/model"
	"mindscribe-go/internal/repository"
)

type fixture struct {
	db       *gorm.DB
	rdb      *redis.Client
	mr       *miniredis.Miniredis
	users    repository.UserRepository
	journals repository.JournalRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(&model.User{}, &model.JournalEntry{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return &fixture{
		db:       db,
		rdb:      rdb,
		mr:       mr,
		users:    repository.NewUserRepository(db),
		journals: repository.NewJournalRepository(db, rdb),
	}
}

func (f *fixture) addUser(t *testing.T, uid, role, therapist string) *model.User {
	t.Helper()
	u := &model.User{
		UID:      uid,
		Name:     "Name " + uid,
		Email:    fmt.Sprintf("%s@example.com", uid),
		Password: "x",
		Role:     role,
	}
	if therapist != "" {
		tid := therapist
		u.AssignedTherapist = &tid
	}
	if err := f.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", uid, err)
	}
	return u
}

func (f *fixture) addEntry(t *testing.T, owner, content string) *model.JournalEntry {
	t.Helper()
	e := &model.JournalEntry{UserID: owner, Title: "t", Content: content}
	if _, err := f.journals.Create(context.Background(), e); err != nil {
		t.Fatalf("create entry: %v", err)
	}
	return e
}

func (f *fixture) analyze(t *testing.T, id string, emotion string, alert bool, keywords ...string) {
	t.Helper()
	res := &model.AnalysisResult{Summary: "s", Emotion: emotion, Alert: alert, Keywords: keywords}
	if err := f.journals.SaveAnalysis(context.Background(), id, res); err != nil {
		t.Fatalf("save analysis: %v", err)
	}
}
