package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mindscribe-go/internal/model"
	"mindscribe-go/internal/repository"
	"mindscribe-go/pkg/log"
)

// ExportURLExpiry 是导出文件下载链接的有效期。
const ExportURLExpiry = time.Hour

// ObjectStore 是导出所需的对象存储能力，storage.ObjectStore 实现了它。
type ObjectStore interface {
	PutObject(ctx context.Context, objectName string, data []byte, contentType string) error
	PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

// ExportResult 是一次导出的结果。
type ExportResult struct {
	ObjectName string    `json:"objectName"`
	URL        string    `json:"url"`
	Entries    int       `json:"entries"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type exportDocument struct {
	User       model.User           `json:"user"`
	ExportedAt time.Time            `json:"exportedAt"`
	Entries    []model.JournalEntry `json:"entries"`
}

// ExportService 接口定义了日记导出操作。
type ExportService interface {
	Export(ctx context.Context, user *model.User) (*ExportResult, error)
}

type exportService struct {
	entries repository.JournalRepository
	store   ObjectStore
	now     func() time.Time
}

// NewExportService 创建一个新的 ExportService 实例。store 为 nil 时导出返回 ErrFeatureDisabled。
func NewExportService(entries repository.JournalRepository, store ObjectStore) ExportService {
	return &exportService{entries: entries, store: store, now: time.Now}
}

// Export 把用户的全部日记写成 JSON 上传，并返回预签名下载链接。
func (s *exportService) Export(ctx context.Context, user *model.User) (*ExportResult, error) {
	if s.store == nil {
		return nil, ErrFeatureDisabled
	}
	entries, err := s.entries.FindByOwner(ctx, user.UID, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailure, err)
	}

	now := s.now().UTC()
	data, err := json.MarshalIndent(exportDocument{User: *user, ExportedAt: now, Entries: entries}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}

	objectName := fmt.Sprintf("exports/%s/%d.json", user.UID, now.Unix())
	if err := s.store.PutObject(ctx, objectName, data, "application/json"); err != nil {
		log.Errorf("[ExportService] 上传导出文件失败, UserID: %s, error: %v", user.UID, err)
		return nil, err
	}
	url, err := s.store.PresignedURL(ctx, objectName, ExportURLExpiry)
	if err != nil {
		return nil, err
	}
	log.Infof("[ExportService] 导出完成, UserID: %s, 日记数: %d, object: %s", user.UID, len(entries), objectName)
	return &ExportResult{
		ObjectName: objectName,
		URL:        url,
		Entries:    len(entries),
		ExpiresAt:  now.Add(ExportURLExpiry),
	}, nil
}
