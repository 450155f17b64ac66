// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"

	"gorm.io/gorm"

	"mindscribe-go/internal/model"
)

// UserRepository 接口定义了用户数据的持久化操作。
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByUID(ctx context.Context, uid string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByAssignedTherapist(ctx context.Context, therapistID string) ([]model.User, error)
	FindBatchByUIDs(ctx context.Context, uids []string) ([]model.User, error)
	FindTherapists(ctx context.Context) ([]model.User, error)
}

// userRepository 是 UserRepository 接口的 GORM 实现。
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建一个新的 UserRepository 实例。
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create 在数据库中创建一个新的用户记录。
func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// FindByUID 根据 uid 从数据库中查找一个用户。
func (r *userRepository) FindByUID(ctx context.Context, uid string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("uid = ?", uid).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmail 根据邮箱从数据库中查找一个用户。
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByAssignedTherapist 查找分配给某位治疗师的所有用户，按姓名排序。
func (r *userRepository) FindByAssignedTherapist(ctx context.Context, therapistID string) ([]model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).
		Where("assigned_therapist = ? AND role = ?", therapistID, model.RoleUser).
		Order("name ASC").
		Find(&users).Error
	return users, err
}

// FindBatchByUIDs 根据一组 uid 批量查找用户。
func (r *userRepository) FindBatchByUIDs(ctx context.Context, uids []string) ([]model.User, error) {
	var users []model.User
	if len(uids) == 0 {
		return users, nil
	}
	err := r.db.WithContext(ctx).Where("uid IN ?", uids).Find(&users).Error
	return users, err
}

// FindTherapists 返回所有治疗师，供注册时选择。
func (r *userRepository) FindTherapists(ctx context.Context) ([]model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).Where("role = ?", model.RoleTherapist).Order("name ASC").Find(&users).Error
	return users, err
}
