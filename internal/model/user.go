// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 用户角色。
const (
	RoleUser      = "user"
	RoleTherapist = "therapist"
)

// User 定义了 users 表的 ORM 模型。
// Role 与 AssignedTherapist 在注册时确定，之后不再修改。
type User struct {
	UID               string    `gorm:"column:uid;type:varchar(36);primaryKey" json:"uid"`
	Name              string    `gorm:"type:varchar(100);not null" json:"name"`
	Email             string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"email"`
	Password          string    `gorm:"type:varchar(255);not null" json:"-"`
	Role              string    `gorm:"type:varchar(16);not null;default:'user'" json:"role"`
	AssignedTherapist *string   `gorm:"type:varchar(36);index" json:"assignedTherapist,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (User) TableName() string {
	return "users"
}

// IsTherapist 判断用户是否为治疗师。
func (u *User) IsTherapist() bool {
	return u != nil && u.Role == RoleTherapist
}

// TherapistID 返回用户被分配的治疗师 uid，未分配时返回空字符串。
func (u *User) TherapistID() string {
	if u == nil || u.AssignedTherapist == nil {
		return ""
	}
	return *u.AssignedTherapist
}
