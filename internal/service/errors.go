// Package service 包含了应用的业务逻辑层。
package service

import "errors"

var (
	// ErrProfileMissing 表示 token 有效但找不到对应的用户资料，需要重新登录。
	ErrProfileMissing = errors.New("user profile not found, please sign in again")
	// ErrQueryFailure 包装存储查询或订阅失败，列表接口降级为空结果。
	ErrQueryFailure = errors.New("query failed")
	// ErrNotAssigned 表示治疗师不是该日记作者的指定治疗师。
	ErrNotAssigned = errors.New("therapist is not assigned to this patient")
	// ErrEntryNotFound 表示日记不存在或当前用户无权查看。
	ErrEntryNotFound = errors.New("journal entry not found")
	// ErrInvalidTherapist 表示注册时指定的治疗师不存在或不是治疗师。
	ErrInvalidTherapist = errors.New("assigned therapist is not a registered therapist")
	// ErrNotTherapist 表示操作只允许治疗师执行。
	ErrNotTherapist = errors.New("only therapists can perform this action")
	// ErrInvalidRole 表示注册角色不合法，或治疗师携带了指定治疗师。
	ErrInvalidRole = errors.New("invalid role")
	// ErrEmailTaken 表示邮箱已被注册。
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials 表示邮箱或密码错误。
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenRevoked 表示 token 已登出。
	ErrTokenRevoked = errors.New("token has been revoked")
	// ErrFeatureDisabled 表示可选的外部组件（搜索、导出）未启用。
	ErrFeatureDisabled = errors.New("feature is not enabled")
)
