package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mindscribe-go/internal/service"
	"mindscribe-go/pkg/log"
)

// UserHandler 负责处理所有与用户相关的 API 请求。
type UserHandler struct {
	userService service.UserService
}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler(userService service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// RegisterRequest 定义了用户注册 API 的请求体结构。
type RegisterRequest struct {
	Name              string `json:"name" binding:"required"`
	Email             string `json:"email" binding:"required,email"`
	Password          string `json:"password" binding:"required,min=6"`
	Role              string `json:"role"`
	AssignedTherapist string `json:"assignedTherapist"`
}

// Register 处理用户注册请求。
func (h *UserHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Register: Invalid request payload, error: %v", err)
		fail(c, http.StatusBadRequest, "invalid request payload: name, email and a password of at least 6 characters are required")
		return
	}

	user, err := h.userService.Register(c.Request.Context(), service.RegisterInput{
		Name:              req.Name,
		Email:             req.Email,
		Password:          req.Password,
		Role:              req.Role,
		AssignedTherapist: req.AssignedTherapist,
	})
	if err != nil {
		writeError(c, "Register", err)
		return
	}

	log.Infof("User '%s' registered successfully, role: %s", user.UID, user.Role)
	success(c, "User registered successfully", user)
}

// LoginRequest 定义了用户登录 API 的请求体结构。
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 处理用户登录请求。
func (h *UserHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Login: Invalid request payload, error: %v", err)
		fail(c, http.StatusBadRequest, "invalid request payload: email and password are required")
		return
	}

	accessToken, refreshToken, user, err := h.userService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, "Login", err)
		return
	}

	log.Infof("User '%s' logged in successfully", user.UID)
	success(c, "Login successful", gin.H{
		"token":        accessToken,
		"refreshToken": refreshToken,
		"user":         user,
	})
}

// GetProfile 获取当前登录用户的个人信息，用户已由 AuthMiddleware 解析。
func (h *UserHandler) GetProfile(c *gin.Context) {
	sc, ok := currentSession(c)
	if !ok {
		return
	}
	success(c, "success", sc.User)
}

// LogoutRequest 定义了登出 API 的请求体结构。
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Logout 处理用户登出逻辑，同时结束该用户的所有推送会话。
func (h *UserHandler) Logout(c *gin.Context) {
	sc, ok := currentSession(c)
	if !ok {
		return
	}
	// refreshToken 可选，提交时一并吊销。
	var req LogoutRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			log.Warnf("Logout: Invalid request payload, error: %v", err)
			fail(c, http.StatusBadRequest, "invalid request payload")
			return
		}
	}
	if err := h.userService.Logout(c.Request.Context(), sc, req.RefreshToken); err != nil {
		log.Error("Logout: Failed to logout", err)
		fail(c, http.StatusInternalServerError, "logout failed")
		return
	}
	log.Infof("User '%s' logged out successfully", sc.UID())
	success(c, "Logout successful", nil)
}

// ListTherapists 返回注册时可选的治疗师。
func (h *UserHandler) ListTherapists(c *gin.Context) {
	therapists, err := h.userService.ListTherapists(c.Request.Context())
	writeList(c, "ListTherapists", therapists, err)
}
