package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"mindscribe-go/internal/model"
	"mindscribe-go/internal/repository"
	"mindscribe-go/internal/session"
	"mindscribe-go/pkg/hash"
	"mindscribe-go/pkg/log"
	"mindscribe-go/pkg/token"
)

// RegisterInput 是注册所需的信息。
type RegisterInput struct {
	Name              string
	Email             string
	Password          string
	Role              string
	AssignedTherapist string
}

// UserService 接口定义了所有与用户相关的业务操作。
type UserService interface {
	Register(ctx context.Context, in RegisterInput) (*model.User, error)
	Login(ctx context.Context, email, password string) (accessToken, refreshToken string, user *model.User, err error)
	GetProfile(ctx context.Context, uid string) (*model.User, error)
	Logout(ctx context.Context, sc *session.Context, refreshToken string) error
	IsTokenRevoked(ctx context.Context, tokenString string) (bool, error)
	RefreshToken(ctx context.Context, refreshTokenString string) (newAccessToken, newRefreshToken string, err error)
	ListTherapists(ctx context.Context) ([]model.User, error)
	RosterJoins(ctx context.Context, therapistID string) (<-chan string, error)
}

// userService 是 UserService 接口的实现。
type userService struct {
	userRepo    repository.UserRepository
	jwtManager  *token.JWTManager
	redisClient *redis.Client
	sessions    *session.Manager
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(userRepo repository.UserRepository, jwtManager *token.JWTManager, redisClient *redis.Client, sessions *session.Manager) UserService {
	return &userService{
		userRepo:    userRepo,
		jwtManager:  jwtManager,
		redisClient: redisClient,
		sessions:    sessions,
	}
}

func blacklistKey(tokenString string) string {
	return "blacklist:" + tokenString
}

// rosterChannel 是治疗师名下新病人通知的 Redis 频道，消息内容为病人 uid。
func rosterChannel(therapistID string) string {
	return "roster:joins:" + therapistID
}

// Register 处理用户注册的业务逻辑。
func (s *userService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	role := in.Role
	if role == "" {
		role = model.RoleUser
	}
	if role != model.RoleUser && role != model.RoleTherapist {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if role == model.RoleTherapist && in.AssignedTherapist != "" {
		return nil, fmt.Errorf("%w: therapists cannot have an assigned therapist", ErrInvalidRole)
	}

	// 1. 检查邮箱是否已存在
	_, err := s.userRepo.FindByEmail(ctx, email)
	if err == nil {
		return nil, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// 2. 校验指定的治疗师
	var assigned *string
	if in.AssignedTherapist != "" {
		therapist, err := s.userRepo.FindByUID(ctx, in.AssignedTherapist)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidTherapist
		}
		if err != nil {
			return nil, err
		}
		if !therapist.IsTherapist() {
			return nil, ErrInvalidTherapist
		}
		tid := therapist.UID
		assigned = &tid
	}

	// 3. 对密码进行哈希处理
	hashedPassword, err := hash.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	newUser := &model.User{
		UID:               uuid.NewString(),
		Name:              strings.TrimSpace(in.Name),
		Email:             email,
		Password:          hashedPassword,
		Role:              role,
		AssignedTherapist: assigned,
	}
	if err := s.userRepo.Create(ctx, newUser); err != nil {
		log.Errorf("[UserService] 创建用户失败, email: %s, error: %v", email, err)
		return nil, fmt.Errorf("创建用户失败: %w", err)
	}
	if assigned != nil && s.redisClient != nil {
		if err := s.redisClient.Publish(ctx, rosterChannel(*assigned), newUser.UID).Err(); err != nil {
			log.Warnf("[UserService] 发布新病人通知失败, Therapist: %s, UserID: %s, error: %v", *assigned, newUser.UID, err)
		}
	}
	return newUser, nil
}

// Login 处理用户登录的业务逻辑。
func (s *userService) Login(ctx context.Context, email, password string) (string, string, *model.User, error) {
	user, err := s.userRepo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", nil, ErrInvalidCredentials
		}
		return "", "", nil, err
	}
	if !hash.CheckPasswordHash(password, user.Password) {
		return "", "", nil, ErrInvalidCredentials
	}

	accessToken, err := s.jwtManager.GenerateToken(user.UID, user.Email, user.Role)
	if err != nil {
		return "", "", nil, err
	}
	refreshToken, err := s.jwtManager.GenerateRefreshToken(user.UID, user.Email, user.Role)
	if err != nil {
		return "", "", nil, err
	}
	return accessToken, refreshToken, user, nil
}

// GetProfile 根据 uid 获取用户资料，资料缺失时返回 ErrProfileMissing。
func (s *userService) GetProfile(ctx context.Context, uid string) (*model.User, error) {
	user, err := s.userRepo.FindByUID(ctx, uid)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileMissing
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// revoke 把 token 加入黑名单，token 的剩余有效期作为 Redis key 的过期时间。
func (s *userService) revoke(ctx context.Context, tokenString string, expiresAt time.Time) error {
	expiration := time.Until(expiresAt)
	if expiration <= 0 || s.redisClient == nil {
		return nil
	}
	return s.redisClient.Set(ctx, blacklistKey(tokenString), "true", expiration).Err()
}

// Logout 将 access token 与客户端提交的 refresh token 加入 Redis 黑名单，并结束该用户的所有会话。
// refresh token 无效或不属于当前用户时只记录警告。
func (s *userService) Logout(ctx context.Context, sc *session.Context, refreshToken string) error {
	if sc == nil || sc.Claims == nil {
		return errors.New("missing session")
	}
	if err := s.revoke(ctx, sc.Token, sc.Claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}
	if refreshToken != "" {
		claims, err := s.jwtManager.VerifyRefreshToken(refreshToken)
		switch {
		case err != nil:
			log.Warnf("[UserService] 登出时提交的 refresh token 无效, UserID: %s, error: %v", sc.UID(), err)
		case claims.UserID != sc.UID():
			log.Warnf("[UserService] 登出时提交的 refresh token 属于其他用户, UserID: %s", sc.UID())
		default:
			if err := s.revoke(ctx, refreshToken, claims.ExpiresAt.Time); err != nil {
				return fmt.Errorf("blacklist refresh token: %w", err)
			}
		}
	}
	if s.sessions != nil {
		s.sessions.End(sc.UID())
	}
	return nil
}

// IsTokenRevoked 检查 token 是否在黑名单中。
func (s *userService) IsTokenRevoked(ctx context.Context, tokenString string) (bool, error) {
	if s.redisClient == nil {
		return false, nil
	}
	n, err := s.redisClient.Exists(ctx, blacklistKey(tokenString)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RefreshToken 验证 refresh token 并签发新的 access token 和 refresh token。
func (s *userService) RefreshToken(ctx context.Context, refreshTokenString string) (string, string, error) {
	claims, err := s.jwtManager.VerifyRefreshToken(refreshTokenString)
	if err != nil {
		return "", "", errors.New("invalid refresh token")
	}
	if revoked, err := s.IsTokenRevoked(ctx, refreshTokenString); err == nil && revoked {
		return "", "", ErrTokenRevoked
	}

	user, err := s.GetProfile(ctx, claims.UserID)
	if err != nil {
		return "", "", err
	}

	newAccessToken, err := s.jwtManager.GenerateToken(user.UID, user.Email, user.Role)
	if err != nil {
		return "", "", err
	}
	newRefreshToken, err := s.jwtManager.GenerateRefreshToken(user.UID, user.Email, user.Role)
	if err != nil {
		return "", "", err
	}
	return newAccessToken, newRefreshToken, nil
}

// ListTherapists 返回可供选择的治疗师列表。
func (s *userService) ListTherapists(ctx context.Context) ([]model.User, error) {
	therapists, err := s.userRepo.FindTherapists(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailure, err)
	}
	return therapists, nil
}

// RosterJoins 订阅指定给该治疗师的新注册病人，返回的通道在 ctx 结束后关闭。
func (s *userService) RosterJoins(ctx context.Context, therapistID string) (<-chan string, error) {
	if s.redisClient == nil {
		return nil, repository.ErrFeedUnavailable
	}
	pubsub := s.redisClient.Subscribe(ctx, rosterChannel(therapistID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe roster joins: %w", err)
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
