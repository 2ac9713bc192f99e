package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"tempinbox/backend/internal/auth/jwt"
	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/storage"
)

var (
	// ErrInvalidCredentials 凭证无效
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserInactive 用户已被禁用
	ErrUserInactive = errors.New("user is inactive")
	// ErrTokenRevoked 令牌已被注销
	ErrTokenRevoked = errors.New("token revoked")
)

// Service 注册、登录与令牌生命周期。
//
// 密码使用 bcrypt 默认成本哈希；登出把令牌 jti 写入黑名单，
// TTL 取刷新令牌的剩余有效期。
type Service struct {
	users     storage.UserRepository
	blacklist storage.JWTRepository
	tokens    *jwt.Manager
	validator *domain.EmailValidator
	log       *zap.Logger
}

// NewService 创建认证服务。
func NewService(users storage.UserRepository, blacklist storage.JWTRepository, tokens *jwt.Manager, log *zap.Logger) *Service {
	return &Service{
		users:     users,
		blacklist: blacklist,
		tokens:    tokens,
		validator: domain.NewEmailValidator(),
		log:       log,
	}
}

// RegisterInput 注册输入
type RegisterInput struct {
	Email    string
	Password string
	Username string
}

// Register 用户注册，返回用户与首对令牌。
func (s *Service) Register(input RegisterInput) (*domain.User, *jwt.TokenPair, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if err := s.validator.ValidateEmail(email); err != nil {
		return nil, nil, err
	}
	if err := domain.ValidatePassword(input.Password); err != nil {
		return nil, nil, err
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     strings.TrimSpace(input.Username),
		PasswordHash: hash,
		Role:         domain.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(user); err != nil {
		return nil, nil, err
	}

	pair, err := s.tokens.GenerateTokenPair(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, nil, fmt.Errorf("issue tokens: %w", err)
	}

	s.log.Info("user registered", zap.String("user_id", user.ID))
	return user, pair, nil
}

// Login 用户登录。
//
// 邮箱不存在和密码错误返回同一个错误，不泄露账号是否存在。
func (s *Service) Login(email, password string) (*domain.User, *jwt.TokenPair, error) {
	user, err := s.users.GetUserByEmail(strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, nil, ErrUserInactive
	}
	if !CheckPassword(password, user.PasswordHash) {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.tokens.GenerateTokenPair(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, nil, fmt.Errorf("issue tokens: %w", err)
	}

	_ = s.users.UpdateLastLogin(user.ID)
	s.log.Info("user logged in", zap.String("user_id", user.ID))
	return user, pair, nil
}

// Validate 验证访问令牌，含黑名单检查。
func (s *Service) Validate(tokenString string) (*jwt.Claims, error) {
	claims, err := s.tokens.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	revoked, err := s.blacklist.IsBlacklisted(claims.ID)
	if err != nil {
		return nil, fmt.Errorf("blacklist lookup: %w", err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Refresh 用刷新令牌换新的访问令牌。
func (s *Service) Refresh(refreshToken string) (string, error) {
	claims, err := s.tokens.ValidateToken(refreshToken)
	if err != nil {
		return "", err
	}
	revoked, err := s.blacklist.IsBlacklisted(claims.ID)
	if err != nil {
		return "", fmt.Errorf("blacklist lookup: %w", err)
	}
	if revoked {
		return "", ErrTokenRevoked
	}
	return s.tokens.RefreshAccessToken(refreshToken)
}

// Logout 注销一对令牌。
func (s *Service) Logout(accessToken, refreshToken string) error {
	for _, token := range []string{accessToken, refreshToken} {
		if token == "" {
			continue
		}
		claims, err := s.tokens.ValidateToken(token)
		if err != nil {
			continue // 已过期或无效的令牌不需要进黑名单
		}
		ttl := time.Until(claims.ExpiresAt.Time)
		if ttl <= 0 {
			continue
		}
		if err := s.blacklist.AddToBlacklist(claims.ID, ttl); err != nil {
			return fmt.Errorf("blacklist token: %w", err)
		}
	}
	return nil
}

// GetUser 根据 ID 获取用户。
func (s *Service) GetUser(userID string) (*domain.User, error) {
	return s.users.GetUserByID(userID)
}

// ChangePassword 修改密码。
func (s *Service) ChangePassword(userID, oldPassword, newPassword string) error {
	user, err := s.users.GetUserByID(userID)
	if err != nil {
		return err
	}
	if !CheckPassword(oldPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	if err := domain.ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = hash
	user.UpdatedAt = time.Now().UTC()
	return s.users.UpdateUser(user)
}

// HashPassword 哈希密码
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword 检查密码是否匹配
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
