package service

import (
	"time"

	"go.uber.org/zap"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/storage"
)

// AdminService 后台管理操作。
type AdminService struct {
	store storage.Store
	subs  *SubscriptionService
	log   *zap.Logger
}

// NewAdminService 创建管理服务。
func NewAdminService(store storage.Store, subs *SubscriptionService, log *zap.Logger) *AdminService {
	return &AdminService{store: store, subs: subs, log: log}
}

// ListUsers 分页列出用户，支持按邮箱/用户名模糊搜索。
func (s *AdminService) ListUsers(page, pageSize int, search string) ([]domain.User, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.store.ListUsers(page, pageSize, search)
}

// Statistics 返回系统总览统计。
func (s *AdminService) Statistics() (*domain.SystemStatistics, error) {
	return s.store.GetSystemStatistics()
}

// SetUserActive 启用或禁用用户。禁用立即生效于后续请求，
// 已签发的令牌在校验用户状态的路径上被拦下。
func (s *AdminService) SetUserActive(userID string, active bool) (*domain.User, error) {
	user, err := s.store.GetUserByID(userID)
	if err != nil {
		return nil, err
	}
	user.IsActive = active
	user.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateUser(user); err != nil {
		return nil, err
	}
	s.log.Info("user active flag changed",
		zap.String("user_id", userID),
		zap.Bool("active", active),
	)
	return user, nil
}

// ChangeUserPlan 管理员直接调整用户套餐，不经过支付。
func (s *AdminService) ChangeUserPlan(userID string, tier domain.PlanTier) (*domain.Subscription, error) {
	if _, err := s.store.GetUserByID(userID); err != nil {
		return nil, err
	}
	return s.subs.ChangePlan(userID, tier)
}
