package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/storage"
)

var (
	// ErrInvalidTier 未知的套餐名
	ErrInvalidTier = errors.New("invalid plan tier")
)

// SubscriptionService 管理用户套餐与月度用量。
//
// 订阅行在首次读取时惰性创建为 free；月度计数在跨自然月后的
// 首次访问时惰性归零，没有任何定时任务参与。
type SubscriptionService struct {
	store storage.SubscriptionRepository
	log   *zap.Logger
	now   func() time.Time
}

// NewSubscriptionService 创建订阅服务。
func NewSubscriptionService(store storage.SubscriptionRepository, log *zap.Logger) *SubscriptionService {
	return &SubscriptionService{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// SetClock 注入时钟，仅测试使用。
func (s *SubscriptionService) SetClock(now func() time.Time) {
	s.now = now
}

// GetOrCreate 获取用户订阅，不存在时创建默认 free 订阅。
// 返回前完成惰性月度重置。
func (s *SubscriptionService) GetOrCreate(userID string) (*domain.Subscription, error) {
	sub, err := s.store.GetSubscriptionByUserID(userID)
	if errors.Is(err, storage.ErrSubscriptionNotFound) {
		now := s.now().UTC()
		sub = &domain.Subscription{
			ID:          uuid.NewString(),
			UserID:      userID,
			PlanTier:    domain.TierFree,
			LastResetAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.store.SaveSubscription(sub); err != nil {
			return nil, fmt.Errorf("create default subscription: %w", err)
		}
		return sub, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.rollover(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// CurrentTier 返回身份对应的当前套餐；匿名身份固定为 anonymous。
func (s *SubscriptionService) CurrentTier(identity domain.Identity) (domain.PlanTier, error) {
	if !identity.IsAuthenticated() {
		return domain.TierAnonymous, nil
	}
	sub, err := s.GetOrCreate(*identity.UserID)
	if err != nil {
		return "", err
	}
	return sub.PlanTier, nil
}

// ConsumeCustomEmail 尝试消耗一次月度自定义邮箱额度。
//
// 额度不足是预期内的业务结果，以 QuotaDecision 返回而不是 error。
func (s *SubscriptionService) ConsumeCustomEmail(userID string) (domain.QuotaDecision, error) {
	sub, err := s.GetOrCreate(userID)
	if err != nil {
		return domain.QuotaDecision{}, err
	}

	limits := domain.LimitsFor(sub.PlanTier)
	decision := domain.QuotaDecision{
		Used:  sub.CustomEmailsUsed,
		Limit: limits.MonthlyCustomEmails,
	}
	if sub.CustomEmailsUsed >= limits.MonthlyCustomEmails {
		return decision, nil
	}

	sub.CustomEmailsUsed++
	sub.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateSubscription(sub); err != nil {
		return domain.QuotaDecision{}, fmt.Errorf("consume custom email quota: %w", err)
	}

	decision.Allowed = true
	decision.Used = sub.CustomEmailsUsed
	decision.Remaining = limits.MonthlyCustomEmails - sub.CustomEmailsUsed
	return decision, nil
}

// ConsumeCustomDomain 尝试消耗一次月度自有域名额度。
func (s *SubscriptionService) ConsumeCustomDomain(userID string) (domain.QuotaDecision, error) {
	sub, err := s.GetOrCreate(userID)
	if err != nil {
		return domain.QuotaDecision{}, err
	}

	limits := domain.LimitsFor(sub.PlanTier)
	decision := domain.QuotaDecision{
		Used:  sub.CustomDomainsUsed,
		Limit: limits.MonthlyCustomDomains,
	}
	if sub.CustomDomainsUsed >= limits.MonthlyCustomDomains {
		return decision, nil
	}

	sub.CustomDomainsUsed++
	sub.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateSubscription(sub); err != nil {
		return domain.QuotaDecision{}, fmt.Errorf("consume custom domain quota: %w", err)
	}

	decision.Allowed = true
	decision.Used = sub.CustomDomainsUsed
	decision.Remaining = limits.MonthlyCustomDomains - sub.CustomDomainsUsed
	return decision, nil
}

// ChangePlan 切换用户套餐。
//
// 只影响之后新建或续期的邮箱，已有邮箱保留创建时的套餐快照。
func (s *SubscriptionService) ChangePlan(userID string, tier domain.PlanTier) (*domain.Subscription, error) {
	if !domain.ValidTier(tier) {
		return nil, ErrInvalidTier
	}
	sub, err := s.GetOrCreate(userID)
	if err != nil {
		return nil, err
	}

	previous := sub.PlanTier
	sub.PlanTier = tier
	sub.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateSubscription(sub); err != nil {
		return nil, fmt.Errorf("change plan: %w", err)
	}

	s.log.Info("plan changed",
		zap.String("user_id", userID),
		zap.String("from", string(previous)),
		zap.String("to", string(tier)),
	)
	return sub, nil
}

// rollover 跨自然月后归零月度计数（惰性重置）。
func (s *SubscriptionService) rollover(sub *domain.Subscription) error {
	now := s.now().UTC()
	if !sub.NeedsMonthlyReset(now) {
		return nil
	}
	sub.ResetMonthlyUsage(now)
	sub.UpdatedAt = now
	if err := s.store.UpdateSubscription(sub); err != nil {
		return fmt.Errorf("monthly usage reset: %w", err)
	}
	s.log.Debug("monthly usage reset", zap.String("user_id", sub.UserID))
	return nil
}
