package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/storage"
)

const (
	// RateWindow 生成限流的滑动回看窗口。
	RateWindow = time.Hour
	// generationRecordTTL 生成记录自身的附带 TTL，与限流窗口无关。
	generationRecordTTL = 10 * time.Minute
	// GenerationRetention 记录的实际保留时长（窗口 + 余量），
	// 回收任务按这个值删除，保证窗口内计数永远完整。
	GenerationRetention = RateWindow + 10*time.Minute
)

// RateLimitService 邮箱生成的准入控制。
//
// 限流独立于邮箱生命周期：邮箱被删除后计数仍然成立，
// 所以每次判定都从持久化的时间戳重新计数，而不是令牌桶。
type RateLimitService struct {
	store storage.GenerationRepository
	log   *zap.Logger
	now   func() time.Time
}

// NewRateLimitService 创建限流服务。
func NewRateLimitService(store storage.GenerationRepository, log *zap.Logger) *RateLimitService {
	return &RateLimitService{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// SetClock 注入时钟，仅测试使用。
func (s *RateLimitService) SetClock(now func() time.Time) {
	s.now = now
}

// CanGenerate 判定给定身份当前能否再生成一个邮箱。
//
// 拒绝时 ResetAt 取窗口内最早一条记录的时间 + 1 小时：窗口随
// 记录逐条老化向前滑动，而不是整批同时重置。存储错误原样上抛，
// 绝不在出错时放行。
func (s *RateLimitService) CanGenerate(ctx context.Context, identity domain.Identity, tier domain.PlanTier) (domain.GenerationDecision, error) {
	limits := domain.LimitsFor(tier)
	now := s.now().UTC()
	since := now.Add(-RateWindow)
	key := identity.Key()

	count, err := s.store.CountGenerations(key, tier, since)
	if err != nil {
		return domain.GenerationDecision{}, fmt.Errorf("count generations: %w", err)
	}

	decision := domain.GenerationDecision{
		CurrentLimit: limits.HourlyGenerationLimit,
	}

	if count >= limits.HourlyGenerationLimit {
		oldest, err := s.store.OldestGeneration(key, tier, since)
		if err != nil {
			return domain.GenerationDecision{}, fmt.Errorf("oldest generation: %w", err)
		}
		if oldest != nil {
			resetAt := oldest.GeneratedAt.Add(RateWindow)
			decision.ResetAt = &resetAt
		}
		// 匿名用户被拒时提示注册，换取更高的小时额度
		decision.RequiresAuth = tier == domain.TierAnonymous

		s.log.Debug("generation denied by rate limit",
			zap.String("identity", key),
			zap.String("tier", string(tier)),
			zap.Int("count", count),
			zap.Int("limit", limits.HourlyGenerationLimit),
		)
		return decision, nil
	}

	decision.Allowed = true
	decision.Remaining = limits.HourlyGenerationLimit - count
	return decision, nil
}

// RecordGeneration 无条件写入一条生成记录。
//
// 只能在邮箱确实创建成功之后调用；判定、创建、记录是三个
// 独立的存储操作，之间没有原子性（并发窗口见存储层注释）。
func (s *RateLimitService) RecordGeneration(ctx context.Context, identity domain.Identity, tier domain.PlanTier, address string) error {
	now := s.now().UTC()
	record := &domain.GenerationRecord{
		ID:          uuid.NewString(),
		IdentityKey: identity.Key(),
		PlanTier:    tier,
		Address:     address,
		GeneratedAt: now,
		ExpiresAt:   now.Add(generationRecordTTL),
	}
	if err := s.store.SaveGeneration(record); err != nil {
		return fmt.Errorf("save generation record: %w", err)
	}
	return nil
}

// ReapExpired 回收窗口外的生成记录，返回删除数量。
//
// 与邮箱清理任务解耦：生成计数必须比它对应的邮箱活得更久。
func (s *RateLimitService) ReapExpired(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-GenerationRetention)
	count, err := s.store.DeleteGenerationsBefore(cutoff)
	if err != nil {
		return 0, fmt.Errorf("reap generation records: %w", err)
	}
	return count, nil
}
