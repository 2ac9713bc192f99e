package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tempinbox/backend/internal/dnsprov/cloudflare"
	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/storage"
)

var (
	// ErrCustomDomainNotAllowed 当前套餐不支持绑定自有域名
	ErrCustomDomainNotAllowed = errors.New("custom domain not allowed for current plan")
	// ErrCustomDomainQuotaExceeded 本月自有域名额度已用尽
	ErrCustomDomainQuotaExceeded = errors.New("monthly custom domain quota exceeded")
	// ErrDNSProviderDisabled 未配置 DNS 编排，域名绑定功能关闭
	ErrDNSProviderDisabled = errors.New("dns provider not configured")
)

// DNSProvider 自有域名的 DNS 侧编排。
type DNSProvider interface {
	CreateZone(ctx context.Context, domainName string) (*cloudflare.Zone, error)
	GetZone(ctx context.Context, zoneID string) (*cloudflare.Zone, error)
	EnableEmailRouting(ctx context.Context, zoneID string) error
	CreateCatchAllRule(ctx context.Context, zoneID, workerName string) error
}

// CustomDomainService 自有域名的绑定与激活流程。
//
// 绑定分两步走：Register 建 Zone 并返回 NS，用户改完 NS 后
// 由 Verify 轮询激活状态，激活成功即开邮件路由并配 catch-all。
type CustomDomainService struct {
	store      storage.Store
	subs       *SubscriptionService
	dns        DNSProvider
	workerName string
	validator  *domain.EmailValidator
	log        *zap.Logger
	now        func() time.Time
}

// NewCustomDomainService 创建自有域名服务。
func NewCustomDomainService(store storage.Store, subs *SubscriptionService, dns DNSProvider, workerName string, log *zap.Logger) *CustomDomainService {
	return &CustomDomainService{
		store:      store,
		subs:       subs,
		dns:        dns,
		workerName: workerName,
		validator:  domain.NewEmailValidator(),
		log:        log,
		now:        time.Now,
	}
}

// SetClock 注入时钟，仅测试使用。
func (s *CustomDomainService) SetClock(now func() time.Time) {
	s.now = now
}

// Register 为用户绑定一个自有域名。
//
// 额度在建 Zone 之前扣减；Zone 创建失败不回滚额度（与自定义
// 邮箱同一策略）。返回的 NameServers 需要用户在注册商处配置。
func (s *CustomDomainService) Register(ctx context.Context, userID, domainName string) (*domain.CustomDomain, []string, error) {
	if s.dns == nil {
		return nil, nil, ErrDNSProviderDisabled
	}
	domainName = strings.ToLower(strings.TrimSpace(domainName))
	if err := s.validator.ValidateDomain(domainName); err != nil {
		return nil, nil, err
	}

	sub, err := s.subs.GetOrCreate(userID)
	if err != nil {
		return nil, nil, err
	}
	if !domain.LimitsFor(sub.PlanTier).AllowsCustomDomain {
		return nil, nil, ErrCustomDomainNotAllowed
	}

	if _, err := s.store.GetCustomDomainByDomain(domainName); err == nil {
		return nil, nil, storage.ErrDomainExists
	} else if !errors.Is(err, storage.ErrDomainNotFound) {
		return nil, nil, err
	}

	decision, err := s.subs.ConsumeCustomDomain(userID)
	if err != nil {
		return nil, nil, err
	}
	if !decision.Allowed {
		return nil, nil, ErrCustomDomainQuotaExceeded
	}

	zone, err := s.dns.CreateZone(ctx, domainName)
	if err != nil {
		return nil, nil, fmt.Errorf("provision zone: %w", err)
	}

	now := s.now().UTC()
	cd := &domain.CustomDomain{
		ID:        uuid.NewString(),
		UserID:    userID,
		Domain:    domainName,
		ZoneID:    zone.ID,
		Status:    domain.DomainStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.SaveCustomDomain(cd); err != nil {
		return nil, nil, err
	}

	s.log.Info("custom domain registered",
		zap.String("user_id", userID),
		zap.String("domain", domainName),
		zap.String("zone_id", zone.ID),
	)
	return cd, zone.NameServers, nil
}

// Verify 检查域名的 DNS 激活状态，激活后完成邮件路由配置。
//
// 可以反复调用：未激活时只刷新状态，已激活且路由已开时是空操作。
func (s *CustomDomainService) Verify(ctx context.Context, userID, domainID string) (*domain.CustomDomain, error) {
	if s.dns == nil {
		return nil, ErrDNSProviderDisabled
	}
	cd, err := s.ownedDomain(userID, domainID)
	if err != nil {
		return nil, err
	}
	if cd.Routable() {
		return cd, nil
	}

	zone, err := s.dns.GetZone(ctx, cd.ZoneID)
	if err != nil {
		return nil, fmt.Errorf("query zone status: %w", err)
	}
	if zone.Status != "active" {
		s.log.Debug("custom domain still pending",
			zap.String("domain", cd.Domain),
			zap.String("zone_status", zone.Status),
		)
		return cd, nil
	}

	if err := s.dns.EnableEmailRouting(ctx, cd.ZoneID); err != nil {
		return nil, err
	}
	if err := s.dns.CreateCatchAllRule(ctx, cd.ZoneID, s.workerName); err != nil {
		return nil, err
	}

	cd.Status = domain.DomainStatusActive
	cd.EmailRoutingEnabled = true
	cd.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateCustomDomain(cd); err != nil {
		return nil, err
	}

	s.log.Info("custom domain activated",
		zap.String("user_id", userID),
		zap.String("domain", cd.Domain),
	)
	return cd, nil
}

// List 返回用户绑定的全部自有域名。
func (s *CustomDomainService) List(userID string) ([]*domain.CustomDomain, error) {
	return s.store.ListCustomDomainsByUserID(userID)
}

// Remove 解绑自有域名。
//
// 只删除绑定行，不回收 Zone：域名下已惰性创建的邮箱保留到各自
// 过期，由清理任务统一回收。
func (s *CustomDomainService) Remove(userID, domainID string) error {
	cd, err := s.ownedDomain(userID, domainID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteCustomDomain(cd.ID); err != nil {
		return err
	}
	s.log.Info("custom domain removed",
		zap.String("user_id", userID),
		zap.String("domain", cd.Domain),
	)
	return nil
}

// ownedDomain 读取域名并校验归属。
func (s *CustomDomainService) ownedDomain(userID, domainID string) (*domain.CustomDomain, error) {
	cd, err := s.store.GetCustomDomain(domainID)
	if err != nil {
		return nil, err
	}
	if cd.UserID != userID {
		return nil, ErrForbidden
	}
	return cd, nil
}
