package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tempinbox/backend/internal/blob"
	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/storage"
)

var (
	// ErrForbidden 身份无权访问目标资源
	ErrForbidden = errors.New("access forbidden")
	// ErrMailboxExpired 邮箱存在但已过期
	ErrMailboxExpired = errors.New("mailbox expired")
	// ErrCustomEmailNotAllowed 当前套餐不允许自定义邮箱前缀
	ErrCustomEmailNotAllowed = errors.New("custom email not allowed for current plan")
	// ErrCustomEmailQuotaExceeded 本月自定义邮箱额度已用尽
	ErrCustomEmailQuotaExceeded = errors.New("monthly custom email quota exceeded")
	// ErrDomainNotAllowed 请求的域名既不在默认域名池也不是本人的自有域名
	ErrDomainNotAllowed = errors.New("domain not allowed")
)

const (
	// randomLocalPartLength 随机本地部分长度
	randomLocalPartLength = 12
	// customDomainMailboxTTL 自有域名下惰性创建邮箱的生存时间
	customDomainMailboxTTL = 365 * 24 * time.Hour
)

// MailboxCache 入站解析热路径的地址缓存，可为 nil（直接穿透存储）。
type MailboxCache interface {
	GetMailbox(ctx context.Context, address string) (*domain.Mailbox, error)
	PutMailbox(ctx context.Context, mailbox *domain.Mailbox) error
	Invalidate(ctx context.Context, address string) error
}

// MailboxService 邮箱注册表：创建、解析、续期与删除。
//
// 限流判定与生成记录由调用方（HTTP 层）围绕 Create 编排，
// 本服务只负责地址本身的生命周期。
type MailboxService struct {
	store     storage.Store
	subs      *SubscriptionService
	blobs     blob.Storage
	cache     MailboxCache
	validator *domain.EmailValidator
	domains   []string
	log       *zap.Logger
	now       func() time.Time
}

// NewMailboxService 创建邮箱服务。domains 是默认域名池，不能为空。
func NewMailboxService(
	store storage.Store,
	subs *SubscriptionService,
	blobs blob.Storage,
	cache MailboxCache,
	domains []string,
	log *zap.Logger,
) *MailboxService {
	normalized := make([]string, 0, len(domains))
	for _, d := range domains {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(d)))
	}
	return &MailboxService{
		store:     store,
		subs:      subs,
		blobs:     blobs,
		cache:     cache,
		validator: domain.NewEmailValidator(),
		domains:   normalized,
		log:       log,
		now:       time.Now,
	}
}

// SetClock 注入时钟，仅测试使用。
func (s *MailboxService) SetClock(now func() time.Time) {
	s.now = now
}

// CreateInput 创建邮箱的请求参数。
type CreateInput struct {
	Identity domain.Identity
	// Prefix 为空时生成随机本地部分
	Prefix string
	// Domain 为空时从默认域名池随机挑选
	Domain string
}

// Create 创建一个新邮箱。
//
// 自定义前缀的地址冲突直接返回 storage.ErrAddressTaken；随机地址
// 冲突则换一个随机本地部分和不同的随机域名重试一次，仍冲突才报错。
// 自定义额度在保存之前扣减，保存冲突不回滚额度。
func (s *MailboxService) Create(ctx context.Context, input CreateInput) (*domain.Mailbox, error) {
	tier, err := s.subs.CurrentTier(input.Identity)
	if err != nil {
		return nil, err
	}
	limits := domain.LimitsFor(tier)
	now := s.now().UTC()

	custom := input.Prefix != ""
	if custom {
		if !input.Identity.IsAuthenticated() || limits.MonthlyCustomEmails == 0 {
			return nil, ErrCustomEmailNotAllowed
		}
		if err := s.validator.ValidateLocalPart(strings.ToLower(input.Prefix)); err != nil {
			return nil, err
		}
	}

	addrDomain, err := s.resolveDomainChoice(input, limits)
	if err != nil {
		return nil, err
	}

	if custom {
		decision, err := s.subs.ConsumeCustomEmail(*input.Identity.UserID)
		if err != nil {
			return nil, err
		}
		if !decision.Allowed {
			return nil, ErrCustomEmailQuotaExceeded
		}
	}

	localPart := strings.ToLower(input.Prefix)
	if !custom {
		localPart = randomLocalPart()
	}

	mailbox := s.buildMailbox(input.Identity, tier, localPart, addrDomain, custom, now, now.Add(limits.MailboxExpiry))
	err = s.store.SaveMailbox(mailbox)
	if errors.Is(err, storage.ErrAddressTaken) && !custom {
		// 随机地址撞车：换本地部分和域名各重试一次
		mailbox = s.buildMailbox(input.Identity, tier, randomLocalPart(), s.pickDomain(addrDomain), custom, now, now.Add(limits.MailboxExpiry))
		err = s.store.SaveMailbox(mailbox)
	}
	if err != nil {
		return nil, err
	}

	s.putCache(ctx, mailbox)
	s.log.Info("mailbox created",
		zap.String("address", mailbox.Address),
		zap.String("tier", string(tier)),
		zap.Bool("custom", custom),
	)
	return mailbox, nil
}

// resolveDomainChoice 决定新邮箱使用的域名。
func (s *MailboxService) resolveDomainChoice(input CreateInput, limits domain.PlanLimits) (string, error) {
	requested := strings.ToLower(strings.TrimSpace(input.Domain))
	if requested == "" {
		return s.pickDomain(""), nil
	}
	for _, d := range s.domains {
		if d == requested {
			return requested, nil
		}
	}
	// 默认池之外只接受本人已激活的自有域名
	if !limits.AllowsCustomDomain || !input.Identity.IsAuthenticated() {
		return "", ErrDomainNotAllowed
	}
	cd, err := s.store.GetCustomDomainByDomain(requested)
	if errors.Is(err, storage.ErrDomainNotFound) {
		return "", ErrDomainNotAllowed
	}
	if err != nil {
		return "", err
	}
	if cd.UserID != *input.Identity.UserID || !cd.Routable() {
		return "", ErrDomainNotAllowed
	}
	return requested, nil
}

func (s *MailboxService) buildMailbox(identity domain.Identity, tier domain.PlanTier, localPart, addrDomain string, custom bool, now, expiresAt time.Time) *domain.Mailbox {
	return &domain.Mailbox{
		ID:            uuid.NewString(),
		Address:       localPart + "@" + addrDomain,
		LocalPart:     localPart,
		Domain:        addrDomain,
		UserID:        identity.UserID,
		SessionID:     identity.SessionID,
		IPAddress:     identity.IPAddress,
		PlanTier:      tier,
		IsActive:      true,
		IsCustomEmail: custom,
		CreatedAt:     now,
		ExpiresAt:     expiresAt,
	}
}

// randomLocalPart 生成随机本地部分（uuid 去掉连字符后截断）。
func randomLocalPart() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return raw[:randomLocalPartLength]
}

// pickDomain 从默认域名池随机取一个，尽量避开 exclude。
func (s *MailboxService) pickDomain(exclude string) string {
	if len(s.domains) == 0 {
		return ""
	}
	if len(s.domains) == 1 {
		return s.domains[0]
	}
	for i := 0; i < 4; i++ {
		d := s.domains[rand.IntN(len(s.domains))]
		if d != exclude {
			return d
		}
	}
	return s.domains[0]
}

// ResolveForIngestion 按投递地址解析目标邮箱，供 Webhook 入站链路使用。
//
// 自有域名是 catch-all：域名已激活但地址不存在时，现场以 premium
// 规格创建一个归属域名所有者、有效期一年的邮箱。其余地址严格
// 精确匹配，过期邮箱等同不存在。
func (s *MailboxService) ResolveForIngestion(ctx context.Context, address string) (*domain.Mailbox, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	now := s.now().UTC()

	if s.cache != nil {
		if cached, err := s.cache.GetMailbox(ctx, address); err == nil && !cached.Expired(now) {
			return cached, nil
		}
	}

	addrDomain := domain.AddressDomain(address)
	if addrDomain == "" {
		return nil, storage.ErrMailboxNotFound
	}

	cd, err := s.store.GetCustomDomainByDomain(addrDomain)
	if err != nil && !errors.Is(err, storage.ErrDomainNotFound) {
		return nil, err
	}
	if err == nil && cd.Routable() {
		return s.resolveCustomDomainAddress(ctx, cd, address, now)
	}

	mailbox, err := s.store.GetMailboxByAddress(address)
	if err != nil {
		return nil, err
	}
	s.putCache(ctx, mailbox)
	return mailbox, nil
}

// resolveCustomDomainAddress 解析自有域名下的地址，必要时惰性建箱。
func (s *MailboxService) resolveCustomDomainAddress(ctx context.Context, cd *domain.CustomDomain, address string, now time.Time) (*domain.Mailbox, error) {
	mailbox, err := s.store.GetMailboxByAddress(address)
	if err == nil {
		s.putCache(ctx, mailbox)
		return mailbox, nil
	}
	if !errors.Is(err, storage.ErrMailboxNotFound) {
		return nil, err
	}

	at := strings.LastIndex(address, "@")
	owner := cd.UserID
	mailbox = &domain.Mailbox{
		ID:             uuid.NewString(),
		Address:        address,
		LocalPart:      address[:at],
		Domain:         cd.Domain,
		UserID:         &owner,
		PlanTier:       domain.TierPremium,
		IsActive:       true,
		IsCustomDomain: true,
		CustomDomainID: &cd.ID,
		CreatedAt:      now,
		ExpiresAt:      now.Add(customDomainMailboxTTL),
	}
	err = s.store.SaveMailbox(mailbox)
	if errors.Is(err, storage.ErrAddressTaken) {
		// 并发投递抢先建好了，直接复用
		return s.store.GetMailboxByAddress(address)
	}
	if err != nil {
		return nil, err
	}

	s.putCache(ctx, mailbox)
	s.log.Info("custom domain mailbox materialized",
		zap.String("address", address),
		zap.String("domain", cd.Domain),
	)
	return mailbox, nil
}

// GetInbox 读取邮箱、全部邮件与附件占用字节数。
//
// 区分三种失败：从未存在（ErrMailboxNotFound）、存在但已过期
// （ErrMailboxExpired）、私有且非本人（ErrForbidden）。
func (s *MailboxService) GetInbox(identity domain.Identity, address string) (*domain.Mailbox, []domain.Message, int64, error) {
	mailbox, err := s.store.GetMailboxByAddressAny(strings.ToLower(strings.TrimSpace(address)))
	if err != nil {
		return nil, nil, 0, err
	}
	if mailbox.Expired(s.now().UTC()) {
		return nil, nil, 0, ErrMailboxExpired
	}
	if !s.CanAccess(identity, mailbox) {
		return nil, nil, 0, ErrForbidden
	}

	messages, err := s.store.ListMessages(mailbox.ID)
	if err != nil {
		return nil, nil, 0, err
	}
	attachmentBytes, err := s.store.SumAttachmentBytes(mailbox.ID)
	if err != nil {
		return nil, nil, 0, err
	}
	return mailbox, messages, attachmentBytes, nil
}

// CanAccess 判断身份能否读取邮箱。
//
// 隐私属性来自邮箱创建时的套餐快照：匿名与 free 邮箱公开可读，
// standard 及以上仅限所有者。
func (s *MailboxService) CanAccess(identity domain.Identity, mailbox *domain.Mailbox) bool {
	if !domain.LimitsFor(mailbox.PlanTier).InboxIsPrivate {
		return true
	}
	return mailbox.OwnedBy(identity)
}

// Refresh 续期邮箱，按所有者的当前套餐重新定价。
//
// 续期后的有效期和套餐快照都换成当前套餐的规格：升级的用户
// 续期即享新时长，降级的用户续期后降到新套餐的时长。
func (s *MailboxService) Refresh(ctx context.Context, identity domain.Identity, mailboxID string) (*domain.Mailbox, error) {
	mailbox, err := s.store.GetMailbox(mailboxID)
	if err != nil {
		return nil, err
	}
	if !mailbox.OwnedBy(identity) {
		return nil, ErrForbidden
	}

	tier, err := s.subs.CurrentTier(identity)
	if err != nil {
		return nil, err
	}
	limits := domain.LimitsFor(tier)

	mailbox.PlanTier = tier
	mailbox.ExpiresAt = s.now().UTC().Add(limits.MailboxExpiry)
	if err := s.store.UpdateMailbox(mailbox); err != nil {
		return nil, err
	}
	s.invalidateCache(ctx, mailbox.Address)

	s.log.Debug("mailbox refreshed",
		zap.String("address", mailbox.Address),
		zap.String("tier", string(tier)),
	)
	return mailbox, nil
}

// GetActive 返回身份名下的全部未过期邮箱。
func (s *MailboxService) GetActive(identity domain.Identity) ([]domain.Mailbox, error) {
	if identity.IsAuthenticated() {
		return s.store.ListMailboxesByUserID(*identity.UserID)
	}
	return s.store.ListMailboxesByAnonOwner(identity.SessionID, identity.IPAddress)
}

// Delete 删除邮箱及其全部邮件与附件。
//
// 附件对象删除是尽力而为：对象存储报错只记日志，不阻塞数据库
// 行的删除，残留对象交给人工或存储端生命周期策略兜底。
func (s *MailboxService) Delete(ctx context.Context, identity domain.Identity, mailboxID string) error {
	mailbox, err := s.store.GetMailbox(mailboxID)
	if err != nil {
		return err
	}
	if !mailbox.OwnedBy(identity) {
		return ErrForbidden
	}

	attachments, err := s.store.ListAttachmentsByMailbox(mailbox.ID)
	if err != nil {
		return fmt.Errorf("list attachments: %w", err)
	}
	s.deleteBlobs(ctx, attachments)

	if _, err := s.store.DeleteMessagesByMailbox(mailbox.ID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if err := s.store.DeleteMailbox(mailbox.ID); err != nil {
		return err
	}
	s.invalidateCache(ctx, mailbox.Address)

	s.log.Info("mailbox deleted",
		zap.String("address", mailbox.Address),
		zap.Int("attachments", len(attachments)),
	)
	return nil
}

// deleteBlobs 尽力删除一批附件对象。
func (s *MailboxService) deleteBlobs(ctx context.Context, attachments []domain.Attachment) {
	if s.blobs == nil {
		return
	}
	for _, att := range attachments {
		if att.DeleteHandle == "" {
			continue
		}
		if err := s.blobs.Delete(ctx, att.DeleteHandle); err != nil {
			s.log.Warn("attachment blob delete failed",
				zap.String("attachment_id", att.ID),
				zap.Error(err),
			)
		}
	}
}

func (s *MailboxService) putCache(ctx context.Context, mailbox *domain.Mailbox) {
	if s.cache == nil {
		return
	}
	if err := s.cache.PutMailbox(ctx, mailbox); err != nil {
		s.log.Debug("address cache put failed", zap.Error(err))
	}
}

func (s *MailboxService) invalidateCache(ctx context.Context, address string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, address); err != nil {
		s.log.Debug("address cache invalidate failed", zap.Error(err))
	}
}
