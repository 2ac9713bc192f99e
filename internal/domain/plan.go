package domain

import "time"

// PlanTier 套餐等级
type PlanTier string

const (
	TierAnonymous PlanTier = "anonymous"
	TierFree      PlanTier = "free"
	TierStandard  PlanTier = "standard"
	TierPremium   PlanTier = "premium"
)

// PlanLimits 表示单个套餐的全部配额参数。
//
// 所有配额判断都应该通过 LimitsFor 查表后读取字段完成，
// 调用链路上不允许再按套餐名做第二次分支。
type PlanLimits struct {
	HourlyGenerationLimit int           // 每小时可生成的邮箱数量
	MailboxExpiry         time.Duration // 邮箱生存时间
	MaxInboxMessages      int           // 收件箱最大邮件数
	MaxAttachmentBytes    int64         // 单个收件箱附件总容量
	InboxIsPrivate        bool          // 收件箱是否仅所有者可读
	AllowsFifoEviction    bool          // 收件箱满时是否允许淘汰最旧邮件
	AllowsCustomDomain    bool          // 是否允许绑定自有域名
	AllowsAttachments     bool          // 是否允许接收附件
	MonthlyCustomEmails   int           // 每月可创建的自定义前缀邮箱数量
	MonthlyCustomDomains  int           // 每月可绑定的自有域名数量
}

// planCatalog 套餐配额表。不持久化，按套餐名查表。
var planCatalog = map[PlanTier]PlanLimits{
	TierAnonymous: {
		HourlyGenerationLimit: 2,
		MailboxExpiry:         10 * time.Minute,
		MaxInboxMessages:      1,
		MaxAttachmentBytes:    0,
		InboxIsPrivate:        false,
		AllowsFifoEviction:    false,
		AllowsCustomDomain:    false,
		AllowsAttachments:     false,
		MonthlyCustomEmails:   0,
		MonthlyCustomDomains:  0,
	},
	TierFree: {
		HourlyGenerationLimit: 5,
		MailboxExpiry:         10 * time.Minute,
		MaxInboxMessages:      1,
		MaxAttachmentBytes:    0,
		InboxIsPrivate:        false,
		AllowsFifoEviction:    false,
		AllowsCustomDomain:    false,
		AllowsAttachments:     false,
		MonthlyCustomEmails:   0,
		MonthlyCustomDomains:  0,
	},
	TierStandard: {
		HourlyGenerationLimit: 10,
		MailboxExpiry:         12 * time.Hour,
		MaxInboxMessages:      20,
		MaxAttachmentBytes:    1 << 20, // 1 MiB
		InboxIsPrivate:        true,
		AllowsFifoEviction:    true,
		AllowsCustomDomain:    false,
		AllowsAttachments:     true,
		MonthlyCustomEmails:   5,
		MonthlyCustomDomains:  1,
	},
	TierPremium: {
		HourlyGenerationLimit: 15,
		MailboxExpiry:         24 * time.Hour,
		MaxInboxMessages:      100,
		MaxAttachmentBytes:    10 << 20, // 10 MiB
		InboxIsPrivate:        true,
		AllowsFifoEviction:    true,
		AllowsCustomDomain:    true,
		AllowsAttachments:     true,
		MonthlyCustomEmails:   20,
		MonthlyCustomDomains:  5,
	},
}

// LimitsFor 返回指定套餐的配额参数。
//
// 未知套餐按匿名套餐处理（失败时收紧而不是放开）。
func LimitsFor(tier PlanTier) PlanLimits {
	if limits, ok := planCatalog[tier]; ok {
		return limits
	}
	return planCatalog[TierAnonymous]
}

// PlanCatalog 返回完整套餐目录的副本，供套餐页展示。
func PlanCatalog() map[PlanTier]PlanLimits {
	out := make(map[PlanTier]PlanLimits, len(planCatalog))
	for tier, limits := range planCatalog {
		out[tier] = limits
	}
	return out
}

// ValidTier 判断套餐名是否合法。
func ValidTier(tier PlanTier) bool {
	_, ok := planCatalog[tier]
	return ok
}
