package domain

import "time"

// GenerationRecord 表示一次成功的邮箱生成记录。
//
// 记录创建后不可变，独立于邮箱生命周期存在：限流计数必须在
// 邮箱被删除后仍然成立，所以限流永远基于时间戳重新计算，
// 而不是依赖记录是否被回收。
type GenerationRecord struct {
	ID          string   `json:"id" gorm:"primaryKey;type:varchar(36)"`
	IdentityKey string   `json:"identityKey" gorm:"type:varchar(128);index:idx_identity_tier"`
	PlanTier    PlanTier `json:"planTier" gorm:"type:varchar(20);index:idx_identity_tier"`
	Address     string   `json:"address" gorm:"type:varchar(255)"`

	GeneratedAt time.Time `json:"generatedAt" gorm:"index"`
	// ExpiresAt 是记录自身的附带 TTL（固定 10 分钟），仅作存量标记，
	// 与 1 小时限流窗口无关；实际回收由独立的清理任务按窗口+余量执行。
	ExpiresAt time.Time `json:"expiresAt"`
}

// GenerationDecision 表示一次生成准入判定的结果。
//
// 限流拒绝是预期内的业务结果，以返回值而不是 error 表达。
type GenerationDecision struct {
	Allowed      bool       `json:"allowed"`
	Remaining    int        `json:"remaining"`
	CurrentLimit int        `json:"currentLimit"`
	ResetAt      *time.Time `json:"resetTime,omitempty"`
	RequiresAuth bool       `json:"requiresAuth,omitempty"`
}

// QuotaDecision 表示一次月度配额判定的结果。
type QuotaDecision struct {
	Allowed   bool `json:"allowed"`
	Used      int  `json:"used"`
	Limit     int  `json:"limit"`
	Remaining int  `json:"remaining"`
}
