package domain

import (
	"strings"
	"time"
)

// Mailbox 表示一个临时邮箱地址。
//
// PlanTier 是创建时刻的套餐快照：所有者之后升降级不影响已有
// 邮箱，只有新建或续期的邮箱才体现新套餐。
type Mailbox struct {
	ID             string   `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Address        string   `json:"address" gorm:"type:varchar(255);uniqueIndex"`
	LocalPart      string   `json:"localPart" gorm:"type:varchar(255)"`
	Domain         string   `json:"domain" gorm:"type:varchar(100);index"`
	UserID         *string  `json:"userId,omitempty" gorm:"type:varchar(36);index"`
	SessionID      string   `json:"-" gorm:"type:varchar(64);index"`
	IPAddress      string   `json:"-" gorm:"type:varchar(45);index"`
	PlanTier       PlanTier `json:"planTier" gorm:"type:varchar(20);index"`
	IsActive       bool     `json:"isActive" gorm:"default:true"`
	IsCustomEmail  bool     `json:"isCustomEmail" gorm:"default:false"`
	IsCustomDomain bool     `json:"isCustomDomain" gorm:"default:false;index"`
	CustomDomainID *string  `json:"customDomainId,omitempty" gorm:"type:varchar(36);index"`

	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt" gorm:"index"`
}

// Expired 判断邮箱在给定时刻是否已过期。
//
// 过期即逻辑死亡：即使清理任务尚未删除，读取路径也必须视作不存在。
func (m *Mailbox) Expired(now time.Time) bool {
	return !m.ExpiresAt.After(now)
}

// Owner 返回邮箱的所有者身份。
func (m *Mailbox) Owner() Identity {
	return Identity{
		UserID:    m.UserID,
		SessionID: m.SessionID,
		IPAddress: m.IPAddress,
	}
}

// OwnedBy 判断给定身份是否拥有该邮箱。
//
// 已登录用户按 userID 精确匹配，匿名用户按 sessionID 匹配。
func (m *Mailbox) OwnedBy(identity Identity) bool {
	if m.UserID != nil && identity.UserID != nil {
		return *m.UserID == *identity.UserID
	}
	if m.UserID == nil && m.SessionID != "" && identity.SessionID != "" {
		return m.SessionID == identity.SessionID
	}
	return false
}

// AddressDomain 从邮箱地址中提取域名部分。
func AddressDomain(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 || at == len(address)-1 {
		return ""
	}
	return strings.ToLower(address[at+1:])
}
