package domain

import "time"

// DomainStatus 自有域名的生命周期状态
type DomainStatus string

const (
	DomainStatusPending   DomainStatus = "pending"
	DomainStatusActive    DomainStatus = "active"
	DomainStatusFailed    DomainStatus = "failed"
	DomainStatusSuspended DomainStatus = "suspended"
)

// CustomDomain 表示用户绑定的自有域名。
//
// 域名在 DNS 侧激活且开启邮件路由后，任何落在该域名下的地址
// 都视为归属域名所有者——即使邮箱行尚不存在，也会在首封来信
// 时惰性创建（Premium 同等配额，一年有效期）。
type CustomDomain struct {
	ID                  string       `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID              string       `json:"userId" gorm:"type:varchar(36);index;not null"`
	Domain              string       `json:"domain" gorm:"type:varchar(253);uniqueIndex;not null"`
	ZoneID              string       `json:"zoneId" gorm:"type:varchar(64)"`
	Status              DomainStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	EmailRoutingEnabled bool         `json:"emailRoutingEnabled" gorm:"default:false"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Routable 判断域名是否可以接收入站邮件。
func (d *CustomDomain) Routable() bool {
	return d.Status == DomainStatusActive && d.EmailRoutingEnabled
}
