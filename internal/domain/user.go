package domain

import "time"

// UserRole 用户角色
type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// User 表示注册用户的业务实体
type User struct {
	ID           string   `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email        string   `json:"email" gorm:"uniqueIndex;type:varchar(255);not null"`
	Username     string   `json:"username,omitempty" gorm:"type:varchar(100)"`
	PasswordHash string   `json:"-" gorm:"type:varchar(255)"` // 不返回给前端
	Role         UserRole `json:"role" gorm:"type:varchar(20);default:'user';index"`
	IsActive     bool     `json:"isActive" gorm:"default:true"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

// IsAdmin 判断用户是否为管理员
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// SystemStatistics 后台总览统计
type SystemStatistics struct {
	TotalUsers        int            `json:"totalUsers"`
	ActiveMailboxes   int            `json:"activeMailboxes"`
	TotalMessages     int            `json:"totalMessages"`
	CustomDomains     int            `json:"customDomains"`
	UsersByTier       map[string]int `json:"usersByTier"`
	MessagesToday     int            `json:"messagesToday"`
	AttachmentStorage int64          `json:"attachmentStorageBytes"`
}
