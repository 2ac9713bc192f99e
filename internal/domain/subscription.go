package domain

import "time"

// Subscription 表示用户当前套餐与月度用量。
//
// 与用户一对一，首次读取时惰性创建 free 套餐。
// 月度计数按自然月滚动：比较 now 与 LastResetAt 的年月差，
// 跨月后首次访问时归零（惰性重置，没有定时任务）。
type Subscription struct {
	ID                string   `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID            string   `json:"userId" gorm:"type:varchar(36);uniqueIndex;not null"`
	PlanTier          PlanTier `json:"planTier" gorm:"type:varchar(20);default:'free'"`
	CustomEmailsUsed  int      `json:"customEmailsUsed" gorm:"default:0"`
	CustomDomainsUsed int      `json:"customDomainsUsed" gorm:"default:0"`

	LastResetAt time.Time `json:"lastResetAt"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NeedsMonthlyReset 判断月度计数是否应当归零。
//
// 只比较年月，不比较经过的天数：1月31日与2月1日视为跨月。
func (s *Subscription) NeedsMonthlyReset(now time.Time) bool {
	return s.LastResetAt.Year() != now.Year() || s.LastResetAt.Month() != now.Month()
}

// ResetMonthlyUsage 归零月度计数。
func (s *Subscription) ResetMonthlyUsage(now time.Time) {
	s.CustomEmailsUsed = 0
	s.CustomDomainsUsed = 0
	s.LastResetAt = now
}
