package domain

// Identity 表示一次请求的调用者身份。
//
// 限流与归属判断统一使用 Key() 产生的键：
// 已登录用户优先用 userID；匿名用户优先用 IP（防止清除
// 浏览器存储绕过限流）；仅在取不到 IP 时退回 sessionID。
type Identity struct {
	UserID    *string `json:"userId,omitempty"`
	SessionID string  `json:"sessionId,omitempty"`
	IPAddress string  `json:"ipAddress,omitempty"`
}

// Key 返回限流使用的身份键。
func (i Identity) Key() string {
	if i.UserID != nil && *i.UserID != "" {
		return "user:" + *i.UserID
	}
	if i.IPAddress != "" {
		return "ip:" + i.IPAddress
	}
	return "session:" + i.SessionID
}

// IsAuthenticated 判断是否为已登录用户。
func (i Identity) IsAuthenticated() bool {
	return i.UserID != nil && *i.UserID != ""
}
