package payment

import (
	"context"
	"errors"
)

var (
	// ErrUnknownPlan 网关没有该套餐对应的价格配置
	ErrUnknownPlan = errors.New("no price configured for plan")
	// ErrSessionNotFound 支付会话不存在
	ErrSessionNotFound = errors.New("checkout session not found")
)

// CheckoutSession 新建支付会话的结果，URL 供前端跳转。
type CheckoutSession struct {
	ID  string
	URL string
}

// CheckoutResult 支付会话的核验结果。
type CheckoutResult struct {
	SessionID string
	Paid      bool
	Plan      string
	UserID    string
}

// Gateway 支付网关抽象。
//
// 套餐与用户信息随会话 metadata 往返：核验时从网关原样取回，
// 本服务不在本地另存支付状态。
type Gateway interface {
	Name() string
	CreateCheckout(ctx context.Context, userID, plan, successURL, cancelURL string) (*CheckoutSession, error)
	VerifyCheckout(ctx context.Context, sessionID string) (*CheckoutResult, error)
	Refund(ctx context.Context, sessionID string) error
}
