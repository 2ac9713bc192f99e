package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/payment"
)

var (
	// ErrGatewayNotFound 未知的支付网关名
	ErrGatewayNotFound = errors.New("payment gateway not found")
	// ErrCheckoutNotPaid 支付会话尚未完成支付
	ErrCheckoutNotPaid = errors.New("checkout not paid")
	// ErrPlanNotPurchasable 该套餐不需要付费或不可购买
	ErrPlanNotPurchasable = errors.New("plan not purchasable")
)

// BillingService 套餐购买流程的编排。
//
// 不在本地保存支付状态：会话核验以网关回传为准，核验通过
// 才切换订阅套餐。降级到 free 不经过网关。
type BillingService struct {
	gateways   map[string]payment.Gateway
	subs       *SubscriptionService
	successURL string
	cancelURL  string
	log        *zap.Logger
}

// NewBillingService 创建计费服务。
func NewBillingService(gateways []payment.Gateway, subs *SubscriptionService, successURL, cancelURL string, log *zap.Logger) *BillingService {
	byName := make(map[string]payment.Gateway, len(gateways))
	for _, g := range gateways {
		byName[g.Name()] = g
	}
	return &BillingService{
		gateways:   byName,
		subs:       subs,
		successURL: successURL,
		cancelURL:  cancelURL,
		log:        log,
	}
}

// SuccessURL 支付完成后的跳转地址。
func (s *BillingService) SuccessURL() string {
	return s.successURL
}

// CancelURL 支付取消后的跳转地址。
func (s *BillingService) CancelURL() string {
	return s.cancelURL
}

// Gateways 返回可用的网关名列表。
func (s *BillingService) Gateways() []string {
	names := make([]string, 0, len(s.gateways))
	for name := range s.gateways {
		names = append(names, name)
	}
	return names
}

// StartCheckout 为付费套餐创建一个支付会话。
func (s *BillingService) StartCheckout(ctx context.Context, gatewayName, userID string, tier domain.PlanTier, successURL, cancelURL string) (*payment.CheckoutSession, error) {
	if !domain.ValidTier(tier) {
		return nil, ErrInvalidTier
	}
	if tier == domain.TierAnonymous || tier == domain.TierFree {
		return nil, ErrPlanNotPurchasable
	}
	gateway, ok := s.gateways[gatewayName]
	if !ok {
		return nil, ErrGatewayNotFound
	}

	session, err := gateway.CreateCheckout(ctx, userID, string(tier), successURL, cancelURL)
	if err != nil {
		return nil, err
	}
	s.log.Info("checkout started",
		zap.String("gateway", gatewayName),
		zap.String("user_id", userID),
		zap.String("plan", string(tier)),
		zap.String("session_id", session.ID),
	)
	return session, nil
}

// CompleteCheckout 核验支付会话并切换订阅套餐。
//
// 以网关回传的 userID 和套餐为准，防止会话 ID 被拿去给
// 别的账号或别的套餐充值。
func (s *BillingService) CompleteCheckout(ctx context.Context, gatewayName, sessionID string) (*domain.Subscription, error) {
	gateway, ok := s.gateways[gatewayName]
	if !ok {
		return nil, ErrGatewayNotFound
	}

	result, err := gateway.VerifyCheckout(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !result.Paid {
		return nil, ErrCheckoutNotPaid
	}

	sub, err := s.subs.ChangePlan(result.UserID, domain.PlanTier(result.Plan))
	if err != nil {
		return nil, err
	}
	s.log.Info("checkout completed",
		zap.String("gateway", gatewayName),
		zap.String("user_id", result.UserID),
		zap.String("plan", result.Plan),
	)
	return sub, nil
}

// Downgrade 将用户降级到 free，不经过支付网关。
func (s *BillingService) Downgrade(userID string) (*domain.Subscription, error) {
	return s.subs.ChangePlan(userID, domain.TierFree)
}

// Refund 对支付会话退款并把对应用户降回 free。
//
// 先核验会话取回归属用户，退款成功才动订阅；退款失败时
// 订阅保持不变，由调用方重试。
func (s *BillingService) Refund(ctx context.Context, gatewayName, sessionID string) (*domain.Subscription, error) {
	gateway, ok := s.gateways[gatewayName]
	if !ok {
		return nil, ErrGatewayNotFound
	}

	result, err := gateway.VerifyCheckout(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := gateway.Refund(ctx, sessionID); err != nil {
		return nil, err
	}

	sub, err := s.subs.ChangePlan(result.UserID, domain.TierFree)
	if err != nil {
		return nil, err
	}
	s.log.Info("checkout refunded",
		zap.String("gateway", gatewayName),
		zap.String("user_id", result.UserID),
		zap.String("session_id", sessionID),
	)
	return sub, nil
}
