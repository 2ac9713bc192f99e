package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/payment"
	"tempinbox/backend/internal/service"
)

// BillingHandler 套餐购买与订阅查询。
type BillingHandler struct {
	billing *service.BillingService
	subs    *service.SubscriptionService
	log     *zap.Logger
}

// NewBillingHandler 创建计费处理器。
func NewBillingHandler(billing *service.BillingService, subs *service.SubscriptionService, log *zap.Logger) *BillingHandler {
	return &BillingHandler{billing: billing, subs: subs, log: log}
}

// Plans 返回套餐目录，公开接口。
func (h *BillingHandler) Plans(c *gin.Context) {
	Success(c, gin.H{
		"plans":    domain.PlanCatalog(),
		"gateways": h.billing.Gateways(),
	})
}

// Subscription 返回当前用户的订阅。
func (h *BillingHandler) Subscription(c *gin.Context) {
	sub, err := h.subs.GetOrCreate(c.GetString("userID"))
	if err != nil {
		h.log.Error("get subscription failed", zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}
	Success(c, gin.H{
		"subscription": sub,
		"limits":       domain.LimitsFor(sub.PlanTier),
	})
}

type checkoutRequest struct {
	Gateway string `json:"gateway" binding:"required"`
	Plan    string `json:"plan" binding:"required"`
}

// StartCheckout 创建支付会话。
func (h *BillingHandler) StartCheckout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	session, err := h.billing.StartCheckout(
		c.Request.Context(),
		req.Gateway,
		c.GetString("userID"),
		domain.PlanTier(req.Plan),
		h.billing.SuccessURL(),
		h.billing.CancelURL(),
	)
	switch {
	case err == nil:
		Created(c, gin.H{"checkout": session})
	case errors.Is(err, service.ErrInvalidTier),
		errors.Is(err, service.ErrPlanNotPurchasable),
		errors.Is(err, service.ErrGatewayNotFound),
		errors.Is(err, payment.ErrUnknownPlan):
		BadRequest(c, GetErrorMessage(err))
	default:
		h.log.Error("start checkout failed", zap.Error(err))
		InternalError(c, MsgInternalError)
	}
}

type completeCheckoutRequest struct {
	Gateway   string `json:"gateway" binding:"required"`
	SessionID string `json:"sessionId" binding:"required"`
}

// CompleteCheckout 核验支付并切换套餐。
func (h *BillingHandler) CompleteCheckout(c *gin.Context) {
	var req completeCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	sub, err := h.billing.CompleteCheckout(c.Request.Context(), req.Gateway, req.SessionID)
	switch {
	case err == nil:
		Success(c, gin.H{"subscription": sub})
	case errors.Is(err, service.ErrCheckoutNotPaid):
		BadRequest(c, GetErrorMessage(err))
	case errors.Is(err, payment.ErrSessionNotFound):
		NotFound(c, GetErrorMessage(err))
	case errors.Is(err, service.ErrGatewayNotFound):
		BadRequest(c, GetErrorMessage(err))
	default:
		h.log.Error("complete checkout failed", zap.Error(err))
		InternalError(c, MsgInternalError)
	}
}

// Refund 退款并撤销套餐，仅后台管理使用。
func (h *BillingHandler) Refund(c *gin.Context) {
	var req completeCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	sub, err := h.billing.Refund(c.Request.Context(), req.Gateway, req.SessionID)
	switch {
	case err == nil:
		Success(c, gin.H{"subscription": sub})
	case errors.Is(err, payment.ErrSessionNotFound):
		NotFound(c, GetErrorMessage(err))
	case errors.Is(err, service.ErrGatewayNotFound):
		BadRequest(c, GetErrorMessage(err))
	default:
		h.log.Error("refund failed", zap.Error(err))
		InternalError(c, MsgInternalError)
	}
}

// Downgrade 降级到 free。
func (h *BillingHandler) Downgrade(c *gin.Context) {
	sub, err := h.billing.Downgrade(c.GetString("userID"))
	if err != nil {
		h.log.Error("downgrade failed", zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}
	Success(c, gin.H{"subscription": sub})
}
