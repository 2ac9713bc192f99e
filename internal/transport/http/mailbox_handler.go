package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/middleware"
	"tempinbox/backend/internal/monitoring"
	"tempinbox/backend/internal/service"
	"tempinbox/backend/internal/storage"
)

// MailboxHandler 邮箱生命周期的 HTTP 处理器。
type MailboxHandler struct {
	mailboxes *service.MailboxService
	ratelimit *service.RateLimitService
	subs      *service.SubscriptionService
	metrics   *monitoring.Metrics
	log       *zap.Logger
}

// NewMailboxHandler 创建邮箱处理器。
func NewMailboxHandler(
	mailboxes *service.MailboxService,
	ratelimit *service.RateLimitService,
	subs *service.SubscriptionService,
	metrics *monitoring.Metrics,
	log *zap.Logger,
) *MailboxHandler {
	return &MailboxHandler{
		mailboxes: mailboxes,
		ratelimit: ratelimit,
		subs:      subs,
		metrics:   metrics,
		log:       log,
	}
}

// createMailboxRequest 创建邮箱的请求体，两个字段都可省略。
type createMailboxRequest struct {
	Prefix string `json:"prefix"`
	Domain string `json:"domain"`
}

// Create 创建邮箱。
//
// 限流判定、创建、记录按顺序编排：判定拒绝直接返回 429 和
// 判定详情；创建成功后才写生成记录。
func (h *MailboxHandler) Create(c *gin.Context) {
	var req createMailboxRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, MsgInvalidRequest)
			return
		}
	}

	identity := middleware.IdentityFrom(c)
	tier, err := h.subs.CurrentTier(identity)
	if err != nil {
		h.log.Error("resolve tier failed", zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}

	decision, err := h.ratelimit.CanGenerate(c.Request.Context(), identity, tier)
	if err != nil {
		h.log.Error("rate limit check failed", zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}
	if !decision.Allowed {
		h.metrics.GenerationDenied.WithLabelValues(string(tier)).Inc()
		TooManyRequests(c, "创建过于频繁，请稍后再试", decision)
		return
	}

	mailbox, err := h.mailboxes.Create(c.Request.Context(), service.CreateInput{
		Identity: identity,
		Prefix:   req.Prefix,
		Domain:   req.Domain,
	})
	if err != nil {
		h.writeCreateError(c, err)
		return
	}

	if err := h.ratelimit.RecordGeneration(c.Request.Context(), identity, tier, mailbox.Address); err != nil {
		// 邮箱已创建成功，记录失败只影响后续限流计数
		h.log.Error("record generation failed",
			zap.String("address", mailbox.Address),
			zap.Error(err),
		)
	}

	h.metrics.MailboxesCreated.WithLabelValues(string(tier)).Inc()
	Created(c, gin.H{
		"mailbox":   mailbox,
		"remaining": decision.Remaining - 1,
	})
}

func (h *MailboxHandler) writeCreateError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrAddressTaken):
		Conflict(c, GetErrorMessage(storage.ErrAddressTaken))
	case errors.Is(err, service.ErrCustomEmailNotAllowed),
		errors.Is(err, service.ErrCustomEmailQuotaExceeded),
		errors.Is(err, service.ErrDomainNotAllowed):
		Forbidden(c, GetErrorMessage(err))
	case errors.Is(err, domain.ErrInvalidLocalPart),
		errors.Is(err, domain.ErrLocalPartTooLong),
		errors.Is(err, domain.ErrInvalidDomain):
		BadRequest(c, GetErrorMessage(err))
	default:
		h.log.Error("create mailbox failed", zap.Error(err))
		InternalError(c, MsgInternalError)
	}
}

// List 返回当前身份名下的全部邮箱。
func (h *MailboxHandler) List(c *gin.Context) {
	identity := middleware.IdentityFrom(c)
	mailboxes, err := h.mailboxes.GetActive(identity)
	if err != nil {
		h.log.Error("list mailboxes failed", zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}
	Success(c, gin.H{"mailboxes": mailboxes})
}

// Refresh 续期邮箱。
func (h *MailboxHandler) Refresh(c *gin.Context) {
	identity := middleware.IdentityFrom(c)
	mailbox, err := h.mailboxes.Refresh(c.Request.Context(), identity, c.Param("id"))
	switch {
	case err == nil:
		Success(c, gin.H{"mailbox": mailbox})
	case errors.Is(err, storage.ErrMailboxNotFound):
		NotFound(c, GetErrorMessage(err))
	case errors.Is(err, service.ErrForbidden):
		Forbidden(c, GetErrorMessage(err))
	default:
		h.log.Error("refresh mailbox failed", zap.Error(err))
		InternalError(c, MsgInternalError)
	}
}

// Delete 删除邮箱。
func (h *MailboxHandler) Delete(c *gin.Context) {
	identity := middleware.IdentityFrom(c)
	err := h.mailboxes.Delete(c.Request.Context(), identity, c.Param("id"))
	switch {
	case err == nil:
		h.metrics.MailboxesDeleted.Inc()
		NoContent(c)
	case errors.Is(err, storage.ErrMailboxNotFound):
		NotFound(c, GetErrorMessage(err))
	case errors.Is(err, service.ErrForbidden):
		Forbidden(c, GetErrorMessage(err))
	default:
		h.log.Error("delete mailbox failed", zap.Error(err))
		InternalError(c, MsgInternalError)
	}
}

// RateLimitStatus 返回当前身份的限流判定，不消耗额度。
func (h *MailboxHandler) RateLimitStatus(c *gin.Context) {
	identity := middleware.IdentityFrom(c)
	tier, err := h.subs.CurrentTier(identity)
	if err != nil {
		h.log.Error("resolve tier failed", zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}
	decision, err := h.ratelimit.CanGenerate(c.Request.Context(), identity, tier)
	if err != nil {
		h.log.Error("rate limit check failed", zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}
	Success(c, decision)
}
