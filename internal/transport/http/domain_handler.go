package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/service"
	"tempinbox/backend/internal/storage"
)

// DomainHandler 自有域名绑定流程。
type DomainHandler struct {
	domains *service.CustomDomainService
	log     *zap.Logger
}

// NewDomainHandler 创建自有域名处理器。
func NewDomainHandler(domains *service.CustomDomainService, log *zap.Logger) *DomainHandler {
	return &DomainHandler{domains: domains, log: log}
}

type registerDomainRequest struct {
	Domain string `json:"domain" binding:"required"`
}

// Register 绑定自有域名，返回待配置的 NS 记录。
func (h *DomainHandler) Register(c *gin.Context) {
	var req registerDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	cd, nameServers, err := h.domains.Register(c.Request.Context(), c.GetString("userID"), req.Domain)
	switch {
	case err == nil:
		Created(c, gin.H{
			"domain":      cd,
			"nameServers": nameServers,
		})
	case errors.Is(err, storage.ErrDomainExists):
		Conflict(c, GetErrorMessage(err))
	case errors.Is(err, service.ErrCustomDomainNotAllowed),
		errors.Is(err, service.ErrCustomDomainQuotaExceeded),
		errors.Is(err, service.ErrDNSProviderDisabled):
		Forbidden(c, GetErrorMessage(err))
	case errors.Is(err, domain.ErrInvalidDomain):
		BadRequest(c, GetErrorMessage(err))
	default:
		h.log.Error("register domain failed", zap.Error(err))
		InternalError(c, MsgInternalError)
	}
}

// Verify 检查域名激活状态，激活后开启邮件路由。
func (h *DomainHandler) Verify(c *gin.Context) {
	cd, err := h.domains.Verify(c.Request.Context(), c.GetString("userID"), c.Param("id"))
	switch {
	case err == nil:
		Success(c, gin.H{"domain": cd})
	case errors.Is(err, storage.ErrDomainNotFound):
		NotFound(c, GetErrorMessage(err))
	case errors.Is(err, service.ErrForbidden),
		errors.Is(err, service.ErrDNSProviderDisabled):
		Forbidden(c, GetErrorMessage(err))
	default:
		h.log.Error("verify domain failed", zap.Error(err))
		InternalError(c, MsgInternalError)
	}
}

// List 返回用户绑定的全部域名。
func (h *DomainHandler) List(c *gin.Context) {
	domains, err := h.domains.List(c.GetString("userID"))
	if err != nil {
		h.log.Error("list domains failed", zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}
	Success(c, gin.H{"domains": domains})
}

// Remove 解绑域名。
func (h *DomainHandler) Remove(c *gin.Context) {
	err := h.domains.Remove(c.GetString("userID"), c.Param("id"))
	switch {
	case err == nil:
		NoContent(c)
	case errors.Is(err, storage.ErrDomainNotFound):
		NotFound(c, GetErrorMessage(err))
	case errors.Is(err, service.ErrForbidden):
		Forbidden(c, GetErrorMessage(err))
	default:
		h.log.Error("remove domain failed", zap.Error(err))
		InternalError(c, MsgInternalError)
	}
}
