package httptransport

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/service"
	"tempinbox/backend/internal/storage"
)

// AdminHandler 后台管理接口。
type AdminHandler struct {
	admin *service.AdminService
	log   *zap.Logger
}

// NewAdminHandler 创建管理处理器。
func NewAdminHandler(admin *service.AdminService, log *zap.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, log: log}
}

// ListUsers 分页列出用户。
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	search := c.Query("search")

	users, total, err := h.admin.ListUsers(page, pageSize, search)
	if err != nil {
		h.log.Error("list users failed", zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}
	Success(c, gin.H{
		"users":    users,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

// Statistics 系统总览统计。
func (h *AdminHandler) Statistics(c *gin.Context) {
	stats, err := h.admin.Statistics()
	if err != nil {
		h.log.Error("get statistics failed", zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}
	Success(c, stats)
}

type setActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// SetUserActive 启用或禁用用户。
func (h *AdminHandler) SetUserActive(c *gin.Context) {
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	user, err := h.admin.SetUserActive(c.Param("id"), *req.Active)
	switch {
	case err == nil:
		Success(c, gin.H{"user": user})
	case errors.Is(err, storage.ErrUserNotFound):
		NotFound(c, GetErrorMessage(err))
	default:
		h.log.Error("set user active failed", zap.Error(err))
		InternalError(c, MsgInternalError)
	}
}

type changeUserPlanRequest struct {
	Plan string `json:"plan" binding:"required"`
}

// ChangeUserPlan 管理员直接调整用户套餐。
func (h *AdminHandler) ChangeUserPlan(c *gin.Context) {
	var req changeUserPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	sub, err := h.admin.ChangeUserPlan(c.Param("id"), domain.PlanTier(req.Plan))
	switch {
	case err == nil:
		Success(c, gin.H{"subscription": sub})
	case errors.Is(err, storage.ErrUserNotFound):
		NotFound(c, GetErrorMessage(err))
	case errors.Is(err, service.ErrInvalidTier):
		BadRequest(c, GetErrorMessage(err))
	default:
		h.log.Error("change user plan failed", zap.Error(err))
		InternalError(c, MsgInternalError)
	}
}
