package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempinbox/backend/internal/auth"
	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/storage"
)

// AuthHandler 注册、登录与令牌管理。
type AuthHandler struct {
	auth *auth.Service
	log  *zap.Logger
}

// NewAuthHandler 创建认证处理器。
func NewAuthHandler(authService *auth.Service, log *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: authService, log: log}
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Username string `json:"username"`
}

// Register 用户注册。
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	user, tokens, err := h.auth.Register(auth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
	})
	switch {
	case err == nil:
		Created(c, gin.H{"user": user, "tokens": tokens})
	case errors.Is(err, storage.ErrEmailExists):
		Conflict(c, GetErrorMessage(err))
	case errors.Is(err, domain.ErrInvalidEmail),
		errors.Is(err, domain.ErrPasswordTooShort),
		errors.Is(err, domain.ErrPasswordTooLong):
		BadRequest(c, GetErrorMessage(err))
	default:
		h.log.Error("register failed", zap.Error(err))
		InternalError(c, MsgInternalError)
	}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 用户登录。
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	user, tokens, err := h.auth.Login(req.Email, req.Password)
	switch {
	case err == nil:
		Success(c, gin.H{"user": user, "tokens": tokens})
	case errors.Is(err, auth.ErrInvalidCredentials):
		Unauthorized(c, GetErrorMessage(err))
	case errors.Is(err, auth.ErrUserInactive):
		Forbidden(c, GetErrorMessage(err))
	default:
		h.log.Error("login failed", zap.Error(err))
		InternalError(c, MsgInternalError)
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// Refresh 刷新访问令牌。
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	accessToken, err := h.auth.Refresh(req.RefreshToken)
	if err != nil {
		Unauthorized(c, "登录已过期，请重新登录")
		return
	}
	Success(c, gin.H{"accessToken": accessToken})
}

type logoutRequest struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Logout 注销令牌。
func (h *AuthHandler) Logout(c *gin.Context) {
	var req logoutRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.auth.Logout(req.AccessToken, req.RefreshToken); err != nil {
		h.log.Error("logout failed", zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}
	Success(c, nil)
}

// Me 返回当前登录用户。
func (h *AuthHandler) Me(c *gin.Context) {
	userID := c.GetString("userID")
	user, err := h.auth.GetUser(userID)
	if err != nil {
		NotFound(c, GetErrorMessage(storage.ErrUserNotFound))
		return
	}
	Success(c, gin.H{"user": user})
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

// ChangePassword 修改密码。
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	err := h.auth.ChangePassword(c.GetString("userID"), req.OldPassword, req.NewPassword)
	switch {
	case err == nil:
		Success(c, nil)
	case errors.Is(err, auth.ErrInvalidCredentials):
		Unauthorized(c, "原密码错误")
	case errors.Is(err, domain.ErrPasswordTooShort),
		errors.Is(err, domain.ErrPasswordTooLong):
		BadRequest(c, GetErrorMessage(err))
	default:
		h.log.Error("change password failed", zap.Error(err))
		InternalError(c, MsgInternalError)
	}
}
