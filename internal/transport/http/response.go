package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
type Response struct {
	Code int         `json:"code"`           // 业务状态码
	Msg  string      `json:"msg"`            // 中文提示信息
	Data interface{} `json:"data,omitempty"` // 数据载荷
}

// 业务状态码定义
const (
	CodeSuccess   = 200
	CodeCreated   = 201
	CodeNoContent = 204

	CodeBadRequest   = 400
	CodeUnauthorized = 401
	CodeForbidden    = 403
	CodeNotFound     = 404
	CodeConflict     = 409
	CodeGone         = 410
	CodeTooMany      = 429

	CodeInternalError = 500
)

// Success 成功响应（200）
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: CodeSuccess,
		Msg:  "成功",
		Data: data,
	})
}

// Created 创建成功响应（201）
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code: CodeCreated,
		Msg:  "创建成功",
		Data: data,
	})
}

// NoContent 删除成功响应（204）
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// BadRequest 请求参数错误（400）
func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Code: CodeBadRequest, Msg: msg})
}

// Unauthorized 未认证错误（401）
func Unauthorized(c *gin.Context, msg string) {
	c.JSON(http.StatusUnauthorized, Response{Code: CodeUnauthorized, Msg: msg})
}

// Forbidden 无权限错误（403）
func Forbidden(c *gin.Context, msg string) {
	c.JSON(http.StatusForbidden, Response{Code: CodeForbidden, Msg: msg})
}

// NotFound 资源不存在错误（404）
func NotFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, Response{Code: CodeNotFound, Msg: msg})
}

// Conflict 资源冲突错误（409）
func Conflict(c *gin.Context, msg string) {
	c.JSON(http.StatusConflict, Response{Code: CodeConflict, Msg: msg})
}

// Gone 资源已过期（410）
func Gone(c *gin.Context, msg string) {
	c.JSON(http.StatusGone, Response{Code: CodeGone, Msg: msg})
}

// TooManyRequests 触发限流（429），data 携带限流详情
func TooManyRequests(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusTooManyRequests, Response{Code: CodeTooMany, Msg: msg, Data: data})
}

// InternalError 服务器内部错误（500）
func InternalError(c *gin.Context, msg string) {
	c.JSON(http.StatusInternalServerError, Response{Code: CodeInternalError, Msg: msg})
}
