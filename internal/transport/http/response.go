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
	CodeSuccess = 200 // 成功
	CodeCreated = 201 // 创建成功

	CodeBadRequest      = 400 // 请求参数错误
	CodeUnauthorized    = 401 // 未认证
	CodeForbidden       = 403 // 无权限
	CodeNotFound        = 404 // 资源不存在
	CodeTooManyRequests = 429 // 触发限制

	CodeInternalError = 500 // 服务器内部错误
	CodeBadGateway    = 502 // 上游投递失败
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

// BadRequest 请求参数错误（400）
func BadRequest(c *gin.Context, msg string) {
	errorResponse(c, http.StatusBadRequest, CodeBadRequest, msg)
}

// Unauthorized 未认证错误（401）
func Unauthorized(c *gin.Context, msg string) {
	errorResponse(c, http.StatusUnauthorized, CodeUnauthorized, msg)
}

// Forbidden 无权限错误（403）
func Forbidden(c *gin.Context, msg string) {
	errorResponse(c, http.StatusForbidden, CodeForbidden, msg)
}

// NotFound 资源不存在错误（404）
func NotFound(c *gin.Context, msg string) {
	errorResponse(c, http.StatusNotFound, CodeNotFound, msg)
}

// TooManyRequests 触发限制（429）
func TooManyRequests(c *gin.Context, msg string) {
	errorResponse(c, http.StatusTooManyRequests, CodeTooManyRequests, msg)
}

// InternalError 服务器内部错误（500）
func InternalError(c *gin.Context, msg string) {
	errorResponse(c, http.StatusInternalServerError, CodeInternalError, msg)
}

// BadGateway 上游投递失败（502）
func BadGateway(c *gin.Context, msg string) {
	errorResponse(c, http.StatusBadGateway, CodeBadGateway, msg)
}

func errorResponse(c *gin.Context, httpCode, bizCode int, msg string) {
	c.JSON(httpCode, Response{
		Code: bizCode,
		Msg:  msg,
	})
}
