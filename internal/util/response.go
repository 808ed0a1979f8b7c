package util

import (
	"net/http"

	"assessment_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Error   Kind        `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    http.StatusCreated,
		Message: "created",
		Data:    data,
	})
}

func ErrorJSON(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

func Unauthorized(c *gin.Context) {
	ErrorJSON(c, http.StatusUnauthorized, "Unauthorized")
}

func Forbidden(c *gin.Context) {
	ErrorJSON(c, http.StatusForbidden, "Forbidden")
}

func BadRequest(c *gin.Context, message string) {
	ErrorJSON(c, http.StatusBadRequest, message)
}

func InternalServerError(c *gin.Context) {
	ErrorJSON(c, http.StatusInternalServerError, "Internal server error")
}

func LogInternalError(c *gin.Context, err error) {
	logger.Log.Error("Internal server error",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	InternalServerError(c)
}

// StatusFor 业务错误分类对应的 HTTP 状态码
func StatusFor(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindSchedulingConflict:
		return http.StatusConflict
	case KindInvalid:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// FromError 将服务层错误写为响应；未分类错误记录日志并返回 500
func FromError(c *gin.Context, err error) {
	kind := KindOf(err)
	if kind == "" {
		LogInternalError(c, err)
		return
	}
	code := StatusFor(kind)
	c.JSON(code, Response{
		Code:    code,
		Message: err.Error(),
		Error:   kind,
	})
}
