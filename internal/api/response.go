package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"resumatch/internal/errcode"
)

func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func AbortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

func Unauthorized(c *gin.Context)           { Error(c, http.StatusUnauthorized, "unauthorized") }
func BadRequest(c *gin.Context, msg string) { Error(c, http.StatusBadRequest, msg) }
func Forbidden(c *gin.Context, msg string)  { Error(c, http.StatusForbidden, msg) }
func NotFound(c *gin.Context, msg string)   { Error(c, http.StatusNotFound, msg) }
func Conflict(c *gin.Context, msg string)   { Error(c, http.StatusConflict, msg) }
func Internal(c *gin.Context, msg string)   { Error(c, http.StatusInternalServerError, msg) }

// RespondError 把业务层哨兵错误翻译为 HTTP 状态码。
// 未识别的错误一律按内部错误处理，细节不回给客户端。
func RespondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errcode.ErrInvalidInput):
		BadRequest(c, err.Error())
	case errors.Is(err, errcode.ErrDuplicateEmail):
		Conflict(c, err.Error())
	case errors.Is(err, errcode.ErrInvalidCredentials):
		Unauthorized(c)
	case errors.Is(err, errcode.ErrAccountDisabled):
		Forbidden(c, err.Error())
	case errors.Is(err, errcode.ErrAuthenticationRequired):
		Unauthorized(c)
	case errors.Is(err, errcode.ErrNotFound):
		NotFound(c, err.Error())
	case errors.Is(err, errcode.ErrAccessDenied):
		Forbidden(c, err.Error())
	case errors.Is(err, errcode.ErrNotAuthorized):
		Forbidden(c, err.Error())
	default:
		Internal(c, "internal error")
	}
}
