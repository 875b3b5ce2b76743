package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一的成功响应
type Response struct {
	Code int `json:"code"`
	Data any `json:"data"`
}

// Success 以 {"code":0,"data":...} 返回
func Success(data any, c *gin.Context) {
	c.JSON(http.StatusOK, Response{Code: 0, Data: data})
}

// Failed 统一的失败响应，非 ApiException 的错误按 500 处理
func Failed(err error, c *gin.Context) {
	var e *ApiException
	if !errors.As(err, &e) {
		e = ErrServerInternal("%s", err.Error())
	}

	httpCode := e.HttpCode
	if httpCode == 0 {
		httpCode = http.StatusInternalServerError
	}

	c.JSON(httpCode, e)
	c.Abort()
}

// ApiException 管理接口的业务异常
type ApiException struct {
	// 业务错误码: 40000 参数错误, 40400 不存在, 50000 内部错误
	Code    int    `json:"code"`
	Message string `json:"message"`
	// 只用于设置 HTTP 状态码
	HttpCode int `json:"-"`
}

func (e *ApiException) Error() string {
	return e.Message
}

func (e *ApiException) String() string {
	dj, _ := json.MarshalIndent(e, "", "  ")
	return string(dj)
}

func (e *ApiException) WithMessage(msg string) *ApiException {
	e.Message = msg
	return e
}

func (e *ApiException) WithHttpCode(httpCode int) *ApiException {
	e.HttpCode = httpCode
	return e
}

func ErrServerInternal(format string, a ...any) *ApiException {
	return &ApiException{Code: 50000, Message: fmt.Sprintf(format, a...), HttpCode: http.StatusInternalServerError}
}

func ErrNotFound(format string, a ...any) *ApiException {
	return &ApiException{Code: 40400, Message: fmt.Sprintf(format, a...), HttpCode: http.StatusNotFound}
}

func ErrValidateFailed(format string, a ...any) *ApiException {
	return &ApiException{Code: 40000, Message: fmt.Sprintf(format, a...), HttpCode: http.StatusBadRequest}
}
