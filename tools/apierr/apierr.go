package apierr

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// APIError 描述钉钉开放接口返回的业务异常
// 新版接口 (api.dingtalk.com) 返回 {"code","message","requestid"}，
// 旧版接口 (oapi.dingtalk.com) 返回 {"errcode","errmsg"}，两者统一到这里
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestid,omitempty"`
	// 不参与序列化
	HTTPStatus int `json:"-"`
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString("dingtalk api error:")
	if e.HTTPStatus != 0 {
		fmt.Fprintf(&b, " status=%d,", e.HTTPStatus)
	}
	fmt.Fprintf(&b, " code=%s, msg=%s", e.Code, e.Message)
	if e.RequestID != "" {
		fmt.Fprintf(&b, ", request_id=%s", e.RequestID)
	}
	return b.String()
}

func (e *APIError) String() string {
	dj, _ := json.MarshalIndent(e, "", "  ")
	return string(dj)
}

func (e *APIError) WithHTTPStatus(status int) *APIError {
	e.HTTPStatus = status
	return e
}

// FromResponse 解析新版接口的错误响应体，解析失败时保留原始响应
func FromResponse(status int, body []byte) *APIError {
	e := &APIError{HTTPStatus: status}
	if err := json.Unmarshal(body, e); err != nil || (e.Code == "" && e.Message == "") {
		e.Code = strconv.Itoa(status)
		e.Message = truncate(string(body), 256)
	}
	return e
}

// FromErrcode 构造旧版接口的业务错误
func FromErrcode(code Errcode, msg string) *APIError {
	return &APIError{Code: strconv.FormatInt(int64(code), 10), Message: msg}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Errcode 旧版接口的 errcode，可能是数字也可能是字符串
type Errcode int64

// OK 是否为成功码
func (c Errcode) OK() bool { return c == 0 }

func (c *Errcode) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*c = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid errcode %q: %w", s, err)
	}
	*c = Errcode(n)
	return nil
}
