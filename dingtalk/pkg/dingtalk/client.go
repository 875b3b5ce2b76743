package dingtalk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"dingtalk-mcp/dingtalk/config"
	"dingtalk-mcp/tools/apierr"
	"dingtalk-mcp/tools/httpclient"
	"dingtalk-mcp/tools/logger"
	"dingtalk-mcp/tools/metrics"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
)

// 新版接口通过该请求头传递 access token
const accessTokenHeader = "x-acs-dingtalk-access-token"

// AppTokenProvider 提供应用级 access token
type AppTokenProvider interface {
	AppAccessToken(ctx context.Context) (string, error)
}

// UserTokenExchanger 用授权码换取用户级 access token
type UserTokenExchanger interface {
	ExchangeUserToken(ctx context.Context, code string) (string, error)
}

// Client 钉钉开放接口的 HTTP 封装
type Client struct {
	apiBase    string
	oapiBase   string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient 创建钉钉客户端
func NewClient(cfg *config.Config, httpClient *http.Client, log *logger.Logger) *Client {
	if httpClient == nil {
		httpClient = httpclient.NewClient(httpclient.Options{
			Timeout:             cfg.HTTPTimeout,
			MaxIdleConns:        cfg.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
			IdleConnTimeout:     cfg.IdleConnTimeout,
		})
	}
	return &Client{
		apiBase:    cfg.APIBaseURL,
		oapiBase:   cfg.OAPIBaseURL,
		httpClient: httpClient,
		logger:     log.Named("dingtalk"),
	}
}

// postOpenAPI 调用新版接口 (api.dingtalk.com)，token 放在请求头中
func (c *Client) postOpenAPI(ctx context.Context, endpoint, path, token string, payload, out any) (err error) {
	defer func() { metrics.VendorRequests.WithLabelValues(endpoint, metrics.Outcome(err)).Inc() }()

	c.logger.Debug("POST %s payload: %s", endpoint, larkcore.Prettify(payload))

	body, status, err := httpclient.PostJSON(ctx, c.httpClient, c.apiBase+path, payload,
		map[string]string{accessTokenHeader: token})
	if err != nil {
		return fmt.Errorf("failed to send %s request: %w", endpoint, err)
	}
	if status != http.StatusOK {
		return apierr.FromResponse(status, body)
	}

	c.logger.Debug("%s response: %s", endpoint, string(body))

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

// oapiEnvelope 旧版接口的公共响应字段
type oapiEnvelope struct {
	Errcode   apierr.Errcode `json:"errcode"`
	Errmsg    string         `json:"errmsg"`
	RequestID string         `json:"request_id"`
}

// postOAPI 调用旧版接口 (oapi.dingtalk.com)，token 放在查询参数中
// 非零 errcode 作为 *apierr.APIError 返回
func (c *Client) postOAPI(ctx context.Context, endpoint, path, token string, payload, out any) (err error) {
	defer func() { metrics.VendorRequests.WithLabelValues(endpoint, metrics.Outcome(err)).Inc() }()

	c.logger.Debug("POST %s payload: %s", endpoint, larkcore.Prettify(payload))

	u := fmt.Sprintf("%s%s?access_token=%s", c.oapiBase, path, url.QueryEscape(token))
	body, status, err := httpclient.PostJSON(ctx, c.httpClient, u, payload, nil)
	if err != nil {
		return fmt.Errorf("failed to send %s request: %w", endpoint, err)
	}
	if status != http.StatusOK {
		return apierr.FromResponse(status, body)
	}

	c.logger.Debug("%s response: %s", endpoint, string(body))

	var env oapiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	if !env.Errcode.OK() {
		e := apierr.FromErrcode(env.Errcode, env.Errmsg)
		e.RequestID = env.RequestID
		return e
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}
