package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"dingtalk-mcp/tools/apierr"
	"dingtalk-mcp/tools/httpclient"
)

const (
	appTokenPath  = "/v1.0/oauth2/accessToken"
	userTokenPath = "/v1.0/oauth2/userAccessToken"
)

// tokenResponse 钉钉 OAuth2 接口的响应体
// 应用 token 与用户 token 接口共用同一结构，后者额外带 refreshToken/corpId
type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpireIn     int64  `json:"expireIn"`
	CorpID       string `json:"corpId,omitempty"`
}

// postTokenRequest 发送令牌交换请求并校验响应
// 任何失败都包装成 ErrTokenExchange
func postTokenRequest(ctx context.Context, client *http.Client, url string, payload any) (*tokenResponse, error) {
	body, status, err := httpclient.PostJSON(ctx, client, url, payload, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to send token request: %v", ErrTokenExchange, err)
	}

	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchange, apierr.FromResponse(status, body))
	}

	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty response body", ErrTokenExchange)
	}

	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode token response: %v", ErrTokenExchange, err)
	}

	if resp.AccessToken == "" {
		return nil, fmt.Errorf("%w: accessToken missing in response", ErrTokenExchange)
	}

	return &resp, nil
}
