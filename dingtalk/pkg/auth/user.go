package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"dingtalk-mcp/dingtalk/config"
	"dingtalk-mcp/tools/logger"
	"dingtalk-mcp/tools/metrics"

	"golang.org/x/oauth2"
)

// UserAuthenticator 用授权码换取用户级 access token
// 授权码一次性有效，因此每次都重新请求，不做缓存
type UserAuthenticator struct {
	creds      config.Credentials
	tokenURL   string
	httpClient *http.Client
	logger     *logger.Logger
	now        func() time.Time
}

func NewUserAuthenticator(cfg *config.Config, httpClient *http.Client, log *logger.Logger) *UserAuthenticator {
	return &UserAuthenticator{
		creds:      cfg.Credentials,
		tokenURL:   cfg.APIBaseURL + userTokenPath,
		httpClient: httpClient,
		logger:     log.Named("user-auth"),
		now:        time.Now,
	}
}

// ExchangeUserToken 返回用户级 access token
func (u *UserAuthenticator) ExchangeUserToken(ctx context.Context, code string) (string, error) {
	tok, err := u.Exchange(ctx, code)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Exchange 执行 authorization_code 授权并返回完整 token
func (u *UserAuthenticator) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrMissingCode
	}

	u.logger.Info("Exchanging authorization code for user access token")

	resp, err := postTokenRequest(ctx, u.httpClient, u.tokenURL, map[string]string{
		"clientId":     u.creds.AppKey,
		"clientSecret": u.creds.AppSecret,
		"code":         code,
		"grantType":    "authorization_code",
	})
	metrics.TokenExchanges.WithLabelValues("user", metrics.Outcome(err)).Inc()
	if err != nil {
		u.logger.Error("Failed to get user token: %v", err)
		return nil, err
	}

	tok := &oauth2.Token{
		AccessToken:  resp.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: resp.RefreshToken,
	}
	if resp.ExpireIn > 0 {
		tok.Expiry = u.now().Add(time.Duration(resp.ExpireIn) * time.Second)
	}
	if resp.CorpID != "" {
		tok = tok.WithExtra(map[string]interface{}{"corpId": resp.CorpID})
	}
	return tok, nil
}
