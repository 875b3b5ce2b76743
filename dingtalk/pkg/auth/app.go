package auth

import (
	"context"
	"net/http"
	"time"

	"dingtalk-mcp/dingtalk/config"
	"dingtalk-mcp/tools/logger"
	"dingtalk-mcp/tools/metrics"

	"golang.org/x/oauth2"
)

// AppAuthenticator 获取并缓存应用级 access token (client credentials)
type AppAuthenticator struct {
	creds      config.Credentials
	tokenURL   string
	margin     time.Duration
	httpClient *http.Client
	cache      *TokenCache
	logger     *logger.Logger
	now        func() time.Time
}

var _ oauth2.TokenSource = (*AppAuthenticator)(nil)

// NewAppAuthenticator 创建应用级认证器，整个进程共享一个实例
func NewAppAuthenticator(cfg *config.Config, httpClient *http.Client, log *logger.Logger) *AppAuthenticator {
	return &AppAuthenticator{
		creds:      cfg.Credentials,
		tokenURL:   cfg.APIBaseURL + appTokenPath,
		margin:     cfg.TokenSafetyMargin,
		httpClient: httpClient,
		cache:      NewTokenCache(),
		logger:     log.Named("app-auth"),
		now:        time.Now,
	}
}

// AppAccessToken 返回可用的应用级 token
// 缓存有效时不发起网络请求；否则同步交换一次，失败直接返回错误且不改动缓存
func (a *AppAuthenticator) AppAccessToken(ctx context.Context) (string, error) {
	tok, err := a.appToken(ctx)
	if err != nil {
		return "", err
	}
	return tok.Value, nil
}

// appToken 返回本次调用读到或写入的那一份 token，值与失效时间来自同一次交换
func (a *AppAuthenticator) appToken(ctx context.Context) (CachedToken, error) {
	now := a.now()
	if tok, ok := a.cache.usable(now); ok {
		metrics.TokenCacheHits.Inc()
		a.logger.Debug("Using cached app access token")
		return tok, nil
	}

	a.logger.Info("Fetching new app access token")

	resp, err := postTokenRequest(ctx, a.httpClient, a.tokenURL, map[string]string{
		"appKey":    a.creds.AppKey,
		"appSecret": a.creds.AppSecret,
	})
	metrics.TokenExchanges.WithLabelValues("app", metrics.Outcome(err)).Inc()
	if err != nil {
		a.logger.Error("Failed to get app access token: %v", err)
		return CachedToken{}, err
	}

	// 余量在换算成时间之后再扣除
	tok := CachedToken{
		Value:     resp.AccessToken,
		ExpiresAt: now.Add(time.Duration(resp.ExpireIn)*time.Second - a.margin),
	}
	a.cache.Store(tok)
	a.logger.Info("Successfully obtained app access token, expires at: %v", tok.ExpiresAt)

	return tok, nil
}

// Token 实现 oauth2.TokenSource
func (a *AppAuthenticator) Token() (*oauth2.Token, error) {
	tok, err := a.appToken(context.Background())
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: tok.Value, TokenType: "Bearer", Expiry: tok.ExpiresAt}, nil
}

// Cached 返回当前缓存的 token，仅用于观测
func (a *AppAuthenticator) Cached() CachedToken {
	return a.cache.Snapshot()
}
