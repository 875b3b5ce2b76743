package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dingtalk-mcp/dingtalk/config"
	"dingtalk-mcp/tools/logger"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type tokenServer struct {
	*httptest.Server
	calls atomic.Int32
	mu    sync.Mutex
	last  map[string]string
}

func newTokenServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.calls.Add(1)
		raw, _ := io.ReadAll(r.Body)
		var body map[string]string
		_ = json.Unmarshal(raw, &body)
		ts.mu.Lock()
		ts.last = body
		ts.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func testConfig(baseURL string, margin time.Duration) *config.Config {
	return &config.Config{
		Credentials:       config.Credentials{AppKey: "app-key", AppSecret: "app-secret"},
		APIBaseURL:        baseURL,
		TokenSafetyMargin: margin,
	}
}

func testLogger() *logger.Logger {
	return logger.NewLoggerWithWriter("debug", io.Discard)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestAppAccessTokenReusesCachedToken(t *testing.T) {
	srv := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"accessToken":"fresh","expireIn":7200}`))
	})
	a := NewAppAuthenticator(testConfig(srv.URL, 5*time.Minute), srv.Client(), testLogger())
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	a.now = fixedClock(now)
	a.cache.Store(CachedToken{Value: "cached", ExpiresAt: now.Add(time.Minute)})

	got, err := a.AppAccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "cached", got)
	require.Zero(t, srv.calls.Load())
}

func TestAppAccessTokenRefreshAppliesMargin(t *testing.T) {
	srv := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, appTokenPath, r.URL.Path)
		_, _ = w.Write([]byte(`{"accessToken":"fresh","expireIn":7200}`))
	})
	a := NewAppAuthenticator(testConfig(srv.URL, 5*time.Minute), srv.Client(), testLogger())
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	a.now = fixedClock(now)

	got, err := a.AppAccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fresh", got)
	require.EqualValues(t, 1, srv.calls.Load())
	require.Equal(t, "app-key", srv.last["appKey"])
	require.Equal(t, "app-secret", srv.last["appSecret"])

	cached := a.Cached()
	require.Equal(t, "fresh", cached.Value)
	require.Equal(t, now.Add(7200*time.Second-5*time.Minute), cached.ExpiresAt)

	// 第二次调用命中缓存
	_, err = a.AppAccessToken(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, srv.calls.Load())
}

func TestAppAccessTokenRefreshesExpiredToken(t *testing.T) {
	srv := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"accessToken":"fresh","expireIn":7200}`))
	})
	a := NewAppAuthenticator(testConfig(srv.URL, 0), srv.Client(), testLogger())
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	a.now = fixedClock(now)
	a.cache.Store(CachedToken{Value: "stale", ExpiresAt: now})

	got, err := a.AppAccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fresh", got)
	require.EqualValues(t, 1, srv.calls.Load())
	require.Equal(t, now.Add(7200*time.Second), a.Cached().ExpiresAt)
}

func TestAppAccessTokenMarginInvariant(t *testing.T) {
	var expireIn atomic.Int64
	srv := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"accessToken": "t", "expireIn": expireIn.Load()})
	})
	margin := 5 * time.Minute
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	for _, secs := range []int64{301, 600, 3600, 7200, 86400} {
		expireIn.Store(secs)
		a := NewAppAuthenticator(testConfig(srv.URL, margin), srv.Client(), testLogger())
		a.now = fixedClock(now)

		_, err := a.AppAccessToken(context.Background())
		require.NoError(t, err)
		nominal := now.Add(time.Duration(secs) * time.Second)
		require.True(t, a.Cached().ExpiresAt.Before(nominal), "expireIn=%d", secs)
		require.True(t, a.Cached().UsableAt(now), "expireIn=%d", secs)
	}
}

func TestAppAccessTokenFailureKeepsCache(t *testing.T) {
	cases := []struct {
		name    string
		handler func(w http.ResponseWriter, r *http.Request)
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":"invalidClientIdOrSecret","message":"无效的appKey或appSecret"}`))
		}},
		{"empty body", func(w http.ResponseWriter, r *http.Request) {}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"accessToken":`))
		}},
		{"missing token", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"expireIn":7200}`))
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTokenServer(t, tc.handler)
			a := NewAppAuthenticator(testConfig(srv.URL, 0), srv.Client(), testLogger())
			now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
			a.now = fixedClock(now)
			stale := CachedToken{Value: "stale", ExpiresAt: now.Add(-time.Second)}
			a.cache.Store(stale)

			_, err := a.AppAccessToken(context.Background())
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrTokenExchange), err.Error())
			require.Equal(t, stale, a.Cached())

			// 下一次调用重新尝试交换
			_, err = a.AppAccessToken(context.Background())
			require.Error(t, err)
			require.EqualValues(t, 2, srv.calls.Load())
		})
	}
}

func TestAppAccessTokenTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	a := NewAppAuthenticator(testConfig(base, 0), nil, testLogger())
	_, err := a.AppAccessToken(context.Background())
	require.ErrorIs(t, err, ErrTokenExchange)
	require.Empty(t, a.Cached().Value)
}

func TestAppAccessTokenCachedConcurrent(t *testing.T) {
	srv := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"accessToken":"fresh","expireIn":7200}`))
	})
	a := NewAppAuthenticator(testConfig(srv.URL, 0), srv.Client(), testLogger())
	a.cache.Store(CachedToken{Value: "token123", ExpiresAt: time.Now().Add(10 * time.Minute)})

	ctx := context.Background()
	ch := make(chan string, 20)
	for i := 0; i < 20; i++ {
		go func() {
			tok, err := a.AppAccessToken(ctx)
			if err != nil {
				ch <- "error: " + err.Error()
				return
			}
			ch <- tok
		}()
	}
	for i := 0; i < 20; i++ {
		require.Equal(t, "token123", <-ch)
	}
	require.Zero(t, srv.calls.Load())
}

// issuingServer 每次交换签发不同的 token 与有效期，并记录签发过的组合
type issuingServer struct {
	*tokenServer
	mu     sync.Mutex
	issued map[string]int64
}

func newIssuingServer(t *testing.T) *issuingServer {
	t.Helper()
	is := &issuingServer{issued: map[string]int64{}}
	var seq atomic.Int32
	is.tokenServer = newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		n := seq.Add(1)
		value := fmt.Sprintf("tok-%d", n)
		expireIn := int64(7200 + n)
		is.mu.Lock()
		is.issued[value] = expireIn
		is.mu.Unlock()
		// 拉长交换耗时，让并发调用都落在缓存为空的窗口内
		time.Sleep(5 * time.Millisecond)
		_, _ = fmt.Fprintf(w, `{"accessToken":%q,"expireIn":%d}`, value, expireIn)
	})
	return is
}

func (is *issuingServer) expiry(now time.Time, value string) (time.Time, bool) {
	is.mu.Lock()
	defer is.mu.Unlock()
	expireIn, ok := is.issued[value]
	return now.Add(time.Duration(expireIn) * time.Second), ok
}

func TestAppAccessTokenConcurrentRefresh(t *testing.T) {
	srv := newIssuingServer(t)
	a := NewAppAuthenticator(testConfig(srv.URL, 0), srv.Client(), testLogger())
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	a.now = fixedClock(now)

	const workers = 20
	results := make(chan string, workers)
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := a.AppAccessToken(context.Background())
			if err != nil {
				errs <- err
				return
			}
			results <- tok
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	got := 0
	for tok := range results {
		got++
		require.NotEmpty(t, tok)
		_, ok := srv.expiry(now, tok)
		require.True(t, ok, "token %q was never issued", tok)
	}
	require.Equal(t, workers, got)
	require.GreaterOrEqual(t, srv.calls.Load(), int32(1))

	// 最后一次写入胜出，缓存中的值与失效时间来自同一次签发
	cached := a.Cached()
	want, ok := srv.expiry(now, cached.Value)
	require.True(t, ok, "cached token %q was never issued", cached.Value)
	require.Equal(t, want, cached.ExpiresAt)
}

func TestAppAuthenticatorTokenSourceConcurrentPairs(t *testing.T) {
	srv := newIssuingServer(t)
	a := NewAppAuthenticator(testConfig(srv.URL, 0), srv.Client(), testLogger())
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	a.now = fixedClock(now)

	const workers = 20
	tokens := make(chan *oauth2.Token, workers)
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := a.Token()
			if err != nil {
				errs <- err
				return
			}
			tokens <- tok
		}()
	}
	wg.Wait()
	close(tokens)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	for tok := range tokens {
		want, ok := srv.expiry(now, tok.AccessToken)
		require.True(t, ok)
		require.Equal(t, want, tok.Expiry, "expiry of %s", tok.AccessToken)
	}
}

func TestAppAuthenticatorTokenSource(t *testing.T) {
	srv := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"accessToken":"fresh","expireIn":7200}`))
	})
	a := NewAppAuthenticator(testConfig(srv.URL, time.Minute), srv.Client(), testLogger())
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	a.now = fixedClock(now)

	tok, err := a.Token()
	require.NoError(t, err)
	require.Equal(t, "fresh", tok.AccessToken)
	require.Equal(t, now.Add(7200*time.Second-time.Minute), tok.Expiry)
}

func TestExchangeUserTokenAlwaysExchanges(t *testing.T) {
	srv := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, userTokenPath, r.URL.Path)
		_, _ = w.Write([]byte(`{"accessToken":"user-token","refreshToken":"r","expireIn":7200,"corpId":"ding1"}`))
	})
	cfg := testConfig(srv.URL, 0)
	u := NewUserAuthenticator(cfg, srv.Client(), testLogger())

	for i := 0; i < 2; i++ {
		got, err := u.ExchangeUserToken(context.Background(), "code-abc")
		require.NoError(t, err)
		require.Equal(t, "user-token", got)
	}
	require.EqualValues(t, 2, srv.calls.Load())
	require.Equal(t, "app-key", srv.last["clientId"])
	require.Equal(t, "app-secret", srv.last["clientSecret"])
	require.Equal(t, "code-abc", srv.last["code"])
	require.Equal(t, "authorization_code", srv.last["grantType"])
}

func TestExchangeReturnsFullToken(t *testing.T) {
	srv := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"accessToken":"user-token","refreshToken":"r","expireIn":60,"corpId":"ding1"}`))
	})
	u := NewUserAuthenticator(testConfig(srv.URL, 0), srv.Client(), testLogger())
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	u.now = fixedClock(now)

	tok, err := u.Exchange(context.Background(), "code")
	require.NoError(t, err)
	require.Equal(t, "r", tok.RefreshToken)
	require.Equal(t, now.Add(time.Minute), tok.Expiry)
	require.Equal(t, "ding1", tok.Extra("corpId"))
}

func TestExchangeUserTokenFailures(t *testing.T) {
	srv := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"refreshToken":"r"}`))
	})
	u := NewUserAuthenticator(testConfig(srv.URL, 0), srv.Client(), testLogger())

	_, err := u.ExchangeUserToken(context.Background(), "  ")
	require.ErrorIs(t, err, ErrMissingCode)
	require.Zero(t, srv.calls.Load())

	_, err = u.ExchangeUserToken(context.Background(), "code")
	require.ErrorIs(t, err, ErrTokenExchange)
	require.EqualValues(t, 1, srv.calls.Load())
}

func TestUserExchangeDoesNotTouchAppCache(t *testing.T) {
	srv := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == userTokenPath {
			_, _ = w.Write([]byte(`{"accessToken":"user-token","expireIn":7200}`))
			return
		}
		_, _ = w.Write([]byte(`{"accessToken":"app-token","expireIn":7200}`))
	})
	cfg := testConfig(srv.URL, 0)
	a := NewAppAuthenticator(cfg, srv.Client(), testLogger())
	u := NewUserAuthenticator(cfg, srv.Client(), testLogger())

	_, err := a.AppAccessToken(context.Background())
	require.NoError(t, err)
	before := a.Cached()

	_, err = u.ExchangeUserToken(context.Background(), "code")
	require.NoError(t, err)
	require.Equal(t, before, a.Cached())
}
