package auth

import (
	"sync"
	"time"
)

// CachedToken 缓存的 bearer token 及其失效时间
type CachedToken struct {
	Value     string
	ExpiresAt time.Time
}

// UsableAt 仅当 token 非空且 now 早于失效时间时可用
func (t CachedToken) UsableAt(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

// TokenCache 持有单个应用级 token
// 读写都在锁内完成，token 只会被整体替换
type TokenCache struct {
	mu      sync.RWMutex
	current CachedToken
}

func NewTokenCache() *TokenCache {
	return &TokenCache{}
}

// Get 返回可复用的 token
func (c *TokenCache) Get(now time.Time) (string, bool) {
	tok, ok := c.usable(now)
	return tok.Value, ok
}

// usable 在同一次加锁内读出 token 与失效时间
func (c *TokenCache) usable(now time.Time) (CachedToken, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current.UsableAt(now) {
		return c.current, true
	}
	return CachedToken{}, false
}

// Store 整体替换缓存内容，空 token 会被忽略
func (c *TokenCache) Store(tok CachedToken) {
	if tok.Value == "" {
		return
	}
	c.mu.Lock()
	c.current = tok
	c.mu.Unlock()
}

// Snapshot 返回当前缓存内容的副本
func (c *TokenCache) Snapshot() CachedToken {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}
