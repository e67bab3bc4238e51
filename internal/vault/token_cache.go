package vault

import (
	"sync"
	"time"
)

// TokenCache holds the session token in memory with an expiry guard so a
// token nearing the end of its lease is re-validated instead of reused.
type TokenCache struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// NewTokenCache creates a new empty token cache
func NewTokenCache() *TokenCache {
	return &TokenCache{}
}

// Get returns the cached token if present and unexpired.
func (c *TokenCache) Get() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.token == "" || time.Now().After(c.expiresAt) {
		return "", false
	}
	return c.token, true
}

// Set stores a token for ttl. A small buffer is subtracted so the token
// refreshes before its actual lease runs out.
func (c *TokenCache) Set(token string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	buffer := 5 * time.Second
	if ttl > buffer {
		ttl -= buffer
	}
	c.token = token
	c.expiresAt = time.Now().Add(ttl)
}

// Clear removes the cached token
func (c *TokenCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = ""
	c.expiresAt = time.Time{}
}

// TTL returns the remaining time until the token expires.
func (c *TokenCache) TTL() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.token == "" {
		return 0
	}
	remaining := time.Until(c.expiresAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func timeSeconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
