package security

import (
	"sync"
	"time"
)

// Limits applied to every WebSocket connection, validated input or not.
const (
	// MaxInputMessageSize is the maximum size in bytes for one inbound
	// command or raw data message. Larger messages are rejected.
	MaxInputMessageSize = 64 * 1024 // 64 KB

	// MaxTermCols is the maximum allowed terminal width.
	MaxTermCols = 500
	// MaxTermRows is the maximum allowed terminal height.
	MaxTermRows = 200

	// MessageRateLimit is the maximum messages per second from a client.
	MessageRateLimit = 100
	// MessageRateBurst is the burst allowance for the rate limiter.
	MessageRateBurst = 200
)

// RateLimiter implements a token bucket rate limiter for client messages.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// NewRateLimiter creates a rate limiter with the given rate (tokens/sec)
// and burst size.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return &RateLimiter{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: rate,
		lastRefill: time.Now(),
	}
}

// Allow returns true if a message is permitted, consuming one token.
// Returns false if the rate limit has been exceeded.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.lastRefill = now

	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}

	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}
