// Package ratelimit throttles chat requests per user with token
// buckets. The gateway checks the limiter before opening a stream so a
// rejected request costs a 429, not an SSE connection.
package ratelimit

import (
	"strings"
	"sync"
	"time"
)

// Config configures per-user throttling.
type Config struct {
	// RequestsPerSecond is the sustained refill rate per user.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	// BurstSize is how many requests one user may send at once.
	BurstSize int `yaml:"burst_size"`
	// Enabled controls whether limiting is active.
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns limits tuned for interactive chat: a message a
// second sustained, short bursts tolerated.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 1.0,
		BurstSize:         5,
		Enabled:           true,
	}
}

// Bucket is one token bucket.
type Bucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
}

// NewBucket creates a bucket from the config.
func NewBucket(config Config) *Bucket {
	return newBucket(config, time.Now)
}

func newBucket(config Config, now func() time.Time) *Bucket {
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 1.0
	}
	if config.BurstSize <= 0 {
		config.BurstSize = int(config.RequestsPerSecond * 2)
		if config.BurstSize < 1 {
			config.BurstSize = 1
		}
	}
	return &Bucket{
		tokens:     float64(config.BurstSize),
		maxTokens:  float64(config.BurstSize),
		refillRate: config.RequestsPerSecond,
		lastRefill: now(),
		now:        now,
	}
}

// Allow consumes a token when one is available.
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// refill adds tokens for the elapsed time. Caller holds the lock.
func (b *Bucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now

	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
}

// Tokens returns the current token count.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.tokens
}

// WaitTime returns how long until the next request would be allowed.
func (b *Bucket) WaitTime() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()

	if b.tokens >= 1 {
		return 0
	}
	needed := 1 - b.tokens
	return time.Duration(needed / b.refillRate * float64(time.Second))
}

// Limiter keys buckets by user id.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*Bucket
	config  Config
	maxKeys int
	now     func() time.Time
}

// NewLimiter creates a keyed limiter.
func NewLimiter(config Config) *Limiter {
	return &Limiter{
		buckets: make(map[string]*Bucket),
		config:  config,
		maxKeys: 10000,
		now:     time.Now,
	}
}

// Allow reports whether the user may send a request now, consuming a
// token when they may.
func (l *Limiter) Allow(userID string) bool {
	if !l.config.Enabled {
		return true
	}
	return l.getBucket(userID).Allow()
}

// WaitTime returns how long the user must wait, zero when allowed.
func (l *Limiter) WaitTime(userID string) time.Duration {
	if !l.config.Enabled {
		return 0
	}
	return l.getBucket(userID).WaitTime()
}

// Reset clears the user's bucket.
func (l *Limiter) Reset(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, userID)
}

func (l *Limiter) getBucket(key string) *Bucket {
	l.mu.RLock()
	bucket, exists := l.buckets[key]
	l.mu.RUnlock()
	if exists {
		return bucket
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if bucket, exists = l.buckets[key]; exists {
		return bucket
	}
	if len(l.buckets) >= l.maxKeys {
		l.prune()
	}
	bucket = newBucket(l.config, l.now)
	l.buckets[key] = bucket
	return bucket
}

// prune drops buckets that are essentially full: those users have been
// idle long enough to refill and can be recreated cheaply.
func (l *Limiter) prune() {
	for key, bucket := range l.buckets {
		if bucket.Tokens() >= bucket.maxTokens*0.9 {
			delete(l.buckets, key)
		}
	}
}

// Status is the throttling state reported for one user.
type Status struct {
	UserID          string        `json:"user_id"`
	AllowedNow      bool          `json:"allowed_now"`
	TokensRemaining float64       `json:"tokens_remaining"`
	WaitTime        time.Duration `json:"wait_time"`
}

// GetStatus returns the user's current throttling state without
// consuming a token.
func (l *Limiter) GetStatus(userID string) Status {
	if !l.config.Enabled {
		return Status{
			UserID:          userID,
			AllowedNow:      true,
			TokensRemaining: l.config.RequestsPerSecond,
		}
	}

	bucket := l.getBucket(userID)
	tokens := bucket.Tokens()
	return Status{
		UserID:          userID,
		AllowedNow:      tokens >= 1,
		TokensRemaining: tokens,
		WaitTime:        bucket.WaitTime(),
	}
}

// CompositeKey joins key parts, for limits scoped finer than a user.
func CompositeKey(parts ...string) string {
	return strings.Join(parts, ":")
}
