package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Group 端点分组
type Group string

const (
	GroupVotes  Group = "votes"
	GroupTrades Group = "trades"
	GroupReads  Group = "reads"
)

// Limiter 速率限制器接口
type Limiter interface {
	Wait(ctx context.Context) error
	Allow() bool
}

// TokenBucket 令牌桶速率限制器（按时间连续补充）
type TokenBucket struct {
	capacity   float64
	tokens     float64
	perSecond  float64
	lastRefill time.Time
	now        func() time.Time
	mu         sync.Mutex
}

// NewTokenBucket 创建令牌桶，perSecond<=0 表示不限速
func NewTokenBucket(perSecond float64, burst int) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{
		capacity:   float64(burst),
		tokens:     float64(burst),
		perSecond:  perSecond,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	tb.tokens += elapsed * tb.perSecond
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}

// Allow 尝试取一个令牌
func (tb *TokenBucket) Allow() bool {
	if tb.perSecond <= 0 {
		return true
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// delay 距离下一个令牌的时间
func (tb *TokenBucket) delay() time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	missing := 1 - tb.tokens
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / tb.perSecond * float64(time.Second))
}

// Wait 阻塞直到拿到令牌或 ctx 结束
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		if tb.Allow() {
			return nil
		}
		wait := tb.delay()
		if wait <= 0 {
			wait = time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Limits 每个分组每秒请求数
type Limits struct {
	VotesPerSec  float64
	TradesPerSec float64
	ReadsPerSec  float64
}

// Manager 按端点分组管理限速器
type Manager struct {
	limiters map[Group]Limiter
	mu       sync.RWMutex
}

// NewManager 根据配置创建管理器
func NewManager(l Limits) *Manager {
	return &Manager{
		limiters: map[Group]Limiter{
			GroupVotes:  NewTokenBucket(l.VotesPerSec, burstFor(l.VotesPerSec)),
			GroupTrades: NewTokenBucket(l.TradesPerSec, burstFor(l.TradesPerSec)),
			GroupReads:  NewTokenBucket(l.ReadsPerSec, burstFor(l.ReadsPerSec)),
		},
	}
}

func burstFor(perSec float64) int {
	if perSec < 1 {
		return 1
	}
	return int(perSec)
}

// Set 替换某个分组的限速器
func (m *Manager) Set(g Group, l Limiter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[g] = l
}

// Wait 等待分组令牌；未知分组不限速
func (m *Manager) Wait(ctx context.Context, g Group) error {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	l, ok := m.limiters[g]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return l.Wait(ctx)
}
