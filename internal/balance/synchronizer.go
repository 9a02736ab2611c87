// Package balance 钱包余额同步：每个交易会话只拉取一次，之后只接受服务端确认的新余额。
package balance

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/memestreet/marketsync/internal/common"
	"github.com/memestreet/marketsync/internal/pricing"
)

var log = logrus.WithField("component", "balance")

// ErrNoSession 没有已登录会话
var ErrNoSession = errors.New("balance: no active session")

// Fetcher 余额查询（由账本客户端实现）
type Fetcher interface {
	GetBalance(ctx context.Context) (decimal.Decimal, error)
}

// SessionView 同步器需要的会话能力
type SessionView interface {
	// Identity 每次登录唯一，未登录为空
	Identity() string
	// CachedWalletBalance 会话缓存资料中的余额
	CachedWalletBalance() (decimal.Decimal, bool)
	// UpdateWalletBalance 回写会话资料，值未变化时不写
	UpdateWalletBalance(decimal.Decimal)
}

// Snapshot 余额快照
type Snapshot struct {
	Amount decimal.Decimal
	// Known=false 时余额未知，下游按 0 可负担处理
	Known bool
	// Fetched 本会话是否已成功拉取过
	Fetched   bool
	UpdatedAt time.Time
}

// Funds 转换为定价计算使用的可用余额
func (s Snapshot) Funds() pricing.Funds {
	return pricing.Funds{Amount: s.Amount, Known: s.Known}
}

// Synchronizer 余额同步器
type Synchronizer struct {
	fetcher Fetcher
	session SessionView
	timeout time.Duration
	once    common.KeyedOnce

	mu        sync.RWMutex
	key       string
	snap      Snapshot
	version   uint64
	listeners []func(Snapshot)
}

// New 创建同步器，timeout<=0 时不额外限制拉取时长
func New(fetcher Fetcher, session SessionView, timeout time.Duration) *Synchronizer {
	return &Synchronizer{fetcher: fetcher, session: session, timeout: timeout}
}

// OnChange 注册余额变化回调（在锁外同步调用）
func (s *Synchronizer) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// syncSessionLocked 会话切换时重置快照，并用会话缓存余额做初值
func (s *Synchronizer) syncSessionLocked(key string) {
	if key == s.key {
		return
	}
	s.key = key
	s.version++
	s.snap = Snapshot{}
	if key == "" {
		return
	}
	if cached, ok := s.session.CachedWalletBalance(); ok {
		s.snap = Snapshot{Amount: cached, Known: true, UpdatedAt: time.Now()}
	}
}

// Snapshot 当前余额
func (s *Synchronizer) Snapshot() Snapshot {
	key := s.session.Identity()
	s.mu.RLock()
	if key == s.key {
		defer s.mu.RUnlock()
		return s.snap
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncSessionLocked(key)
	return s.snap
}

// EnsureFetched 每个会话只拉取一次余额；重复调用为空操作。
// 拉取失败时保留最后已知值并标记为未知，之后的调用会重试。
func (s *Synchronizer) EnsureFetched(ctx context.Context) error {
	key := s.session.Identity()
	if key == "" {
		return ErrNoSession
	}
	s.mu.Lock()
	s.syncSessionLocked(key)
	s.mu.Unlock()

	_, err := s.once.Do(key, func() error { return s.fetch(ctx, key) })
	return err
}

func (s *Synchronizer) fetch(ctx context.Context, key string) error {
	s.mu.RLock()
	startVersion := s.version
	s.mu.RUnlock()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	amount, err := s.fetcher.GetBalance(ctx)

	s.mu.Lock()
	if s.key != key {
		s.mu.Unlock()
		log.Debugf("[余额] 会话已切换，丢弃拉取结果")
		return nil
	}
	if err != nil && s.version != startVersion {
		// 拉取期间已应用服务端确认的余额，视为本会话已拉取
		s.snap.Fetched = true
		s.mu.Unlock()
		log.Debugf("[余额] 拉取失败但期间余额已由服务端确认，保留确认值: %v", err)
		return nil
	}
	if err != nil {
		s.snap.Known = false
		snap := s.snap
		listeners := s.listeners
		s.mu.Unlock()
		log.Warnf("[余额] 拉取失败，余额标记为未知: %v", err)
		notify(listeners, snap)
		return err
	}
	if s.version != startVersion {
		// 拉取期间已有服务端确认的新余额，以后者为准
		s.snap.Fetched = true
		s.mu.Unlock()
		log.Debugf("[余额] 拉取期间余额已更新，忽略拉取值 %s", amount)
		return nil
	}
	s.version++
	s.snap = Snapshot{Amount: amount, Known: true, Fetched: true, UpdatedAt: time.Now()}
	snap := s.snap
	listeners := s.listeners
	s.mu.Unlock()

	log.Infof("✅ [余额初始化] %s", amount.StringFixed(2))
	s.session.UpdateWalletBalance(amount)
	notify(listeners, snap)
	return nil
}

// ApplyDelta 用服务端确认的余额替换缓存值（不做本地加减）
func (s *Synchronizer) ApplyDelta(serverBalance decimal.Decimal) {
	key := s.session.Identity()
	s.mu.Lock()
	s.syncSessionLocked(key)
	s.version++
	s.snap.Amount = serverBalance
	s.snap.Known = true
	s.snap.UpdatedAt = time.Now()
	snap := s.snap
	listeners := s.listeners
	s.mu.Unlock()

	log.Debugf("[余额] 服务端确认余额 %s", serverBalance.StringFixed(2))
	if key != "" {
		s.session.UpdateWalletBalance(serverBalance)
	}
	notify(listeners, snap)
}

func notify(listeners []func(Snapshot), snap Snapshot) {
	for _, fn := range listeners {
		fn(snap)
	}
}
