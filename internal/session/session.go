// Package session 显式的会话对象：持有凭证与缓存的用户资料，由进程级上下文显式传给各组件。
package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "session")

// ErrEmptyCredential 设置了空凭证
var ErrEmptyCredential = errors.New("session: empty credential")

// Profile 缓存的用户资料
type Profile struct {
	UserID        string           `json:"user_id,omitempty"`
	Username      string           `json:"username,omitempty"`
	Email         string           `json:"email,omitempty"`
	WalletBalance *decimal.Decimal `json:"wallet_balance,omitempty"`
}

// ProfilePatch 局部更新，nil 字段保持不变
type ProfilePatch struct {
	Username      *string
	Email         *string
	WalletBalance *decimal.Decimal
}

// Session 会话
type Session struct {
	store Store

	mu        sync.RWMutex
	token     string
	profile   Profile
	identity  string
	listeners []func(reason string)
}

// New 创建会话，调用 Init 之前处于未登录状态
func New(store Store) *Session {
	if store == nil {
		store = &MemoryStore{}
	}
	return &Session{store: store}
}

// Init 从存储加载凭证与资料
func (s *Session) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, ok, err := s.store.Load()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !ok {
		s.token, s.profile, s.identity = "", Profile{}, ""
		return nil
	}
	s.token, s.profile = p.Token, p.Profile
	s.identity = uuid.NewString()
	log.Infof("[session] restored session for %q", p.Profile.Username)
	return nil
}

// CurrentCredential 当前 bearer 凭证，未登录时为空
func (s *Session) CurrentCredential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// IsAuthenticated 是否已登录
func (s *Session) IsAuthenticated() bool {
	return s.CurrentCredential() != ""
}

// Identity 本次登录的标识；每次 SetCredential 都会变化，未登录时为空
func (s *Session) Identity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Profile 资料副本
func (s *Session) Profile() Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile.clone()
}

func (p Profile) clone() Profile {
	if p.WalletBalance != nil {
		v := *p.WalletBalance
		p.WalletBalance = &v
	}
	return p
}

// SetCredential 登录：替换凭证与资料并开启新的会话标识
func (s *Session) SetCredential(token string, profile Profile) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyCredential
	}
	s.mu.Lock()
	s.token = token
	s.profile = profile.clone()
	s.identity = uuid.NewString()
	p := Persisted{Token: s.token, Profile: s.profile.clone()}
	s.mu.Unlock()
	return s.store.Save(p)
}

// Update 局部更新资料
func (s *Session) Update(patch ProfilePatch) error {
	s.mu.Lock()
	if s.token == "" {
		s.mu.Unlock()
		return nil
	}
	if patch.Username != nil {
		s.profile.Username = *patch.Username
	}
	if patch.Email != nil {
		s.profile.Email = *patch.Email
	}
	if patch.WalletBalance != nil {
		v := *patch.WalletBalance
		s.profile.WalletBalance = &v
	}
	p := Persisted{Token: s.token, Profile: s.profile.clone()}
	s.mu.Unlock()
	return s.store.Save(p)
}

// Clear 登出
func (s *Session) Clear() error {
	s.mu.Lock()
	s.token, s.profile, s.identity = "", Profile{}, ""
	s.mu.Unlock()
	return s.store.Clear()
}

// OnInvalidated 注册凭证失效回调
func (s *Session) OnInvalidated(fn func(reason string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Invalidate 收到 401 时调用：清除会话并通知监听者。
// 同一次登录只通知一次，未登录时不做任何事。
func (s *Session) Invalidate(reason string) {
	s.mu.Lock()
	if s.token == "" {
		s.mu.Unlock()
		return
	}
	s.token, s.profile, s.identity = "", Profile{}, ""
	listeners := append([]func(string){}, s.listeners...)
	s.mu.Unlock()

	if err := s.store.Clear(); err != nil {
		log.Errorf("[session] clear store: %v", err)
	}
	log.Warnf("[session] invalidated: %s", reason)
	for _, fn := range listeners {
		fn(reason)
	}
}

// CachedWalletBalance 资料中缓存的钱包余额
func (s *Session) CachedWalletBalance() (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile.WalletBalance == nil {
		return decimal.Zero, false
	}
	return *s.profile.WalletBalance, true
}

// UpdateWalletBalance 用服务端确认的余额更新资料（相同则跳过）
func (s *Session) UpdateWalletBalance(v decimal.Decimal) {
	if cached, ok := s.CachedWalletBalance(); ok && cached.Equal(v) {
		return
	}
	if err := s.Update(ProfilePatch{WalletBalance: &v}); err != nil {
		log.Warnf("[session] persist wallet balance: %v", err)
	}
}
