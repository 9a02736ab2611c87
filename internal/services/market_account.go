package services

import (
	"context"
	"fmt"

	"github.com/memestreet/marketsync/internal/balance"
	"github.com/memestreet/marketsync/internal/session"
)

// Login 保存凭证并开启新的交易会话：列表按新身份重新加载（投票标记随用户变化），
// 余额重新拉取一次。凭证无效时账本返回 401，会话会被清除。
func (m *MarketService) Login(ctx context.Context, token string, profile session.Profile) error {
	if err := m.session.SetCredential(token, profile); err != nil {
		return err
	}
	if m.feed != nil {
		m.feed.Refresh()
	}
	if err := m.balance.EnsureFetched(ctx); err != nil {
		return fmt.Errorf("fetch balance: %w", err)
	}
	log.Infof("✅ [market] signed in as %q", profile.Username)
	return nil
}

// Logout 清除会话
func (m *MarketService) Logout() error {
	if err := m.session.Clear(); err != nil {
		return err
	}
	m.closeTrades()
	if m.feed != nil {
		m.feed.Refresh()
	}
	return nil
}

// WalletBalance 当前余额；本会话尚未拉取时拉取一次
func (m *MarketService) WalletBalance(ctx context.Context) (balance.Snapshot, error) {
	if !m.session.IsAuthenticated() {
		return balance.Snapshot{}, ErrUnauthenticated
	}
	err := m.balance.EnsureFetched(ctx)
	return m.balance.Snapshot(), err
}
