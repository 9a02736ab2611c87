package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/memestreet/marketsync/internal/domain"
	"github.com/memestreet/marketsync/internal/trade"
	"github.com/memestreet/marketsync/ledger/client"
)

// OpenTrade 为列表中的资产打开交易会话。列表中没有时向账本查询，ref 可以是 ID 或代码。
// 打开前确保本会话的余额已拉取（每个会话只拉一次）。
func (m *MarketService) OpenTrade(ctx context.Context, ref string, side domain.Side) (*trade.Session, error) {
	if !m.session.IsAuthenticated() {
		return nil, ErrUnauthenticated
	}

	listing, err := m.lookupListing(ctx, ref)
	if err != nil {
		return nil, err
	}

	if err := m.balance.EnsureFetched(ctx); err != nil {
		// 余额未知时交易会话按 0 可负担处理，不阻止打开
		log.Warnf("[market] balance unavailable for trade on %s: %v", listing.Ticker, err)
	}

	s := trade.NewSession(listing, side, m.client, m.balance, m.bus, trade.Config{
		CompletionDelay: m.cfg.TradeCompleteDelay,
		RequestTimeout:  m.cfg.RequestTimeout,
		Now:             m.now,
	})
	m.mu.Lock()
	m.trades[s] = struct{}{}
	m.mu.Unlock()
	return s, nil
}

// lookupListing 依次查找：当前列表、按 ID 查询账本、按代码查询账本
func (m *MarketService) lookupListing(ctx context.Context, ref string) (domain.Listing, error) {
	if m.feed != nil {
		if l, ok := m.feed.Get(ref); ok {
			return l, nil
		}
	}
	meme, err := m.client.GetListing(ctx, ref)
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		meme, err = m.client.GetListingByTicker(ctx, ref)
	}
	if err != nil {
		return domain.Listing{}, fmt.Errorf("load listing %s: %w", ref, err)
	}
	return domain.ListingFromWire(*meme), nil
}

// CloseTrade 关闭交易会话（取消尚未发出的完成通知）
func (m *MarketService) CloseTrade(s *trade.Session) {
	m.mu.Lock()
	delete(m.trades, s)
	m.mu.Unlock()
	s.Close()
}

func (m *MarketService) closeTrades() {
	m.mu.Lock()
	trades := m.trades
	m.trades = make(map[*trade.Session]struct{})
	m.mu.Unlock()
	for s := range trades {
		s.Close()
	}
}
