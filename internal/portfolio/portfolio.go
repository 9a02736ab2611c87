// Package portfolio 持仓、挂单与撤单。
package portfolio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/memestreet/marketsync/internal/execution"
	"github.com/memestreet/marketsync/ledger/types"
)

var log = logrus.WithField("component", "portfolio")

// Fetcher 账本接口
type Fetcher interface {
	GetPortfolio(ctx context.Context) (*types.Portfolio, error)
	CancelOrder(ctx context.Context, orderID string) (*types.CancelOrderResponse, error)
	GetHistory(ctx context.Context, p types.HistoryParams) (*types.HistoryResponse, error)
}

// DefaultHistoryPageSize 未指定每页条数时使用
const DefaultHistoryPageSize = 20

// BalanceSink 接收服务端确认的余额
type BalanceSink interface {
	ApplyDelta(serverBalance decimal.Decimal)
}

// Service 投资组合
type Service struct {
	fetcher Fetcher
	balance BalanceSink
	cancels *execution.InFlightDeduper

	mu        sync.RWMutex
	last      *types.Portfolio
	updatedAt time.Time
}

// New 创建投资组合服务，balance 可为 nil
func New(fetcher Fetcher, balance BalanceSink) *Service {
	return &Service{
		fetcher: fetcher,
		balance: balance,
		cancels: execution.NewInFlightDeduper(30*time.Second, 8),
	}
}

// Get 拉取投资组合，并把其中的钱包余额交给余额同步器
func (s *Service) Get(ctx context.Context) (*types.Portfolio, error) {
	p, err := s.fetcher.GetPortfolio(ctx)
	if err != nil {
		return nil, fmt.Errorf("get portfolio: %w", err)
	}
	s.mu.Lock()
	s.last = p
	s.updatedAt = time.Now()
	s.mu.Unlock()

	if s.balance != nil {
		s.balance.ApplyDelta(p.WalletBalance)
	}
	log.Debugf("[portfolio] %d holdings, %d open orders", len(p.Holdings), len(p.OpenOrders))
	return p, nil
}

// Last 最近一次成功拉取的结果
func (s *Service) Last() (*types.Portfolio, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.updatedAt, s.last != nil
}

// History 成交记录，按时间倒序分页。transaction_type 只接受 buy/sell。
func (s *Service) History(ctx context.Context, p types.HistoryParams) (*types.HistoryResponse, error) {
	if p.TransactionType != "" && !types.Side(p.TransactionType).Valid() {
		return nil, fmt.Errorf("history: unknown transaction type %q", p.TransactionType)
	}
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.PerPage <= 0 {
		p.PerPage = DefaultHistoryPageSize
	}
	h, err := s.fetcher.GetHistory(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	log.Debugf("[portfolio] history page %d/%d, %d transactions", h.Page, h.TotalPages, len(h.Transactions))
	return h, nil
}

// CancelOrder 撤单后刷新投资组合。同一订单的并发撤单只放行一个，
// 其余返回 execution.ErrDuplicateInFlight。
func (s *Service) CancelOrder(ctx context.Context, orderID string) (*types.CancelOrderResponse, *types.Portfolio, error) {
	var resp *types.CancelOrderResponse
	err := s.cancels.Do(orderID, func() error {
		var err error
		resp, err = s.fetcher.CancelOrder(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	log.Infof("✅ [portfolio] %s", resp.Message)

	p, err := s.Get(ctx)
	if err != nil {
		// 撤单已成功，刷新失败只影响展示
		log.Warnf("[portfolio] refresh after cancel: %v", err)
		return resp, nil, nil
	}
	return resp, p, nil
}
