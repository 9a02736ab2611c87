package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/memestreet/marketsync/internal/domain"
)

// TradeCompletedEvent 交易成功并经过展示延迟后发出，用于刷新列表和投资组合
type TradeCompletedEvent struct {
	ListingID  string
	Ticker     string
	Side       domain.Side
	Quantity   int64
	NewBalance decimal.Decimal
	Message    string
	// Pending 订单已挂出但未（完全）成交
	Pending   bool
	Timestamp time.Time
}

// BalanceChangedEvent 余额快照变化
type BalanceChangedEvent struct {
	Balance   decimal.Decimal
	Known     bool
	Timestamp time.Time
}

// FeedUpdatedEvent 列表状态变化
type FeedUpdatedEvent struct {
	Generation uint64
	Page       int
	Count      int
	HasMore    bool
	Status     string
	Timestamp  time.Time
}

// VoteSettledEvent 投票请求结束（成功、失败或被丢弃）
type VoteSettledEvent struct {
	ListingID string
	Direction domain.VoteDirection
	Active    bool
	NewPrice  decimal.Decimal
	Err       error
	Timestamp time.Time
}

// SessionInvalidatedEvent 会话失效（收到 401 或主动登出）
type SessionInvalidatedEvent struct {
	Reason    string
	Timestamp time.Time
}
