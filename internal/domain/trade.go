package domain

import (
	"github.com/shopspring/decimal"

	"github.com/memestreet/marketsync/ledger/types"
)

// Side 交易方向
type Side = types.Side

const (
	SideBuy  = types.SideBuy
	SideSell = types.SideSell
)

// TradeIntent 交易意图
type TradeIntent struct {
	Side     Side
	Quantity int64
	// LimitPrice 买入为最高可接受价，卖出为最低可接受价；首发买入不使用
	LimitPrice decimal.Decimal
}
