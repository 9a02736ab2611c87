package pricing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/memestreet/marketsync/internal/domain"
)

// 校验字段
const (
	FieldSide       = "side"
	FieldQuantity   = "quantity"
	FieldBalance    = "balance"
	FieldShares     = "shares"
	FieldLimitPrice = "limit_price"
)

// ValidationError 提交前校验失败，不会发出网络请求
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Quote 一次交易的完整报价
type Quote struct {
	Pricing
	Bounds
	Side             domain.Side
	Quantity         int64
	TotalCost        decimal.Decimal
	Fill             FillExpectation
	ProjectedBalance decimal.Decimal // 仅为估算，成交后以服务端余额为准
}

// NewQuote 汇总定价、上限、成本与成交预期
func NewQuote(l domain.Listing, intent domain.TradeIntent, funds Funds, now time.Time) Quote {
	p := ResolvePricing(l, intent.Side, intent.LimitPrice, now)
	q := Quote{
		Pricing:   p,
		Bounds:    ComputeBounds(l, intent.Side, p, funds),
		Side:      intent.Side,
		Quantity:  intent.Quantity,
		TotalCost: TotalCost(p, intent.Quantity),
		Fill:      Expectation(p, intent.Side),
	}
	q.ProjectedBalance = funds.Amount
	if intent.Side == domain.SideBuy {
		q.ProjectedBalance = funds.Amount.Sub(q.TotalCost)
	}
	return q
}

// Validate 提交前校验，按顺序返回第一个错误：
// 方向、首发期卖出、数量、余额、持仓、限价、首发剩余份额。
func Validate(l domain.Listing, intent domain.TradeIntent, funds Funds, now time.Time) error {
	if !intent.Side.Valid() {
		return &ValidationError{Field: FieldSide, Message: "Please choose buy or sell"}
	}
	p := ResolvePricing(l, intent.Side, intent.LimitPrice, now)
	if intent.Side == domain.SideSell && p.Mode == ModePrimary {
		return &ValidationError{Field: FieldSide, Message: "Selling is disabled during the initial offering window"}
	}
	if intent.Quantity <= 0 {
		return &ValidationError{Field: FieldQuantity, Message: "Please enter a valid quantity"}
	}

	switch intent.Side {
	case domain.SideBuy:
		cost := TotalCost(p, intent.Quantity)
		if !funds.Known || cost.GreaterThan(funds.Amount) {
			return &ValidationError{Field: FieldBalance, Message: "Insufficient balance"}
		}
	case domain.SideSell:
		if intent.Quantity > l.UserOwnsShares {
			return &ValidationError{Field: FieldShares, Message: "You don't own enough shares"}
		}
	}

	if p.Mode == ModeMarket && !intent.LimitPrice.IsPositive() {
		msg := "Please enter a valid maximum price"
		if intent.Side == domain.SideSell {
			msg = "Please enter a valid minimum price"
		}
		return &ValidationError{Field: FieldLimitPrice, Message: msg}
	}

	if p.Mode == ModePrimary {
		b := ComputeBounds(l, intent.Side, p, funds)
		if b.OfferingCapped && intent.Quantity > b.MaxQuantity {
			return &ValidationError{
				Field:   FieldQuantity,
				Message: fmt.Sprintf("Only %d shares left in the offering", b.MaxQuantity),
			}
		}
	}
	return nil
}
