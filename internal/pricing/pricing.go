// Package pricing 交易前的客户端计算：定价模式识别、数量上限、成本与提交前校验。
// 模式识别只在 ResolvePricing 中进行，其余计算都基于它的结果。
package pricing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/memestreet/marketsync/internal/domain"
)

// Mode 定价模式
type Mode string

const (
	ModePrimary Mode = "primary" // 首发：固定价，立即成交
	ModeMarket  Mode = "market"  // 公开市场：限价单
)

// FillExpectation 提交后的成交预期
type FillExpectation string

const (
	FillImmediate          FillExpectation = "immediate"            // 首发买入按固定价立即成交
	FillImmediateOrPending FillExpectation = "immediate_or_pending" // 市场买单可能立即成交，也可能挂单
	FillPending            FillExpectation = "pending"              // 卖单挂出，等待买方出价匹配
)

// ErrNegativeQuantity 数量为负，调用方应保持原数量不变
var ErrNegativeQuantity = errors.New("pricing: negative quantity")

// Pricing ResolvePricing 的结果
type Pricing struct {
	Mode           Mode
	EffectivePrice decimal.Decimal
	// LimitRequired 提交时是否需要携带限价
	LimitRequired bool
}

// Funds 可用余额；Known=false 时按 0 可负担处理
type Funds struct {
	Amount decimal.Decimal
	Known  bool
}

// Bounds 数量上限
type Bounds struct {
	MaxQuantity int64
	// OfferingCapped 首发剩余份额是约束条件
	OfferingCapped bool
}

// DefaultLimitPrice 限价默认值：当前价为正时取当前价，否则为 0
func DefaultLimitPrice(l domain.Listing) decimal.Decimal {
	if l.CurrentPrice.IsPositive() {
		return l.CurrentPrice
	}
	return decimal.Zero
}

// OfferingPrice 首发价，缺失或非正时回退到当前价
func OfferingPrice(l domain.Listing) decimal.Decimal {
	if l.IPOPrice != nil && l.IPOPrice.IsPositive() {
		return *l.IPOPrice
	}
	return l.CurrentPrice
}

// ResolvePricing 识别定价模式并给出有效价格。
// 首发进行中的买入使用首发价；其他情况使用调用方给出的限价
// （买入为最高价，卖出为最低价，默认取当前价）。
func ResolvePricing(l domain.Listing, side domain.Side, limit decimal.Decimal, now time.Time) Pricing {
	if l.PrimaryOfferingActive(now) {
		if side == domain.SideBuy {
			return Pricing{Mode: ModePrimary, EffectivePrice: OfferingPrice(l)}
		}
		// 首发期内不允许卖出，展示价仍取首发价
		return Pricing{Mode: ModePrimary, EffectivePrice: OfferingPrice(l), LimitRequired: true}
	}
	return Pricing{Mode: ModeMarket, EffectivePrice: limit, LimitRequired: true}
}

// ComputeBounds 计算数量上限。
// 买入：floor(余额 / 有效价)，首发模式下再受可售份额和首发剩余份额约束；
// 卖出：持有份额（首发期内为 0）。
func ComputeBounds(l domain.Listing, side domain.Side, p Pricing, funds Funds) Bounds {
	switch side {
	case domain.SideBuy:
		if !funds.Known || !p.EffectivePrice.IsPositive() || !funds.Amount.IsPositive() {
			return Bounds{}
		}
		affordable := funds.Amount.Div(p.EffectivePrice).Floor().IntPart()
		if p.Mode != ModePrimary {
			return Bounds{MaxQuantity: affordable}
		}
		limit := max(0, l.AvailableShares)
		if l.IPOSharesRemaining != nil {
			limit = min(limit, max(0, *l.IPOSharesRemaining))
		}
		if limit < affordable {
			return Bounds{MaxQuantity: limit, OfferingCapped: true}
		}
		return Bounds{MaxQuantity: affordable}
	case domain.SideSell:
		if p.Mode == ModePrimary {
			return Bounds{}
		}
		return Bounds{MaxQuantity: max(0, l.UserOwnsShares)}
	}
	return Bounds{}
}

// ClampQuantity 把数量限制在 [0, max]；负数返回 ErrNegativeQuantity
func ClampQuantity(q int64, b Bounds) (int64, error) {
	if q < 0 {
		return 0, ErrNegativeQuantity
	}
	return min(q, max(0, b.MaxQuantity)), nil
}

// TotalCost 有效价 × 数量
func TotalCost(p Pricing, quantity int64) decimal.Decimal {
	return p.EffectivePrice.Mul(decimal.NewFromInt(quantity))
}

// Expectation 成交预期
func Expectation(p Pricing, side domain.Side) FillExpectation {
	switch {
	case side == domain.SideBuy && p.Mode == ModePrimary:
		return FillImmediate
	case side == domain.SideBuy:
		return FillImmediateOrPending
	default:
		return FillPending
	}
}

// ParseLimitPrice 解析用户输入的限价。NaN/Inf 等无法表示为有限小数的输入返回错误，
// 正数检查由 Validate 完成
func ParseLimitPrice(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid limit price %q: %w", raw, err)
	}
	return d, nil
}
