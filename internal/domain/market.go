package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/memestreet/marketsync/ledger/types"
)

// Listing 可交易资产（客户端持有的可变副本）
type Listing struct {
	ID              string
	Ticker          string
	Name            string
	Category        string
	CurrentPrice    decimal.Decimal
	AvailableShares int64

	// 首发字段
	IPOEndAt           *time.Time       // nil 表示无有效结束时间
	IPOSharesRemaining *int64           // nil 表示未知
	IPOPrice           *decimal.Decimal // nil 表示缺失

	Upvotes          int64
	Downvotes        int64
	UserHasUpvoted   bool
	UserHasDownvoted bool
	UserOwnsShares   int64

	PriceChangePercent24h decimal.Decimal
	MarketCap             decimal.Decimal
	Volume24h             decimal.Decimal
}

// ListingFromWire 把账本返回的资产转换为客户端模型，负数计数按 0 处理
func ListingFromWire(m types.Meme) Listing {
	l := Listing{
		ID:                    m.ID,
		Ticker:                m.Ticker,
		Name:                  m.Name,
		Category:              m.Category,
		CurrentPrice:          m.CurrentPrice,
		AvailableShares:       max(0, m.AvailableShares),
		Upvotes:               max(0, m.Upvotes),
		Downvotes:             max(0, m.Downvotes),
		UserHasUpvoted:        m.UserHasUpvoted,
		UserHasDownvoted:      m.UserHasDownvoted && !m.UserHasUpvoted,
		UserOwnsShares:        max(0, m.UserOwnsShares),
		PriceChangePercent24h: m.PriceChangePercent24h,
		MarketCap:             m.MarketCap,
		Volume24h:             m.Volume24h,
	}
	if m.IPOEndAt.Valid {
		end := m.IPOEndAt.Time
		l.IPOEndAt = &end
	}
	if m.IPOSharesRemaining != nil {
		remaining := *m.IPOSharesRemaining
		l.IPOSharesRemaining = &remaining
	}
	if m.IPOPrice != nil {
		price := *m.IPOPrice
		l.IPOPrice = &price
	}
	return l
}

// ListingsFromWire 批量转换
func ListingsFromWire(memes []types.Meme) []Listing {
	out := make([]Listing, 0, len(memes))
	for _, m := range memes {
		out = append(out, ListingFromWire(m))
	}
	return out
}

// Clone 深拷贝（指针字段独立）
func (l Listing) Clone() Listing {
	out := l
	if l.IPOEndAt != nil {
		end := *l.IPOEndAt
		out.IPOEndAt = &end
	}
	if l.IPOSharesRemaining != nil {
		remaining := *l.IPOSharesRemaining
		out.IPOSharesRemaining = &remaining
	}
	if l.IPOPrice != nil {
		price := *l.IPOPrice
		out.IPOPrice = &price
	}
	return out
}

// PrimaryOfferingActive 首发是否进行中：结束时间有效且在未来，且剩余份额未知或大于 0
func (l Listing) PrimaryOfferingActive(now time.Time) bool {
	if l.IPOEndAt == nil || !l.IPOEndAt.After(now) {
		return false
	}
	return l.IPOSharesRemaining == nil || *l.IPOSharesRemaining > 0
}

// VoteDirection 投票方向
type VoteDirection string

const (
	VoteUp   VoteDirection = "up"
	VoteDown VoteDirection = "down"
)

// Opposite 反方向
func (d VoteDirection) Opposite() VoteDirection {
	if d == VoteUp {
		return VoteDown
	}
	return VoteUp
}

// Valid 是否为已知方向
func (d VoteDirection) Valid() bool {
	return d == VoteUp || d == VoteDown
}

// Voted 当前用户在某方向上是否已投票
func (l *Listing) Voted(d VoteDirection) bool {
	if d == VoteUp {
		return l.UserHasUpvoted
	}
	return l.UserHasDownvoted
}

// SetVoted 设置某方向的投票标记
func (l *Listing) SetVoted(d VoteDirection, v bool) {
	if d == VoteUp {
		l.UserHasUpvoted = v
		return
	}
	l.UserHasDownvoted = v
}

// Count 某方向的票数
func (l *Listing) Count(d VoteDirection) int64 {
	if d == VoteUp {
		return l.Upvotes
	}
	return l.Downvotes
}

// AddCount 调整某方向票数，结果不小于 0
func (l *Listing) AddCount(d VoteDirection, delta int64) {
	p := &l.Downvotes
	if d == VoteUp {
		p = &l.Upvotes
	}
	*p = max(0, *p+delta)
}
