package types

import "github.com/shopspring/decimal"

// Meme 账本返回的单个可交易资产
type Meme struct {
	ID       string `json:"id"`
	Ticker   string `json:"ticker"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	ImageURL string `json:"image_url,omitempty"`

	CurrentPrice    decimal.Decimal `json:"current_price"`
	AvailableShares int64           `json:"available_shares"`
	TotalShares     int64           `json:"total_shares,omitempty"`

	// 首发（IPO）字段，可能缺失
	IPOEndAt           Timestamp        `json:"ipo_end_at"`
	IPOSharesRemaining *int64           `json:"ipo_shares_remaining"`
	IPOPrice           *decimal.Decimal `json:"ipo_price"`

	Upvotes          int64 `json:"upvotes"`
	Downvotes        int64 `json:"downvotes"`
	UserHasUpvoted   bool  `json:"user_has_upvoted"`
	UserHasDownvoted bool  `json:"user_has_downvoted"`
	UserOwnsShares   int64 `json:"user_owns_shares"`

	PriceChangePercent24h decimal.Decimal `json:"price_change_percent_24h"`
	MarketCap             decimal.Decimal `json:"market_cap"`
	Volume24h             decimal.Decimal `json:"volume_24h"`
	CreatedAt             Timestamp       `json:"created_at"`
}

// ListParams 列表查询参数
type ListParams struct {
	Page      int
	PerPage   int
	SortBy    SortKey
	SortOrder SortOrder
	Category  string
	Search    string
}

// ListListingsResponse 列表响应。
// 无限滚动接口可能只返回 memes，此时 Total/TotalPages 为 0。
type ListListingsResponse struct {
	Memes      []Meme `json:"memes"`
	Total      int64  `json:"total"`
	TotalPages int64  `json:"total_pages"`
}

// VoteResponse 点赞/点踩响应
type VoteResponse struct {
	Success            bool            `json:"success"`
	Message            string          `json:"message"`
	NewPrice           decimal.Decimal `json:"new_price"`
	PriceChange        decimal.Decimal `json:"price_change"`
	PriceChangePercent decimal.Decimal `json:"price_change_percent"`
}

// Category 分类选项
type Category struct {
	Value string `json:"value"`
	Label string `json:"label"`
}
