package types

import "github.com/shopspring/decimal"

// TradeResponse 买入/卖出响应
type TradeResponse struct {
	Success       bool             `json:"success"`
	Message       string           `json:"message"`
	NewBalance    decimal.Decimal  `json:"new_balance"`
	OrderID       string           `json:"order_id,omitempty"`
	FilledShares  int64            `json:"filled_shares,omitempty"`
	ExecutedPrice *decimal.Decimal `json:"executed_price,omitempty"`
}

// BalanceResponse 余额响应
type BalanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

// Holding 持仓
type Holding struct {
	MemeID                string          `json:"meme_id"`
	Ticker                string          `json:"ticker"`
	Name                  string          `json:"name"`
	Quantity              int64           `json:"quantity"`
	AverageBuyPrice       decimal.Decimal `json:"average_buy_price"`
	CurrentPrice          decimal.Decimal `json:"current_price"`
	CurrentValue          decimal.Decimal `json:"current_value"`
	TotalInvested         decimal.Decimal `json:"total_invested"`
	ProfitLoss            decimal.Decimal `json:"profit_loss"`
	ProfitLossPercent     decimal.Decimal `json:"profit_loss_percent"`
	PriceChangePercent24h decimal.Decimal `json:"price_change_percent_24h"`
}

// OpenOrder 未成交挂单
type OpenOrder struct {
	ID        string          `json:"id"`
	MemeID    string          `json:"meme_id"`
	Ticker    string          `json:"ticker"`
	Side      Side            `json:"side"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt Timestamp       `json:"created_at"`
}

// Portfolio 投资组合
type Portfolio struct {
	WalletBalance          decimal.Decimal `json:"wallet_balance"`
	PortfolioValue         decimal.Decimal `json:"portfolio_value"`
	TotalInvested          decimal.Decimal `json:"total_invested"`
	TotalProfitLoss        decimal.Decimal `json:"total_profit_loss"`
	TotalProfitLossPercent decimal.Decimal `json:"total_profit_loss_percent"`
	Holdings               []Holding       `json:"holdings"`
	OpenOrders             []OpenOrder     `json:"open_orders"`
}

// CancelOrderResponse 撤单响应
type CancelOrderResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HistoryParams 交易历史查询参数
type HistoryParams struct {
	Page            int
	PerPage         int
	TransactionType string
}

// Transaction 单条成交记录
type Transaction struct {
	ID              string          `json:"id"`
	MemeID          string          `json:"meme_id"`
	Ticker          string          `json:"ticker"`
	TransactionType string          `json:"transaction_type"`
	Quantity        int64           `json:"quantity"`
	PricePerShare   decimal.Decimal `json:"price_per_share"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	CreatedAt       Timestamp       `json:"created_at"`
}

// HistoryResponse 交易历史响应
type HistoryResponse struct {
	Transactions []Transaction `json:"transactions"`
	Total        int64         `json:"total"`
	Page         int           `json:"page"`
	TotalPages   int64         `json:"total_pages"`
}
