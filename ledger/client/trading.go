package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/memestreet/marketsync/ledger/types"
	"github.com/memestreet/marketsync/pkg/ratelimit"
)

// BuyParams 买入参数。MaxPrice 为 nil 时不提交 max_price（首发买入按固定价成交）
type BuyParams struct {
	MemeID   string
	Quantity int64
	MaxPrice *decimal.Decimal
}

// SellParams 卖出参数
type SellParams struct {
	MemeID   string
	Quantity int64
	MinPrice decimal.Decimal
}

// Buy 买入
func (c *Client) Buy(ctx context.Context, p BuyParams) (*types.TradeResponse, error) {
	params := url.Values{}
	params.Set("meme_id", p.MemeID)
	params.Set("quantity", strconv.FormatInt(p.Quantity, 10))
	if p.MaxPrice != nil {
		params.Set("max_price", p.MaxPrice.String())
	}
	var out types.TradeResponse
	if err := c.do(ctx, ratelimit.GroupTrades, http.MethodPost, EndpointBuy, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sell 卖出（挂单价为最低可接受价）
func (c *Client) Sell(ctx context.Context, p SellParams) (*types.TradeResponse, error) {
	params := url.Values{}
	params.Set("meme_id", p.MemeID)
	params.Set("quantity", strconv.FormatInt(p.Quantity, 10))
	params.Set("min_price", p.MinPrice.String())
	var out types.TradeResponse
	if err := c.do(ctx, ratelimit.GroupTrades, http.MethodPost, EndpointSell, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBalance 获取钱包余额
func (c *Client) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	var out types.BalanceResponse
	if err := c.do(ctx, ratelimit.GroupReads, http.MethodGet, EndpointBalance, nil, &out); err != nil {
		return decimal.Zero, err
	}
	return out.Balance, nil
}

// GetPortfolio 获取投资组合
func (c *Client) GetPortfolio(ctx context.Context) (*types.Portfolio, error) {
	var out types.Portfolio
	if err := c.do(ctx, ratelimit.GroupReads, http.MethodGet, EndpointPortfolio, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelOrder 撤销挂单
func (c *Client) CancelOrder(ctx context.Context, orderID string) (*types.CancelOrderResponse, error) {
	var out types.CancelOrderResponse
	path := fmt.Sprintf(EndpointCancelOrder, url.PathEscape(orderID))
	if err := c.do(ctx, ratelimit.GroupTrades, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetHistory 获取交易历史
func (c *Client) GetHistory(ctx context.Context, p types.HistoryParams) (*types.HistoryResponse, error) {
	params := url.Values{}
	if p.Page > 0 {
		params.Set("page", strconv.Itoa(p.Page))
	}
	if p.PerPage > 0 {
		params.Set("per_page", strconv.Itoa(p.PerPage))
	}
	if p.TransactionType != "" {
		params.Set("transaction_type", p.TransactionType)
	}
	var out types.HistoryResponse
	if err := c.do(ctx, ratelimit.GroupReads, http.MethodGet, EndpointHistory, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
