package ledgertest

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/memestreet/marketsync/ledger/types"
)

type tradeRequest struct {
	memeID   string
	quantity int64
	limit    *decimal.Decimal
}

func parseTrade(c *gin.Context, limitKey string) (tradeRequest, bool) {
	req := tradeRequest{memeID: c.Query("meme_id")}
	qty, err := strconv.ParseInt(c.Query("quantity"), 10, 64)
	if req.memeID == "" || err != nil || qty < 1 {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"detail": []gin.H{{"loc": []string{"query", "quantity"}, "msg": "ensure this value is greater than or equal to 1"}},
		})
		return req, false
	}
	req.quantity = qty
	if raw := c.Query(limitKey); raw != "" {
		p, err := decimal.NewFromString(raw)
		if err != nil || !p.IsPositive() {
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
				"detail": []gin.H{{"loc": []string{"query", limitKey}, "msg": "ensure this value is greater than 0"}},
			})
			return req, false
		}
		req.limit = &p
	}
	return req, true
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func (l *Ledger) handleBuy(c *gin.Context) {
	acc := accountOf(c)
	req, ok := parseTrade(c, "max_price")
	if !ok {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.memes[req.memeID]
	if !ok {
		fail(c, http.StatusBadRequest, "Meme not found")
		return
	}
	qty := decimal.NewFromInt(req.quantity)

	if l.ipoActiveLocked(m) {
		price := m.CurrentPrice
		if m.IPOPrice != nil && m.IPOPrice.IsPositive() {
			price = *m.IPOPrice
		}
		cost := price.Mul(qty)
		if cost.GreaterThan(acc.Balance) {
			fail(c, http.StatusBadRequest, fmt.Sprintf("Insufficient balance. Need $%s, have $%s", money(cost), money(acc.Balance)))
			return
		}
		remaining := m.AvailableShares
		if m.IPOSharesRemaining != nil {
			remaining = min(remaining, *m.IPOSharesRemaining)
		}
		if req.quantity > remaining {
			fail(c, http.StatusBadRequest, fmt.Sprintf("Not enough IPO shares available. Only %d left.", remaining))
			return
		}
		acc.Balance = acc.Balance.Sub(cost)
		acc.Holdings[m.ID] += req.quantity
		acc.Invested[m.ID] = acc.Invested[m.ID].Add(cost)
		m.AvailableShares -= req.quantity
		if m.IPOSharesRemaining != nil {
			left := *m.IPOSharesRemaining - req.quantity
			m.IPOSharesRemaining = &left
		}
		m.Volume24h = m.Volume24h.Add(cost)
		l.recordLocked(acc, m, types.SideBuy, req.quantity, price)
		c.JSON(http.StatusOK, types.TradeResponse{
			Success:      true,
			Message:      fmt.Sprintf("Successfully bought %d shares!", req.quantity),
			NewBalance:   acc.Balance,
			FilledShares: req.quantity,
		})
		return
	}

	if req.limit == nil {
		fail(c, http.StatusBadRequest, "Max price must be greater than 0")
		return
	}
	reserve := req.limit.Mul(qty)
	if reserve.GreaterThan(acc.Balance) {
		fail(c, http.StatusBadRequest, fmt.Sprintf("Insufficient balance. Need $%s, have $%s", money(reserve), money(acc.Balance)))
		return
	}

	// 按价格从低到高吃掉其他用户的卖单
	asks := l.restingLocked(m.ID, types.SideSell, acc.UserID)
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price.LessThan(asks[j].Price) })
	left := req.quantity
	for _, ask := range asks {
		if left == 0 || ask.Price.GreaterThan(*req.limit) {
			break
		}
		fill := min(left, ask.Quantity)
		l.settleLocked(acc, l.accountByUserLocked(ask.UserID), m, fill, ask.Price)
		ask.Quantity -= fill
		if ask.Quantity == 0 {
			delete(l.orders, ask.ID)
		}
		left -= fill
	}

	resp := types.TradeResponse{Success: true, FilledShares: req.quantity - left}
	if left == 0 {
		resp.Message = fmt.Sprintf("Successfully bought %d shares!", req.quantity)
	} else {
		// 剩余部分按最高价冻结资金挂单
		acc.Balance = acc.Balance.Sub(req.limit.Mul(decimal.NewFromInt(left)))
		o := l.placeLocked(acc.UserID, m.ID, types.SideBuy, left, *req.limit)
		resp.OrderID = o.ID
		resp.Message = fmt.Sprintf("Placed a buy order for %d shares!", req.quantity)
	}
	resp.NewBalance = acc.Balance
	c.JSON(http.StatusOK, resp)
}

func (l *Ledger) handleSell(c *gin.Context) {
	acc := accountOf(c)
	req, ok := parseTrade(c, "min_price")
	if !ok {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.memes[req.memeID]
	if !ok {
		fail(c, http.StatusBadRequest, "Meme not found")
		return
	}
	if l.ipoActiveLocked(m) {
		fail(c, http.StatusBadRequest, "Selling is disabled during the initial offering window")
		return
	}
	if req.limit == nil {
		fail(c, http.StatusBadRequest, "Listing price must be greater than 0")
		return
	}
	owned := acc.Holdings[m.ID]
	if req.quantity > owned {
		fail(c, http.StatusBadRequest, fmt.Sprintf("Not enough shares to sell. You own %d shares.", owned))
		return
	}

	// 挂出的份额先从持仓中扣除
	l.reduceHoldingLocked(acc, m.ID, req.quantity)

	bids := l.restingLocked(m.ID, types.SideBuy, acc.UserID)
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price.GreaterThan(bids[j].Price) })
	left := req.quantity
	for _, bid := range bids {
		if left == 0 || bid.Price.LessThan(*req.limit) {
			break
		}
		fill := min(left, bid.Quantity)
		buyer := l.accountByUserLocked(bid.UserID)
		proceeds := bid.Price.Mul(decimal.NewFromInt(fill))
		acc.Balance = acc.Balance.Add(proceeds)
		if buyer != nil {
			// 买方资金已在挂单时冻结
			buyer.Holdings[m.ID] += fill
			buyer.Invested[m.ID] = buyer.Invested[m.ID].Add(proceeds)
			l.recordLocked(buyer, m, types.SideBuy, fill, bid.Price)
		}
		l.recordLocked(acc, m, types.SideSell, fill, bid.Price)
		l.markTradeLocked(m, bid.Price, fill)
		bid.Quantity -= fill
		if bid.Quantity == 0 {
			delete(l.orders, bid.ID)
		}
		left -= fill
	}

	resp := types.TradeResponse{Success: true, FilledShares: req.quantity - left}
	if left == 0 {
		resp.Message = fmt.Sprintf("Successfully sold %d shares!", req.quantity)
	} else {
		o := l.placeLocked(acc.UserID, m.ID, types.SideSell, left, *req.limit)
		resp.OrderID = o.ID
		resp.Message = fmt.Sprintf("Listed %d shares for sale!", req.quantity)
	}
	resp.NewBalance = acc.Balance
	c.JSON(http.StatusOK, resp)
}

func (l *Ledger) restingLocked(memeID string, side types.Side, excludeUser string) []*order {
	out := make([]*order, 0)
	for _, o := range l.orders {
		if o.MemeID == memeID && o.Side == side && o.UserID != excludeUser {
			out = append(out, o)
		}
	}
	return out
}

func (l *Ledger) accountByUserLocked(userID string) *Account {
	for _, acc := range l.accounts {
		if acc.UserID == userID {
			return acc
		}
	}
	return nil
}

func (l *Ledger) placeLocked(userID, memeID string, side types.Side, qty int64, price decimal.Decimal) *order {
	o := &order{
		ID:       uuid.NewString(),
		UserID:   userID,
		MemeID:   memeID,
		Side:     side,
		Quantity: qty,
		Price:    price,
		Created:  l.now(),
	}
	l.orders[o.ID] = o
	return o
}

// settleLocked 买方主动成交：买方付款，卖方（份额已冻结）收款
func (l *Ledger) settleLocked(buyer, seller *Account, m *memeState, qty int64, price decimal.Decimal) {
	amount := price.Mul(decimal.NewFromInt(qty))
	buyer.Balance = buyer.Balance.Sub(amount)
	buyer.Holdings[m.ID] += qty
	buyer.Invested[m.ID] = buyer.Invested[m.ID].Add(amount)
	l.recordLocked(buyer, m, types.SideBuy, qty, price)
	if seller != nil {
		seller.Balance = seller.Balance.Add(amount)
		l.recordLocked(seller, m, types.SideSell, qty, price)
	}
	l.markTradeLocked(m, price, qty)
}

func (l *Ledger) markTradeLocked(m *memeState, price decimal.Decimal, qty int64) {
	m.CurrentPrice = price
	m.Volume24h = m.Volume24h.Add(price.Mul(decimal.NewFromInt(qty)))
	if m.TotalShares > 0 {
		m.MarketCap = price.Mul(decimal.NewFromInt(m.TotalShares))
	}
}

func (l *Ledger) reduceHoldingLocked(acc *Account, memeID string, qty int64) {
	owned := acc.Holdings[memeID]
	if owned > 0 {
		// 按比例扣减成本
		ratio := decimal.NewFromInt(owned - qty).Div(decimal.NewFromInt(owned))
		acc.Invested[memeID] = acc.Invested[memeID].Mul(ratio)
	}
	acc.Holdings[memeID] = owned - qty
	if acc.Holdings[memeID] <= 0 {
		delete(acc.Holdings, memeID)
		delete(acc.Invested, memeID)
	}
}

func (l *Ledger) recordLocked(acc *Account, m *memeState, side types.Side, qty int64, price decimal.Decimal) {
	l.txs = append(l.txs, txRecord{
		UserID: acc.UserID,
		Transaction: types.Transaction{
			ID:              uuid.NewString(),
			MemeID:          m.ID,
			Ticker:          m.Ticker,
			TransactionType: string(side),
			Quantity:        qty,
			PricePerShare:   price,
			TotalAmount:     price.Mul(decimal.NewFromInt(qty)),
			CreatedAt:       types.NewTimestamp(l.now()),
		},
	})
}

func (l *Ledger) handleBalance(c *gin.Context) {
	acc := accountOf(c)
	l.mu.Lock()
	balance := acc.Balance
	l.mu.Unlock()
	c.JSON(http.StatusOK, types.BalanceResponse{Balance: balance})
}

func (l *Ledger) handlePortfolio(c *gin.Context) {
	acc := accountOf(c)
	l.mu.Lock()
	defer l.mu.Unlock()

	out := types.Portfolio{WalletBalance: acc.Balance, Holdings: make([]types.Holding, 0)}
	hundred := decimal.NewFromInt(100)
	for memeID, qty := range acc.Holdings {
		m, ok := l.memes[memeID]
		if !ok || qty <= 0 {
			continue
		}
		q := decimal.NewFromInt(qty)
		invested := acc.Invested[memeID]
		value := m.CurrentPrice.Mul(q)
		pl := value.Sub(invested)
		h := types.Holding{
			MemeID:                memeID,
			Ticker:                m.Ticker,
			Name:                  m.Name,
			Quantity:              qty,
			AverageBuyPrice:       invested.Div(q).Round(4),
			CurrentPrice:          m.CurrentPrice,
			CurrentValue:          value,
			TotalInvested:         invested,
			ProfitLoss:            pl,
			PriceChangePercent24h: m.PriceChangePercent24h,
		}
		if invested.IsPositive() {
			h.ProfitLossPercent = pl.Div(invested).Mul(hundred).Round(2)
		}
		out.Holdings = append(out.Holdings, h)
		out.PortfolioValue = out.PortfolioValue.Add(value)
		out.TotalInvested = out.TotalInvested.Add(invested)
	}
	sort.Slice(out.Holdings, func(i, j int) bool { return out.Holdings[i].MemeID < out.Holdings[j].MemeID })
	out.TotalProfitLoss = out.PortfolioValue.Sub(out.TotalInvested)
	if out.TotalInvested.IsPositive() {
		out.TotalProfitLossPercent = out.TotalProfitLoss.Div(out.TotalInvested).Mul(hundred).Round(2)
	}
	out.OpenOrders = l.openOrdersLocked(acc.UserID)
	c.JSON(http.StatusOK, out)
}

func (l *Ledger) handleCancel(c *gin.Context) {
	acc := accountOf(c)
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orders[c.Param("id")]
	if !ok {
		fail(c, http.StatusBadRequest, "Order not found or already filled/cancelled")
		return
	}
	if o.UserID != acc.UserID {
		fail(c, http.StatusBadRequest, "Not authorized to cancel this order")
		return
	}
	delete(l.orders, o.ID)
	if o.Side == types.SideBuy {
		acc.Balance = acc.Balance.Add(o.Price.Mul(decimal.NewFromInt(o.Quantity)))
	} else {
		acc.Holdings[o.MemeID] += o.Quantity
		if m, ok := l.memes[o.MemeID]; ok {
			acc.Invested[o.MemeID] = acc.Invested[o.MemeID].Add(m.CurrentPrice.Mul(decimal.NewFromInt(o.Quantity)))
		}
	}
	c.JSON(http.StatusOK, types.CancelOrderResponse{Success: true, Message: "Order cancelled successfully"})
}

func (l *Ledger) handleHistory(c *gin.Context) {
	acc := accountOf(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 || perPage < 1 || perPage > 100 {
		fail(c, http.StatusUnprocessableEntity, "invalid pagination")
		return
	}
	kind := c.Query("transaction_type")

	l.mu.Lock()
	matched := make([]types.Transaction, 0)
	for i := len(l.txs) - 1; i >= 0; i-- {
		tx := l.txs[i]
		if tx.UserID != acc.UserID || (kind != "" && tx.TransactionType != kind) {
			continue
		}
		matched = append(matched, tx.Transaction)
	}
	l.mu.Unlock()

	total := len(matched)
	start := min((page-1)*perPage, total)
	end := min(start+perPage, total)
	c.JSON(http.StatusOK, types.HistoryResponse{
		Transactions: matched[start:end],
		Total:        int64(total),
		Page:         page,
		TotalPages:   int64((total + perPage - 1) / perPage),
	})
}
