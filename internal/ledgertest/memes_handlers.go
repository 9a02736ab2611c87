package ledgertest

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/memestreet/marketsync/ledger/types"
)

var (
	upvoteWeight   = decimal.RequireFromString("0.005")
	downvoteWeight = decimal.RequireFromString("0.003")
	minPrice       = decimal.RequireFromString("0.01")
)

// Categories 分类选项
var Categories = []types.Category{
	{Value: "all", Label: "All"},
	{Value: "animals", Label: "Animals"},
	{Value: "gaming", Label: "Gaming"},
	{Value: "crypto", Label: "Crypto"},
	{Value: "reaction", Label: "Reaction"},
	{Value: "classic", Label: "Classic"},
}

func (l *Ledger) ipoActiveLocked(m *memeState) bool {
	if !m.IPOEndAt.Valid || !m.IPOEndAt.Time.After(l.now()) {
		return false
	}
	return m.IPOSharesRemaining == nil || *m.IPOSharesRemaining > 0
}

// view 以当前用户视角返回资产
func (l *Ledger) viewLocked(m *memeState, acc *Account) types.Meme {
	out := m.Meme
	if acc != nil {
		out.UserHasUpvoted = m.upvotedBy[acc.UserID]
		out.UserHasDownvoted = m.downvotedBy[acc.UserID]
		out.UserOwnsShares = acc.Holdings[m.ID]
	}
	return out
}

func sortValue(m *memeState, key types.SortKey) decimal.Decimal {
	switch key {
	case types.SortPrice:
		return m.CurrentPrice
	case types.SortVolume:
		return m.Volume24h
	case types.SortChange:
		return m.PriceChangePercent24h
	case types.SortUpvotes:
		return decimal.NewFromInt(m.Upvotes)
	case types.SortNewest:
		return decimal.NewFromInt(m.CreatedAt.Time.UnixNano())
	default:
		return m.MarketCap
	}
}

func (l *Ledger) handleListMemes(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 || perPage < 1 || perPage > 100 {
		fail(c, http.StatusUnprocessableEntity, "invalid pagination")
		return
	}
	sortBy := types.SortKey(c.DefaultQuery("sort_by", string(types.SortMarketCap)))
	if !sortBy.Valid() {
		fail(c, http.StatusUnprocessableEntity, "invalid sort_by")
		return
	}
	order := types.SortOrder(c.DefaultQuery("sort_order", string(types.SortDesc)))
	if !order.Valid() {
		fail(c, http.StatusUnprocessableEntity, "invalid sort_order")
		return
	}
	category := c.Query("category")
	search := strings.ToLower(strings.TrimSpace(c.Query("search")))
	acc := accountOf(c)

	l.mu.Lock()
	matched := make([]*memeState, 0, len(l.memes))
	for _, m := range l.memes {
		if category != "" && category != "all" && m.Category != category {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(m.Name), search) &&
			!strings.Contains(strings.ToLower(m.Ticker), search) {
			continue
		}
		matched = append(matched, m)
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := sortValue(matched[i], sortBy), sortValue(matched[j], sortBy)
		if cmp := a.Cmp(b); cmp != 0 {
			if order == types.SortAsc {
				return cmp < 0
			}
			return cmp > 0
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}
	out := make([]types.Meme, 0, end-start)
	for _, m := range matched[start:end] {
		out = append(out, l.viewLocked(m, acc))
	}
	l.mu.Unlock()

	c.JSON(http.StatusOK, types.ListListingsResponse{
		Memes:      out,
		Total:      int64(total),
		TotalPages: int64((total + perPage - 1) / perPage),
	})
}

func (l *Ledger) handleGetMeme(c *gin.Context) {
	acc := accountOf(c)
	l.mu.Lock()
	m, ok := l.memes[c.Param("id")]
	var out types.Meme
	if ok {
		out = l.viewLocked(m, acc)
	}
	l.mu.Unlock()
	if !ok {
		fail(c, http.StatusNotFound, "Meme not found")
		return
	}
	c.JSON(http.StatusOK, out)
}

// TrendingLimit 热门列表条数
const TrendingLimit = 10

func (l *Ledger) handleTrending(c *gin.Context) {
	acc := accountOf(c)
	l.mu.Lock()
	all := make([]*memeState, 0, len(l.memes))
	for _, m := range l.memes {
		all = append(all, m)
	}
	sort.Slice(all, func(i, j int) bool {
		if cmp := all[i].Volume24h.Cmp(all[j].Volume24h); cmp != 0 {
			return cmp > 0
		}
		return all[i].ID < all[j].ID
	})
	out := make([]types.Meme, 0, TrendingLimit)
	for _, m := range all[:min(TrendingLimit, len(all))] {
		out = append(out, l.viewLocked(m, acc))
	}
	l.mu.Unlock()
	c.JSON(http.StatusOK, out)
}

func (l *Ledger) handleGetByTicker(c *gin.Context) {
	acc := accountOf(c)
	ticker := strings.ToUpper(strings.TrimSpace(c.Param("ticker")))
	l.mu.Lock()
	var out types.Meme
	found := false
	for _, m := range l.memes {
		if strings.ToUpper(m.Ticker) == ticker {
			out = l.viewLocked(m, acc)
			found = true
			break
		}
	}
	l.mu.Unlock()
	if !found {
		fail(c, http.StatusNotFound, "Meme not found")
		return
	}
	c.JSON(http.StatusOK, out)
}

func (l *Ledger) handleCategories(c *gin.Context) {
	c.JSON(http.StatusOK, Categories)
}

// handleVote 点赞/点踩是切换操作：重复调用取消，切换方向会清除反方向
func (l *Ledger) handleVote(up bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		acc := accountOf(c)
		l.mu.Lock()
		m, ok := l.memes[c.Param("id")]
		if !ok {
			l.mu.Unlock()
			fail(c, http.StatusNotFound, "Meme not found")
			return
		}

		same, opposite := m.upvotedBy, m.downvotedBy
		sameCount, oppCount := &m.Upvotes, &m.Downvotes
		if !up {
			same, opposite = m.downvotedBy, m.upvotedBy
			sameCount, oppCount = &m.Downvotes, &m.Upvotes
		}

		var active bool
		if same[acc.UserID] {
			delete(same, acc.UserID)
			*sameCount = max(0, *sameCount-1)
		} else {
			same[acc.UserID] = true
			*sameCount++
			active = true
			if opposite[acc.UserID] {
				delete(opposite, acc.UserID)
				*oppCount = max(0, *oppCount-1)
			}
		}

		oldPrice := m.CurrentPrice
		newPrice := l.engagementPriceLocked(m)
		m.CurrentPrice = newPrice
		if m.TotalShares > 0 {
			m.MarketCap = newPrice.Mul(decimal.NewFromInt(m.TotalShares))
		}
		change := newPrice.Sub(oldPrice)
		percent := decimal.Zero
		if oldPrice.IsPositive() {
			percent = change.Div(oldPrice).Mul(decimal.NewFromInt(100)).Round(4)
		}
		l.mu.Unlock()

		msg := "Upvoted!"
		switch {
		case up && !active:
			msg = "Removed upvote"
		case !up && active:
			msg = "Downvoted!"
		case !up && !active:
			msg = "Removed downvote"
		}
		c.JSON(http.StatusOK, types.VoteResponse{
			Success:            active,
			Message:            msg,
			NewPrice:           newPrice,
			PriceChange:        change,
			PriceChangePercent: percent,
		})
	}
}

// engagementPriceLocked 价格由基础价与票数决定
func (l *Ledger) engagementPriceLocked(m *memeState) decimal.Decimal {
	factor := decimal.NewFromInt(1).
		Add(upvoteWeight.Mul(decimal.NewFromInt(m.Upvotes))).
		Sub(downvoteWeight.Mul(decimal.NewFromInt(m.Downvotes)))
	price := m.basePrice.Mul(factor).Round(4)
	if price.LessThan(minPrice) {
		return minPrice
	}
	return price
}
