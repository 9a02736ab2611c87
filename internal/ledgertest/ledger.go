// Package ledgertest 内存版账本服务，实现与真实账本相同的 HTTP 契约。
// 用于客户端/端到端测试以及本地开发（cmd/ledger-stub）。
package ledgertest

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/memestreet/marketsync/ledger/types"
)

// Account 账本用户
type Account struct {
	Token    string
	UserID   string
	Username string
	Balance  decimal.Decimal
	Holdings map[string]int64
	// Invested 每个资产的累计成本
	Invested map[string]decimal.Decimal
}

type memeState struct {
	types.Meme
	basePrice   decimal.Decimal
	upvotedBy   map[string]bool
	downvotedBy map[string]bool
}

type order struct {
	ID       string
	UserID   string
	MemeID   string
	Side     types.Side
	Quantity int64
	Price    decimal.Decimal
	Created  time.Time
}

type txRecord struct {
	types.Transaction
	UserID string
}

// Interceptor 在处理器之前运行；返回 true 表示已写响应，处理器不再执行。
// 拦截器在账本锁之外运行，可以阻塞。
type Interceptor func(c *gin.Context) bool

// Ledger 内存账本
type Ledger struct {
	mu       sync.Mutex
	now      func() time.Time
	memes    map[string]*memeState
	accounts map[string]*Account // key: token
	orders   map[string]*order
	txs      []txRecord

	calls     map[string]int
	lastQuery map[string]url.Values
	intercept Interceptor
}

// New 创建空账本
func New() *Ledger {
	return &Ledger{
		now:       time.Now,
		memes:     make(map[string]*memeState),
		accounts:  make(map[string]*Account),
		orders:    make(map[string]*order),
		calls:     make(map[string]int),
		lastQuery: make(map[string]url.Values),
	}
}

// SetClock 替换时钟（测试用）
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// AddMeme 添加资产；首发剩余份额缺失时视为未知
func (l *Ledger) AddMeme(m types.Meme) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !m.CreatedAt.Valid {
		m.CreatedAt = types.NewTimestamp(l.now().Add(time.Duration(len(l.memes)) * time.Second))
	}
	if m.MarketCap.IsZero() && m.TotalShares > 0 {
		m.MarketCap = m.CurrentPrice.Mul(decimal.NewFromInt(m.TotalShares))
	}
	l.memes[m.ID] = &memeState{
		Meme:        m,
		basePrice:   m.CurrentPrice,
		upvotedBy:   make(map[string]bool),
		downvotedBy: make(map[string]bool),
	}
}

// AddAccount 添加用户
func (l *Ledger) AddAccount(token, userID string, balance decimal.Decimal) *Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := &Account{
		Token:    token,
		UserID:   userID,
		Username: userID,
		Balance:  balance,
		Holdings: make(map[string]int64),
		Invested: make(map[string]decimal.Decimal),
	}
	l.accounts[token] = acc
	return acc
}

// SetHolding 直接设置持仓
func (l *Ledger) SetHolding(token, memeID string, qty int64, avgPrice decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if acc, ok := l.accounts[token]; ok {
		acc.Holdings[memeID] = qty
		acc.Invested[memeID] = avgPrice.Mul(decimal.NewFromInt(qty))
	}
}

// SetBalance 直接设置余额（模拟服务端侧变化）
func (l *Ledger) SetBalance(token string, balance decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if acc, ok := l.accounts[token]; ok {
		acc.Balance = balance
	}
}

// Balance 查询余额
func (l *Ledger) Balance(token string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	if acc, ok := l.accounts[token]; ok {
		return acc.Balance
	}
	return decimal.Zero
}

// Holding 查询持仓
func (l *Ledger) Holding(token, memeID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if acc, ok := l.accounts[token]; ok {
		return acc.Holdings[memeID]
	}
	return 0
}

// Meme 查询资产快照
func (l *Ledger) Meme(id string) (types.Meme, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.memes[id]
	if !ok {
		return types.Meme{}, false
	}
	return m.Meme, true
}

// SetInterceptor 设置请求拦截器，nil 表示清除
func (l *Ledger) SetInterceptor(fn Interceptor) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.intercept = fn
}

// Calls 某路由被调用次数，route 形如 "/api/memes/:id/upvote"
func (l *Ledger) Calls(route string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[route]
}

// LastQuery 某路由最后一次请求的查询参数
func (l *Ledger) LastQuery(route string) url.Values {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastQuery[route]
}

// OpenOrders 某用户的挂单
func (l *Ledger) OpenOrders(token string) []types.OpenOrder {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[token]
	if !ok {
		return nil
	}
	return l.openOrdersLocked(acc.UserID)
}

func (l *Ledger) openOrdersLocked(userID string) []types.OpenOrder {
	out := make([]types.OpenOrder, 0)
	for _, o := range l.orders {
		if o.UserID != userID {
			continue
		}
		ticker := ""
		if m, ok := l.memes[o.MemeID]; ok {
			ticker = m.Ticker
		}
		out = append(out, types.OpenOrder{
			ID:        o.ID,
			MemeID:    o.MemeID,
			Ticker:    ticker,
			Side:      o.Side,
			Quantity:  o.Quantity,
			Price:     o.Price,
			CreatedAt: types.NewTimestamp(o.Created),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Time.Before(out[j].CreatedAt.Time) })
	return out
}

// Server 启动 httptest 服务，返回 API 基地址（含 /api）
func (l *Ledger) Server() (*httptest.Server, string) {
	srv := httptest.NewServer(l.Handler())
	return srv, srv.URL + "/api"
}

// Handler 返回 gin 路由
func (l *Ledger) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.Use(l.track)

	memes := api.Group("/memes")
	memes.GET("", l.optionalAuth, l.handleListMemes)
	memes.GET("/categories", l.handleCategories)
	memes.GET("/trending", l.optionalAuth, l.handleTrending)
	memes.GET("/ticker/:ticker", l.optionalAuth, l.handleGetByTicker)
	memes.GET("/:id", l.optionalAuth, l.handleGetMeme)
	memes.POST("/:id/upvote", l.requireAuth, l.handleVote(true))
	memes.POST("/:id/downvote", l.requireAuth, l.handleVote(false))

	trading := api.Group("/trading", l.requireAuth)
	trading.POST("/buy", l.handleBuy)
	trading.POST("/sell", l.handleSell)
	trading.GET("/balance", l.handleBalance)
	trading.GET("/portfolio", l.handlePortfolio)
	trading.GET("/history", l.handleHistory)
	trading.POST("/orders/:id/cancel", l.handleCancel)

	return r
}

const ctxAccount = "ledger_account"

func (l *Ledger) track(c *gin.Context) {
	route := c.FullPath()
	l.mu.Lock()
	l.calls[route]++
	l.lastQuery[route] = c.Request.URL.Query()
	fn := l.intercept
	l.mu.Unlock()

	if fn != nil && fn(c) {
		c.Abort()
		return
	}
	c.Next()
}

func (l *Ledger) lookup(c *gin.Context) *Account {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accounts[token]
}

func (l *Ledger) optionalAuth(c *gin.Context) {
	if acc := l.lookup(c); acc != nil {
		c.Set(ctxAccount, acc)
	}
	c.Next()
}

func (l *Ledger) requireAuth(c *gin.Context) {
	acc := l.lookup(c)
	if acc == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Could not validate credentials"})
		return
	}
	c.Set(ctxAccount, acc)
	c.Next()
}

func accountOf(c *gin.Context) *Account {
	v, ok := c.Get(ctxAccount)
	if !ok {
		return nil
	}
	acc, _ := v.(*Account)
	return acc
}

func fail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}
