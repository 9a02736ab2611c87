// Package trade 单次买入/卖出的提交生命周期。
//
//	idle → validating → submitting → success | error
//	error → validating（调整后重试）
//	success 为终态
package trade

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/memestreet/marketsync/internal/balance"
	"github.com/memestreet/marketsync/internal/domain"
	"github.com/memestreet/marketsync/internal/events"
	"github.com/memestreet/marketsync/internal/pricing"
	"github.com/memestreet/marketsync/ledger/client"
	"github.com/memestreet/marketsync/ledger/types"
)

var log = logrus.WithField("component", "trade")

// GenericFailureMessage 服务端未给出原因时展示的文案
const GenericFailureMessage = "Trade failed. Please try again."

// SessionExpiredMessage 凭证失效时展示的文案
const SessionExpiredMessage = "Your session has expired. Please sign in again."

var (
	// ErrSessionClosed 交易已成功，不再接受提交
	ErrSessionClosed = errors.New("trade: session closed")
	// ErrSubmitInFlight 已有提交在途
	ErrSubmitInFlight = errors.New("trade: submit in flight")
)

// State 会话状态
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateSubmitting State = "submitting"
	StateSuccess    State = "success"
	StateError      State = "error"
)

// ErrorKind 失败分类
type ErrorKind string

const (
	KindNone       ErrorKind = ""
	KindValidation ErrorKind = "validation" // 客户端校验失败，未发请求
	KindTransient  ErrorKind = "transient"  // 网络等瞬时错误，可手动重试
	KindRejected   ErrorKind = "rejected"   // 服务端拒绝，原因原文展示
	KindSession    ErrorKind = "session"    // 401，交给会话层处理
)

// Submitter 下单接口（由账本客户端实现）
type Submitter interface {
	Buy(ctx context.Context, p client.BuyParams) (*types.TradeResponse, error)
	Sell(ctx context.Context, p client.SellParams) (*types.TradeResponse, error)
}

// BalanceSource 余额同步器能力
type BalanceSource interface {
	Snapshot() balance.Snapshot
	ApplyDelta(serverBalance decimal.Decimal)
}

// Config 会话配置
type Config struct {
	// CompletionDelay 成功后延迟多久发出 TradeCompletedEvent
	CompletionDelay time.Duration
	RequestTimeout  time.Duration
	Now             func() time.Time
}

// View 会话快照
type View struct {
	State      State
	Listing    domain.Listing
	Side       domain.Side
	Quantity   int64
	LimitPrice decimal.Decimal
	Quote      pricing.Quote
	Balance    balance.Snapshot
	// Validation 最近一次校验失败的原因
	Validation *pricing.ValidationError
	Kind       ErrorKind
	// Message 成功时为服务端确认文案，失败时为错误文案
	Message    string
	NewBalance decimal.Decimal
	Pending    bool
}

// Session 交易会话
type Session struct {
	submitter Submitter
	balance   BalanceSource
	bus       *events.Bus
	cfg       Config

	mu         sync.Mutex
	listing    domain.Listing
	side       domain.Side
	quantity   int64
	limit      decimal.Decimal
	state      State
	validation *pricing.ValidationError
	kind       ErrorKind
	message    string
	newBalance decimal.Decimal
	pending    bool
	timer      *time.Timer
	closed     bool
}

// NewSession 为某个资产创建买入或卖出会话，数量默认 1，限价默认当前价
func NewSession(listing domain.Listing, side domain.Side, submitter Submitter, bal BalanceSource, bus *events.Bus, cfg Config) *Session {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Session{
		submitter: submitter,
		balance:   bal,
		bus:       bus,
		cfg:       cfg,
		listing:   listing.Clone(),
		side:      side,
		quantity:  1,
		limit:     pricing.DefaultLimitPrice(listing),
		state:     StateIdle,
	}
}

func (s *Session) intentLocked() domain.TradeIntent {
	return domain.TradeIntent{Side: s.side, Quantity: s.quantity, LimitPrice: s.limit}
}

func (s *Session) quoteLocked() pricing.Quote {
	return pricing.NewQuote(s.listing, s.intentLocked(), s.balance.Snapshot().Funds(), s.cfg.Now())
}

// SetQuantity 把数量限制在 [0, 上限]；负数返回错误且数量不变
func (s *Session) SetQuantity(q int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSuccess {
		return s.quantity, ErrSessionClosed
	}
	clamped, err := pricing.ClampQuantity(q, s.quoteLocked().Bounds)
	if err != nil {
		return s.quantity, err
	}
	s.quantity = clamped
	return clamped, nil
}

// SetLimitPrice 设置限价（首发买入时忽略）
func (s *Session) SetLimitPrice(price decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSuccess {
		return ErrSessionClosed
	}
	s.limit = price
	return nil
}

// SetLimitPriceText 解析并设置用户输入的限价
func (s *Session) SetLimitPriceText(raw string) error {
	price, err := pricing.ParseLimitPrice(raw)
	if err != nil {
		return &pricing.ValidationError{Field: pricing.FieldLimitPrice, Message: limitMessage(s.side)}
	}
	return s.SetLimitPrice(price)
}

func limitMessage(side domain.Side) string {
	if side == domain.SideSell {
		return "Please enter a valid minimum price"
	}
	return "Please enter a valid maximum price"
}

// UpdateListing 用最新资产数据替换（例如列表刷新后）
func (s *Session) UpdateListing(l domain.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == s.listing.ID {
		s.listing = l.Clone()
	}
}

// Submit 校验并提交。校验失败时不发请求，状态停留在 validating。
func (s *Session) Submit(ctx context.Context) (View, error) {
	s.mu.Lock()
	switch s.state {
	case StateSuccess:
		s.mu.Unlock()
		return s.View(), ErrSessionClosed
	case StateSubmitting:
		s.mu.Unlock()
		return s.View(), ErrSubmitInFlight
	}

	s.state = StateValidating
	s.validation = nil
	s.kind = KindNone
	s.message = ""
	intent := s.intentLocked()
	now := s.cfg.Now()
	if err := pricing.Validate(s.listing, intent, s.balance.Snapshot().Funds(), now); err != nil {
		var ve *pricing.ValidationError
		if errors.As(err, &ve) {
			s.validation = ve
			s.message = ve.Message
		}
		s.kind = KindValidation
		s.mu.Unlock()
		log.Debugf("[trade] %s %s rejected locally: %v", intent.Side, s.listing.Ticker, err)
		return s.View(), err
	}

	p := pricing.ResolvePricing(s.listing, intent.Side, intent.LimitPrice, now)
	s.state = StateSubmitting
	listing := s.listing
	s.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}
	resp, err := s.send(ctx, listing, intent, p)

	s.mu.Lock()
	if err != nil {
		s.state = StateError
		s.kind, s.message = classify(err)
		s.mu.Unlock()
		log.Warnf("[trade] %s %d %s failed: %v", intent.Side, intent.Quantity, listing.Ticker, err)
		return s.View(), err
	}

	s.state = StateSuccess
	s.message = resp.Message
	s.newBalance = resp.NewBalance
	s.pending = isPending(resp, intent.Quantity)
	completed := events.TradeCompletedEvent{
		ListingID:  listing.ID,
		Ticker:     listing.Ticker,
		Side:       intent.Side,
		Quantity:   intent.Quantity,
		NewBalance: resp.NewBalance,
		Message:    resp.Message,
		Pending:    s.pending,
	}
	s.mu.Unlock()

	// 余额只用服务端确认值，不做本地扣减；完成通知在余额更新之后发出
	s.balance.ApplyDelta(resp.NewBalance)

	s.mu.Lock()
	if !s.closed {
		s.timer = time.AfterFunc(max(0, s.cfg.CompletionDelay), func() {
			completed.Timestamp = time.Now()
			events.Publish(s.bus, completed)
		})
	}
	s.mu.Unlock()
	log.Infof("✅ [trade] %s", resp.Message)
	return s.View(), nil
}

func (s *Session) send(ctx context.Context, l domain.Listing, intent domain.TradeIntent, p pricing.Pricing) (*types.TradeResponse, error) {
	if intent.Side == domain.SideBuy {
		params := client.BuyParams{MemeID: l.ID, Quantity: intent.Quantity}
		if p.Mode != pricing.ModePrimary {
			limit := intent.LimitPrice
			params.MaxPrice = &limit
		}
		return s.submitter.Buy(ctx, params)
	}
	return s.submitter.Sell(ctx, client.SellParams{MemeID: l.ID, Quantity: intent.Quantity, MinPrice: intent.LimitPrice})
}

func classify(err error) (ErrorKind, string) {
	if errors.Is(err, client.ErrUnauthorized) {
		return KindSession, SessionExpiredMessage
	}
	if detail := client.DetailOf(err); detail != "" {
		return KindRejected, detail
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return KindRejected, GenericFailureMessage
	}
	return KindTransient, GenericFailureMessage
}

// isPending 订单是否挂单未完全成交
func isPending(resp *types.TradeResponse, quantity int64) bool {
	if resp.OrderID != "" {
		return true
	}
	if resp.FilledShares > 0 && resp.FilledShares < quantity {
		return true
	}
	return strings.HasPrefix(resp.Message, "Placed") || strings.HasPrefix(resp.Message, "Listed")
}

// View 当前快照
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		State:      s.state,
		Listing:    s.listing.Clone(),
		Side:       s.side,
		Quantity:   s.quantity,
		LimitPrice: s.limit,
		Quote:      s.quoteLocked(),
		Balance:    s.balance.Snapshot(),
		Validation: s.validation,
		Kind:       s.kind,
		Message:    s.message,
		NewBalance: s.newBalance,
		Pending:    s.pending,
	}
}

// State 当前状态
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close 取消尚未发出的完成通知
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
}
