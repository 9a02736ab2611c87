package trade

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memestreet/marketsync/internal/balance"
	"github.com/memestreet/marketsync/internal/domain"
	"github.com/memestreet/marketsync/internal/events"
	"github.com/memestreet/marketsync/internal/ledgertest"
	"github.com/memestreet/marketsync/internal/pricing"
	"github.com/memestreet/marketsync/ledger/client"
	"github.com/memestreet/marketsync/ledger/types"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeSubmitter struct {
	mu    sync.Mutex
	buys  []client.BuyParams
	sells []client.SellParams
	resp  *types.TradeResponse
	err   error
}

func (f *fakeSubmitter) Buy(_ context.Context, p client.BuyParams) (*types.TradeResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buys = append(f.buys, p)
	return f.resp, f.err
}

func (f *fakeSubmitter) Sell(_ context.Context, p client.SellParams) (*types.TradeResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sells = append(f.sells, p)
	return f.resp, f.err
}

func (f *fakeSubmitter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buys) + len(f.sells)
}

type fakeBalance struct {
	mu      sync.Mutex
	snap    balance.Snapshot
	applied []decimal.Decimal
}

func newFakeBalance(amount string) *fakeBalance {
	return &fakeBalance{snap: balance.Snapshot{Amount: decimal.RequireFromString(amount), Known: true, Fetched: true}}
}

func (b *fakeBalance) Snapshot() balance.Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snap
}

func (b *fakeBalance) ApplyDelta(v decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.applied = append(b.applied, v)
	b.snap.Amount = v
	b.snap.Known = true
}

func marketListing() domain.Listing {
	return domain.Listing{
		ID:              "meme-1",
		Ticker:          "DOGE",
		CurrentPrice:    decimal.RequireFromString("1.20"),
		AvailableShares: 500,
		UserOwnsShares:  10,
	}
}

func offeringListing() domain.Listing {
	end := now.Add(time.Hour)
	remaining := int64(4)
	ipo := decimal.RequireFromString("0.10")
	return domain.Listing{
		ID:                 "meme-3",
		Ticker:             "NYAN",
		CurrentPrice:       decimal.RequireFromString("2.10"),
		AvailableShares:    1000,
		IPOEndAt:           &end,
		IPOSharesRemaining: &remaining,
		IPOPrice:           &ipo,
	}
}

func testConfig() Config {
	return Config{CompletionDelay: 20 * time.Millisecond, Now: func() time.Time { return now }}
}

func TestNewSessionDefaults(t *testing.T) {
	s := NewSession(marketListing(), domain.SideBuy, &fakeSubmitter{}, newFakeBalance("100"), nil, testConfig())
	v := s.View()
	assert.Equal(t, StateIdle, v.State)
	assert.Equal(t, int64(1), v.Quantity)
	assert.True(t, decimal.RequireFromString("1.20").Equal(v.LimitPrice))
	assert.Equal(t, int64(83), v.Quote.MaxQuantity)
}

func TestZeroQuantityNeverReachesNetwork(t *testing.T) {
	sub := &fakeSubmitter{}
	s := NewSession(marketListing(), domain.SideBuy, sub, newFakeBalance("100"), nil, testConfig())

	q, err := s.SetQuantity(0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), q)

	v, err := s.Submit(context.Background())
	var ve *pricing.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, pricing.FieldQuantity, ve.Field)
	assert.Equal(t, StateValidating, v.State)
	assert.Equal(t, KindValidation, v.Kind)
	assert.Equal(t, "Please enter a valid quantity", v.Message)
	assert.Zero(t, sub.calls())
}

func TestSetQuantityClampsAndRejectsNegative(t *testing.T) {
	s := NewSession(marketListing(), domain.SideSell, &fakeSubmitter{}, newFakeBalance("100"), nil, testConfig())

	q, err := s.SetQuantity(50)
	require.NoError(t, err)
	assert.Equal(t, int64(10), q)

	q, err = s.SetQuantity(-3)
	assert.ErrorIs(t, err, pricing.ErrNegativeQuantity)
	assert.Equal(t, int64(10), q)
	assert.Equal(t, int64(10), s.View().Quantity)
}

func TestSetLimitPriceText(t *testing.T) {
	s := NewSession(marketListing(), domain.SideSell, &fakeSubmitter{}, newFakeBalance("100"), nil, testConfig())
	require.NoError(t, s.SetLimitPriceText("1.35"))
	assert.True(t, decimal.RequireFromString("1.35").Equal(s.View().LimitPrice))

	err := s.SetLimitPriceText("abc")
	var ve *pricing.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Please enter a valid minimum price", ve.Message)
}

func TestServerBalanceWins(t *testing.T) {
	sub := &fakeSubmitter{resp: &types.TradeResponse{
		Success:    true,
		Message:    "Successfully bought 2 shares!",
		NewBalance: decimal.RequireFromString("97.55"),
	}}
	bal := newFakeBalance("100")
	s := NewSession(marketListing(), domain.SideBuy, sub, bal, nil, testConfig())
	_, err := s.SetQuantity(2)
	require.NoError(t, err)

	v, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, v.State)
	assert.Equal(t, "Successfully bought 2 shares!", v.Message)

	// 本地估算为 97.60，服务端给出 97.55
	require.Len(t, bal.applied, 1)
	assert.True(t, decimal.RequireFromString("97.55").Equal(bal.applied[0]))
	assert.True(t, decimal.RequireFromString("97.55").Equal(bal.Snapshot().Amount))
	assert.False(t, v.Pending)
}

func TestPrimaryOfferingBuyOmitsLimit(t *testing.T) {
	sub := &fakeSubmitter{resp: &types.TradeResponse{Success: true, Message: "ok", NewBalance: decimal.NewFromInt(99)}}
	s := NewSession(offeringListing(), domain.SideBuy, sub, newFakeBalance("100"), nil, testConfig())

	q, err := s.SetQuantity(9)
	require.NoError(t, err)
	assert.Equal(t, int64(4), q)
	assert.True(t, s.View().Quote.OfferingCapped)

	_, err = s.Submit(context.Background())
	require.NoError(t, err)
	require.Len(t, sub.buys, 1)
	assert.Nil(t, sub.buys[0].MaxPrice)
	assert.Equal(t, int64(4), sub.buys[0].Quantity)
}

func TestMarketBuyCarriesLimit(t *testing.T) {
	sub := &fakeSubmitter{resp: &types.TradeResponse{Success: true, Message: "Placed a buy order for 1 shares!", OrderID: "o-1"}}
	s := NewSession(marketListing(), domain.SideBuy, sub, newFakeBalance("100"), nil, testConfig())
	require.NoError(t, s.SetLimitPrice(decimal.RequireFromString("1.5")))

	v, err := s.Submit(context.Background())
	require.NoError(t, err)
	require.Len(t, sub.buys, 1)
	require.NotNil(t, sub.buys[0].MaxPrice)
	assert.True(t, decimal.RequireFromString("1.5").Equal(*sub.buys[0].MaxPrice))
	assert.True(t, v.Pending)
}

func TestSellDuringOfferingRejectedLocally(t *testing.T) {
	sub := &fakeSubmitter{}
	l := offeringListing()
	l.UserOwnsShares = 3
	s := NewSession(l, domain.SideSell, sub, newFakeBalance("100"), nil, testConfig())

	v, err := s.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Selling is disabled during the initial offering window", v.Message)
	assert.Zero(t, sub.calls())
}

func TestRejectionShowsDetailAndAllowsRetry(t *testing.T) {
	sub := &fakeSubmitter{err: &client.APIError{StatusCode: 400, Detail: "No sellers at or below your max price"}}
	bal := newFakeBalance("100")
	s := NewSession(marketListing(), domain.SideBuy, sub, bal, nil, testConfig())

	v, err := s.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateError, v.State)
	assert.Equal(t, KindRejected, v.Kind)
	assert.Equal(t, "No sellers at or below your max price", v.Message)
	assert.Empty(t, bal.applied)

	sub.mu.Lock()
	sub.err = nil
	sub.resp = &types.TradeResponse{Success: true, Message: "Successfully bought 1 shares!", NewBalance: decimal.RequireFromString("98.8")}
	sub.mu.Unlock()

	v, err = s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, v.State)
	assert.Equal(t, 2, sub.calls())
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind ErrorKind
		msg  string
	}{
		{"unauthorized", &client.APIError{StatusCode: 401, Detail: "Could not validate credentials"}, KindSession, SessionExpiredMessage},
		{"detail", &client.APIError{StatusCode: 400, Detail: "Insufficient balance"}, KindRejected, "Insufficient balance"},
		{"no detail", &client.APIError{StatusCode: 500}, KindRejected, GenericFailureMessage},
		{"network", errors.New("dial tcp: connection refused"), KindTransient, GenericFailureMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, msg := classify(tt.err)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.msg, msg)
		})
	}
}

func TestSuccessIsTerminalAndPublishesAfterDelay(t *testing.T) {
	bus := events.NewBus()
	got := make(chan events.TradeCompletedEvent, 1)
	events.Subscribe(bus, func(e events.TradeCompletedEvent) { got <- e })

	sub := &fakeSubmitter{resp: &types.TradeResponse{Success: true, Message: "Sold 1 shares!", NewBalance: decimal.NewFromInt(101)}}
	s := NewSession(marketListing(), domain.SideSell, sub, newFakeBalance("100"), bus, testConfig())
	defer s.Close()

	start := time.Now()
	_, err := s.Submit(context.Background())
	require.NoError(t, err)

	select {
	case e := <-got:
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
		assert.Equal(t, "meme-1", e.ListingID)
		assert.Equal(t, domain.SideSell, e.Side)
		assert.True(t, decimal.NewFromInt(101).Equal(e.NewBalance))
	case <-time.After(time.Second):
		t.Fatal("completion event not published")
	}

	_, err = s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = s.SetQuantity(2)
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Equal(t, 1, sub.calls())
}

func TestCompletionSeesConfirmedBalance(t *testing.T) {
	bus := events.NewBus()
	bal := newFakeBalance("100")
	seen := make(chan decimal.Decimal, 1)
	events.Subscribe(bus, func(events.TradeCompletedEvent) { seen <- bal.Snapshot().Amount })

	cfg := testConfig()
	cfg.CompletionDelay = 0
	sub := &fakeSubmitter{resp: &types.TradeResponse{Success: true, Message: "Sold 1 shares!", NewBalance: decimal.RequireFromString("101.20")}}
	s := NewSession(marketListing(), domain.SideSell, sub, bal, bus, cfg)
	defer s.Close()

	_, err := s.Submit(context.Background())
	require.NoError(t, err)
	select {
	case amount := <-seen:
		assert.True(t, decimal.RequireFromString("101.20").Equal(amount), "got %s", amount)
	case <-time.After(time.Second):
		t.Fatal("completion event not published")
	}
}

func TestCloseCancelsCompletion(t *testing.T) {
	bus := events.NewBus()
	var fired bool
	var mu sync.Mutex
	events.Subscribe(bus, func(events.TradeCompletedEvent) {
		mu.Lock()
		fired = true
		mu.Unlock()
	})
	cfg := testConfig()
	cfg.CompletionDelay = 50 * time.Millisecond
	sub := &fakeSubmitter{resp: &types.TradeResponse{Success: true, Message: "ok", NewBalance: decimal.NewFromInt(1)}}
	s := NewSession(marketListing(), domain.SideSell, sub, newFakeBalance("100"), bus, cfg)

	_, err := s.Submit(context.Background())
	require.NoError(t, err)
	s.Close()
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, fired)
}

func TestSessionAgainstLedger(t *testing.T) {
	l := ledgertest.New()
	ledgertest.Seed(l, time.Now())
	srv, base := l.Server()
	defer srv.Close()

	c := client.New(client.Config{BaseURL: base, Credentials: credential(ledgertest.DemoToken)})
	meme, err := c.GetListing(context.Background(), "meme-3")
	require.NoError(t, err)
	listing := domain.ListingFromWire(*meme)

	bal := newFakeBalance("1000")
	s := NewSession(listing, domain.SideBuy, c, bal, nil, Config{})
	defer s.Close()
	_, err = s.SetQuantity(3)
	require.NoError(t, err)

	v, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, v.State)
	assert.Equal(t, int64(3), l.Holding(ledgertest.DemoToken, "meme-3"))
	assert.True(t, l.Balance(ledgertest.DemoToken).Equal(bal.Snapshot().Amount))
}

type credential string

func (c credential) CurrentCredential() string { return string(c) }
