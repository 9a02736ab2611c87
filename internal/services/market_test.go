package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memestreet/marketsync/internal/domain"
	"github.com/memestreet/marketsync/internal/events"
	"github.com/memestreet/marketsync/internal/feed"
	"github.com/memestreet/marketsync/internal/ledgertest"
	"github.com/memestreet/marketsync/internal/session"
	"github.com/memestreet/marketsync/internal/trade"
	"github.com/memestreet/marketsync/ledger/types"
	"github.com/memestreet/marketsync/pkg/config"
	"github.com/memestreet/marketsync/pkg/persistence"
)

type harness struct {
	ledger  *ledgertest.Ledger
	cfg     *config.Config
	store   *session.MemoryStore
	persist persistence.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	l := ledgertest.New()
	ledgertest.Seed(l, time.Now())
	srv, base := l.Server()
	t.Cleanup(srv.Close)

	cfg, err := config.LoadFromFile("")
	require.NoError(t, err)
	cfg.APIBaseURL = base
	cfg.PageSize = 4
	cfg.SearchDebounce = 0
	cfg.TradeCompleteDelay = 10 * time.Millisecond
	cfg.RequestTimeout = 2 * time.Second
	cfg.RateLimit.VotesPerSec = 0
	cfg.RateLimit.TradesPerSec = 0
	cfg.RateLimit.ReadsPerSec = 0

	return &harness{
		ledger:  l,
		cfg:     cfg,
		store:   &session.MemoryStore{},
		persist: persistence.NewJSONFileService(t.TempDir()),
	}
}

func (h *harness) start(t *testing.T) *MarketService {
	t.Helper()
	m, err := New(Options{Config: h.cfg, SessionStore: h.store, Persistence: h.persist})
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m
}

func waitLoaded(t *testing.T, m *MarketService) feed.State {
	t.Helper()
	var s feed.State
	require.Eventually(t, func() bool {
		s = m.Feed().State()
		return s.Status == feed.StatusSuccess
	}, 2*time.Second, 5*time.Millisecond)
	return s
}

func TestStartLoadsFeedAnonymously(t *testing.T) {
	h := newHarness(t)
	m := h.start(t)

	s := waitLoaded(t, m)
	assert.Len(t, s.Listings, 4)
	assert.True(t, s.HasMore)
	assert.False(t, m.Session().IsAuthenticated())

	_, err := m.OpenTrade(context.Background(), "meme-1", domain.SideBuy)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = m.WalletBalance(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestFeedQueryIsRestored(t *testing.T) {
	h := newHarness(t)
	m := h.start(t)
	waitLoaded(t, m)

	category := "animals"
	sortBy := types.SortPrice
	require.NoError(t, m.SetFilter(feed.Filter{Category: &category, SortBy: &sortBy}))
	s := waitLoaded(t, m)
	assert.Len(t, s.Listings, 2)
	require.NoError(t, m.Close(context.Background()))

	again := h.start(t)
	q := again.Feed().Query()
	assert.Equal(t, "animals", q.Category)
	assert.Equal(t, types.SortPrice, q.SortBy)
	s = waitLoaded(t, again)
	assert.Len(t, s.Listings, 2)
}

func TestTradeCompletionRefreshesFeed(t *testing.T) {
	h := newHarness(t)
	m := h.start(t)
	require.NoError(t, m.Login(context.Background(), ledgertest.DemoToken, session.Profile{Username: "demo"}))
	before := waitLoaded(t, m)

	var mu sync.Mutex
	var balances []decimal.Decimal
	events.Subscribe(m.Bus(), func(e events.BalanceChangedEvent) {
		mu.Lock()
		balances = append(balances, e.Balance)
		mu.Unlock()
	})
	completed := make(chan events.TradeCompletedEvent, 1)
	events.Subscribe(m.Bus(), func(e events.TradeCompletedEvent) { completed <- e })

	ts, err := m.OpenTrade(context.Background(), "meme-3", domain.SideBuy)
	require.NoError(t, err)
	_, err = ts.SetQuantity(2)
	require.NoError(t, err)
	v, err := ts.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, trade.StateSuccess, v.State)
	assert.Equal(t, "Successfully bought 2 shares!", v.Message)

	select {
	case e := <-completed:
		assert.Equal(t, "meme-3", e.ListingID)
	case <-time.After(2 * time.Second):
		t.Fatal("trade completion not published")
	}
	require.Eventually(t, func() bool {
		s := m.Feed().State()
		return s.Generation > before.Generation && s.Status == feed.StatusSuccess
	}, 2*time.Second, 5*time.Millisecond)

	server := h.ledger.Balance(ledgertest.DemoToken)
	assert.True(t, server.Equal(m.Balance().Snapshot().Amount))
	cached, ok := m.Session().CachedWalletBalance()
	assert.True(t, ok)
	assert.True(t, server.Equal(cached))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, balances)
	assert.True(t, server.Equal(balances[len(balances)-1]))
}

func TestUnauthorizedInvalidatesSession(t *testing.T) {
	h := newHarness(t)
	m := h.start(t)

	invalidated := make(chan string, 1)
	events.Subscribe(m.Bus(), func(e events.SessionInvalidatedEvent) { invalidated <- e.Reason })

	err := m.Login(context.Background(), "bogus-token", session.Profile{Username: "nobody"})
	require.Error(t, err)

	select {
	case reason := <-invalidated:
		assert.Equal(t, "Could not validate credentials", reason)
	case <-time.After(time.Second):
		t.Fatal("session invalidation not published")
	}
	assert.False(t, m.Session().IsAuthenticated())
	_, ok, _ := h.store.Load()
	assert.False(t, ok)
}

func TestCategoriesAreCached(t *testing.T) {
	h := newHarness(t)
	m := h.start(t)

	first, err := m.Categories(context.Background())
	require.NoError(t, err)
	second, err := m.Categories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, "all", first[0].Value)
	assert.Equal(t, 1, h.ledger.Calls("/api/memes/categories"))
}

func TestVotePublishesSettlement(t *testing.T) {
	h := newHarness(t)
	m := h.start(t)
	require.NoError(t, m.Login(context.Background(), ledgertest.DemoToken, session.Profile{Username: "demo"}))
	s := waitLoaded(t, m)
	target := s.Listings[0]

	settled := make(chan events.VoteSettledEvent, 1)
	events.Subscribe(m.Bus(), func(e events.VoteSettledEvent) { settled <- e })

	optimistic, _, err := m.Vote(context.Background(), target.ID, domain.VoteUp)
	require.NoError(t, err)
	assert.True(t, optimistic.UserHasUpvoted)
	assert.Equal(t, target.Upvotes+1, optimistic.Upvotes)

	select {
	case e := <-settled:
		require.NoError(t, e.Err)
		assert.Equal(t, target.ID, e.ListingID)
		assert.True(t, e.Active)
	case <-time.After(2 * time.Second):
		t.Fatal("vote settlement not published")
	}
	got, ok := m.Feed().Get(target.ID)
	require.True(t, ok)
	assert.True(t, got.UserHasUpvoted)
	assert.Equal(t, target.Upvotes+1, got.Upvotes)
}

func TestPortfolioAppliesWalletBalance(t *testing.T) {
	h := newHarness(t)
	m := h.start(t)
	require.NoError(t, m.Login(context.Background(), ledgertest.DemoToken, session.Profile{Username: "demo"}))

	h.ledger.SetBalance(ledgertest.DemoToken, decimal.RequireFromString("750.25"))
	p, err := m.Portfolio().Get(context.Background())
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("750.25").Equal(p.WalletBalance))

	snap, err := m.WalletBalance(context.Background())
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("750.25").Equal(snap.Amount))
}

func TestOpenTradeByTicker(t *testing.T) {
	h := newHarness(t)
	m := h.start(t)
	require.NoError(t, m.Login(context.Background(), ledgertest.DemoToken, session.Profile{Username: "demo"}))

	ts, err := m.OpenTrade(context.Background(), "hodl", domain.SideBuy)
	require.NoError(t, err)
	defer m.CloseTrade(ts)
	v := ts.View()
	assert.Equal(t, "meme-5", v.Listing.ID)
	assert.Equal(t, "HODL", v.Listing.Ticker)

	_, err = m.OpenTrade(context.Background(), "missing", domain.SideBuy)
	assert.Error(t, err)
}

func TestTrendingDoesNotTouchFeed(t *testing.T) {
	h := newHarness(t)
	m := h.start(t)
	before := waitLoaded(t, m)

	trending, err := m.Trending(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, trending)
	assert.Equal(t, "STONKS", trending[0].Ticker)
	assert.Equal(t, before.Generation, m.Feed().State().Generation)
}
