package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/memestreet/marketsync/internal/balance"
	"github.com/memestreet/marketsync/internal/events"
	"github.com/memestreet/marketsync/internal/feed"
	"github.com/memestreet/marketsync/internal/portfolio"
	"github.com/memestreet/marketsync/internal/session"
	"github.com/memestreet/marketsync/internal/trade"
	"github.com/memestreet/marketsync/internal/vote"
	"github.com/memestreet/marketsync/ledger/client"
	"github.com/memestreet/marketsync/ledger/types"
	"github.com/memestreet/marketsync/pkg/cache"
	"github.com/memestreet/marketsync/pkg/config"
	"github.com/memestreet/marketsync/pkg/persistence"
	"github.com/memestreet/marketsync/pkg/ratelimit"
	"github.com/memestreet/marketsync/pkg/secretstore"
	"github.com/memestreet/marketsync/pkg/shutdown"
)

var log = logrus.WithField("component", "market_service")

// ErrUnauthenticated 需要登录的操作
var ErrUnauthenticated = errors.New("market: sign in required")

// Options 构造参数，零值字段按配置创建
type Options struct {
	Config *config.Config
	// SessionStore 为空时按配置打开 Badger 存储
	SessionStore session.Store
	// Persistence 为空时在 Config.StateDir 下存 JSON 文件
	Persistence persistence.Service
	HTTPClient  *http.Client
	Now         func() time.Time
}

// MarketService 进程级上下文：持有会话并把它显式传给各组件
type MarketService struct {
	cfg *config.Config
	now func() time.Time

	session    *session.Session
	client     *client.Client
	bus        *events.Bus
	balance    *balance.Synchronizer
	feed       *feed.Paginator
	votes      *vote.Reconciler
	portfolio  *portfolio.Service
	categories *cache.InMemoryCache[string, []types.Category]
	queryStore persistence.Store
	shutdown   *shutdown.Manager

	mu        sync.Mutex
	savedQ    feed.Query
	trades    map[*trade.Session]struct{}
	started   bool
	closed    bool
	unsubs    []func()
	pendingWG sync.WaitGroup
}

// New 组装各组件，不发起任何请求；调用 Start 开始工作
func New(opts Options) (*MarketService, error) {
	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.LoadFromFile("")
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	m := &MarketService{
		cfg:      cfg,
		now:      now,
		bus:      events.NewBus(),
		shutdown: shutdown.NewManager(),
		trades:   make(map[*trade.Session]struct{}),
	}

	store := opts.SessionStore
	if store == nil {
		key, err := secretstore.ParseKey(cfg.SessionStoreKey)
		if err != nil {
			return nil, fmt.Errorf("session_store_key: %w", err)
		}
		kv, err := secretstore.Open(secretstore.OpenOptions{Path: cfg.SessionStorePath, EncryptionKey: key})
		if err != nil {
			return nil, err
		}
		m.shutdown.OnShutdown("secretstore", func(context.Context) error { return kv.Close() })
		store = session.NewSecretStore(kv)
	}
	m.session = session.New(store)

	m.client = client.New(client.Config{
		BaseURL:     cfg.APIBaseURL,
		Timeout:     cfg.RequestTimeout,
		Credentials: m.session,
		Invalidator: m.session,
		Limits: ratelimit.NewManager(ratelimit.Limits{
			VotesPerSec:  cfg.RateLimit.VotesPerSec,
			TradesPerSec: cfg.RateLimit.TradesPerSec,
			ReadsPerSec:  cfg.RateLimit.ReadsPerSec,
		}),
		HTTPClient: opts.HTTPClient,
	})

	persist := opts.Persistence
	if persist == nil {
		persist = persistence.NewJSONFileService(cfg.StateDir)
	}
	m.queryStore = persist.NewStore("feed", "default", "query")

	m.balance = balance.New(m.client, m.session, cfg.RequestTimeout)
	m.portfolio = portfolio.New(m.client, m.balance)
	m.categories = cache.NewInMemoryCache[string, []types.Category](cfg.CategoriesTTL)
	return m, nil
}

// Start 恢复会话与上次的筛选条件，加载第一页，已登录时拉取一次余额
func (m *MarketService) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started || m.closed {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	if err := m.session.Init(ctx); err != nil {
		return fmt.Errorf("init session: %w", err)
	}

	query := m.restoreQuery()
	m.feed = feed.New(m.client, feed.Config{
		PageSize:       m.cfg.PageSize,
		SearchDebounce: m.cfg.SearchDebounce,
		RequestTimeout: m.cfg.RequestTimeout,
	}, query)
	m.votes = vote.New(m.client, m.session, m.feed, vote.Config{
		RollbackOnFailure: m.cfg.VoteRollbackOnFailure,
		Timeout:           m.cfg.RequestTimeout,
	})
	m.wire()

	m.shutdown.OnShutdown("feed", func(context.Context) error {
		m.feed.Close()
		return nil
	})
	m.shutdown.OnShutdown("votes", func(ctx context.Context) error {
		return waitWithContext(ctx, m.votes.Wait)
	})
	m.shutdown.OnShutdown("trades", func(context.Context) error {
		m.closeTrades()
		return nil
	})

	m.feed.Start()
	if m.session.IsAuthenticated() {
		if err := m.balance.EnsureFetched(ctx); err != nil {
			log.Warnf("[market] initial balance fetch failed: %v", err)
		}
	}
	log.Infof("✅ [market] started, api=%s authenticated=%v", m.cfg.APIBaseURL, m.session.IsAuthenticated())
	return nil
}

// wire 组件之间的事件连接
func (m *MarketService) wire() {
	m.feed.OnChange(func(s feed.State) {
		events.Publish(m.bus, events.FeedUpdatedEvent{
			Generation: s.Generation,
			Page:       s.Page,
			Count:      len(s.Listings),
			HasMore:    s.HasMore,
			Status:     string(s.Status),
			Timestamp:  m.now(),
		})
		m.persistQuery(s.Query)
	})
	m.balance.OnChange(func(s balance.Snapshot) {
		events.Publish(m.bus, events.BalanceChangedEvent{Balance: s.Amount, Known: s.Known, Timestamp: m.now()})
	})
	m.session.OnInvalidated(func(reason string) {
		events.Publish(m.bus, events.SessionInvalidatedEvent{Reason: reason, Timestamp: m.now()})
	})
	// 交易完成后刷新列表（价格、持仓标记都可能变化）
	unsub := events.Subscribe(m.bus, func(e events.TradeCompletedEvent) {
		log.Debugf("[market] trade completed on %s, refreshing feed", e.Ticker)
		m.feed.Refresh()
	})
	m.mu.Lock()
	m.unsubs = append(m.unsubs, unsub)
	m.mu.Unlock()
}

// Close 按注册的逆序关闭各组件
func (m *MarketService) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	unsubs := m.unsubs
	m.unsubs = nil
	m.mu.Unlock()

	for _, fn := range unsubs {
		fn()
	}
	err := m.shutdown.Shutdown(ctx)
	m.pendingWG.Wait()
	return err
}

func waitWithContext(ctx context.Context, wait func()) error {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Session 会话
func (m *MarketService) Session() *session.Session { return m.session }

// Bus 事件总线
func (m *MarketService) Bus() *events.Bus { return m.bus }

// Feed 列表分页器，Start 之前为 nil
func (m *MarketService) Feed() *feed.Paginator { return m.feed }

// Balance 余额同步器
func (m *MarketService) Balance() *balance.Synchronizer { return m.balance }

// Portfolio 投资组合
func (m *MarketService) Portfolio() *portfolio.Service { return m.portfolio }

// Client 账本客户端
func (m *MarketService) Client() *client.Client { return m.client }
