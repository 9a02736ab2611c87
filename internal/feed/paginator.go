// Package feed 无限滚动列表：游标单调前进，筛选条件变化时整体作废并重新开始。
//
// 每次重置都会递增 generation，所有请求都带着发起时的 generation，
// 响应到达时 generation 不匹配则直接丢弃（不取消底层请求）。
package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/memestreet/marketsync/internal/common"
	"github.com/memestreet/marketsync/internal/domain"
	"github.com/memestreet/marketsync/ledger/types"
)

var log = logrus.WithField("component", "feed")

var (
	// ErrLoadMoreUnavailable 没有更多数据或当前 generation 已有请求在途
	ErrLoadMoreUnavailable = errors.New("feed: load more unavailable")
	// ErrInvalidSort 排序字段或方向不在白名单内
	ErrInvalidSort = errors.New("feed: invalid sort")
	// ErrClosed 分页器已关闭
	ErrClosed = errors.New("feed: closed")
)

// Lister 列表查询（由账本客户端实现）
type Lister interface {
	ListListings(ctx context.Context, p types.ListParams) (*types.ListListingsResponse, error)
}

// Status 分页器状态
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Query 决定结果集身份的查询条件
type Query struct {
	Search    string          `json:"search"`
	Category  string          `json:"category"`
	SortBy    types.SortKey   `json:"sort_by"`
	SortOrder types.SortOrder `json:"sort_order"`
}

// DefaultQuery 默认查询：按市值降序
func DefaultQuery() Query {
	return Query{SortBy: types.SortMarketCap, SortOrder: types.SortDesc}
}

// Filter 局部更新，nil 字段保持不变
type Filter struct {
	Category  *string
	SortBy    *types.SortKey
	SortOrder *types.SortOrder
	Search    *string
}

// State 对外暴露的快照
type State struct {
	Query      Query
	Page       int // 已成功加载的页数
	HasMore    bool
	Listings   []domain.Listing
	Status     Status
	Err        error
	Generation uint64

	// SearchPending 有搜索词仍在防抖窗口内
	SearchPending bool
}

// Config 分页器配置
type Config struct {
	PageSize       int
	SearchDebounce time.Duration
	RequestTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = 12
	}
	if c.SearchDebounce < 0 {
		c.SearchDebounce = 0
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	return c
}

// Paginator 列表分页状态机
type Paginator struct {
	lister Lister
	cfg    Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	search *common.Debouncer[string]

	mu       sync.Mutex
	query    Query
	applied  string // 当前 generation 实际使用的搜索词
	page     int
	hasMore  bool
	items    []domain.Listing
	index    map[string]int
	status   Status
	err      error
	gen      uint64
	inflight bool
	closed   bool
	rev      uint64

	listeners []func(State)

	// notifyMu 保证回调按状态产生的顺序执行，回调内不得再修改分页器
	notifyMu  sync.Mutex
	delivered uint64
}

// change 一次状态变化的快照，在锁外交给 deliver
type change struct {
	rev       uint64
	state     State
	listeners []func(State)
}

// New 创建分页器；initial 的排序非法时回退为默认排序
func New(lister Lister, cfg Config, initial Query) *Paginator {
	cfg = cfg.withDefaults()
	if !initial.SortBy.Valid() {
		initial.SortBy = types.SortMarketCap
	}
	if !initial.SortOrder.Valid() {
		initial.SortOrder = types.SortDesc
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Paginator{
		lister:  lister,
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		query:   initial,
		applied: initial.Search,
		index:   make(map[string]int),
		status:  StatusIdle,
	}
	p.search = common.NewDebouncer(cfg.SearchDebounce, p.applySearch)
	return p
}

// OnChange 注册状态变化回调（在锁外同步调用）
func (p *Paginator) OnChange(fn func(State)) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

// Start 首次加载；已加载过时为空操作
func (p *Paginator) Start() {
	p.mu.Lock()
	if p.closed || p.status != StatusIdle {
		p.mu.Unlock()
		return
	}
	p.resetLocked()
	p.mu.Unlock()
}

// Refresh 丢弃已加载数据，用当前条件从第一页重新加载
func (p *Paginator) Refresh() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.resetLocked()
	c := p.changeLocked()
	p.mu.Unlock()
	p.deliver(c)
}

// SetFilter 合并筛选条件；条件有变化时重置并重新加载。
// 待执行的防抖搜索会被取消，重置已包含最新的搜索词。
func (p *Paginator) SetFilter(f Filter) error {
	if f.SortBy != nil && !f.SortBy.Valid() {
		return ErrInvalidSort
	}
	if f.SortOrder != nil && !f.SortOrder.Valid() {
		return ErrInvalidSort
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	next := p.query
	if f.Category != nil {
		next.Category = *f.Category
	}
	if f.SortBy != nil {
		next.SortBy = *f.SortBy
	}
	if f.SortOrder != nil {
		next.SortOrder = *f.SortOrder
	}
	if f.Search != nil {
		next.Search = *f.Search
	}
	if next == p.query && p.applied == next.Search && p.status != StatusIdle {
		p.mu.Unlock()
		return nil
	}
	p.query = next
	p.search.Cancel()
	p.resetLocked()
	c := p.changeLocked()
	p.mu.Unlock()

	p.deliver(c)
	return nil
}

// RequestSearch 立即更新搜索词，重置与加载在防抖窗口结束后进行
func (p *Paginator) RequestSearch(text string) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.query.Search = text
	p.mu.Unlock()
	p.search.Submit(text)
}

func (p *Paginator) applySearch(text string) {
	p.mu.Lock()
	if p.closed || text != p.query.Search {
		p.mu.Unlock()
		return
	}
	if text == p.applied && p.status != StatusIdle {
		p.mu.Unlock()
		return
	}
	p.resetLocked()
	c := p.changeLocked()
	p.mu.Unlock()
	p.deliver(c)
}

// LoadMore 加载下一页，仅在 hasMore 且当前 generation 无请求在途时有效
func (p *Paginator) LoadMore() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if !p.hasMore || p.inflight {
		return ErrLoadMoreUnavailable
	}
	p.startFetchLocked(p.page + 1)
	return nil
}

// Retry 重新请求失败的那一页
func (p *Paginator) Retry() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.status != StatusError || p.inflight {
		return ErrLoadMoreUnavailable
	}
	p.startFetchLocked(p.page + 1)
	return nil
}

// resetLocked 清空结果、递增 generation 并请求第一页
func (p *Paginator) resetLocked() {
	p.gen++
	p.page = 0
	p.hasMore = false
	p.items = nil
	p.index = make(map[string]int)
	p.err = nil
	p.inflight = false
	p.applied = p.query.Search
	log.Debugf("[feed] reset generation=%d query=%+v", p.gen, p.query)
	p.startFetchLocked(1)
}

func (p *Paginator) startFetchLocked(page int) {
	gen := p.gen
	params := types.ListParams{
		Page:      page,
		PerPage:   p.cfg.PageSize,
		SortBy:    p.query.SortBy,
		SortOrder: p.query.SortOrder,
		Category:  p.query.Category,
		Search:    p.applied,
	}
	p.inflight = true
	p.status = StatusLoading
	p.wg.Add(1)
	go p.fetch(gen, params)
}

func (p *Paginator) fetch(gen uint64, params types.ListParams) {
	defer p.wg.Done()

	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.RequestTimeout)
	resp, err := p.lister.ListListings(ctx, params)
	cancel()

	p.mu.Lock()
	if gen != p.gen || p.closed {
		p.mu.Unlock()
		log.Debugf("[feed] drop stale page=%d generation=%d current=%d", params.Page, gen, p.gen)
		return
	}
	p.inflight = false
	if err != nil {
		p.status = StatusError
		p.err = err
		log.Warnf("[feed] page %d failed: %v", params.Page, err)
	} else {
		p.mergeLocked(params.Page, resp)
	}
	c := p.changeLocked()
	p.mu.Unlock()

	p.deliver(c)
}

// mergeLocked 追加结果（从不替换），重算 hasMore
func (p *Paginator) mergeLocked(page int, resp *types.ListListingsResponse) {
	for _, l := range domain.ListingsFromWire(resp.Memes) {
		if _, dup := p.index[l.ID]; dup {
			continue
		}
		p.index[l.ID] = len(p.items)
		p.items = append(p.items, l)
	}
	p.page = page
	p.hasMore = len(resp.Memes) == p.cfg.PageSize
	if resp.TotalPages > 0 && int64(page) >= resp.TotalPages {
		p.hasMore = false
	}
	p.status = StatusSuccess
	p.err = nil
}

func (p *Paginator) stateLocked() State {
	items := make([]domain.Listing, len(p.items))
	for i, l := range p.items {
		items[i] = l.Clone()
	}
	return State{
		Query:         p.query,
		Page:          p.page,
		HasMore:       p.hasMore,
		Listings:      items,
		Status:        p.status,
		Err:           p.err,
		Generation:    p.gen,
		SearchPending: p.search.Pending(),
	}
}

func (p *Paginator) changeLocked() change {
	p.rev++
	return change{rev: p.rev, state: p.stateLocked(), listeners: p.listeners}
}

// deliver 按 rev 顺序通知；已发出更新的快照时丢弃旧快照
func (p *Paginator) deliver(c change) {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()
	if c.rev <= p.delivered {
		log.Debugf("[feed] skip outdated notification rev=%d delivered=%d", c.rev, p.delivered)
		return
	}
	p.delivered = c.rev
	for _, fn := range c.listeners {
		fn(c.state)
	}
}

// State 当前快照
func (p *Paginator) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

// Query 当前查询条件
func (p *Paginator) Query() Query {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.query
}

// Wait 等待已发出的请求返回；不包括尚未触发的防抖搜索
func (p *Paginator) Wait() {
	p.wg.Wait()
}

// Close 停止防抖计时并丢弃在途请求的结果
func (p *Paginator) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.search.Cancel()
	p.cancel()
	p.wg.Wait()
}
