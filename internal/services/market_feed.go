package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/memestreet/marketsync/internal/domain"
	"github.com/memestreet/marketsync/internal/feed"
	"github.com/memestreet/marketsync/ledger/types"
	"github.com/memestreet/marketsync/pkg/persistence"
)

const categoriesKey = "categories"

// restoreQuery 读取上次的筛选条件，缺失或非法时用默认值
func (m *MarketService) restoreQuery() feed.Query {
	q := feed.DefaultQuery()
	var saved feed.Query
	err := m.queryStore.Load(&saved)
	switch {
	case errors.Is(err, persistence.ErrNotExists):
	case err != nil:
		log.Warnf("[market] restore feed query: %v", err)
	case !saved.SortBy.Valid() || !saved.SortOrder.Valid():
		log.Warnf("[market] ignore saved feed query with invalid sort %q/%q", saved.SortBy, saved.SortOrder)
	default:
		q = saved
	}
	m.mu.Lock()
	m.savedQ = q
	m.mu.Unlock()
	return q
}

// persistQuery 查询条件变化时写盘
func (m *MarketService) persistQuery(q feed.Query) {
	m.mu.Lock()
	if q == m.savedQ {
		m.mu.Unlock()
		return
	}
	m.savedQ = q
	m.mu.Unlock()

	if err := m.queryStore.Save(q); err != nil {
		log.Warnf("[market] persist feed query: %v", err)
	}
}

// SetFilter 修改筛选/排序条件
func (m *MarketService) SetFilter(f feed.Filter) error {
	if m.feed == nil {
		return feed.ErrClosed
	}
	return m.feed.SetFilter(f)
}

// Search 防抖搜索
func (m *MarketService) Search(text string) {
	if m.feed != nil {
		m.feed.RequestSearch(text)
	}
}

// LoadMore 加载下一页
func (m *MarketService) LoadMore() error {
	if m.feed == nil {
		return feed.ErrClosed
	}
	return m.feed.LoadMore()
}

// Trending 热门资产，不进入分页列表
func (m *MarketService) Trending(ctx context.Context) ([]domain.Listing, error) {
	memes, err := m.client.GetTrending(ctx)
	if err != nil {
		return nil, fmt.Errorf("load trending: %w", err)
	}
	return domain.ListingsFromWire(memes), nil
}

// Categories 分类列表，按配置的 TTL 缓存
func (m *MarketService) Categories(ctx context.Context) ([]types.Category, error) {
	cats, err := m.categories.GetOrLoad(ctx, categoriesKey, func(ctx context.Context) ([]types.Category, error) {
		return m.client.GetCategories(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	return cats, nil
}
