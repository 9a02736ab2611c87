package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/memestreet/marketsync/ledger/types"
	"github.com/memestreet/marketsync/pkg/ratelimit"
)

// ListListings 分页获取资产列表
func (c *Client) ListListings(ctx context.Context, p types.ListParams) (*types.ListListingsResponse, error) {
	params := url.Values{}
	if p.Page > 0 {
		params.Set("page", strconv.Itoa(p.Page))
	}
	if p.PerPage > 0 {
		params.Set("per_page", strconv.Itoa(p.PerPage))
	}
	if p.SortBy != "" {
		params.Set("sort_by", string(p.SortBy))
	}
	if p.SortOrder != "" {
		params.Set("sort_order", string(p.SortOrder))
	}
	if p.Category != "" {
		params.Set("category", p.Category)
	}
	if p.Search != "" {
		params.Set("search", p.Search)
	}

	var out types.ListListingsResponse
	if err := c.do(ctx, ratelimit.GroupReads, http.MethodGet, EndpointListMemes, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetListing 获取单个资产
func (c *Client) GetListing(ctx context.Context, id string) (*types.Meme, error) {
	var out types.Meme
	if err := c.do(ctx, ratelimit.GroupReads, http.MethodGet, fmt.Sprintf(EndpointGetMeme, url.PathEscape(id)), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetListingByTicker 按代码获取资产
func (c *Client) GetListingByTicker(ctx context.Context, ticker string) (*types.Meme, error) {
	var out types.Meme
	if err := c.do(ctx, ratelimit.GroupReads, http.MethodGet, fmt.Sprintf(EndpointGetByTicker, url.PathEscape(ticker)), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTrending 24 小时成交量最高的资产
func (c *Client) GetTrending(ctx context.Context) ([]types.Meme, error) {
	var out []types.Meme
	if err := c.do(ctx, ratelimit.GroupReads, http.MethodGet, EndpointTrending, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Upvote 点赞（再次调用即取消）
func (c *Client) Upvote(ctx context.Context, id string) (*types.VoteResponse, error) {
	return c.vote(ctx, fmt.Sprintf(EndpointUpvote, url.PathEscape(id)))
}

// Downvote 点踩（再次调用即取消）
func (c *Client) Downvote(ctx context.Context, id string) (*types.VoteResponse, error) {
	return c.vote(ctx, fmt.Sprintf(EndpointDownvote, url.PathEscape(id)))
}

func (c *Client) vote(ctx context.Context, path string) (*types.VoteResponse, error) {
	var out types.VoteResponse
	if err := c.do(ctx, ratelimit.GroupVotes, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCategories 获取分类选项
func (c *Client) GetCategories(ctx context.Context) ([]types.Category, error) {
	var out []types.Category
	if err := c.do(ctx, ratelimit.GroupReads, http.MethodGet, EndpointGetCategories, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
