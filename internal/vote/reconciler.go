// Package vote 点赞/点踩的乐观更新与服务端确认合并。
//
// 每个资产维护递增的请求序号：只有最新序号的响应才能写入投票标记，
// 价格只接受不早于上次已应用序号的响应；资产所在列表被重置后，响应整体丢弃。
package vote

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/memestreet/marketsync/internal/domain"
	"github.com/memestreet/marketsync/ledger/types"
)

var log = logrus.WithField("component", "vote")

var (
	// ErrUnauthenticated 未登录，不做任何修改也不发请求
	ErrUnauthenticated = errors.New("vote: unauthenticated")
	// ErrUnknownListing 资产不在当前列表中
	ErrUnknownListing = errors.New("vote: unknown listing")
	// ErrInvalidDirection 方向非法
	ErrInvalidDirection = errors.New("vote: invalid direction")
)

// Voter 投票接口（由账本客户端实现）
type Voter interface {
	Upvote(ctx context.Context, id string) (*types.VoteResponse, error)
	Downvote(ctx context.Context, id string) (*types.VoteResponse, error)
}

// Authenticator 登录状态
type Authenticator interface {
	IsAuthenticated() bool
}

// ListingStore 共享资产状态（由 feed.Paginator 实现）
type ListingStore interface {
	Get(id string) (domain.Listing, bool)
	// Mutate 返回修改发生时的 generation
	Mutate(id string, fn func(*domain.Listing)) (gen uint64, ok bool)
	// MutateIf generation 已变化时不修改并返回 false
	MutateIf(gen uint64, id string, fn func(*domain.Listing)) bool
}

// Config 配置
type Config struct {
	// RollbackOnFailure 请求失败时撤销乐观修改
	RollbackOnFailure bool
	Timeout           time.Duration
}

// Result 服务端确认结果
type Result struct {
	ListingID string
	Direction domain.VoteDirection
	// Active 服务端确认后该方向是否处于投票状态
	Active   bool
	NewPrice decimal.Decimal
	Message  string
	// Stale 响应到达时列表已重置，结果未应用
	Stale bool
	// Superseded 已有更新的投票请求，投票标记未按本响应写入
	Superseded bool
}

// Pending 在途投票请求
type Pending struct {
	done   chan struct{}
	result Result
	err    error
}

// Done 请求完成（已合并或已丢弃）时关闭
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait 等待结果
func (p *Pending) Wait(ctx context.Context) (Result, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Reconciler 投票协调器
type Reconciler struct {
	voter Voter
	auth  Authenticator
	store ListingStore
	cfg   Config

	mu       sync.Mutex
	seq      map[string]uint64
	priceSeq map[string]uint64
	wg       sync.WaitGroup
}

// New 创建协调器
func New(voter Voter, auth Authenticator, store ListingStore, cfg Config) *Reconciler {
	return &Reconciler{
		voter:    voter,
		auth:     auth,
		store:    store,
		cfg:      cfg,
		seq:      make(map[string]uint64),
		priceSeq: make(map[string]uint64),
	}
}

// optimistic 乐观修改前后的差异，用于纠正或回滚
type optimistic struct {
	id        string
	dir       domain.VoteDirection
	gen       uint64
	seq       uint64
	wasActive bool
	oppWasSet bool
	dirDelta  int64
	oppDelta  int64
}

// ApplyVote 立即在本地切换投票并发出请求，返回乐观修改后的资产和在途请求。
// 切换某方向为开启时会清除反方向；取消不会开启反方向。
func (r *Reconciler) ApplyVote(ctx context.Context, id string, dir domain.VoteDirection) (domain.Listing, *Pending, error) {
	if r.auth == nil || !r.auth.IsAuthenticated() {
		return domain.Listing{}, nil, ErrUnauthenticated
	}
	if !dir.Valid() {
		return domain.Listing{}, nil, ErrInvalidDirection
	}

	r.mu.Lock()
	op := optimistic{id: id, dir: dir}
	var after domain.Listing
	gen, ok := r.store.Mutate(id, func(l *domain.Listing) {
		opp := dir.Opposite()
		op.wasActive = l.Voted(dir)
		op.oppWasSet = l.Voted(opp)

		before := l.Count(dir)
		if op.wasActive {
			l.SetVoted(dir, false)
			l.AddCount(dir, -1)
		} else {
			l.SetVoted(dir, true)
			l.AddCount(dir, 1)
			if op.oppWasSet {
				oppBefore := l.Count(opp)
				l.SetVoted(opp, false)
				l.AddCount(opp, -1)
				op.oppDelta = l.Count(opp) - oppBefore
			}
		}
		op.dirDelta = l.Count(dir) - before
		after = l.Clone()
	})
	if !ok {
		r.mu.Unlock()
		return domain.Listing{}, nil, ErrUnknownListing
	}
	op.gen = gen
	r.seq[id]++
	op.seq = r.seq[id]
	r.mu.Unlock()

	pending := &Pending{done: make(chan struct{})}
	r.wg.Add(1)
	go r.send(ctx, op, pending)
	return after, pending, nil
}

func (r *Reconciler) send(ctx context.Context, op optimistic, pending *Pending) {
	defer r.wg.Done()
	defer close(pending.done)

	if ctx == nil {
		ctx = context.Background()
	}
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	var resp *types.VoteResponse
	var err error
	if op.dir == domain.VoteUp {
		resp, err = r.voter.Upvote(ctx, op.id)
	} else {
		resp, err = r.voter.Downvote(ctx, op.id)
	}

	if err != nil {
		pending.result, pending.err = r.fail(op, err)
		return
	}
	pending.result = r.merge(op, resp)
}

// merge 合并服务端确认
func (r *Reconciler) merge(op optimistic, resp *types.VoteResponse) Result {
	res := Result{
		ListingID: op.id,
		Direction: op.dir,
		Active:    resp.Success,
		NewPrice:  resp.NewPrice,
		Message:   resp.Message,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	latest := r.seq[op.id] == op.seq
	applyPrice := op.seq >= r.priceSeq[op.id]
	expected := !op.wasActive

	found := r.store.MutateIf(op.gen, op.id, func(l *domain.Listing) {
		if applyPrice {
			l.CurrentPrice = resp.NewPrice
		}
		if resp.Success != expected {
			// 服务端状态与本地预期不同，按服务端纠正计数
			if resp.Success {
				l.AddCount(op.dir, 1)
			} else {
				l.AddCount(op.dir, -1)
			}
		}
		if latest {
			l.SetVoted(op.dir, resp.Success)
			l.SetVoted(op.dir.Opposite(), false)
		}
	})
	if !found {
		log.Debugf("[vote] %s: listing replaced by feed reset, drop response", op.id)
		res.Stale = true
		return res
	}
	if applyPrice {
		r.priceSeq[op.id] = op.seq
	}
	res.Superseded = !latest
	return res
}

// fail 请求失败：按配置撤销乐观修改
func (r *Reconciler) fail(op optimistic, err error) (Result, error) {
	res := Result{ListingID: op.id, Direction: op.dir, Active: op.wasActive}
	log.Warnf("[vote] %s %s failed: %v", op.dir, op.id, err)
	if !r.cfg.RollbackOnFailure {
		return res, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	latest := r.seq[op.id] == op.seq
	found := r.store.MutateIf(op.gen, op.id, func(l *domain.Listing) {
		l.AddCount(op.dir, -op.dirDelta)
		l.AddCount(op.dir.Opposite(), -op.oppDelta)
		if latest {
			l.SetVoted(op.dir, op.wasActive)
			l.SetVoted(op.dir.Opposite(), op.oppWasSet)
		}
	})
	if !found {
		res.Stale = true
		return res, err
	}
	res.Superseded = !latest
	return res, err
}

// Wait 等待所有在途请求完成
func (r *Reconciler) Wait() {
	r.wg.Wait()
}
