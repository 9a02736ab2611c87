// Package execution 对账本写操作的并发保护。
package execution

import (
	"errors"
	"hash/fnv"
	"sync"
	"time"
)

// ErrDuplicateInFlight 同一 key 的操作仍在进行（或仍在 TTL 窗口内）
var ErrDuplicateInFlight = errors.New("duplicate in-flight")

// InFlightDeduper 按 key 去重的短时令牌，例如同一订单的重复撤单。
// 令牌在 Release 或 TTL 到期后失效；TTL 兜底调用方忘记释放的情况。
type InFlightDeduper struct {
	ttl    time.Duration
	now    func() time.Time
	shards []inFlightShard
}

type inFlightShard struct {
	mu sync.Mutex
	m  map[string]time.Time // key -> expiresAt
}

// NewInFlightDeduper 创建去重器，ttl<=0 取 30s，shardCount<=0 取 16
func NewInFlightDeduper(ttl time.Duration, shardCount int) *InFlightDeduper {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if shardCount <= 0 {
		shardCount = 16
	}
	shards := make([]inFlightShard, shardCount)
	for i := range shards {
		shards[i].m = make(map[string]time.Time)
	}
	return &InFlightDeduper{ttl: ttl, now: time.Now, shards: shards}
}

// TryAcquire 获取 key 的令牌，已被占用时返回 ErrDuplicateInFlight。
// 空 key 与 nil 去重器总是成功。
func (d *InFlightDeduper) TryAcquire(key string) error {
	if d == nil || key == "" {
		return nil
	}
	now := d.now()
	sh := d.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	for k, exp := range sh.m {
		if !exp.After(now) {
			delete(sh.m, k)
		}
	}
	if _, ok := sh.m[key]; ok {
		return ErrDuplicateInFlight
	}
	sh.m[key] = now.Add(d.ttl)
	return nil
}

// Release 释放 key
func (d *InFlightDeduper) Release(key string) {
	if d == nil || key == "" {
		return
	}
	sh := d.shard(key)
	sh.mu.Lock()
	delete(sh.m, key)
	sh.mu.Unlock()
}

// Do 持有令牌执行 fn，结束后释放
func (d *InFlightDeduper) Do(key string, fn func() error) error {
	if err := d.TryAcquire(key); err != nil {
		return err
	}
	defer d.Release(key)
	return fn()
}

func (d *InFlightDeduper) shard(key string) *inFlightShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &d.shards[h.Sum32()%uint32(len(d.shards))]
}
