package feed

import "github.com/memestreet/marketsync/internal/domain"

// Get 按 ID 取当前结果中的资产副本
func (p *Paginator) Get(id string) (domain.Listing, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i, ok := p.index[id]
	if !ok {
		return domain.Listing{}, false
	}
	return p.items[i].Clone(), true
}

// Mutate 在锁内修改一条资产，返回修改时的 generation；资产不在当前结果中时 ok=false
func (p *Paginator) Mutate(id string, fn func(*domain.Listing)) (gen uint64, ok bool) {
	p.mu.Lock()
	gen = p.gen
	i, ok := p.index[id]
	if !ok {
		p.mu.Unlock()
		return gen, false
	}
	fn(&p.items[i])
	c := p.changeLocked()
	p.mu.Unlock()

	p.deliver(c)
	return gen, true
}

// MutateIf 仅当 generation 仍为 gen 时修改，检查与修改在同一次持锁内完成
func (p *Paginator) MutateIf(gen uint64, id string, fn func(*domain.Listing)) bool {
	p.mu.Lock()
	if p.gen != gen {
		p.mu.Unlock()
		return false
	}
	i, ok := p.index[id]
	if !ok {
		p.mu.Unlock()
		return false
	}
	fn(&p.items[i])
	c := p.changeLocked()
	p.mu.Unlock()

	p.deliver(c)
	return true
}
