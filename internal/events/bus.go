package events

import (
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "events")

type subscriber struct {
	id uint64
	fn func(any)
}

// Bus 同步事件总线，按事件类型分发。处理函数在 Publish 的 goroutine 中依次执行，
// 单个处理函数 panic 不会影响其他处理函数。
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[reflect.Type][]subscriber
}

// NewBus 创建事件总线
func NewBus() *Bus {
	return &Bus{subs: make(map[reflect.Type][]subscriber)}
}

// Subscribe 订阅类型为 E 的事件，返回取消订阅函数
func Subscribe[E any](b *Bus, fn func(E)) (unsubscribe func()) {
	t := reflect.TypeFor[E]()
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[t] = append(b.subs[t], subscriber{id: id, fn: func(v any) { fn(v.(E)) }})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[t]
		for i, s := range list {
			if s.id == id {
				b.subs[t] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// Publish 发布事件
func Publish[E any](b *Bus, e E) {
	if b == nil {
		return
	}
	t := reflect.TypeFor[E]()
	b.mu.RLock()
	list := append([]subscriber(nil), b.subs[t]...)
	b.mu.RUnlock()

	for _, s := range list {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("[事件] %s 处理函数 panic: %v", t, r)
				}
			}()
			s.fn(e)
		}()
	}
}
