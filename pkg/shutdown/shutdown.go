package shutdown

import (
	"context"
	"sync"

	"github.com/memestreet/marketsync/pkg/logger"
)

// Handler 关闭处理函数
type Handler func(ctx context.Context) error

type namedHandler struct {
	name string
	fn   Handler
}

// Manager 优雅关闭管理器。回调按注册的逆序依次执行（后启动的组件先关闭）。
type Manager struct {
	mu        sync.Mutex
	callbacks []namedHandler
	done      bool
}

// NewManager 创建新的关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册关闭回调
func (m *Manager) OnShutdown(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, namedHandler{name: name, fn: handler})
}

// Shutdown 执行所有关闭回调，只生效一次。
// ctx 应带超时；超时后剩余回调仍会执行，但拿到的是已取消的 ctx。
// 返回第一个错误。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return nil
	}
	m.done = true
	callbacks := m.callbacks
	m.mu.Unlock()

	logger.Infof("开始优雅关闭，共 %d 个回调", len(callbacks))
	var first error
	for i := len(callbacks) - 1; i >= 0; i-- {
		cb := callbacks[i]
		if err := cb.fn(ctx); err != nil {
			logger.Warnf("关闭 %s 失败: %v", cb.name, err)
			if first == nil {
				first = err
			}
		}
	}
	if err := ctx.Err(); err != nil {
		logger.Warnf("关闭超时: %v", err)
	}
	return first
}
