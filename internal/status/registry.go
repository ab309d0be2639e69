package status

import (
	"fmt"
	"runtime/debug"
	"sync"

	"connstatus/internal/logger"
)

// Listener 状态变更监听器
// 每次心跳（无论状态是否变化）都会被同步调用，实现方应保持幂等且开销低
type Listener interface {
	OnStatusChange(event ChangeEvent)
}

// ListenerFunc 函数适配器
type ListenerFunc func(event ChangeEvent)

// OnStatusChange 实现 Listener
func (f ListenerFunc) OnStatusChange(event ChangeEvent) {
	f(event)
}

// registryEntry 注册表条目
type registryEntry struct {
	id       uint64
	name     string
	listener Listener
}

// Registry 有序监听器注册表
//
// 按注册顺序同步调用监听器；慢监听器会阻塞后续监听器和本次心跳。
// 单个监听器 panic 会被捕获并记录，不影响其余监听器。
type Registry struct {
	mu      sync.RWMutex
	nextID  uint64
	entries []registryEntry
}

// NewRegistry 创建注册表
func NewRegistry() *Registry {
	return &Registry{}
}

// Registration 注册句柄，用于注销监听器
type Registration struct {
	once    sync.Once
	dispose func()
}

// Dispose 注销监听器（幂等）
func (r *Registration) Dispose() {
	if r == nil {
		return
	}
	r.once.Do(r.dispose)
}

// Register 注册监听器，name 仅用于日志
func (r *Registry) Register(name string, l Listener) *Registration {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.entries = append(r.entries, registryEntry{id: id, name: name, listener: l})
	r.mu.Unlock()

	return &Registration{dispose: func() { r.remove(id) }}
}

// RegisterFunc 注册函数形式的监听器
func (r *Registry) RegisterFunc(name string, fn func(ChangeEvent)) *Registration {
	return r.Register(name, ListenerFunc(fn))
}

// remove 按 id 删除条目（保持其余条目顺序）
func (r *Registry) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if e.id == id {
			// 复制新切片，避免影响正在进行的 Notify 快照
			updated := make([]registryEntry, 0, len(r.entries)-1)
			updated = append(updated, r.entries[:i]...)
			updated = append(updated, r.entries[i+1:]...)
			r.entries = updated
			return
		}
	}
}

// Len 当前监听器数量
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Notify 按注册顺序调用所有监听器，返回 panic 的监听器数量
func (r *Registry) Notify(event ChangeEvent) int {
	r.mu.RLock()
	entries := r.entries
	r.mu.RUnlock()

	failed := 0
	for i, e := range entries {
		if err := invoke(e.listener, event); err != nil {
			failed++
			logger.Error("status", "监听器处理状态变更失败",
				"listener", e.name, "index", i,
				"state", event.State.String(), "health", event.Health,
				"error", err)
		}
	}
	return failed
}

// invoke 调用单个监听器并把 panic 转换为 error
func invoke(l Listener, event ChangeEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	l.OnStatusChange(event)
	return nil
}
