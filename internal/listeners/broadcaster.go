package listeners

import (
	"sync"

	"connstatus/internal/logger"
	"connstatus/internal/status"
)

// subscriberBuffer 每个订阅者的缓冲事件数
const subscriberBuffer = 16

// Broadcaster 把状态事件推送给订阅者（SSE）
// 发送不阻塞：订阅者缓冲区满时丢弃本次事件
type Broadcaster struct {
	mu      sync.Mutex
	nextID  uint64
	subs    map[uint64]chan status.ChangeEvent
	last    status.ChangeEvent
	hasLast bool
	closed  bool
}

// NewBroadcaster 创建广播器
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[uint64]chan status.ChangeEvent)}
}

// OnStatusChange 实现 status.Listener
func (b *Broadcaster) OnStatusChange(event status.ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.last = event
	b.hasLast = true
	for id, ch := range b.subs {
		select {
		case ch <- event:
		default:
			logger.Debug("listeners", "订阅者缓冲区已满，丢弃事件", "subscriber", id)
		}
	}
}

// Subscribe 订阅事件，已有事件时先投递最近一次
// 返回的 cancel 幂等；广播器关闭后 channel 被关闭
func (b *Broadcaster) Subscribe() (<-chan status.ChangeEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan status.ChangeEvent, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	b.nextID++
	id := b.nextID
	b.subs[id] = ch
	if b.hasLast {
		ch <- b.last
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() { b.unsubscribe(id) })
	}
}

func (b *Broadcaster) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Subscribers 当前订阅者数量
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close 关闭所有订阅
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
