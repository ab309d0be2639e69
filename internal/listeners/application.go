package listeners

import (
	"sync"
	"time"

	"connstatus/internal/logger"
	"connstatus/internal/status"
)

// 用户可见提示文案
const (
	MessageConnectionLost     = "Application connection to the backend is lost. Performing retries..."
	MessageConnectionRestored = "Application connection to the backend was successfully re-established."
	noticeTitle               = "Not connected"
)

// MessageService 用户消息通道
type MessageService interface {
	Info(message string)
	Error(message string)
}

// Dialog 阻塞提示框：Open 打开，Accept 由程序在恢复时关闭
type Dialog interface {
	Open()
	Accept()
}

// ApplicationContribution 在连接状态真正变化时通知用户并控制阻塞提示
// 初始认为已连接；状态不变的事件被忽略
type ApplicationContribution struct {
	messages  MessageService
	newDialog func() Dialog

	mu     sync.Mutex
	state  status.ConnectionState
	dialog Dialog
}

// NewApplicationContribution 创建应用监听器
// newDialog 在首次丢失连接时调用一次，之后复用同一个提示框
func NewApplicationContribution(messages MessageService, newDialog func() Dialog) *ApplicationContribution {
	return &ApplicationContribution{
		messages:  messages,
		newDialog: newDialog,
		state:     status.Connected,
	}
}

// OnStatusChange 实现 status.Listener
func (c *ApplicationContribution) OnStatusChange(event status.ChangeEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == event.State {
		return
	}
	c.state = event.State

	switch event.State {
	case status.ConnectionLost:
		logger.Error("listeners", MessageConnectionLost)
		c.messages.Error(MessageConnectionLost)
		c.getOrCreateDialog().Open()
	case status.Connected:
		logger.Info("listeners", MessageConnectionRestored)
		c.messages.Info(MessageConnectionRestored)
		if c.dialog != nil {
			c.dialog.Accept()
		}
	}
}

func (c *ApplicationContribution) getOrCreateDialog() Dialog {
	if c.dialog == nil {
		c.dialog = c.newDialog()
	}
	return c.dialog
}

// NoticeSnapshot 阻塞提示当前状态
type NoticeSnapshot struct {
	Open     bool   `json:"open"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	OpenedAt int64  `json:"opened_at,omitempty"`
}

// BlockingNotice 不可由用户关闭的连接丢失提示
type BlockingNotice struct {
	mu       sync.RWMutex
	open     bool
	openedAt time.Time
	now      func() time.Time
}

// NewBlockingNotice 创建阻塞提示
func NewBlockingNotice() *BlockingNotice {
	return &BlockingNotice{now: time.Now}
}

// Open 打开提示（已打开时保持原打开时间）
func (n *BlockingNotice) Open() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.open {
		return
	}
	n.open = true
	n.openedAt = n.now()
}

// Accept 由程序关闭提示（连接恢复）
func (n *BlockingNotice) Accept() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.open = false
	n.openedAt = time.Time{}
}

// Close 用户尝试关闭：提示不可被用户关闭，返回 false
func (n *BlockingNotice) Close() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return !n.open
}

// IsOpen 是否打开
func (n *BlockingNotice) IsOpen() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.open
}

// Snapshot 当前状态
func (n *BlockingNotice) Snapshot() NoticeSnapshot {
	n.mu.RLock()
	defer n.mu.RUnlock()
	s := NoticeSnapshot{Open: n.open, Title: noticeTitle, Message: MessageConnectionLost}
	if n.open {
		s.OpenedAt = n.openedAt.Unix()
	}
	return s
}
