// Package listeners 提供连接状态监听器：状态栏、应用通知与阻塞提示、持久化记录、SSE 广播
package listeners

import (
	"fmt"
	"sort"
	"sync"

	"connstatus/internal/status"
)

// StatusBarAlignment 状态栏元素对齐方式
type StatusBarAlignment string

const (
	AlignLeft  StatusBarAlignment = "left"
	AlignRight StatusBarAlignment = "right"
)

// StatusBarEntry 状态栏元素
type StatusBarEntry struct {
	Text      string             `json:"text"`
	Tooltip   string             `json:"tooltip"`
	Alignment StatusBarAlignment `json:"alignment"`
	Priority  int                `json:"priority"`
}

// StatusBar 状态栏
type StatusBar interface {
	SetElement(id string, entry StatusBarEntry)
	RemoveElement(id string)
}

// ConnectionStatusElementID 连接状态元素 ID
const ConnectionStatusElementID = "connection-status"

// StatusBarContribution 把连接健康度渲染到状态栏
type StatusBarContribution struct {
	bar StatusBar
}

// NewStatusBarContribution 创建状态栏监听器
func NewStatusBarContribution(bar StatusBar) *StatusBarContribution {
	return &StatusBarContribution{bar: bar}
}

// OnStatusChange 每次事件都整体替换状态栏元素
func (c *StatusBarContribution) OnStatusChange(event status.ChangeEvent) {
	c.bar.RemoveElement(ConnectionStatusElementID)
	c.bar.SetElement(ConnectionStatusElementID, RenderStatusBarEntry(event.Health))
}

// RenderStatusBarEntry 按健康度生成状态栏元素
func RenderStatusBarEntry(health int) StatusBarEntry {
	tooltip := "Not connected"
	if health != 0 {
		tooltip = fmt.Sprintf("Connection health: %d%%", health)
	}
	return StatusBarEntry{
		Text:      fmt.Sprintf("$(%s)", StatusIcon(health)),
		Tooltip:   tooltip,
		Alignment: AlignRight,
		Priority:  0,
	}
}

// StatusIcon 健康度对应的图标名
func StatusIcon(health int) string {
	switch {
	case health <= 0:
		return "exclamation-circle"
	case health < 25:
		return "frown-o"
	case health < 50:
		return "meh-o"
	default:
		return "smile-o"
	}
}

// MemoryStatusBar 内存状态栏（供 API 查询）
type MemoryStatusBar struct {
	mu       sync.RWMutex
	elements map[string]StatusBarEntry
}

// NewMemoryStatusBar 创建内存状态栏
func NewMemoryStatusBar() *MemoryStatusBar {
	return &MemoryStatusBar{elements: make(map[string]StatusBarEntry)}
}

// SetElement 设置元素
func (b *MemoryStatusBar) SetElement(id string, entry StatusBarEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.elements[id] = entry
}

// RemoveElement 移除元素
func (b *MemoryStatusBar) RemoveElement(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.elements, id)
}

// Element 获取元素
func (b *MemoryStatusBar) Element(id string) (StatusBarEntry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.elements[id]
	return e, ok
}

// StatusBarElement 带 ID 的元素
type StatusBarElement struct {
	ID string `json:"id"`
	StatusBarEntry
}

// Elements 返回全部元素：先左后右，同侧按 priority 降序，再按 ID
func (b *MemoryStatusBar) Elements() []StatusBarElement {
	b.mu.RLock()
	out := make([]StatusBarElement, 0, len(b.elements))
	for id, e := range b.elements {
		out = append(out, StatusBarElement{ID: id, StatusBarEntry: e})
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Alignment != out[j].Alignment {
			return out[i].Alignment == AlignLeft
		}
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}
