// Package status 提供连接健康状态机与状态变更分发
//
// 状态机把一串带噪声的心跳探测结果（成功/失败）收敛为带滞回的
// CONNECTED / CONNECTION_LOST 离散状态，以及 0-100 的健康度。
package status

import (
	"fmt"
	"strings"
)

// ConnectionState 连接状态（仅两种取值）
type ConnectionState int

const (
	Connected      ConnectionState = iota // 已连接（初始状态）
	ConnectionLost                        // 连接丢失
)

// String 返回状态的字符串形式（用于日志与 JSON）
func (s ConnectionState) String() string {
	switch s {
	case Connected:
		return "connected"
	case ConnectionLost:
		return "connection_lost"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// MarshalText 实现 encoding.TextMarshaler，JSON 中输出字符串而非数字
func (s ConnectionState) MarshalText() ([]byte, error) {
	switch s {
	case Connected, ConnectionLost:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("未知连接状态: %d", int(s))
	}
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (s *ConnectionState) UnmarshalText(text []byte) error {
	state, err := ParseConnectionState(string(text))
	if err != nil {
		return err
	}
	*s = state
	return nil
}

// ParseConnectionState 解析状态字符串（大小写不敏感）
func ParseConnectionState(v string) (ConnectionState, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "connected":
		return Connected, nil
	case "connection_lost":
		return ConnectionLost, nil
	default:
		return Connected, fmt.Errorf("无效的连接状态: %q", v)
	}
}

// ChangeEvent 状态变更事件快照，投递给所有监听器
// 值类型，除字段外无身份
type ChangeEvent struct {
	State  ConnectionState `json:"state"`
	Health int             `json:"health"`
}
