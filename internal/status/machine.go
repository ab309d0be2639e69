package status

import "math"

// MaxHistory 保留的探测历史上限（滑动窗口，FIFO 淘汰最旧记录）
const MaxHistory = 100

// Machine 连接状态机（不可变值类型）
//
// 每次 Advance 都返回新实例，旧实例不会被修改。持有方通过整体替换引用来更新状态。
//
// 状态判定与健康度故意使用不同窗口：
//   - 状态只看最近 threshold 次探测：其中至少一次成功即视为已连接
//   - 健康度覆盖全部保留历史：round(100 × 成功数 / 历史长度)
//
// 历史长度不超过 threshold 时始终保持乐观（已连接）。
// 恢复同样宽松：最近 threshold 次中出现一次成功即切回已连接。
type Machine struct {
	threshold int
	state     ConnectionState
	history   []bool
	health    int
}

// NewMachine 创建初始状态机：已连接、空历史、健康度 100
// threshold 小于 1 时按 1 处理
func NewMachine(threshold int) Machine {
	return newMachine(threshold, Connected, nil)
}

// RestoreMachine 以指定状态和历史重建状态机
// 历史会被复制，超出 MaxHistory 的部分从最旧一端截断
// 用于配置热更新时把旧状态延续到新阈值下
func RestoreMachine(threshold int, state ConnectionState, history []bool) Machine {
	if len(history) > MaxHistory {
		history = history[len(history)-MaxHistory:]
	}
	copied := make([]bool, len(history))
	copy(copied, history)
	return newMachine(threshold, state, copied)
}

func newMachine(threshold int, state ConnectionState, history []bool) Machine {
	if threshold < 1 {
		threshold = 1
	}
	m := Machine{
		threshold: threshold,
		state:     state,
		history:   history,
	}
	m.health = computeHealth(state, history)
	return m
}

// computeHealth 按全部保留历史计算健康度
func computeHealth(state ConnectionState, history []bool) int {
	if state == ConnectionLost {
		return 0
	}
	if len(history) == 0 {
		return 100 // 初始乐观
	}
	successes := 0
	for _, ok := range history {
		if ok {
			successes++
		}
	}
	return int(math.Round(float64(successes) / float64(len(history)) * 100))
}

// Advance 记录一次探测结果并返回新的状态机实例（纯函数，不修改接收者）
func (m Machine) Advance(success bool) Machine {
	newHistory := m.appendHistory(success)
	threshold := max(m.threshold, 1) // 零值 Machine 的 threshold 为 0

	// 初始乐观：样本数未超过阈值前不判定丢失
	hasConnection := true
	if len(newHistory) > threshold {
		hasConnection = false
		for _, ok := range newHistory[len(newHistory)-threshold:] {
			if ok {
				hasConnection = true
				break
			}
		}
	}

	state := Connected
	if !hasConnection {
		state = ConnectionLost
	}
	return newMachine(threshold, state, newHistory)
}

// appendHistory 返回追加后的新历史切片（始终分配新底层数组，避免与旧实例共享）
func (m Machine) appendHistory(success bool) []bool {
	start := 0
	if len(m.history)+1 > MaxHistory {
		start = len(m.history) + 1 - MaxHistory
	}
	updated := make([]bool, 0, len(m.history)-start+1)
	updated = append(updated, m.history[start:]...)
	return append(updated, success)
}

// State 当前连接状态
func (m Machine) State() ConnectionState {
	return m.state
}

// Health 当前健康度（0-100）
func (m Machine) Health() int {
	return m.health
}

// Threshold 状态判定窗口大小
func (m Machine) Threshold() int {
	return m.threshold
}

// HistoryLen 当前保留的历史长度
func (m Machine) HistoryLen() int {
	return len(m.history)
}

// History 返回历史副本（最旧在前）
func (m Machine) History() []bool {
	out := make([]bool, len(m.history))
	copy(out, m.history)
	return out
}

// Event 生成当前状态快照
func (m Machine) Event() ChangeEvent {
	return ChangeEvent{State: m.state, Health: m.health}
}
