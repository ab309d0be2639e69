package listeners

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"connstatus/internal/logger"
	"connstatus/internal/monitor"
	"connstatus/internal/status"
	"connstatus/internal/storage"
)

// defaultWriteTimeout 单次存储写入超时
const defaultWriteTimeout = 3 * time.Second

// Recorder 持久化每次提交的探测样本，并在状态真正变化时写入 DOWN/UP 事件
// 首次观察只初始化状态，不产生事件；样本保存失败时不写事件
type Recorder struct {
	store   storage.Storage
	session string
	timeout time.Duration
	now     func() time.Time

	mu     sync.Mutex
	target string
	prev   *status.ConnectionState
}

// NewRecorder 创建记录器，每个进程生成独立的会话 ID
func NewRecorder(store storage.Storage, target string) *Recorder {
	return &Recorder{
		store:   store,
		session: uuid.NewString(),
		timeout: defaultWriteTimeout,
		now:     time.Now,
		target:  target,
	}
}

// Session 会话 ID
func (r *Recorder) Session() string {
	return r.session
}

// SetTarget 切换目标名（配置热更新）；状态跟踪延续，不产生事件
func (r *Recorder) SetTarget(target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.target = target
}

// RecordProbe 实现 heartbeat.ProbeRecorder
func (r *Recorder) RecordProbe(result *monitor.ProbeResult, event status.ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	store := r.store.WithContext(ctx)

	record := &storage.ProbeRecord{
		Target:      r.target,
		Session:     r.session,
		Success:     result.Success,
		FailureKind: string(result.Kind),
		HttpCode:    result.HttpCode,
		Latency:     result.Latency,
		State:       event.State.String(),
		Health:      event.Health,
		Timestamp:   result.Timestamp,
	}
	if record.Timestamp == 0 {
		record.Timestamp = r.now().Unix()
	}
	if err := store.SaveRecord(record); err != nil {
		// 事件必须引用已保存的样本：保留上一状态，变化由下一个成功保存的样本补记
		logger.Error("listeners", "保存探测记录失败", "target", r.target, "error", err)
		return
	}

	prev := r.prev
	current := event.State
	r.prev = &current
	if prev == nil || *prev == current {
		return
	}

	eventType := storage.EventTypeDown
	if current == status.Connected {
		eventType = storage.EventTypeUp
	}
	meta := map[string]any{
		"http_code":  result.HttpCode,
		"latency_ms": result.Latency,
	}
	if result.Kind != monitor.KindNone {
		meta["failure_kind"] = string(result.Kind)
	}

	statusEvent := &storage.StatusEvent{
		Target:          r.target,
		Session:         r.session,
		EventType:       eventType,
		FromState:       prev.String(),
		ToState:         current.String(),
		Health:          event.Health,
		TriggerRecordID: record.ID,
		ObservedAt:      record.Timestamp,
		CreatedAt:       r.now().Unix(),
		Meta:            meta,
	}
	if err := store.SaveStatusEvent(statusEvent); err != nil {
		logger.Error("listeners", "保存状态事件失败",
			"target", r.target, "event_type", eventType, "error", err)
		return
	}

	logger.Info("listeners", "状态变更事件",
		"target", r.target, "event_type", eventType,
		"from", statusEvent.FromState, "to", statusEvent.ToState, "event_id", statusEvent.ID)
}
