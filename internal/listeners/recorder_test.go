package listeners

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"connstatus/internal/monitor"
	"connstatus/internal/status"
	"connstatus/internal/storage"
)

func newTestStore(t *testing.T) storage.Storage {
	t.Helper()
	s, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "rec.db"))
	if err != nil {
		t.Fatalf("创建 SQLite 失败: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Init(); err != nil {
		t.Fatalf("初始化失败: %v", err)
	}
	return s
}

func probeResult(ok bool) *monitor.ProbeResult {
	r := &monitor.ProbeResult{Target: "backend", Success: ok, Timestamp: time.Now().Unix()}
	if ok {
		r.HttpCode = 200
		r.Latency = 3
	} else {
		r.Kind = monitor.KindTransport
	}
	return r
}

func TestRecorderPersistsSamplesAndTransitions(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	rec := NewRecorder(store, "backend")
	if rec.Session() == "" {
		t.Fatalf("会话 ID 不应为空")
	}

	m := status.NewMachine(1)
	steps := []bool{true, false, false, true}
	for _, ok := range steps {
		m = m.Advance(ok)
		rec.RecordProbe(probeResult(ok), m.Event())
	}

	records, err := store.GetRecentRecords("backend", 10)
	if err != nil {
		t.Fatalf("查询记录失败: %v", err)
	}
	if len(records) != len(steps) {
		t.Fatalf("记录数 = %d, want %d", len(records), len(steps))
	}
	if records[1].FailureKind != string(monitor.KindTransport) || records[1].Success {
		t.Fatalf("失败样本字段错误: %+v", records[1])
	}

	events, err := store.GetStatusEvents(0, 10, nil)
	if err != nil {
		t.Fatalf("查询事件失败: %v", err)
	}
	// threshold=1：首次失败即丢失，之后成功恢复；首次观察不产生事件
	if len(events) != 2 {
		t.Fatalf("事件数 = %d, want 2: %+v", len(events), events)
	}
	down, up := events[0], events[1]
	if down.EventType != storage.EventTypeDown || down.FromState != "connected" || down.ToState != "connection_lost" {
		t.Fatalf("DOWN 事件错误: %+v", down)
	}
	if down.TriggerRecordID != records[1].ID {
		t.Fatalf("DOWN 触发记录 = %d, want %d", down.TriggerRecordID, records[1].ID)
	}
	if down.Meta["failure_kind"] != string(monitor.KindTransport) {
		t.Fatalf("DOWN meta 错误: %+v", down.Meta)
	}
	if up.EventType != storage.EventTypeUp || up.Session != rec.Session() {
		t.Fatalf("UP 事件错误: %+v", up)
	}
}

func TestRecorderFirstObservationLostEmitsNothing(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	rec := NewRecorder(store, "backend")
	rec.RecordProbe(probeResult(false), status.ChangeEvent{State: status.ConnectionLost})

	id, err := store.GetLatestEventID()
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if id != 0 {
		t.Fatalf("首次观察不应产生事件: latest=%d", id)
	}
}

// failingRecordStore 按需让 SaveRecord 失败，其余操作透传
type failingRecordStore struct {
	storage.Storage
	fail bool
}

func (s *failingRecordStore) WithContext(context.Context) storage.Storage { return s }

func (s *failingRecordStore) SaveRecord(record *storage.ProbeRecord) error {
	if s.fail {
		return errors.New("disk full")
	}
	return s.Storage.SaveRecord(record)
}

func TestRecorderSkipsEventWhenSampleNotSaved(t *testing.T) {
	t.Parallel()

	store := &failingRecordStore{Storage: newTestStore(t)}
	rec := NewRecorder(store, "backend")

	steps := []struct {
		ok       bool
		saveFail bool
	}{
		{ok: true},
		{ok: false, saveFail: true},
		{ok: true},
		{ok: false, saveFail: true},
		{ok: false},
	}
	m := status.NewMachine(1)
	for _, step := range steps {
		m = m.Advance(step.ok)
		store.fail = step.saveFail
		rec.RecordProbe(probeResult(step.ok), m.Event())
	}
	store.fail = false

	records, err := store.GetRecentRecords("backend", 10)
	if err != nil {
		t.Fatalf("查询记录失败: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("记录数 = %d, want 3", len(records))
	}

	events, err := store.GetStatusEvents(0, 10, nil)
	if err != nil {
		t.Fatalf("查询事件失败: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("事件数 = %d, want 1: %+v", len(events), events)
	}
	down := events[0]
	if down.EventType != storage.EventTypeDown || down.FromState != "connected" {
		t.Fatalf("DOWN 事件错误: %+v", down)
	}
	if down.TriggerRecordID == 0 || down.TriggerRecordID != records[len(records)-1].ID {
		t.Fatalf("DOWN 应引用最后保存的样本: trigger=%d records=%+v", down.TriggerRecordID, records)
	}
}
