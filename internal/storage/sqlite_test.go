package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"connstatus/internal/config"
)

func newTestSQLite(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("创建 SQLite 失败: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Init(); err != nil {
		t.Fatalf("初始化失败: %v", err)
	}
	return s
}

func TestSQLiteRecentRecords(t *testing.T) {
	t.Parallel()
	s := newTestSQLite(t)

	base := time.Now().Unix()
	for i := 0; i < 5; i++ {
		r := &ProbeRecord{
			Target:    "backend",
			Session:   "s1",
			Success:   i%2 == 0,
			HttpCode:  200,
			Latency:   10 + i,
			State:     "connected",
			Health:    100 - i,
			Timestamp: base + int64(i),
		}
		if !r.Success {
			r.FailureKind = "timeout"
			r.HttpCode = 0
		}
		if err := s.SaveRecord(r); err != nil {
			t.Fatalf("保存记录失败: %v", err)
		}
		if r.ID == 0 {
			t.Fatalf("保存后应回填 ID")
		}
	}
	if err := s.SaveRecord(&ProbeRecord{Target: "other", State: "connected", Timestamp: base}); err != nil {
		t.Fatalf("保存记录失败: %v", err)
	}

	records, err := s.GetRecentRecords("backend", 3)
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("len = %d, want 3", len(records))
	}
	// 最近 3 条，按时间升序
	for i, r := range records {
		if r.Timestamp != base+int64(i+2) {
			t.Fatalf("records[%d].Timestamp = %d, want %d", i, r.Timestamp, base+int64(i+2))
		}
		if r.Target != "backend" {
			t.Fatalf("不应返回其他目标的记录: %s", r.Target)
		}
	}
	if !records[0].Success || records[1].Success || records[1].FailureKind != "timeout" {
		t.Fatalf("success/failure_kind 读写不一致: %+v %+v", records[0], records[1])
	}
}

func TestSQLiteStatusEvents(t *testing.T) {
	t.Parallel()
	s := newTestSQLite(t)

	latest, err := s.GetLatestEventID()
	if err != nil || latest != 0 {
		t.Fatalf("空表最新 ID 应为 0, got %d err=%v", latest, err)
	}

	down := &StatusEvent{
		Target: "backend", Session: "s1", EventType: EventTypeDown,
		FromState: "connected", ToState: "connection_lost",
		TriggerRecordID: 10, ObservedAt: 100, CreatedAt: 101,
		Meta: map[string]any{"failure_kind": "timeout"},
	}
	if err := s.SaveStatusEvent(down); err != nil {
		t.Fatalf("保存事件失败: %v", err)
	}

	// 相同触发记录重复写入：幂等
	dup := *down
	dup.ID = 0
	if err := s.SaveStatusEvent(&dup); err != nil {
		t.Fatalf("重复事件应视为成功: %v", err)
	}

	up := &StatusEvent{
		Target: "backend", Session: "s1", EventType: EventTypeUp,
		FromState: "connection_lost", ToState: "connected", Health: 14,
		TriggerRecordID: 11, ObservedAt: 102, CreatedAt: 103,
	}
	if err := s.SaveStatusEvent(up); err != nil {
		t.Fatalf("保存事件失败: %v", err)
	}

	all, err := s.GetStatusEvents(0, 10, nil)
	if err != nil {
		t.Fatalf("查询事件失败: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len = %d, want 2（重复事件不应插入）", len(all))
	}
	if all[0].EventType != EventTypeDown || all[0].Meta["failure_kind"] != "timeout" {
		t.Fatalf("DOWN 事件内容错误: %+v", all[0])
	}
	if all[1].Meta != nil {
		t.Fatalf("空 meta 应读回 nil: %+v", all[1].Meta)
	}

	// 游标分页
	after, err := s.GetStatusEvents(all[0].ID, 10, nil)
	if err != nil || len(after) != 1 || after[0].EventType != EventTypeUp {
		t.Fatalf("游标分页错误: %+v err=%v", after, err)
	}

	// 类型过滤
	ups, err := s.GetStatusEvents(0, 10, &EventFilters{Types: []EventType{EventTypeUp}})
	if err != nil || len(ups) != 1 || ups[0].Health != 14 {
		t.Fatalf("类型过滤错误: %+v err=%v", ups, err)
	}

	latest, err = s.GetLatestEventID()
	if err != nil || latest != all[1].ID {
		t.Fatalf("最新 ID = %d, want %d (err=%v)", latest, all[1].ID, err)
	}
}

func TestCleanerPurgesOldRecords(t *testing.T) {
	t.Parallel()
	s := newTestSQLite(t)

	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -10).Unix()
	for i := 0; i < 7; i++ {
		if err := s.SaveRecord(&ProbeRecord{Target: "backend", State: "connected", Timestamp: old + int64(i)}); err != nil {
			t.Fatalf("保存记录失败: %v", err)
		}
	}
	if err := s.SaveRecord(&ProbeRecord{Target: "backend", State: "connected", Timestamp: now.Unix()}); err != nil {
		t.Fatalf("保存记录失败: %v", err)
	}

	enabled := true
	cfg := &config.RetentionConfig{Enabled: &enabled, Days: 7, BatchSize: 3}
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("规范化失败: %v", err)
	}
	c := NewCleaner(s, cfg)
	c.now = func() time.Time { return now }

	if deleted := c.RunOnce(context.Background()); deleted != 7 {
		t.Fatalf("deleted = %d, want 7", deleted)
	}

	left, err := s.GetRecentRecords("backend", 100)
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if len(left) != 1 || left[0].Timestamp != now.Unix() {
		t.Fatalf("清理后剩余记录错误: %+v", left)
	}
}

func TestNewUnknownType(t *testing.T) {
	t.Parallel()
	if _, err := New(&config.StorageConfig{Type: "mysql"}); err == nil {
		t.Fatalf("未知存储类型应报错")
	}
}
