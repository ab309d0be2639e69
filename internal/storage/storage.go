// Package storage 持久化心跳探测样本与连接状态变更事件
package storage

import (
	"context"
	"fmt"
	"time"

	"connstatus/internal/config"
)

// ProbeRecord 探测记录（每次提交的心跳样本一条）
type ProbeRecord struct {
	ID          int64
	Target      string
	Session     string // 进程级会话 ID，用于区分重启前后的样本
	Success     bool
	FailureKind string // timeout|transport_error|bad_response，成功时为空
	HttpCode    int    // HTTP 状态码（0 表示非 HTTP 错误）
	Latency     int    // ms
	State       string // 提交后的连接状态
	Health      int    // 提交后的健康度
	Timestamp   int64  // Unix 秒
}

// EventType 事件类型
type EventType string

const (
	EventTypeDown EventType = "DOWN" // connected → connection_lost
	EventTypeUp   EventType = "UP"   // connection_lost → connected
)

// StatusEvent 连接状态变更事件
type StatusEvent struct {
	ID        int64
	Target    string
	Session   string
	EventType EventType
	FromState string
	ToState   string
	Health    int

	// TriggerRecordID 触发该事件的探测记录 ID
	TriggerRecordID int64

	// ObservedAt 探测时间（来自 ProbeRecord.Timestamp）
	ObservedAt int64

	// CreatedAt 事件创建时间（Unix 秒）
	CreatedAt int64

	// Meta 元数据（JSON 格式，包含 http_code, latency, failure_kind 等）
	Meta map[string]any
}

// EventFilters 事件查询过滤器
type EventFilters struct {
	Target string      // 按目标过滤（可选）
	Types  []EventType // 按事件类型过滤（可选，如 ["DOWN", "UP"]）
}

// Storage 存储接口
type Storage interface {
	// Init 初始化存储（建表、建索引）
	Init() error

	// Close 关闭存储
	Close() error

	// WithContext 返回绑定指定 context 的存储实例
	// 用于支持请求级别的超时和取消，不修改原实例，便于并发请求安全复用
	WithContext(ctx context.Context) Storage

	// SaveRecord 保存探测记录，成功后回填 record.ID
	SaveRecord(record *ProbeRecord) error

	// GetRecentRecords 获取目标最近 limit 条记录（按时间升序）
	GetRecentRecords(target string, limit int) ([]*ProbeRecord, error)

	// SaveStatusEvent 保存状态变更事件
	// 唯一约束保证幂等（相同 target/session/event_type/trigger_record_id 不重复插入）
	SaveStatusEvent(event *StatusEvent) error

	// GetStatusEvents 查询状态变更事件列表
	// sinceID: 从该 ID 之后开始（游标分页，不包含该 ID）
	// limit: 最多返回条数
	// filters: 可选过滤条件
	GetStatusEvents(sinceID int64, limit int, filters *EventFilters) ([]*StatusEvent, error)

	// GetLatestEventID 获取最新事件 ID（用于客户端初始化游标）
	// 返回 0 表示没有任何事件
	GetLatestEventID() (int64, error)

	// PurgeOldRecords 分批删除 cutoff 之前的探测记录，返回本批删除行数
	PurgeOldRecords(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

// New 按配置创建存储实例（未调用 Init）
func New(cfg *config.StorageConfig) (Storage, error) {
	switch cfg.Type {
	case "", "sqlite":
		return NewSQLiteStorage(cfg.SQLite.Path)
	case "postgres":
		return NewPostgresStorage(&cfg.Postgres)
	default:
		return nil, fmt.Errorf("不支持的存储类型: %s", cfg.Type)
	}
}
