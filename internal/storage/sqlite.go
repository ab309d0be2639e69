package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // 纯Go实现的SQLite驱动
)

// SQLiteStorage SQLite存储实现
type SQLiteStorage struct {
	db  *sql.DB
	ctx context.Context
}

// NewSQLiteStorage 创建SQLite存储
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	// 使用WAL模式和其他参数解决并发锁问题
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_timeout=5000&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite建议单个写连接
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	return &SQLiteStorage{db: db, ctx: context.Background()}, nil
}

// WithContext 返回绑定指定 context 的存储实例
func (s *SQLiteStorage) WithContext(ctx context.Context) Storage {
	if ctx == nil {
		return s
	}
	return &SQLiteStorage{
		db:  s.db,
		ctx: ctx,
	}
}

// effectiveCtx 返回有效的 context
func (s *SQLiteStorage) effectiveCtx() context.Context {
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}

// Init 初始化数据库表
func (s *SQLiteStorage) Init() error {
	ctx := s.effectiveCtx()
	statements := []struct {
		name string
		sql  string
	}{
		{"probe_history", `
		CREATE TABLE IF NOT EXISTS probe_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			target TEXT NOT NULL,
			session TEXT NOT NULL DEFAULT '',
			success INTEGER NOT NULL,
			failure_kind TEXT NOT NULL DEFAULT '',
			http_code INTEGER NOT NULL DEFAULT 0,
			latency INTEGER NOT NULL,
			state TEXT NOT NULL,
			health INTEGER NOT NULL,
			timestamp INTEGER NOT NULL
		)`},
		// GetRecentRecords 按 target 等值 + id 倒序
		{"idx_probe_history_target_id", `
		CREATE INDEX IF NOT EXISTS idx_probe_history_target_id
		ON probe_history(target, id DESC)`},
		// PurgeOldRecords 按时间范围删除
		{"idx_probe_history_timestamp", `
		CREATE INDEX IF NOT EXISTS idx_probe_history_timestamp
		ON probe_history(timestamp)`},
		{"status_events", `
		CREATE TABLE IF NOT EXISTS status_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			target TEXT NOT NULL,
			session TEXT NOT NULL DEFAULT '',
			event_type TEXT NOT NULL,
			from_state TEXT NOT NULL,
			to_state TEXT NOT NULL,
			health INTEGER NOT NULL,
			trigger_record_id INTEGER NOT NULL,
			observed_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			meta TEXT
		)`},
		// 唯一约束索引（幂等性保障）
		{"idx_status_events_unique", `
		CREATE UNIQUE INDEX IF NOT EXISTS idx_status_events_unique
		ON status_events(target, session, event_type, trigger_record_id)`},
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt.sql); err != nil {
			return fmt.Errorf("初始化 %s 失败: %w", stmt.name, err)
		}
	}
	return nil
}

// Close 关闭数据库
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// SaveRecord 保存探测记录
func (s *SQLiteStorage) SaveRecord(record *ProbeRecord) error {
	ctx := s.effectiveCtx()
	query := `
		INSERT INTO probe_history (target, session, success, failure_kind, http_code, latency, state, health, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		record.Target,
		record.Session,
		boolToInt(record.Success),
		record.FailureKind,
		record.HttpCode,
		record.Latency,
		record.State,
		record.Health,
		record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("保存记录失败: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("获取记录 ID 失败: %w", err)
	}
	record.ID = id
	return nil
}

// GetRecentRecords 获取最近记录（按时间升序）
func (s *SQLiteStorage) GetRecentRecords(target string, limit int) ([]*ProbeRecord, error) {
	ctx := s.effectiveCtx()
	query := `
		SELECT id, target, session, success, failure_kind, http_code, latency, state, health, timestamp
		FROM probe_history
		WHERE target = ?
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, target, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("查询最近记录失败: %w", err)
	}
	defer rows.Close()

	var records []*ProbeRecord
	for rows.Next() {
		var r ProbeRecord
		var success int
		if err := rows.Scan(&r.ID, &r.Target, &r.Session, &success, &r.FailureKind,
			&r.HttpCode, &r.Latency, &r.State, &r.Health, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("扫描记录失败: %w", err)
		}
		r.Success = success != 0
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("迭代记录失败: %w", err)
	}

	reverseRecords(records)
	return records, nil
}

// SaveStatusEvent 保存状态变更事件
func (s *SQLiteStorage) SaveStatusEvent(event *StatusEvent) error {
	ctx := s.effectiveCtx()

	metaJSON, err := marshalMeta(event.Meta)
	if err != nil {
		return err
	}
	var meta sql.NullString
	if metaJSON != nil {
		meta = sql.NullString{String: string(metaJSON), Valid: true}
	}

	query := `
		INSERT INTO status_events (target, session, event_type, from_state, to_state, health, trigger_record_id, observed_at, created_at, meta)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		event.Target,
		event.Session,
		string(event.EventType),
		event.FromState,
		event.ToState,
		event.Health,
		event.TriggerRecordID,
		event.ObservedAt,
		event.CreatedAt,
		meta,
	)
	if err != nil {
		// 检查是否是唯一约束冲突（幂等处理）
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil // 重复事件，视为成功
		}
		return fmt.Errorf("保存状态事件失败: %w", err)
	}

	id, _ := result.LastInsertId()
	event.ID = id
	return nil
}

// GetStatusEvents 查询状态变更事件列表
func (s *SQLiteStorage) GetStatusEvents(sinceID int64, limit int, filters *EventFilters) ([]*StatusEvent, error) {
	ctx := s.effectiveCtx()

	conditions := []string{"id > ?"}
	args := []any{sinceID}

	if filters != nil {
		if filters.Target != "" {
			conditions = append(conditions, "target = ?")
			args = append(args, filters.Target)
		}
		if len(filters.Types) > 0 {
			placeholders := make([]string, len(filters.Types))
			for i, t := range filters.Types {
				placeholders[i] = "?"
				args = append(args, string(t))
			}
			conditions = append(conditions, "event_type IN ("+strings.Join(placeholders, ",")+")")
		}
	}

	query := fmt.Sprintf(`
		SELECT id, target, session, event_type, from_state, to_state, health, trigger_record_id, observed_at, created_at, meta
		FROM status_events
		WHERE %s
		ORDER BY id ASC
		LIMIT ?
	`, strings.Join(conditions, " AND "))
	args = append(args, clampLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询状态事件失败: %w", err)
	}
	defer rows.Close()

	var events []*StatusEvent
	for rows.Next() {
		var event StatusEvent
		var eventType string
		var meta sql.NullString

		if err := rows.Scan(
			&event.ID,
			&event.Target,
			&event.Session,
			&eventType,
			&event.FromState,
			&event.ToState,
			&event.Health,
			&event.TriggerRecordID,
			&event.ObservedAt,
			&event.CreatedAt,
			&meta,
		); err != nil {
			return nil, fmt.Errorf("扫描状态事件失败: %w", err)
		}

		event.EventType = EventType(eventType)
		if meta.Valid {
			event.Meta = unmarshalMeta([]byte(meta.String))
		}
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("迭代状态事件失败: %w", err)
	}
	return events, nil
}

// GetLatestEventID 获取最新事件 ID
func (s *SQLiteStorage) GetLatestEventID() (int64, error) {
	ctx := s.effectiveCtx()

	var latestID int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM status_events`).Scan(&latestID); err != nil {
		return 0, fmt.Errorf("查询最新事件 ID 失败: %w", err)
	}
	return latestID, nil
}

// PurgeOldRecords 分批删除旧探测记录
// SQLite 的 DELETE 默认不支持 LIMIT，用子查询圈定本批 id
func (s *SQLiteStorage) PurgeOldRecords(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	query := `
		DELETE FROM probe_history
		WHERE id IN (
			SELECT id FROM probe_history
			WHERE timestamp < ?
			ORDER BY id
			LIMIT ?
		)
	`
	result, err := s.db.ExecContext(ctx, query, cutoff.Unix(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("清理旧记录失败: %w", err)
	}
	return result.RowsAffected()
}
