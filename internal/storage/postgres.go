package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"connstatus/internal/config"
)

// PostgresStorage PostgreSQL 存储实现
type PostgresStorage struct {
	pool *pgxpool.Pool
	ctx  context.Context
}

// NewPostgresStorage 创建 PostgreSQL 存储
func NewPostgresStorage(cfg *config.PostgresConfig) (*PostgresStorage, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Database,
		cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("解析 PostgreSQL 连接配置失败: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetimeDuration
	if poolConfig.MaxConnLifetime <= 0 {
		poolConfig.MaxConnLifetime = time.Hour
	}

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("创建 PostgreSQL 连接池失败: %w", err)
	}

	// 测试连接
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("连接 PostgreSQL 失败: %w", err)
	}

	return &PostgresStorage{
		pool: pool,
		ctx:  ctx,
	}, nil
}

// WithContext 返回绑定指定 context 的存储实例
func (s *PostgresStorage) WithContext(ctx context.Context) Storage {
	if ctx == nil {
		return s
	}
	return &PostgresStorage{pool: s.pool, ctx: ctx}
}

func (s *PostgresStorage) effectiveCtx() context.Context {
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}

// Init 初始化数据库表
func (s *PostgresStorage) Init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS probe_history (
		id BIGSERIAL PRIMARY KEY,
		target TEXT NOT NULL,
		session TEXT NOT NULL DEFAULT '',
		success BOOLEAN NOT NULL,
		failure_kind TEXT NOT NULL DEFAULT '',
		http_code INTEGER NOT NULL DEFAULT 0,
		latency INTEGER NOT NULL,
		state TEXT NOT NULL,
		health INTEGER NOT NULL,
		timestamp BIGINT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_probe_history_target_id
	ON probe_history(target, id DESC);

	CREATE INDEX IF NOT EXISTS idx_probe_history_timestamp
	ON probe_history(timestamp);

	CREATE TABLE IF NOT EXISTS status_events (
		id BIGSERIAL PRIMARY KEY,
		target TEXT NOT NULL,
		session TEXT NOT NULL DEFAULT '',
		event_type TEXT NOT NULL,
		from_state TEXT NOT NULL,
		to_state TEXT NOT NULL,
		health INTEGER NOT NULL,
		trigger_record_id BIGINT NOT NULL,
		observed_at BIGINT NOT NULL,
		created_at BIGINT NOT NULL,
		meta JSONB
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_status_events_unique
	ON status_events(target, session, event_type, trigger_record_id);
	`

	if _, err := s.pool.Exec(s.effectiveCtx(), schema); err != nil {
		return fmt.Errorf("初始化 PostgreSQL 数据库失败: %w", err)
	}
	return nil
}

// Close 关闭数据库连接
func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}

// SaveRecord 保存探测记录
func (s *PostgresStorage) SaveRecord(record *ProbeRecord) error {
	query := `
		INSERT INTO probe_history (target, session, success, failure_kind, http_code, latency, state, health, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	err := s.pool.QueryRow(s.effectiveCtx(), query,
		record.Target,
		record.Session,
		record.Success,
		record.FailureKind,
		record.HttpCode,
		record.Latency,
		record.State,
		record.Health,
		record.Timestamp,
	).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("保存 PostgreSQL 记录失败: %w", err)
	}
	return nil
}

// GetRecentRecords 获取最近记录（按时间升序）
func (s *PostgresStorage) GetRecentRecords(target string, limit int) ([]*ProbeRecord, error) {
	query := `
		SELECT id, target, session, success, failure_kind, http_code, latency, state, health, timestamp
		FROM probe_history
		WHERE target = $1
		ORDER BY id DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(s.effectiveCtx(), query, target, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("查询 PostgreSQL 最近记录失败: %w", err)
	}
	defer rows.Close()

	var records []*ProbeRecord
	for rows.Next() {
		var r ProbeRecord
		if err := rows.Scan(&r.ID, &r.Target, &r.Session, &r.Success, &r.FailureKind,
			&r.HttpCode, &r.Latency, &r.State, &r.Health, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("扫描 PostgreSQL 记录失败: %w", err)
		}
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("迭代 PostgreSQL 记录失败: %w", err)
	}

	reverseRecords(records)
	return records, nil
}

// SaveStatusEvent 保存状态变更事件
func (s *PostgresStorage) SaveStatusEvent(event *StatusEvent) error {
	meta, err := marshalMeta(event.Meta)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO status_events (target, session, event_type, from_state, to_state, health, trigger_record_id, observed_at, created_at, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (target, session, event_type, trigger_record_id) DO NOTHING
		RETURNING id
	`
	err = s.pool.QueryRow(s.effectiveCtx(), query,
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
	).Scan(&event.ID)
	if err != nil {
		// ON CONFLICT DO NOTHING 不返回行：重复事件，视为成功
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("保存 PostgreSQL 状态事件失败: %w", err)
	}
	return nil
}

// GetStatusEvents 查询状态变更事件列表
func (s *PostgresStorage) GetStatusEvents(sinceID int64, limit int, filters *EventFilters) ([]*StatusEvent, error) {
	conditions := []string{"id > $1"}
	args := []any{sinceID}

	if filters != nil {
		if filters.Target != "" {
			args = append(args, filters.Target)
			conditions = append(conditions, fmt.Sprintf("target = $%d", len(args)))
		}
		if len(filters.Types) > 0 {
			types := make([]string, len(filters.Types))
			for i, t := range filters.Types {
				types[i] = string(t)
			}
			args = append(args, types)
			conditions = append(conditions, fmt.Sprintf("event_type = ANY($%d)", len(args)))
		}
	}
	args = append(args, clampLimit(limit))

	query := fmt.Sprintf(`
		SELECT id, target, session, event_type, from_state, to_state, health, trigger_record_id, observed_at, created_at, meta
		FROM status_events
		WHERE %s
		ORDER BY id ASC
		LIMIT $%d
	`, strings.Join(conditions, " AND "), len(args))

	rows, err := s.pool.Query(s.effectiveCtx(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询 PostgreSQL 状态事件失败: %w", err)
	}
	defer rows.Close()

	var events []*StatusEvent
	for rows.Next() {
		var event StatusEvent
		var eventType string
		var meta []byte

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
			return nil, fmt.Errorf("扫描 PostgreSQL 状态事件失败: %w", err)
		}

		event.EventType = EventType(eventType)
		event.Meta = unmarshalMeta(meta)
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("迭代 PostgreSQL 状态事件失败: %w", err)
	}
	return events, nil
}

// GetLatestEventID 获取最新事件 ID
func (s *PostgresStorage) GetLatestEventID() (int64, error) {
	var latestID int64
	if err := s.pool.QueryRow(s.effectiveCtx(), `SELECT COALESCE(MAX(id), 0) FROM status_events`).Scan(&latestID); err != nil {
		return 0, fmt.Errorf("查询 PostgreSQL 最新事件 ID 失败: %w", err)
	}
	return latestID, nil
}

// PurgeOldRecords 分批删除旧探测记录
func (s *PostgresStorage) PurgeOldRecords(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	query := `
		DELETE FROM probe_history
		WHERE id IN (
			SELECT id FROM probe_history
			WHERE timestamp < $1
			ORDER BY id
			LIMIT $2
		)
	`
	tag, err := s.pool.Exec(ctx, query, cutoff.Unix(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("清理 PostgreSQL 旧记录失败: %w", err)
	}
	return tag.RowsAffected(), nil
}
