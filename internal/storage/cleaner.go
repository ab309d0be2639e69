package storage

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"connstatus/internal/config"
	"connstatus/internal/logger"
)

// Cleaner 探测记录清理任务
// 心跳默认每 2 秒一条样本，不清理时单目标每天约 4 万行
type Cleaner struct {
	storage  Storage
	config   *config.RetentionConfig
	running  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// NewCleaner 创建清理任务
func NewCleaner(storage Storage, cfg *config.RetentionConfig) *Cleaner {
	return &Cleaner{
		storage: storage,
		config:  cfg,
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
}

// withJitter 在 base 基础上叠加 ±jitter 比例的随机偏移
func withJitter(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 || base <= 0 {
		return base
	}
	return base + time.Duration(float64(base)*jitter*(rand.Float64()*2-1))
}

// Start 启动清理任务（阻塞，应在 goroutine 中调用）
func (c *Cleaner) Start(ctx context.Context) {
	if !c.config.IsEnabled() {
		logger.Info("cleaner", "探测记录清理已禁用")
		return
	}

	delay := withJitter(c.config.StartupDelayDuration, c.config.Jitter)
	logger.Info("cleaner", "清理任务将在延迟后启动",
		"delay", delay,
		"retention_days", c.config.Days,
		"cleanup_interval", c.config.CleanupIntervalDuration)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			c.RunOnce(ctx)
			timer.Reset(withJitter(c.config.CleanupIntervalDuration, c.config.Jitter))
		case <-ctx.Done():
			logger.Info("cleaner", "清理任务收到取消信号，正在退出")
			return
		case <-c.stopCh:
			logger.Info("cleaner", "清理任务收到停止信号，正在退出")
			return
		}
	}
}

// Stop 停止清理任务（幂等，可重复调用）
func (c *Cleaner) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

// RunOnce 执行一轮清理，返回删除总行数
func (c *Cleaner) RunOnce(ctx context.Context) int64 {
	// 防止重入
	if !c.running.CompareAndSwap(false, true) {
		logger.Info("cleaner", "清理任务仍在运行，跳过本轮")
		return 0
	}
	defer c.running.Store(false)

	cutoff := c.now().UTC().AddDate(0, 0, -c.config.Days)
	startTime := time.Now()
	var totalDeleted int64
	batchCount := 0
	backoff := 50 * time.Millisecond

	for batchCount < c.config.MaxBatchesPerRun {
		if ctx.Err() != nil {
			logger.Info("cleaner", "清理任务被取消", "deleted", totalDeleted, "batches", batchCount)
			return totalDeleted
		}

		deleted, err := c.storage.PurgeOldRecords(ctx, cutoff, c.config.BatchSize)
		if err != nil {
			// 优雅关闭时 context 被取消，降级为 Info 避免噪声
			if ctx.Err() != nil {
				logger.Info("cleaner", "清理任务被取消", "deleted", totalDeleted, "batches", batchCount)
				return totalDeleted
			}

			// SQLite 锁冲突时指数退避重试
			if strings.Contains(err.Error(), "database is locked") {
				logger.Warn("cleaner", "数据库锁冲突，等待重试", "backoff", backoff, "deleted_so_far", totalDeleted)
				time.Sleep(backoff)
				backoff = min(backoff*2, 5*time.Second)
				continue
			}

			logger.Error("cleaner", "清理任务失败", "error", err, "deleted", totalDeleted)
			return totalDeleted
		}

		backoff = 50 * time.Millisecond
		totalDeleted += deleted
		batchCount++

		if deleted < int64(c.config.BatchSize) {
			break // 没有更多数据
		}
	}

	if totalDeleted > 0 {
		logger.Info("cleaner", "探测记录清理完成",
			"deleted", totalDeleted,
			"batches", batchCount,
			"elapsed", time.Since(startTime),
			"cutoff", cutoff.Format(time.RFC3339))
	}
	return totalDeleted
}
