package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"connstatus/internal/logger"
)

// Watcher 配置文件监听器
type Watcher struct {
	loader       *Loader
	filename     string
	watcher      *fsnotify.Watcher
	onReload     func(*AppConfig)
	debounceTime time.Duration

	timerMu       sync.Mutex
	debounceTimer *time.Timer
}

// NewWatcher 创建配置监听器
func NewWatcher(loader *Loader, filename string, onReload func(*AppConfig)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		loader:       loader,
		filename:     filename,
		watcher:      watcher,
		onReload:     onReload,
		debounceTime: 200 * time.Millisecond, // 防抖延迟
	}, nil
}

// Start 启动监听（监听父目录以兼容不同编辑器）
func (w *Watcher) Start(ctx context.Context) error {
	// 监听父目录而非文件本身，避免编辑器 rename 导致监听失效
	dir := filepath.Dir(w.filename)
	targetFile := filepath.Clean(w.filename)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	logger.Info("config", "开始监听配置文件", "file", w.filename, "dir", dir)

	go func() {
		for {
			select {
			case <-ctx.Done():
				w.stopTimer()
				logger.Info("config", "配置监听器已停止")
				w.watcher.Close()
				return

			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != targetFile {
					continue
				}

				// 监听 Write/Create/Rename 事件（vim/nano 等编辑器使用 rename 保存）
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					w.schedule()
				}

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				logger.Error("config", "监听错误", "error", err)
			}
		}
	}()

	return nil
}

// schedule 防抖：编辑器连续写入只触发一次重载
func (w *Watcher) schedule() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceTime, func() {
		logger.Info("config", "检测到配置文件变更，正在重载")
		w.reload()
	})
}

func (w *Watcher) stopTimer() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
}

// reload 重新加载配置
func (w *Watcher) reload() {
	newConfig, err := w.loader.LoadOrRollback(w.filename)
	if err != nil {
		logger.Error("config", "重载失败", "error", err)
		return
	}

	logger.Info("config", "热更新成功",
		"target", newConfig.Target.AliveURL(),
		"retry_threshold", newConfig.ConnectionStatus.RetryThreshold,
		"poll_interval", newConfig.ConnectionStatus.PollInterval)

	if w.onReload != nil {
		w.onReload(newConfig)
	}
}

// Stop 停止监听
func (w *Watcher) Stop() error {
	w.stopTimer()
	return w.watcher.Close()
}
