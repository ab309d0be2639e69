package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"connstatus/internal/api"
	"connstatus/internal/buildinfo"
	"connstatus/internal/config"
	"connstatus/internal/heartbeat"
	"connstatus/internal/listeners"
	"connstatus/internal/logger"
	"connstatus/internal/monitor"
	"connstatus/internal/notify"
	"connstatus/internal/storage"
)

func main() {
	if err := run(); err != nil {
		logger.Error("main", "服务异常退出", "error", err)
		os.Exit(1)
	}
}

func newProber(target config.TargetConfig, timeout time.Duration) heartbeat.Prober {
	return monitor.NewProber(target, timeout)
}

func run() error {
	logger.Info("main", "connstatus 启动",
		"version", buildinfo.GetVersion(),
		"git_commit", buildinfo.GetGitCommit(),
		"build_time", buildinfo.GetBuildTime())

	configFile := "config.yaml"
	if len(os.Args) > 1 {
		configFile = os.Args[1]
	}

	if _, err := config.LoadDotenvFromConfigDir(configFile); err != nil {
		logger.Warn("main", "加载 .env 失败", "error", err)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(configFile)
	if err != nil {
		return err
	}
	logger.Configure(cfg.Log.Level, cfg.Log.Format)

	logger.Info("main", "配置加载完成",
		"target", cfg.Target.Name,
		"url", cfg.Target.AliveURL(),
		"retry_threshold", cfg.ConnectionStatus.RetryThreshold,
		"poll_interval", cfg.ConnectionStatus.PollIntervalDuration,
		"probe_timeout", cfg.ConnectionStatus.ProbeTimeoutDuration)

	store, err := storage.New(&cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Init(); err != nil {
		return err
	}
	logger.Info("main", "存储已就绪", "type", cfg.Storage.Type)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 用户消息：日志 + 可选 webhook
	messages := notify.Fanout{notify.LogMessages{}}
	webhook := notify.NewWebhook(cfg.Notify, cfg.Target.Name)
	if webhook != nil {
		webhook.Start(ctx)
		defer webhook.Close()
		messages = append(messages, webhook)
	}

	// 监听器按注册顺序调用：记录器在 poller 内先于监听器执行
	recorder := listeners.NewRecorder(store, cfg.Target.Name)
	statusBar := listeners.NewMemoryStatusBar()
	notice := listeners.NewBlockingNotice()
	broadcaster := listeners.NewBroadcaster()
	defer broadcaster.Close()

	supervisor := heartbeat.NewSupervisor(nil, newProber, recorder)
	registry := supervisor.Registry()
	registry.Register("statusbar", listeners.NewStatusBarContribution(statusBar))
	registry.Register("application", listeners.NewApplicationContribution(messages, func() listeners.Dialog {
		return notice
	}))
	registry.Register("sse", broadcaster)

	logger.Info("main", "会话已创建", "session", recorder.Session(), "listeners", registry.Len())

	server := api.NewServer(cfg, api.Deps{
		Source:      supervisor,
		Storage:     store,
		StatusBar:   statusBar,
		Notice:      notice,
		Broadcaster: broadcaster,
	})

	if err := supervisor.Start(ctx, cfg.Target, cfg.ConnectionStatus); err != nil {
		return err
	}
	defer supervisor.Stop()

	// 配置热更新
	current := cfg
	watcher, err := config.NewWatcher(loader, configFile, func(newCfg *config.AppConfig) {
		logger.Configure(newCfg.Log.Level, newCfg.Log.Format)
		server.UpdateConfig(newCfg)

		if current.PollerChanged(newCfg) {
			if err := supervisor.Apply(newCfg.Target, newCfg.ConnectionStatus); err != nil {
				logger.Error("main", "重建心跳轮询失败", "error", err)
			}
		}
		if current.StorageChanged(newCfg) {
			logger.Warn("main", "存储配置已变更，需重启后生效")
		}
		if current.Notify != newCfg.Notify || current.Server.Port != newCfg.Server.Port {
			logger.Warn("main", "通知或端口配置已变更，需重启后生效")
		}
		current = newCfg
	})
	if err != nil {
		logger.Warn("main", "配置监听器创建失败，热更新功能不可用", "error", err)
	} else if err := watcher.Start(ctx); err != nil {
		logger.Warn("main", "配置监听器启动失败，热更新功能不可用", "error", err)
	} else {
		logger.Info("main", "配置热更新已启用")
	}

	cleaner := storage.NewCleaner(store, &cfg.Storage.Retention)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cleaner.Start(gctx)
		return nil
	})
	g.Go(func() error {
		return server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("main", "收到关闭信号，正在优雅退出")

		cleaner.Stop()
		supervisor.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Stop(shutdownCtx); err != nil {
			logger.Warn("main", "HTTP服务器关闭错误", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("main", "服务已安全退出")
	return nil
}
