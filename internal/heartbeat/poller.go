// Package heartbeat 周期性探测后端存活端点，推进连接状态机并分发状态事件
package heartbeat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"connstatus/internal/config"
	"connstatus/internal/logger"
	"connstatus/internal/monitor"
	"connstatus/internal/status"
)

// ErrAlreadyRunning 重复启动正在运行的 poller
var ErrAlreadyRunning = errors.New("heartbeat: poller 已在运行")

// Prober 单次存活探测
type Prober interface {
	Probe(ctx context.Context) *monitor.ProbeResult
}

// ProbeFunc 函数适配器
type ProbeFunc func(ctx context.Context) *monitor.ProbeResult

// Probe 实现 Prober
func (f ProbeFunc) Probe(ctx context.Context) *monitor.ProbeResult {
	return f(ctx)
}

// ProbeRecorder 在监听器之前接收每次提交的探测结果及其产生的状态
type ProbeRecorder interface {
	RecordProbe(result *monitor.ProbeResult, event status.ChangeEvent)
}

// Option poller 可选项
type Option func(*Poller)

// WithInitialMachine 以已有状态机的状态与历史作为起点（阈值以新参数为准）
// 用于配置热更新后延续旧状态，避免凭空产生状态跳变
func WithInitialMachine(m status.Machine) Option {
	return func(p *Poller) {
		restored := status.RestoreMachine(p.opts.RetryThreshold, m.State(), m.History())
		p.machine.Store(&restored)
	}
}

// WithRecorder 设置探测结果记录器
func WithRecorder(r ProbeRecorder) Option {
	return func(p *Poller) {
		p.recorder = r
	}
}

// Poller 心跳轮询器
//
// 探测在轮询 goroutine 上串行执行，任意时刻最多一个探测在途；
// 探测耗时超过间隔时，下一次探测顺延到"当前时间 + 间隔"，不补跑错过的周期。
// 监听器在轮询 goroutine 上同步调用，不得在监听器内同步调用 Stop。
type Poller struct {
	prober   Prober
	opts     config.ConnectionStatusOptions
	registry *status.Registry
	recorder ProbeRecorder

	machine atomic.Pointer[status.Machine]

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New 创建 poller（未启动）
// registry 为 nil 时创建独立注册表
func New(prober Prober, opts config.ConnectionStatusOptions, registry *status.Registry, options ...Option) *Poller {
	if opts.RetryThreshold < 1 {
		opts.RetryThreshold = config.DefaultRetryThreshold
	}
	if opts.PollIntervalDuration <= 0 {
		opts.PollIntervalDuration = config.DefaultPollInterval
	}
	if registry == nil {
		registry = status.NewRegistry()
	}

	p := &Poller{
		prober:   prober,
		opts:     opts,
		registry: registry,
	}
	initial := status.NewMachine(opts.RetryThreshold)
	p.machine.Store(&initial)

	for _, opt := range options {
		opt(p)
	}
	return p
}

// Registry 监听器注册表
func (p *Poller) Registry() *status.Registry {
	return p.registry
}

// Register 注册监听器
func (p *Poller) Register(name string, l status.Listener) *status.Registration {
	return p.registry.Register(name, l)
}

// Machine 当前状态机快照
func (p *Poller) Machine() status.Machine {
	return *p.machine.Load()
}

// Options 当前心跳参数
func (p *Poller) Options() config.ConnectionStatusOptions {
	return p.opts
}

// Running 是否在运行
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Start 启动轮询：先同步通知一次当前状态，再每隔 poll_interval 探测一次
// 已在运行时返回 ErrAlreadyRunning；Stop 之后可以再次 Start
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.running = true
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	m := p.Machine()
	logger.Info("heartbeat", "心跳轮询已启动",
		"poll_interval", p.opts.PollIntervalDuration,
		"probe_timeout", p.opts.ProbeTimeoutDuration,
		"retry_threshold", p.opts.RetryThreshold,
		"state", m.State().String(), "health", m.Health())

	p.registry.Notify(m.Event())

	go p.loop(loopCtx, done)
	return nil
}

// Stop 停止轮询并等待轮询 goroutine 退出（幂等）
// 返回后不会再有状态提交或监听器调用；在途探测的结果被丢弃
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done
	logger.Info("heartbeat", "心跳轮询已停止")
}

// loop 轮询主循环
func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		// 父 context 取消导致的退出同样视为停止
		p.mu.Lock()
		if p.done == done {
			p.running = false
		}
		p.mu.Unlock()
		close(done)
	}()

	interval := p.opts.PollIntervalDuration
	next := time.Now().Add(interval)
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			p.tick(ctx)

			// "至少间隔"语义：下次执行时间 = max(计划时间+interval, 当前时间+interval)
			planned := next.Add(interval)
			minNext := time.Now().Add(interval)
			if planned.Before(minNext) {
				next = minNext
			} else {
				next = planned
			}
			timer.Reset(time.Until(next))
		}
	}
}

// tick 执行一次探测并提交结果，返回是否已提交
func (p *Poller) tick(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	result := p.prober.Probe(ctx)

	// 探测期间已停止：丢弃结果
	if ctx.Err() != nil {
		logger.Debug("heartbeat", "轮询已停止，丢弃在途探测结果")
		return false
	}

	success := result != nil && result.Success
	prev := p.machine.Load()
	next := prev.Advance(success)
	p.machine.Store(&next)

	event := next.Event()
	if prev.State() != next.State() {
		if next.State() == status.ConnectionLost {
			logger.Warn("heartbeat", "连接状态变更",
				"from", prev.State().String(), "to", next.State().String(), "health", event.Health)
		} else {
			logger.Info("heartbeat", "连接状态变更",
				"from", prev.State().String(), "to", next.State().String(), "health", event.Health)
		}
	}

	if p.recorder != nil {
		if result == nil {
			result = &monitor.ProbeResult{Timestamp: time.Now().Unix(), Kind: monitor.KindTransport}
		}
		p.recorder.RecordProbe(result, event)
	}
	p.registry.Notify(event)
	return true
}
