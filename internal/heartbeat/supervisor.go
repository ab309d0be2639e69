package heartbeat

import (
	"context"
	"sync"
	"time"

	"connstatus/internal/config"
	"connstatus/internal/logger"
	"connstatus/internal/status"
)

// targetSetter 记录器可选实现：目标切换时更新样本归属
type targetSetter interface {
	SetTarget(target string)
}

// ProberFactory 按目标与超时创建探测器
type ProberFactory func(target config.TargetConfig, timeout time.Duration) Prober

// Supervisor 持有当前 poller，目标或心跳参数变化时整体替换
//
// 注册表与记录器在替换前后共享，监听器无需重新注册；
// 新 poller 以旧状态机的状态与历史为起点。
type Supervisor struct {
	registry   *status.Registry
	newProber  ProberFactory
	recorder   ProbeRecorder
	recorderOK bool

	mu      sync.Mutex
	ctx     context.Context
	target  config.TargetConfig
	current *Poller
	prober  Prober
}

// NewSupervisor 创建 supervisor；recorder 可以为 nil
func NewSupervisor(registry *status.Registry, factory ProberFactory, recorder ProbeRecorder) *Supervisor {
	if registry == nil {
		registry = status.NewRegistry()
	}
	return &Supervisor{
		registry:   registry,
		newProber:  factory,
		recorder:   recorder,
		recorderOK: recorder != nil,
	}
}

// Registry 共享的监听器注册表
func (s *Supervisor) Registry() *status.Registry {
	return s.registry
}

// Start 以给定目标与参数启动首个 poller
func (s *Supervisor) Start(ctx context.Context, target config.TargetConfig, opts config.ConnectionStatusOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.Running() {
		return ErrAlreadyRunning
	}
	s.ctx = ctx
	return s.startLocked(target, opts, nil)
}

// Apply 替换为新目标与参数：停止旧 poller（丢弃在途探测），以旧状态启动新 poller
// 尚未 Start 时只记录目标供 Target 查询，心跳参数以 Start 传入的为准
func (s *Supervisor) Apply(target config.TargetConfig, opts config.ConnectionStatusOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil || s.current == nil {
		s.target = target
		return nil
	}

	old := s.current
	old.Stop()
	s.closeProberLocked()

	m := old.Machine()
	logger.Info("heartbeat", "心跳参数已变更，重建 poller",
		"target", target.Name,
		"url", target.AliveURL(),
		"retry_threshold", opts.RetryThreshold,
		"poll_interval", opts.PollIntervalDuration,
		"carried_history", m.HistoryLen())

	return s.startLocked(target, opts, &m)
}

func (s *Supervisor) startLocked(target config.TargetConfig, opts config.ConnectionStatusOptions, seed *status.Machine) error {
	// 旧 poller 已停止，此后的样本都属于新目标
	if t, ok := s.recorder.(targetSetter); ok && s.recorderOK {
		t.SetTarget(target.Name)
	}

	prober := s.newProber(target, opts.ProbeTimeoutDuration)

	options := make([]Option, 0, 2)
	if seed != nil {
		options = append(options, WithInitialMachine(*seed))
	}
	if s.recorderOK {
		options = append(options, WithRecorder(s.recorder))
	}

	p := New(prober, opts, s.registry, options...)
	if err := p.Start(s.ctx); err != nil {
		if c, ok := prober.(interface{ Close() }); ok {
			c.Close()
		}
		return err
	}
	s.target = target
	s.current = p
	s.prober = prober
	return nil
}

func (s *Supervisor) closeProberLocked() {
	if c, ok := s.prober.(interface{ Close() }); ok {
		c.Close()
	}
	s.prober = nil
}

// Stop 停止当前 poller（幂等）
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.Stop()
	}
	s.closeProberLocked()
}

func (s *Supervisor) poller() *Poller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Machine 当前状态机快照；未启动时为初始状态
func (s *Supervisor) Machine() status.Machine {
	if p := s.poller(); p != nil {
		return p.Machine()
	}
	return status.NewMachine(config.DefaultRetryThreshold)
}

// Running 当前 poller 是否在运行
func (s *Supervisor) Running() bool {
	p := s.poller()
	return p != nil && p.Running()
}

// Target 当前探测目标
func (s *Supervisor) Target() config.TargetConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}
