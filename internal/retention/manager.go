package retention

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Manager 在后台运行 Collector，负责启动、停止和收集运行错误
type Manager struct {
	cfg Config

	collector *Collector

	started atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup

	runErrMu sync.Mutex
	runErr   error
}

func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg.withDefaults()}
}

func (m *Manager) WithCollector(c *Collector) *Manager {
	if m == nil {
		return nil
	}
	m.collector = c
	if m.collector != nil {
		m.collector.cfg = m.cfg
	}
	return m
}

func (m *Manager) Start(ctx context.Context) error {
	if m == nil {
		return errors.New("manager is nil")
	}
	if !m.started.CompareAndSwap(false, true) {
		return errors.New("manager already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	if !m.cfg.Enabled {
		return nil
	}
	if m.collector == nil {
		m.cancel()
		return errors.New("retention collector is required when retention enabled")
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.collector.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			m.runErrMu.Lock()
			if m.runErr == nil {
				m.runErr = err
			}
			m.runErrMu.Unlock()
			m.cancel()
		}
	}()
	return nil
}

func (m *Manager) Stop() {
	if m == nil || m.cancel == nil {
		return
	}
	m.cancel()
}

func (m *Manager) Wait() error {
	if m == nil {
		return nil
	}
	m.wg.Wait()
	m.runErrMu.Lock()
	defer m.runErrMu.Unlock()
	return m.runErr
}
