package parallelism

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/greysquirr3l/codeguardian-go/internal/logging"
)

// DefaultMonitorInterval is the default sampling interval.
const DefaultMonitorInterval = 2 * time.Second

// maxIOWait caps the I/O-wait proxy.
const maxIOWait = 0.5

// Probes measure the raw system signals behind a SystemLoad.
type Probes struct {
	// CPU returns mean utilization across cores in [0,1].
	CPU func(ctx context.Context) (float64, error)
	// Memory returns used/total memory in [0,1].
	Memory func(ctx context.Context) (float64, error)
	// LoadAverage returns the 1-minute load average.
	LoadAverage func(ctx context.Context) (float64, error)
	// ProcessCount returns the number of running processes.
	ProcessCount func(ctx context.Context) (int, error)
}

// SystemProbes returns probes backed by gopsutil.
func SystemProbes() Probes {
	return Probes{
		CPU:          cpuUsage,
		Memory:       memoryUsage,
		LoadAverage:  loadAverage,
		ProcessCount: processCount,
	}
}

func cpuUsage(ctx context.Context) (float64, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, true)
	if err != nil {
		return 0, fmt.Errorf("cpu percent: %w", err)
	}
	if len(percents) == 0 {
		return 0, nil
	}
	var total float64
	for _, p := range percents {
		total += p
	}
	return total / float64(len(percents)) / 100, nil
}

func memoryUsage(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("virtual memory: %w", err)
	}
	if vm.Total == 0 {
		return 0, nil
	}
	return float64(vm.Used) / float64(vm.Total), nil
}

func loadAverage(ctx context.Context) (float64, error) {
	avg, err := load.AvgWithContext(ctx)
	if err == nil {
		return avg.Load1, nil
	}
	if fallback, ferr := readProcLoadAvg(); ferr == nil {
		return fallback, nil
	}
	return 0, fmt.Errorf("load average: %w", err)
}

func processCount(ctx context.Context) (int, error) {
	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing processes: %w", err)
	}
	return len(pids), nil
}

// Monitor samples system load on an interval and feeds a Controller.
// Probe failures yield zero readings and never stop the loop.
type Monitor struct {
	controller *Controller
	probes     Probes
	interval   time.Duration
	logger     *logging.Logger

	breakers map[string]*Breaker

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithMonitorInterval sets the sampling interval.
func WithMonitorInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithProbes replaces the system probes.
func WithProbes(p Probes) MonitorOption {
	return func(m *Monitor) {
		m.probes = p
	}
}

// WithMonitorLogger sets the logger.
func WithMonitorLogger(l *logging.Logger) MonitorOption {
	return func(m *Monitor) {
		m.logger = l
	}
}

// WithProbeBreaker sets the breaker settings used for every probe.
func WithProbeBreaker(threshold int, cooldown time.Duration) MonitorOption {
	return func(m *Monitor) {
		for name := range m.breakers {
			m.breakers[name] = NewBreaker(threshold, cooldown, 1)
		}
	}
}

// NewMonitor creates a monitor that reports to controller.
func NewMonitor(controller *Controller, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		controller: controller,
		probes:     SystemProbes(),
		interval:   DefaultMonitorInterval,
		logger:     logging.New(logging.LevelInfo),
		breakers: map[string]*Breaker{
			"cpu":       NewBreaker(3, 30*time.Second, 1),
			"memory":    NewBreaker(3, 30*time.Second, 1),
			"load":      NewBreaker(3, 30*time.Second, 1),
			"processes": NewBreaker(3, 30*time.Second, 1),
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the sampling loop. It returns immediately; calling it
// on a running monitor does nothing.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})

	m.wg.Add(1)
	go m.loop(ctx, m.stopCh)
}

// Stop ends the sampling loop and waits for it to exit. It is safe to
// call more than once.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
}

// Running reports whether the sampling loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) loop(ctx context.Context, stop <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			sample := m.Sample(ctx)
			if m.controller != nil {
				m.controller.UpdateLoad(sample)
			}
		}
	}
}

// Sample takes one measurement.
func (m *Monitor) Sample(ctx context.Context) SystemLoad {
	s := SystemLoad{CapturedAt: time.Now()}

	s.CPUUsage = clamp(m.measure(ctx, "cpu", m.probes.CPU), 0, 1)
	s.MemoryUsage = clamp(m.measure(ctx, "memory", m.probes.Memory), 0, 1)
	s.LoadAverage = max(m.measure(ctx, "load", m.probes.LoadAverage), 0)

	procs := m.measure(ctx, "processes", func(ctx context.Context) (float64, error) {
		if m.probes.ProcessCount == nil {
			return 0, nil
		}
		n, err := m.probes.ProcessCount(ctx)
		return float64(n), err
	})
	if procs > 0 {
		s.IOWait = clamp(s.LoadAverage/procs*0.1, 0, maxIOWait)
	}
	return s
}

// measure runs one probe behind its breaker. Any failure reads as zero.
func (m *Monitor) measure(ctx context.Context, name string, probe func(context.Context) (float64, error)) float64 {
	if probe == nil {
		return 0
	}

	var v float64
	b := m.breakers[name]
	err := b.Execute(func() error {
		var perr error
		v, perr = probe(ctx)
		return perr
	})
	if err != nil {
		if !errors.Is(err, ErrBreakerOpen) {
			m.logger.Debug("load probe %s failed (breaker %s): %v", name, b.State(), err)
		}
		return 0
	}
	return v
}

// BreakerState returns the state of the named probe breaker.
func (m *Monitor) BreakerState(name string) (BreakerState, bool) {
	b, ok := m.breakers[name]
	if !ok {
		return BreakerClosed, false
	}
	return b.State(), true
}
