// Package status exposes the supervisor session over a localhost HTTP
// endpoint: a JSON health view for the desktop app and Prometheus metrics.
package status

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/process"
)

// SessionState is the coarse lifecycle state reported over /healthz
type SessionState string

const (
	StateStarting SessionState = "starting"
	StateRunning  SessionState = "running"
	StateStopping SessionState = "stopping"
	StateExited   SessionState = "exited"
)

// Session is the JSON snapshot served on /healthz
type Session struct {
	State         SessionState `json:"state"`
	ChildPID      int          `json:"child_pid,omitempty"`
	StartedAt     time.Time    `json:"started_at,omitempty"`
	UptimeSeconds float64      `json:"uptime_seconds"`
	Signals       []string     `json:"signals,omitempty"`
	Escalated     bool         `json:"escalated"`
	ExitCode      *int         `json:"exit_code,omitempty"`
}

// Exporter tracks one supervisor session and publishes it as Prometheus
// metrics. It implements the supervisor Monitor interface.
type Exporter struct {
	registry *prometheus.Registry

	childUp          prometheus.Gauge
	childPID         prometheus.Gauge
	childCPUPercent  prometheus.Gauge
	childMemoryBytes prometheus.Gauge
	childExitCode    prometheus.Gauge
	signalsTotal     *prometheus.CounterVec
	escalationsTotal prometheus.Counter

	mu      sync.RWMutex
	session Session
}

// NewExporter creates an exporter with its own registry
func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		childUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mlxk_launcher_child_up",
			Help: "1 while the server child process is running",
		}),
		childPID: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mlxk_launcher_child_pid",
			Help: "PID of the supervised server child",
		}),
		childCPUPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mlxk_launcher_child_cpu_percent",
			Help: "CPU usage of the server child",
		}),
		childMemoryBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mlxk_launcher_child_memory_bytes",
			Help: "Resident memory of the server child",
		}),
		childExitCode: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mlxk_launcher_child_exit_code",
			Help: "Exit code of the finished session (-1 while running)",
		}),
		signalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mlxk_launcher_signals_total",
			Help: "Termination signals received by the launcher",
		}, []string{"signal"}),
		escalationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mlxk_launcher_escalations_total",
			Help: "Forced-kill escalations (at most one per session)",
		}),
	}
	e.registry.MustRegister(
		e.childUp, e.childPID, e.childCPUPercent, e.childMemoryBytes,
		e.childExitCode, e.signalsTotal, e.escalationsTotal,
	)
	e.childExitCode.Set(-1)
	e.session.State = StateStarting
	return e
}

// Registry exposes the underlying registry for the HTTP handler
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// ChildStarted implements supervisor.Monitor
func (e *Exporter) ChildStarted(pid int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.State = StateRunning
	e.session.ChildPID = pid
	e.session.StartedAt = time.Now()
	e.childUp.Set(1)
	e.childPID.Set(float64(pid))
}

// SignalReceived implements supervisor.Monitor
func (e *Exporter) SignalReceived(sig string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.State = StateStopping
	e.session.Signals = append(e.session.Signals, sig)
	e.signalsTotal.WithLabelValues(sig).Inc()
}

// Escalated implements supervisor.Monitor
func (e *Exporter) Escalated() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Escalated = true
	e.escalationsTotal.Inc()
}

// ChildExited implements supervisor.Monitor
func (e *Exporter) ChildExited(code int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.State = StateExited
	e.session.ExitCode = &code
	e.childUp.Set(0)
	e.childCPUPercent.Set(0)
	e.childMemoryBytes.Set(0)
	e.childExitCode.Set(float64(code))
}

// Snapshot returns a copy of the current session view
func (e *Exporter) Snapshot() Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.session
	s.Signals = append([]string(nil), e.session.Signals...)
	if !s.StartedAt.IsZero() && s.State != StateExited {
		s.UptimeSeconds = time.Since(s.StartedAt).Seconds()
	}
	return s
}

// SampleChild refreshes the child's cpu/memory gauges via the OS
func (e *Exporter) SampleChild() {
	e.mu.RLock()
	pid := e.session.ChildPID
	running := e.session.State == StateRunning || e.session.State == StateStopping
	e.mu.RUnlock()
	if pid == 0 || !running {
		return
	}

	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		e.childCPUPercent.Set(cpu)
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		e.childMemoryBytes.Set(float64(mem.RSS))
	}
}

// StartSampling samples the child on an interval until ctx is done
func (e *Exporter) StartSampling(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.SampleChild()
			}
		}
	}()
}
