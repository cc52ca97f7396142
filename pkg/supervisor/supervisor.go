package supervisor

// The launcher binary stays the long-lived, stable-named parent for the
// whole session. The interpreter is always the child, never the other way
// round: downstream process managers key off the launcher's name and PID.

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/mzau/mlxk-launcher/pkg/logging"
)

// Supervisor owns the lifecycle of exactly one server child process. It
// forwards termination signals with escalation (graceful stop, then forced
// kill after a bounded grace period) and reports the child's termination as
// its own exit status.
type Supervisor struct {
	cfg     LaunchConfig
	logger  *logging.Logger
	monitor Monitor

	// signals is the delivery channel for qualifying signals. Tests may
	// pre-set it before Run to inject signals deterministically.
	signals chan os.Signal

	// killed guards the forced-kill escalation. Signal delivery is
	// concurrent with the wait loop, so this is an atomic rather than a
	// bare flag: the kill is issued exactly once per session.
	killed atomic.Bool

	childPID atomic.Int64
}

type waitResult struct {
	state *os.ProcessState
	err   error
}

// New creates a supervisor for the given launch configuration
func New(cfg LaunchConfig, logger *logging.Logger) *Supervisor {
	if logger == nil {
		logger = logging.NewLogger(logging.INFO, false)
	}
	return &Supervisor{
		cfg:     cfg,
		logger:  logger,
		monitor: nopMonitor{},
	}
}

// SetMonitor attaches a lifecycle observer. Must be called before Run.
func (s *Supervisor) SetMonitor(m Monitor) {
	if m != nil {
		s.monitor = m
	}
}

// ChildPID returns the spawned child's PID, or 0 before spawn
func (s *Supervisor) ChildPID() int {
	return int(s.childPID.Load())
}

// Run spawns the child and blocks until it terminates. The return value
// mirrors the child's termination: its exit code on a normal exit, or
// 128+signal when it died from a signal. A SpawnError is returned when the
// child could not be launched; no child exists in that case.
//
// Cancelling ctx is treated like a first graceful-stop request.
func (s *Supervisor) Run(ctx context.Context) (int, error) {
	if err := s.cfg.Validate(); err != nil {
		return -1, &SpawnError{Path: s.cfg.Python, Err: err}
	}

	// Handlers must exist before the child does, so a signal arriving
	// mid-spawn is never lost.
	if s.signals == nil {
		s.signals = make(chan os.Signal, 4)
	}
	signal.Notify(s.signals, terminationSignals()...)
	defer signal.Stop(s.signals)

	cmd := exec.Command(s.cfg.Python, s.cfg.BuildArgs()...)
	cmd.Env = s.cfg.Environ()
	cmd.Dir = s.cfg.WorkDir
	cmd.Stdout = s.cfg.Stdout
	cmd.Stderr = s.cfg.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	// Own process group: group signals reach the child and its descendants
	// without racing signals sent to the launcher itself.
	setProcessGroup(cmd)

	if s.cfg.PIDFile != "" {
		// The launcher's own PID is the session identity
		if err := writePIDFile(s.cfg.PIDFile, os.Getpid()); err != nil {
			s.logger.Warn(fmt.Sprintf("Failed to write pidfile: %v", err))
		} else {
			defer removePIDFile(s.cfg.PIDFile)
		}
	}

	if err := cmd.Start(); err != nil {
		return -1, &SpawnError{Path: s.cfg.Python, Err: err}
	}
	s.childPID.Store(int64(cmd.Process.Pid))
	s.monitor.ChildStarted(cmd.Process.Pid)
	s.logger.Info(fmt.Sprintf("Spawned server child PID %d", cmd.Process.Pid),
		map[string]interface{}{"python": s.cfg.Python})

	waitCh := make(chan waitResult, 1)
	go func() {
		err := cmd.Wait()
		waitCh <- waitResult{state: cmd.ProcessState, err: err}
	}()

	// Normal phase: block until the child exits on its own or a shutdown
	// request arrives.
	var trigger os.Signal
	ctxDone := ctx.Done()
	select {
	case res := <-waitCh:
		return s.finish(res)
	case sig := <-s.signals:
		trigger = sig
		s.monitor.SignalReceived(sig.String())
	case <-ctxDone:
		trigger = nil
		ctxDone = nil // already fired; must not re-trigger escalation
		s.monitor.SignalReceived("context")
	}

	// Graceful stop to the child's process group. SIGINT triggers beget
	// SIGINT, everything else becomes SIGTERM.
	gsig := gracefulSignal(trigger)
	s.logger.Info(fmt.Sprintf("Shutdown requested, forwarding %v to child group", gsig))
	if err := signalGroup(cmd, gsig); err != nil {
		s.logger.Warn(fmt.Sprintf("Failed to signal child group: %v", err))
	}

	// Grace period: poll rather than block, so a second signal escalates
	// immediately instead of waiting out the OS-level wait.
	deadline := time.Now().Add(s.cfg.gracePeriod())
	ticker := time.NewTicker(s.cfg.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case res := <-waitCh:
			return s.finish(res)
		case sig := <-s.signals:
			s.monitor.SignalReceived(sig.String())
			s.logger.Warn("Second shutdown request, escalating immediately")
			s.forceKill(cmd)
			return s.finish(<-waitCh)
		case <-ctxDone:
			ctxDone = nil
			s.logger.Warn("Context cancelled during grace period, escalating")
			s.forceKill(cmd)
			return s.finish(<-waitCh)
		case <-ticker.C:
			if time.Now().After(deadline) {
				s.logger.Warn(fmt.Sprintf("Child did not stop within %v, escalating", s.cfg.gracePeriod()))
				s.forceKill(cmd)
				return s.finish(<-waitCh)
			}
		}
	}
}

// forceKill sends SIGKILL to the child's process group exactly once. A
// forced kill is assumed always-effective; there is no further escalation
// tier and the subsequent wait is unconditional.
func (s *Supervisor) forceKill(cmd *exec.Cmd) {
	if !s.killed.CompareAndSwap(false, true) {
		return
	}
	s.monitor.Escalated()
	killProcessGroup(cmd)
}

func (s *Supervisor) finish(res waitResult) (int, error) {
	if res.err != nil {
		if _, ok := res.err.(*exec.ExitError); !ok {
			// Wait itself failed; not a child termination status
			s.monitor.ChildExited(-1)
			return -1, fmt.Errorf("wait failed: %w", res.err)
		}
	}
	code := exitCodeFromState(res.state)
	s.monitor.ChildExited(code)
	s.logger.Info(fmt.Sprintf("Server child exited with status %d", code))
	return code, nil
}
