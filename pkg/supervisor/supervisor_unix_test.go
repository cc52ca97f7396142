//go:build !windows

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/mzau/mlxk-launcher/pkg/logging"
)

// testMonitor records lifecycle notifications for assertions
type testMonitor struct {
	mu          sync.Mutex
	started     chan int
	signals     []string
	escalations int
	exitCode    int
	exited      bool
}

func newTestMonitor() *testMonitor {
	return &testMonitor{started: make(chan int, 1)}
}

func (m *testMonitor) ChildStarted(pid int) {
	m.started <- pid
}

func (m *testMonitor) SignalReceived(sig string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, sig)
}

func (m *testMonitor) Escalated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escalations++
}

func (m *testMonitor) ChildExited(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exitCode = code
	m.exited = true
}

func (m *testMonitor) escalationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.escalations
}

func quietLogger() *logging.Logger {
	l := logging.NewLogger(logging.FATAL, false)
	l.SetOutput(io.Discard)
	return l
}

// newShellSupervisor builds a supervisor running `sh -c script` with short
// escalation timing and an injectable signal channel.
func newShellSupervisor(t *testing.T, script string, grace time.Duration) (*Supervisor, *testMonitor) {
	t.Helper()
	cfg := LaunchConfig{
		Python:       "/bin/sh",
		Args:         []string{"-c", script},
		GracePeriod:  grace,
		PollInterval: 50 * time.Millisecond,
		Stdout:       io.Discard,
		Stderr:       io.Discard,
	}
	s := New(cfg, quietLogger())
	s.signals = make(chan os.Signal, 4)
	mon := newTestMonitor()
	s.SetMonitor(mon)
	return s, mon
}

// waitForFile polls until path exists or the deadline passes
func waitForFile(t *testing.T, path string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("file %s did not appear within %v", path, timeout)
}

func TestRunExitCodePropagation(t *testing.T) {
	for _, code := range []int{0, 3, 7} {
		s, mon := newShellSupervisor(t, fmt.Sprintf("exit %d", code), time.Second)
		got, err := s.Run(context.Background())
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
		if got != code {
			t.Errorf("expected exit code %d, got %d", code, got)
		}
		if mon.exitCode != code {
			t.Errorf("monitor saw exit code %d, want %d", mon.exitCode, code)
		}
	}
}

func TestRunSignalDeathTranslation(t *testing.T) {
	// Child kills itself with SIGTERM; no supervisor involvement
	s, _ := newShellSupervisor(t, "kill -TERM $$", time.Second)
	got, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	want := 128 + int(syscall.SIGTERM)
	if got != want {
		t.Errorf("expected %d (128+SIGTERM), got %d", want, got)
	}
}

func TestRunSpawnFailure(t *testing.T) {
	cfg := LaunchConfig{
		Python: filepath.Join(t.TempDir(), "no-such-python"),
		Args:   []string{"-c", "exit 0"},
	}
	s := New(cfg, quietLogger())
	_, err := s.Run(context.Background())
	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("expected SpawnError, got %v", err)
	}
}

func TestRunEnvOverlayForcesNoSupervise(t *testing.T) {
	// The ambient environment must not be able to suppress the flag
	t.Setenv(EnvNoSupervise, "0")

	s, _ := newShellSupervisor(t, `test "$MLXK2_NO_SUPERVISE" = "1"`, time.Second)
	got, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got != 0 {
		t.Errorf("child did not see %s=1 (exit %d)", EnvNoSupervise, got)
	}
}

func TestRunGracefulStopHonoredByChild(t *testing.T) {
	// A well-behaved child intercepts the stop and exits on its own
	s, mon := newShellSupervisor(t, `trap 'exit 42' INT; while :; do sleep 0.1; done`, 5*time.Second)

	done := make(chan int, 1)
	go func() {
		code, _ := s.Run(context.Background())
		done <- code
	}()

	<-mon.started
	time.Sleep(200 * time.Millisecond) // let the trap install
	s.signals <- os.Interrupt

	select {
	case code := <-done:
		if code != 42 {
			t.Errorf("expected trap exit code 42, got %d", code)
		}
		if mon.escalationCount() != 0 {
			t.Errorf("graceful stop should not escalate, got %d escalations", mon.escalationCount())
		}
	case <-time.After(10 * time.Second):
		t.Fatal("supervisor did not return after graceful stop")
	}
}

func TestRunGracePeriodEscalation(t *testing.T) {
	// Child ignores the graceful stop; forced kill must come no earlier
	// than the grace period and not much later.
	ready := filepath.Join(t.TempDir(), "ready")
	script := fmt.Sprintf(`trap '' TERM INT; : > %q; while :; do sleep 0.1; done`, ready)
	grace := 500 * time.Millisecond
	s, mon := newShellSupervisor(t, script, grace)

	done := make(chan int, 1)
	go func() {
		code, _ := s.Run(context.Background())
		done <- code
	}()

	<-mon.started
	waitForFile(t, ready, 5*time.Second)

	start := time.Now()
	s.signals <- syscall.SIGTERM

	select {
	case code := <-done:
		elapsed := time.Since(start)
		want := 128 + int(syscall.SIGKILL)
		if code != want {
			t.Errorf("expected %d (128+SIGKILL), got %d", want, code)
		}
		if elapsed < grace {
			t.Errorf("forced kill fired after %v, before the %v grace period", elapsed, grace)
		}
		if elapsed > grace+2*time.Second {
			t.Errorf("forced kill took %v, expected close to %v", elapsed, grace)
		}
		if mon.escalationCount() != 1 {
			t.Errorf("expected exactly one escalation, got %d", mon.escalationCount())
		}
	case <-time.After(30 * time.Second):
		t.Fatal("supervisor did not return; child was never killed")
	}
}

func TestRunSecondSignalFastPath(t *testing.T) {
	ready := filepath.Join(t.TempDir(), "ready")
	script := fmt.Sprintf(`trap '' TERM INT; : > %q; while :; do sleep 0.1; done`, ready)
	grace := 10 * time.Second
	s, mon := newShellSupervisor(t, script, grace)

	done := make(chan int, 1)
	go func() {
		code, _ := s.Run(context.Background())
		done <- code
	}()

	<-mon.started
	waitForFile(t, ready, 5*time.Second)

	start := time.Now()
	s.signals <- syscall.SIGTERM
	s.signals <- syscall.SIGTERM

	select {
	case code := <-done:
		elapsed := time.Since(start)
		want := 128 + int(syscall.SIGKILL)
		if code != want {
			t.Errorf("expected %d (128+SIGKILL), got %d", want, code)
		}
		// Materially less than the grace period
		if elapsed > grace/2 {
			t.Errorf("second signal took %v to escalate, grace period is %v", elapsed, grace)
		}
		if mon.escalationCount() != 1 {
			t.Errorf("expected exactly one escalation, got %d", mon.escalationCount())
		}
	case <-time.After(30 * time.Second):
		t.Fatal("supervisor did not return after second signal")
	}
}

func TestRunRepeatedSignalsSingleKill(t *testing.T) {
	ready := filepath.Join(t.TempDir(), "ready")
	script := fmt.Sprintf(`trap '' TERM INT; : > %q; while :; do sleep 0.1; done`, ready)
	s, mon := newShellSupervisor(t, script, 10*time.Second)

	done := make(chan int, 1)
	go func() {
		code, _ := s.Run(context.Background())
		done <- code
	}()

	<-mon.started
	waitForFile(t, ready, 5*time.Second)

	s.signals <- syscall.SIGTERM
	s.signals <- syscall.SIGTERM
	s.signals <- syscall.SIGTERM
	s.signals <- os.Interrupt

	select {
	case <-done:
		if mon.escalationCount() != 1 {
			t.Errorf("debounce failed: %d escalations for 4 signals", mon.escalationCount())
		}
	case <-time.After(30 * time.Second):
		t.Fatal("supervisor did not return")
	}
}

func TestRunContextCancelStopsChild(t *testing.T) {
	s, mon := newShellSupervisor(t, "sleep 30", 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	go func() {
		code, _ := s.Run(ctx)
		done <- code
	}()

	<-mon.started
	time.Sleep(100 * time.Millisecond)
	start := time.Now()
	cancel()

	select {
	case code := <-done:
		want := 128 + int(syscall.SIGTERM)
		if code != want {
			t.Errorf("expected %d (128+SIGTERM), got %d", want, code)
		}
		if elapsed := time.Since(start); elapsed > 3*time.Second {
			t.Errorf("context cancel took %v to stop the child", elapsed)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("supervisor did not return after context cancel")
	}
}

func TestRunNoOrphanedGrandchildren(t *testing.T) {
	// The grandchild shares the child's process group, so the forced kill
	// must take it down too.
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "grandchild.pid")
	script := fmt.Sprintf(`trap '' TERM INT; sleep 30 & echo $! > %q; wait`, pidFile)
	s, mon := newShellSupervisor(t, script, 300*time.Millisecond)

	done := make(chan int, 1)
	go func() {
		code, _ := s.Run(context.Background())
		done <- code
	}()

	<-mon.started
	waitForFile(t, pidFile, 5*time.Second)
	gpid, err := ReadPIDFile(pidFile)
	if err != nil {
		t.Fatalf("failed to read grandchild pid: %v", err)
	}

	s.signals <- syscall.SIGTERM
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("supervisor did not return")
	}

	// The grandchild may linger as a zombie until init reaps it
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if err := syscall.Kill(gpid, 0); err == syscall.ESRCH {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Errorf("grandchild PID %d still exists after supervisor exit", gpid)
}

func TestRunWritesAndRemovesPIDFile(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "launcher.pid")
	cfg := LaunchConfig{
		Python:  "/bin/sh",
		Args:    []string{"-c", fmt.Sprintf(`cat %q`, pidFile)},
		PIDFile: pidFile,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	s := New(cfg, quietLogger())
	mon := newTestMonitor()
	s.SetMonitor(mon)

	code, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	// The child read the pidfile, so it existed during the session and
	// held the launcher's own PID, not the child's.
	if code != 0 {
		t.Errorf("child could not read pidfile during session (exit %d)", code)
	}
	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Errorf("pidfile was not removed after the session")
	}
}
