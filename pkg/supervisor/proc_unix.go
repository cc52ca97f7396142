//go:build !windows

package supervisor

import (
	"os"
	"os/exec"
	"syscall"
)

// terminationSignals lists the signals that begin a graceful shutdown.
// SIGTERM is what process managers (launchd, systemd) send; SIGHUP covers
// terminal hangups when the launcher runs from a shell.
func terminationSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP}
}

// setProcessGroup puts the child in its own process group so group signals
// reach the interpreter and everything it forks.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// gracefulSignal maps the triggering signal to the stop signal forwarded to
// the child: Ctrl-C stays SIGINT, everything else becomes SIGTERM.
func gracefulSignal(trigger os.Signal) os.Signal {
	if trigger == os.Interrupt || trigger == syscall.SIGINT {
		return syscall.SIGINT
	}
	return syscall.SIGTERM
}

// signalGroup delivers sig to the child's process group
func signalGroup(cmd *exec.Cmd, sig os.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	s, ok := sig.(syscall.Signal)
	if !ok {
		s = syscall.SIGTERM
	}
	if pgid, err := syscall.Getpgid(cmd.Process.Pid); err == nil {
		// Negative PID targets the process group
		return syscall.Kill(-pgid, s)
	}
	return cmd.Process.Signal(sig)
}

// killProcessGroup sends the uninterceptable kill to the whole group
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if pgid, err := syscall.Getpgid(cmd.Process.Pid); err == nil {
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
		return
	}
	_ = cmd.Process.Kill()
}

// exitCodeFromState translates the reaped child state into the session exit
// code: the child's own code on a normal exit, 128+signal when it was killed
// by one.
func exitCodeFromState(ps *os.ProcessState) int {
	if ps == nil {
		return -1
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok {
		if ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return ws.ExitStatus()
	}
	return ps.ExitCode()
}
