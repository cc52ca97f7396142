//go:build windows

package supervisor

import (
	"os"
	"os/exec"
	"syscall"
)

// terminationSignals lists the signals that begin a graceful shutdown.
// Windows has no SIGTERM; the Go runtime maps CTRL_BREAK_EVENT and
// console-close events to os.Interrupt.
func terminationSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// setProcessGroup starts the child in a new console process group
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// gracefulSignal maps any trigger to os.Interrupt; there is no SIGTERM
// equivalent the child could intercept.
func gracefulSignal(trigger os.Signal) os.Signal {
	return os.Interrupt
}

// signalGroup delivers the graceful stop to the child. Signal delivery to
// other processes is limited on Windows; failure here is tolerated and the
// grace period simply runs out.
func signalGroup(cmd *exec.Cmd, sig os.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Signal(sig)
}

// killProcessGroup terminates the child unconditionally
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}

// exitCodeFromState translates the reaped child state into the session exit
// code.
func exitCodeFromState(ps *os.ProcessState) int {
	if ps == nil {
		return -1
	}
	return ps.ExitCode()
}
