package supervisor

// Monitor receives lifecycle notifications from a supervisor session.
// Implementations must be cheap and non-blocking; calls happen on the
// supervising goroutine.
type Monitor interface {
	// ChildStarted is called once after a successful spawn
	ChildStarted(pid int)

	// SignalReceived is called for every qualifying termination signal
	SignalReceived(signal string)

	// Escalated is called at most once, when the forced kill is issued
	Escalated()

	// ChildExited is called once with the session exit code
	ChildExited(code int)
}

type nopMonitor struct{}

func (nopMonitor) ChildStarted(int)      {}
func (nopMonitor) SignalReceived(string) {}
func (nopMonitor) Escalated()            {}
func (nopMonitor) ChildExited(int)       {}
