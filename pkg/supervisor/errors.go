package supervisor

import "fmt"

// SpawnError reports that the child process could not be launched at all
// (missing interpreter, permission denied, bad argument vector). It is fatal
// and never retried; no child exists when it is returned.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
