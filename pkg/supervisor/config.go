package supervisor

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// EnvNoSupervise tells the mlxk2 entry point not to fork its own
	// supervised child. The launcher is the single supervisor; the flag is
	// one-way and always forced into the child environment.
	EnvNoSupervise = "MLXK2_NO_SUPERVISE"

	// EnvLogLevel carries the server log level into the child
	EnvLogLevel = "MLXK2_LOG_LEVEL"

	// DefaultModule is the Python module launched with -m
	DefaultModule = "mlxk2"

	// DefaultGracePeriod is how long the child gets to shut down after a
	// graceful-stop signal before SIGKILL
	DefaultGracePeriod = 5 * time.Second

	// DefaultPollInterval is how often the grace-period wait wakes up to
	// observe newly arrived signals
	DefaultPollInterval = 100 * time.Millisecond
)

// LaunchConfig holds the immutable parameters used to spawn the server
// child. It is resolved once from flags, config file and environment, and
// never mutated after the child starts.
type LaunchConfig struct {
	// Python is the interpreter executable path
	Python string

	// Module is the module run with -m (default mlxk2)
	Module string

	// Server bind parameters, forwarded as serve arguments
	Host      string
	Port      int
	MaxTokens int
	LogLevel  string

	// ExtraArgs are appended verbatim after the standard serve arguments
	ExtraArgs []string

	// Args, when set, replaces the whole argument vector. The standard
	// mlxk2 serve vector is built when it is nil.
	Args []string

	// WorkDir is the child working directory ("" = inherit)
	WorkDir string

	// Env is an additional environment overlay applied on top of the
	// ambient environment. EnvNoSupervise is forced regardless of its
	// content.
	Env map[string]string

	// GracePeriod and PollInterval control the escalation timing.
	// Zero values take the defaults.
	GracePeriod  time.Duration
	PollInterval time.Duration

	// PIDFile, when set, receives the launcher's own PID for the session
	PIDFile string

	// Child output destinations (nil = inherit the launcher's)
	Stdout io.Writer
	Stderr io.Writer
}

// Validate checks the parts of the configuration that can be checked before
// spawn. The interpreter path itself is validated by the OS at exec time.
func (c *LaunchConfig) Validate() error {
	if c.Python == "" {
		return fmt.Errorf("no python interpreter configured")
	}
	if c.Args == nil {
		if c.Port <= 0 || c.Port > 65535 {
			return fmt.Errorf("invalid port %d", c.Port)
		}
		if c.Host == "" {
			return fmt.Errorf("no bind host configured")
		}
	}
	return nil
}

// BuildArgs returns the argument vector for the child process:
//
//	-m <module> serve --host <h> --port <p> [--max-tokens <n>] [extra...]
func (c *LaunchConfig) BuildArgs() []string {
	if c.Args != nil {
		return c.Args
	}

	module := c.Module
	if module == "" {
		module = DefaultModule
	}
	args := []string{
		"-m", module, "serve",
		"--host", c.Host,
		"--port", strconv.Itoa(c.Port),
	}
	if c.MaxTokens > 0 {
		args = append(args, "--max-tokens", strconv.Itoa(c.MaxTokens))
	}
	args = append(args, c.ExtraArgs...)
	return args
}

// Environ returns the child environment: the ambient environment plus the
// configured overlay, with EnvNoSupervise forced to 1. Ambient values of
// EnvNoSupervise are stripped first so the flag cannot be suppressed.
func (c *LaunchConfig) Environ() []string {
	env := make([]string, 0, len(os.Environ())+len(c.Env)+2)
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, EnvNoSupervise+"=") {
			continue
		}
		env = append(env, kv)
	}
	for k, v := range c.Env {
		if k == EnvNoSupervise {
			continue
		}
		env = append(env, k+"="+v)
	}
	if c.LogLevel != "" {
		env = append(env, EnvLogLevel+"="+c.LogLevel)
	}
	env = append(env, EnvNoSupervise+"=1")
	return env
}

func (c *LaunchConfig) gracePeriod() time.Duration {
	if c.GracePeriod > 0 {
		return c.GracePeriod
	}
	return DefaultGracePeriod
}

func (c *LaunchConfig) pollInterval() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return DefaultPollInterval
}
