package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mzau/mlxk-launcher/pkg/logging"
	"github.com/mzau/mlxk-launcher/pkg/pyenv"
	"github.com/mzau/mlxk-launcher/pkg/retry"
	"github.com/mzau/mlxk-launcher/pkg/shutdown"
	"github.com/mzau/mlxk-launcher/pkg/status"
	"github.com/mzau/mlxk-launcher/pkg/supervisor"
)

var (
	serveHost       string
	servePort       int
	serveMaxTokens  int
	serveWorkDir    string
	serveGrace      time.Duration
	servePoll       time.Duration
	servePIDFile    string
	serveStatusAddr string
	serveWaitReady  bool
	serveJSONLogs   bool
	serverLogLevel  string
)

var serveCmd = &cobra.Command{
	Use:   "serve [flags] [-- extra server args...]",
	Short: "Run the mlxk2 server under supervision",
	Long: `Serve spawns the Python mlxk2 server as a single supervised child in its
own process group and blocks until it terminates. The launcher stays the
stable parent PID for the whole session.

SIGINT/SIGTERM are forwarded to the child's process group as a graceful
stop. If the child has not exited when the grace period runs out, or a
second signal arrives first, the group is killed forcefully (exactly once).
The launcher's exit code mirrors the child's: its exit code on a normal
exit, 128+signal when it died from a signal.

Example:
  mlxk-launcher serve --port 8000
  mlxk-launcher serve --host 0.0.0.0 --port 8000 --max-tokens 4096
  mlxk-launcher serve --status-addr 127.0.0.1:11438 -- --extra-server-flag`,
}

func init() {
	// Assigned here instead of in the literal to avoid an initialization
	// cycle: runServe reaches back to serveCmd via buildLaunchConfig.
	serveCmd.RunE = runServe
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "server bind host")
	serveCmd.Flags().IntVar(&servePort, "port", 8000, "server bind port")
	serveCmd.Flags().IntVar(&serveMaxTokens, "max-tokens", 0, "server token limit (0 = server default)")
	serveCmd.Flags().StringVar(&serverLogLevel, "server-log-level", "", "log level forwarded to the server child")
	serveCmd.Flags().StringVar(&serveWorkDir, "workdir", "", "working directory for the server child")
	serveCmd.Flags().DurationVar(&serveGrace, "grace-period", supervisor.DefaultGracePeriod, "how long the child gets to stop before SIGKILL")
	serveCmd.Flags().DurationVar(&servePoll, "poll-interval", supervisor.DefaultPollInterval, "signal poll interval during the grace period")
	serveCmd.Flags().StringVar(&servePIDFile, "pidfile", "", "pidfile for the launcher PID (default $HOME/.mlxk/launcher.pid)")
	serveCmd.Flags().StringVar(&serveStatusAddr, "status-addr", "", "optional localhost address for /healthz and /metrics")
	serveCmd.Flags().BoolVar(&serveWaitReady, "wait-ready", false, "probe the server's /health endpoint after spawn and log readiness")
	serveCmd.Flags().BoolVar(&serveJSONLogs, "json-logs", false, "write launcher logs as JSON lines")
}

// buildLaunchConfig resolves the launch configuration from flags, config
// file and environment. Called once; the result is immutable afterwards.
func buildLaunchConfig(python string, extraArgs []string) supervisor.LaunchConfig {
	host := serveHost
	if !serveCmd.Flags().Changed("host") && viper.GetString("host") != "" {
		host = viper.GetString("host")
	}
	port := servePort
	if !serveCmd.Flags().Changed("port") && viper.GetInt("port") != 0 {
		port = viper.GetInt("port")
	}
	pidFile := servePIDFile
	if pidFile == "" {
		pidFile = DefaultPIDFile()
	}

	return supervisor.LaunchConfig{
		Python:       python,
		Host:         host,
		Port:         port,
		MaxTokens:    serveMaxTokens,
		LogLevel:     serverLogLevel,
		ExtraArgs:    extraArgs,
		WorkDir:      serveWorkDir,
		GracePeriod:  serveGrace,
		PollInterval: servePoll,
		PIDFile:      pidFile,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := logging.NewSessionLogger("launcher", logging.ParseLevel(logLevel), serveJSONLogs)
	if err != nil {
		logger = logging.NewLogger(logging.ParseLevel(logLevel), serveJSONLogs)
		logger.Warn(fmt.Sprintf("File logging unavailable: %v", err))
	}
	defer logger.Close()

	python, err := pyenv.FindInterpreter(pythonPath)
	if err != nil {
		return err
	}

	cfg := buildLaunchConfig(python, args)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup := supervisor.New(cfg, logger)
	sd := shutdown.New(5 * time.Second)

	if serveStatusAddr != "" {
		exporter := status.NewExporter()
		sup.SetMonitor(exporter)
		exporter.StartSampling(ctx, 5*time.Second)

		server := status.NewServer(serveStatusAddr, exporter, logger)
		if err := server.Start(); err != nil {
			return err
		}
		sd.Register(server.Shutdown)
	}

	if serveWaitReady {
		go probeReady(ctx, cfg.Host, cfg.Port, logger)
	}

	code, runErr := sup.Run(ctx)

	cancel()
	for _, err := range sd.Shutdown() {
		logger.Warn(fmt.Sprintf("Teardown error: %v", err))
	}

	if runErr != nil {
		var spawnErr *supervisor.SpawnError
		if errors.As(runErr, &spawnErr) {
			return fmt.Errorf("could not start server: %w", spawnErr)
		}
		return runErr
	}

	logger.Close()
	os.Exit(code)
	return nil
}

// probeReady polls the server's health endpoint until it answers, so the
// session log records when the server actually came up.
func probeReady(ctx context.Context, host string, port int, logger *logging.Logger) {
	url := fmt.Sprintf("http://%s:%d/health", host, port)
	client := &http.Client{Timeout: 2 * time.Second}

	cfg := retry.Config{
		MaxRetries:     30,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Multiplier:     1.5,
	}
	start := time.Now()
	err := retry.Do(ctx, cfg, func() error {
		resp, err := client.Get(url)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("server not ready: %s", resp.Status)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn(fmt.Sprintf("Server readiness probe gave up: %v", err))
		}
		return
	}
	logger.Info(fmt.Sprintf("Server ready on %s after %.1fs", url, time.Since(start).Seconds()))
}
