package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/spf13/cobra"

	"github.com/mzau/mlxk-launcher/pkg/supervisor"
)

var statusPIDFile string

// sessionStatus is the JSON shape for `status --output json`
type sessionStatus struct {
	PID           int32   `json:"pid"`
	Name          string  `json:"name"`
	Role          string  `json:"role"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryRSS     uint64  `json:"memory_rss_bytes"`
	Cmdline       string  `json:"cmdline,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running launcher session",
	Long: `Status reads the session pidfile and reports the launcher process and its
server child (PID, uptime, cpu, memory). Fails when no session is running.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusPIDFile, "pidfile", "", "pidfile to read (default $HOME/.mlxk/launcher.pid)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	pidFile := statusPIDFile
	if pidFile == "" {
		pidFile = DefaultPIDFile()
	}

	pid, err := supervisor.ReadPIDFile(pidFile)
	if err != nil {
		return fmt.Errorf("no running session (pidfile %s): %w", pidFile, err)
	}

	launcher, err := process.NewProcess(int32(pid))
	if err != nil {
		return fmt.Errorf("session PID %d is not running (stale pidfile %s)", pid, pidFile)
	}

	rows := []sessionStatus{describeProcess(launcher, "launcher")}
	if children, err := launcher.Children(); err == nil {
		for _, child := range children {
			rows = append(rows, describeProcess(child, "server"))
		}
	}

	if IsJSONOutput() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Role", "PID", "Name", "Uptime", "CPU %", "RSS")
	for _, row := range rows {
		table.Append(
			row.Role,
			fmt.Sprintf("%d", row.PID),
			row.Name,
			formatUptime(row.UptimeSeconds),
			fmt.Sprintf("%.1f", row.CPUPercent),
			formatBytes(row.MemoryRSS),
		)
	}
	table.Render()
	return nil
}

func describeProcess(p *process.Process, role string) sessionStatus {
	row := sessionStatus{PID: p.Pid, Role: role}
	if name, err := p.Name(); err == nil {
		row.Name = name
	}
	if created, err := p.CreateTime(); err == nil {
		row.UptimeSeconds = time.Since(time.UnixMilli(created)).Seconds()
	}
	if cpu, err := p.CPUPercent(); err == nil {
		row.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		row.MemoryRSS = mem.RSS
	}
	if cmdline, err := p.Cmdline(); err == nil {
		row.Cmdline = cmdline
	}
	return row
}

func formatUptime(seconds float64) string {
	d := time.Duration(seconds) * time.Second
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
