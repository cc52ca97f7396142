package logging

import "fmt"

// GenerateLogrotateConfig creates a logrotate configuration for launcher logs
// on Linux hosts where the launcher runs outside the app bundle.
func GenerateLogrotateConfig(logDir string) string {
	return fmt.Sprintf(`# Logrotate configuration for mlxk-launcher
# Install: sudo cp this file to /etc/logrotate.d/mlxk-launcher

%s/*.log {
    # Rotate daily
    daily

    # Keep 7 days of logs
    rotate 7

    # Compress old logs
    compress
    delaycompress

    # Don't error if log is missing
    missingok

    # Don't rotate empty logs
    notifempty

    # Create new log with these permissions
    create 0644
}
`, logDir)
}
