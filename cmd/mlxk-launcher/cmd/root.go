package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile      string
	outputFormat string
	pythonPath   string
	logLevel     string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mlxk-launcher",
	Short: "Native launcher for the mlxk2 model server",
	Long: `mlxk-launcher is the native launcher shipped with the MLX Knife desktop
app. It supervises the Python mlxk2 server as a single child process,
forwards termination signals with bounded escalation, and provides read-only
diagnostics for the bundled Python environment.`,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mlxk/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&pythonPath, "python", "", "python interpreter path (default: MLXK_PYTHON, bundled runtime, then PATH)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table or json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "launcher log level (debug, info, warn, error)")
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(filepath.Join(home, ".mlxk"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	// Bind specific environment variables
	viper.BindEnv("python", "MLXK_PYTHON")
	viper.BindEnv("host", "MLXK_HOST")
	viper.BindEnv("port", "MLXK_PORT")
	viper.BindEnv("pidfile", "MLXK_PIDFILE")

	if err := viper.ReadInConfig(); err == nil {
		if pythonPath == "" && viper.GetString("python") != "" {
			pythonPath = viper.GetString("python")
		}
	}
}

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}

// DefaultPIDFile returns the session pidfile location used when none is
// configured
func DefaultPIDFile() string {
	if v := viper.GetString("pidfile"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "mlxk-launcher.pid")
	}
	return filepath.Join(home, ".mlxk", "launcher.pid")
}
