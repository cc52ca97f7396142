package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mzau/mlxk-launcher/pkg/logging"
	"github.com/mzau/mlxk-launcher/pkg/pyenv"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration inspection",
}

// effectiveConfig is the resolved launcher configuration as shown to the user
type effectiveConfig struct {
	Python   string `json:"python" yaml:"python"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	PIDFile  string `json:"pidfile" yaml:"pidfile"`
	LogDir   string `json:"log_dir" yaml:"log_dir"`
	LogLevel string `json:"log_level" yaml:"log_level"`
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long:  `Prints the configuration after merging flags, the config file and MLXK_* environment variables.`,
	RunE:  runConfigShow,
}

var configLogrotateCmd = &cobra.Command{
	Use:   "logrotate",
	Short: "Generate a logrotate config for launcher logs",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(logging.GenerateLogrotateConfig(logging.LogDir()))
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configLogrotateCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	python, err := pyenv.FindInterpreter(pythonPath)
	if err != nil {
		// Still show the rest of the config when no interpreter is found
		python = fmt.Sprintf("(unresolved: %v)", err)
	}

	host := viper.GetString("host")
	if host == "" {
		host = "127.0.0.1"
	}
	port := viper.GetInt("port")
	if port == 0 {
		port = 8000
	}

	cfg := effectiveConfig{
		Python:   python,
		Host:     host,
		Port:     port,
		PIDFile:  DefaultPIDFile(),
		LogDir:   logging.LogDir(),
		LogLevel: logLevel,
	}

	if IsJSONOutput() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Print(string(out))
	return nil
}
