package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/mzau/mlxk-launcher/pkg/pyenv"
)

var doctorModules []string

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the server's Python imports work",
	Long: `Doctor imports each module the mlxk2 server needs and reports per-module
health. Exits non-zero when a required import fails, so the desktop app can
refuse to launch a session that would die on startup.

Example:
  mlxk-launcher doctor
  mlxk-launcher doctor --module mlxk2 --module mlx`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringSliceVar(&doctorModules, "module", nil, "modules to check (default: the server's import set)")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	python, err := pyenv.FindInterpreter(pythonPath)
	if err != nil {
		return err
	}

	ctx, cancel := probeContext()
	defer cancel()

	checks, err := pyenv.CheckImports(ctx, python, doctorModules)
	if err != nil {
		return fmt.Errorf("import check failed to run: %w", err)
	}

	if IsJSONOutput() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(checks); err != nil {
			return err
		}
	} else {
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Module", "Status", "Detail")
		for _, c := range checks {
			status := "OK"
			if !c.OK {
				status = "FAIL"
			}
			table.Append(c.Module, status, c.Error)
		}
		table.Render()
	}

	if !pyenv.AllHealthy(checks) {
		return fmt.Errorf("python environment is not healthy")
	}
	return nil
}
