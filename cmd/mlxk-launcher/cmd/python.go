package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/mzau/mlxk-launcher/pkg/pyenv"
)

// pythonCmd represents the python command
var pythonCmd = &cobra.Command{
	Use:   "python",
	Short: "Inspect the Python environment",
	Long:  `Read-only diagnostics for the Python interpreter the server runs in. These run before a server session, never during one.`,
}

var pythonInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the interpreter summary",
	Long:  `Resolves the interpreter (flag, MLXK_PYTHON, bundled runtime, PATH) and prints its version, executable, prefix and platform.`,
	RunE:  runPythonInfo,
}

var pythonPackagesCmd = &cobra.Command{
	Use:   "packages",
	Short: "List installed Python distributions",
	RunE:  runPythonPackages,
}

func init() {
	rootCmd.AddCommand(pythonCmd)
	pythonCmd.AddCommand(pythonInfoCmd)
	pythonCmd.AddCommand(pythonPackagesCmd)
}

func probeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func runPythonInfo(cmd *cobra.Command, args []string) error {
	python, err := pyenv.FindInterpreter(pythonPath)
	if err != nil {
		return err
	}

	ctx, cancel := probeContext()
	defer cancel()

	info, err := pyenv.Probe(ctx, python)
	if err != nil {
		return fmt.Errorf("failed to probe interpreter: %w", err)
	}

	if IsJSONOutput() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Field", "Value")
	table.Append("Version", info.Version)
	table.Append("Implementation", info.Implementation)
	table.Append("Executable", info.Executable)
	table.Append("Prefix", info.Prefix)
	table.Append("Platform", info.Platform)
	table.Render()
	return nil
}

func runPythonPackages(cmd *cobra.Command, args []string) error {
	python, err := pyenv.FindInterpreter(pythonPath)
	if err != nil {
		return err
	}

	ctx, cancel := probeContext()
	defer cancel()

	packages, err := pyenv.Packages(ctx, python)
	if err != nil {
		return fmt.Errorf("failed to list packages: %w", err)
	}

	if IsJSONOutput() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(packages)
	}

	if len(packages) == 0 {
		fmt.Println("No packages installed")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Package", "Version")
	for _, pkg := range packages {
		table.Append(pkg.Name, pkg.Version)
	}
	table.Render()
	fmt.Printf("\nTotal packages: %d\n", len(packages))
	return nil
}
