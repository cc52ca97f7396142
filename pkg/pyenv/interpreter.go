// Package pyenv inspects the Python environment the mlxk2 server runs in:
// interpreter discovery, version/platform summary, installed distributions
// and import health. All probes are read-only and run before a server
// session starts, never while one is active.
package pyenv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// EnvInterpreter overrides interpreter discovery
const EnvInterpreter = "MLXK_PYTHON"

// Info summarizes an interpreter
type Info struct {
	Version        string `json:"version"`
	Executable     string `json:"executable"`
	Prefix         string `json:"prefix"`
	Platform       string `json:"platform"`
	Implementation string `json:"implementation"`
}

// FindInterpreter resolves the interpreter to use. Resolution order:
// explicit path, MLXK_PYTHON, the runtime bundled next to the launcher
// (desktop app layout), then PATH.
func FindInterpreter(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("configured interpreter %s: %w", explicit, err)
		}
		return explicit, nil
	}

	if env := os.Getenv(EnvInterpreter); env != "" {
		if _, err := os.Stat(env); err != nil {
			return "", fmt.Errorf("%s=%s: %w", EnvInterpreter, env, err)
		}
		return env, nil
	}

	if bundled := bundledInterpreter(); bundled != "" {
		return bundled, nil
	}

	for _, name := range []string{"python3", "python"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no python interpreter found (set %s or install python3)", EnvInterpreter)
}

// bundledInterpreter looks for a runtime shipped alongside the launcher
// binary. In the macOS app bundle the launcher sits in Contents/MacOS and
// the runtime in Contents/Resources/python.
func bundledInterpreter() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	dir := filepath.Dir(exe)

	candidates := []string{
		filepath.Join(dir, "..", "Resources", "python", "bin", "python3"),
		filepath.Join(dir, "python", "bin", "python3"),
	}
	if runtime.GOOS == "windows" {
		candidates = []string{filepath.Join(dir, "python", "python.exe")}
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}

const infoProbe = `import json, platform, sys
print(json.dumps({
    "version": platform.python_version(),
    "executable": sys.executable,
    "prefix": sys.prefix,
    "platform": platform.platform(),
    "implementation": platform.python_implementation(),
}))`

// Probe runs the interpreter and returns its summary
func Probe(ctx context.Context, python string) (*Info, error) {
	out, err := runProbe(ctx, python, infoProbe)
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("unexpected interpreter output: %w", err)
	}
	return &info, nil
}

// runProbe executes `python -c code` and returns stdout
func runProbe(ctx context.Context, python, code string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, python, "-c", code)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := bytes.TrimSpace(stderr.Bytes())
		if len(msg) > 0 {
			return nil, fmt.Errorf("interpreter probe failed: %v: %s", err, msg)
		}
		return nil, fmt.Errorf("interpreter probe failed: %w", err)
	}
	return bytes.TrimSpace(stdout.Bytes()), nil
}
