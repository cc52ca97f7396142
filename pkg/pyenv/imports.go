package pyenv

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ImportCheck reports whether one module could be imported
type ImportCheck struct {
	Module string `json:"module"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// ServerModules are the imports the mlxk2 server needs at runtime
var ServerModules = []string{"mlxk2", "mlx", "fastapi", "uvicorn", "huggingface_hub"}

const importsProbeTemplate = `import importlib, json
results = []
for mod in %s:
    try:
        importlib.import_module(mod)
        results.append({"module": mod, "ok": True})
    except Exception as exc:
        results.append({"module": mod, "ok": False, "error": str(exc)})
print(json.dumps(results))`

// CheckImports tries to import each module and reports per-module health.
// A failed import is a result, not an error; the error return covers probe
// execution failures only.
func CheckImports(ctx context.Context, python string, modules []string) ([]ImportCheck, error) {
	if len(modules) == 0 {
		modules = ServerModules
	}

	quoted := make([]string, len(modules))
	for i, m := range modules {
		quoted[i] = fmt.Sprintf("%q", m)
	}
	code := fmt.Sprintf(importsProbeTemplate, "["+strings.Join(quoted, ", ")+"]")

	out, err := runProbe(ctx, python, code)
	if err != nil {
		return nil, err
	}
	var checks []ImportCheck
	if err := json.Unmarshal(out, &checks); err != nil {
		return nil, fmt.Errorf("unexpected import check output: %w", err)
	}
	return checks, nil
}

// AllHealthy reports whether every check passed
func AllHealthy(checks []ImportCheck) bool {
	for _, c := range checks {
		if !c.OK {
			return false
		}
	}
	return len(checks) > 0
}
