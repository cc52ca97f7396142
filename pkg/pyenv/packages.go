package pyenv

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// Package is an installed Python distribution
type Package struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

const packagesProbe = `import json
from importlib import metadata
dists = {}
for d in metadata.distributions():
    name = d.metadata.get("Name")
    if name:
        dists[name] = d.version
print(json.dumps(dists))`

// Packages lists the distributions installed in the interpreter's
// environment, sorted by name.
func Packages(ctx context.Context, python string) ([]Package, error) {
	out, err := runProbe(ctx, python, packagesProbe)
	if err != nil {
		return nil, err
	}
	var dists map[string]string
	if err := json.Unmarshal(out, &dists); err != nil {
		return nil, fmt.Errorf("unexpected package listing: %w", err)
	}

	packages := make([]Package, 0, len(dists))
	for name, version := range dists {
		packages = append(packages, Package{Name: name, Version: version})
	}
	sort.Slice(packages, func(i, j int) bool {
		return packages[i].Name < packages[j].Name
	})
	return packages, nil
}
