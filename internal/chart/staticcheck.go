package chart

import (
	"fmt"
	"os"
	"path/filepath"

	"sigs.k8s.io/yaml"
)

// Builder produces a Release for a fixed chart given a workspace root
// and cluster-variant inputs.
type Builder func(workspaceRoot string) (Release, error)

// CheckChartDirectoryExists enforces the chart-directory-existence
// invariant: the release's chart path must exist on disk.
// Intended to run as a static unit test per chart builder, not at
// runtime — a missing chart should fail CI, not a live deploy.
func CheckChartDirectoryExists(workspaceRoot string, r Release) error {
	if r.Action != ActionDeploy {
		return nil
	}
	full := filepath.Join(workspaceRoot, r.ChartPath)
	info, err := os.Stat(full)
	if err != nil {
		return fmt.Errorf("release %s: chart path %s does not exist: %w", r.Name, full, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("release %s: chart path %s is not a directory", r.Name, full)
	}
	return nil
}

// CheckValuesFileParity enforces the values-file-parity invariant:
// every key the builder sets inline via SetValues must also be declared
// somewhere in the chart's values.yaml.
func CheckValuesFileParity(workspaceRoot string, r Release) error {
	if r.Action != ActionDeploy || len(r.SetValues) == 0 {
		return nil
	}
	valuesPath := filepath.Join(workspaceRoot, r.ChartPath, "values.yaml")
	raw, err := os.ReadFile(valuesPath)
	if err != nil {
		return fmt.Errorf("release %s: reading %s: %w", r.Name, valuesPath, err)
	}
	var declared map[string]any
	if err := yaml.Unmarshal(raw, &declared); err != nil {
		return fmt.Errorf("release %s: parsing %s: %w", r.Name, valuesPath, err)
	}
	for _, sv := range r.SetValues {
		if !keyPathDeclared(declared, splitDotPath(sv.Key)) {
			return fmt.Errorf("release %s: set value %q not declared in %s", r.Name, sv.Key, valuesPath)
		}
	}
	return nil
}

func splitDotPath(key string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(key); i++ {
		if key[i] == '.' {
			parts = append(parts, key[start:i])
			start = i + 1
		}
	}
	parts = append(parts, key[start:])
	return parts
}

func keyPathDeclared(m map[string]any, path []string) bool {
	if len(path) == 0 {
		return true
	}
	v, ok := m[path[0]]
	if !ok {
		return false
	}
	if len(path) == 1 {
		return true
	}
	next, ok := v.(map[string]any)
	if !ok {
		return false
	}
	return keyPathDeclared(next, path[1:])
}
