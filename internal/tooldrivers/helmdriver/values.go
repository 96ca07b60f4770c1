package helmdriver

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	"helm.sh/helm/v3/pkg/strvals"
	"sigs.k8s.io/yaml"

	"github.com/imamik/clusterforge/internal/chart"
)

// resolveValues composes a release's final values map from its
// ValuesFiles (lowest precedence), SetValues (string or JSON-typed,
// applied in order), and Overrides (generated-yaml, merged last).
func resolveValues(workspaceRoot string, r chart.Release) (map[string]any, error) {
	base := map[string]any{}

	for _, vf := range r.ValuesFiles {
		raw, err := os.ReadFile(vf)
		if err != nil {
			return nil, fmt.Errorf("helmdriver: reading values file %s: %w", vf, err)
		}
		var layer map[string]any
		if err := yaml.Unmarshal(raw, &layer); err != nil {
			return nil, fmt.Errorf("helmdriver: parsing values file %s: %w", vf, err)
		}
		if err := mergo.Merge(&base, layer, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("helmdriver: merging values file %s: %w", vf, err)
		}
	}

	for _, sv := range r.SetValues {
		if sv.IsJSON {
			if err := strvals.ParseJSON(fmt.Sprintf("%s=%s", sv.Key, sv.Value), base); err != nil {
				return nil, fmt.Errorf("helmdriver: parsing set-json value %q: %w", sv.Key, err)
			}
			continue
		}
		if err := strvals.ParseInto(fmt.Sprintf("%s=%s", sv.Key, sv.Value), base); err != nil {
			return nil, fmt.Errorf("helmdriver: parsing set value %q: %w", sv.Key, err)
		}
	}

	if len(r.Overrides) > 0 {
		if err := mergo.Merge(&base, map[string]any(r.Overrides), mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("helmdriver: merging generated overrides: %w", err)
		}
	}

	return base, nil
}
