package helmdriver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/clusterforge/internal/chart"
)

func TestResolveValues_PrecedenceOrder(t *testing.T) {
	dir := t.TempDir()
	valuesFile := filepath.Join(dir, "values-override.yaml")
	require.NoError(t, os.WriteFile(valuesFile, []byte("replicaCount: 1\nimage:\n  tag: base\n"), 0o600))

	r := chart.Release{
		Name:        "loki",
		Namespace:   "monitoring",
		ChartPath:   "charts/loki",
		Action:      chart.ActionDeploy,
		ValuesFiles: []string{valuesFile},
		SetValues: []chart.ValueSet{
			{Key: "image.tag", Value: "v1.2.3"},
		},
		Overrides: map[string]any{
			"replicaCount": 3,
		},
	}

	vals, err := resolveValues("", r)
	require.NoError(t, err)

	assert.EqualValues(t, 3, vals["replicaCount"], "overrides win over values files")
	image, ok := vals["image"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "v1.2.3", image["tag"], "set-values win over values files")
}

func TestResolveValues_JSONSetValue(t *testing.T) {
	r := chart.Release{
		Name:      "app",
		Namespace: "default",
		ChartPath: "charts/app",
		Action:    chart.ActionDeploy,
		SetValues: []chart.ValueSet{
			{Key: "env", Value: `[{"name":"FOO","value":"bar"}]`, IsJSON: true},
		},
	}

	vals, err := resolveValues("", r)
	require.NoError(t, err)

	env, ok := vals["env"].([]any)
	require.True(t, ok)
	require.Len(t, env, 1)
	entry, ok := env[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "FOO", entry["name"])
}

func TestResolveValues_NoFilesOrSetsReturnsEmptyMap(t *testing.T) {
	r := chart.Release{Name: "x", Namespace: "ns", ChartPath: "c", Action: chart.ActionDeploy}
	vals, err := resolveValues("", r)
	require.NoError(t, err)
	assert.Empty(t, vals)
}
