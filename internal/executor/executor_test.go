package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/clusterforge/internal/chart"
	"github.com/imamik/clusterforge/internal/retry"
)

type fakeHelm struct {
	mu         sync.Mutex
	installed  []string
	uninstalled []string
	failOn     map[string]error
}

func (f *fakeHelm) UpgradeInstall(ctx context.Context, workspaceRoot string, r chart.Release) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err, ok := f.failOn[r.Name]; ok {
		return err
	}
	f.mu.Lock()
	f.installed = append(f.installed, r.Name)
	f.mu.Unlock()
	return nil
}

func (f *fakeHelm) Uninstall(ctx context.Context, namespace, name string) error {
	f.mu.Lock()
	f.uninstalled = append(f.uninstalled, name)
	f.mu.Unlock()
	return nil
}

func deployRelease(name string) chart.Release {
	return chart.Release{Name: name, Namespace: "ns", ChartPath: "charts/" + name, Action: chart.ActionDeploy}
}

func TestExecute_RunsLevelsInOrder(t *testing.T) {
	helm := &fakeHelm{failOn: map[string]error{}}
	levels := [][]chart.Release{
		{deployRelease("a"), deployRelease("b")},
		{deployRelease("c")},
	}

	result, err := Execute(context.Background(), helm, levels, Options{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, result.Completed)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, helm.installed)
}

func TestExecute_FatalFailureStopsLaterLevels(t *testing.T) {
	helm := &fakeHelm{failOn: map[string]error{"b": fmt.Errorf("boom")}}
	levels := [][]chart.Release{
		{deployRelease("a"), deployRelease("b")},
		{deployRelease("c")},
	}

	_, err := Execute(context.Background(), helm, levels, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "level 0 release b")
	assert.NotContains(t, helm.installed, "c")
}

func TestExecute_DestroyCallsUninstall(t *testing.T) {
	helm := &fakeHelm{}
	r := deployRelease("old")
	r.Action = chart.ActionDestroy
	levels := [][]chart.Release{{r}}

	_, err := Execute(context.Background(), helm, levels, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, helm.uninstalled)
}

func TestExecute_SkipActionDoesNothing(t *testing.T) {
	helm := &fakeHelm{}
	r := deployRelease("noop")
	r.Action = chart.ActionSkip
	r.ChartPath = ""
	levels := [][]chart.Release{{r}}

	result, err := Execute(context.Background(), helm, levels, Options{})
	require.NoError(t, err)
	assert.Empty(t, helm.installed)
	assert.Contains(t, result.Completed, "noop")
}

func TestRunInstallChecker_RetriesUntilOK(t *testing.T) {
	var attempts int32
	ic := &chart.InstallChecker{
		Describe: "pods ready",
		Check: func() (bool, bool, string) {
			n := atomic.AddInt32(&attempts, 1)
			if n < 3 {
				return false, true, "waiting for pods"
			}
			return true, false, ""
		},
	}
	policy := retry.FibonacciPolicy(1*time.Millisecond, 10*time.Millisecond, 0)
	err := runInstallChecker(context.Background(), ic, policy)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&attempts), int32(3))
}

func TestRunInstallChecker_FatalReasonStopsImmediately(t *testing.T) {
	var attempts int32
	ic := &chart.InstallChecker{
		Describe: "pods ready",
		Check: func() (bool, bool, string) {
			atomic.AddInt32(&attempts, 1)
			return false, false, "crash looping"
		},
	}
	policy := retry.FibonacciPolicy(1*time.Millisecond, 10*time.Millisecond, 0)
	err := runInstallChecker(context.Background(), ic, policy)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}
