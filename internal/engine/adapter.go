package engine

import (
	"context"

	"github.com/imamik/clusterforge/internal/chart"
	"github.com/imamik/clusterforge/internal/executor"
	"github.com/imamik/clusterforge/internal/tooldrivers/helmdriver"
)

// helmExecutorAdapter narrows *helmdriver.Driver's UpgradeInstall (which
// returns the installed *release.Release for callers that inspect
// revision metadata) down to the error-only signature
// internal/executor.HelmDriver declares — the level executor never needs
// the release value, only success/failure.
type helmExecutorAdapter struct {
	driver *helmdriver.Driver
}

// NewHelmAdapter wraps driver so it satisfies internal/executor.HelmDriver,
// for assigning to Engine.Helm.
func NewHelmAdapter(driver *helmdriver.Driver) executor.HelmDriver {
	return &helmExecutorAdapter{driver: driver}
}

func (a *helmExecutorAdapter) UpgradeInstall(ctx context.Context, workspaceRoot string, r chart.Release) error {
	_, err := a.driver.UpgradeInstall(ctx, workspaceRoot, r)
	return err
}

func (a *helmExecutorAdapter) Uninstall(ctx context.Context, namespace, name string) error {
	return a.driver.Uninstall(ctx, namespace, name)
}
