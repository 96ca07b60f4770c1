package workload

import (
	"context"
	"fmt"

	"github.com/imamik/clusterforge/internal/chart"
	"github.com/imamik/clusterforge/internal/eventlog"
	"github.com/imamik/clusterforge/internal/executor"
	"github.com/imamik/clusterforge/internal/request"
)

// Pipeline composes one EnvironmentRequest into leveled Helm releases and
// drives their deployment/deletion through internal/executor.
// It holds no state across calls; one value is built per deploy/delete
// invocation by the caller.
type Pipeline struct {
	Namespace          string
	WorkspaceRoot      string
	SharedRegistryBase string
	Registry           RegistryClient
	Build              BuildPlatform
	Helm               executor.HelmDriver
	Sink               eventlog.Sink

	// ImageInUseElsewhere reports whether imageRef is still referenced by
	// some other environment, so Delete only asks the registry to remove
	// an image when this environment was its last consumer. The
	// pipeline itself has no cross-environment visibility;
	// a nil func is treated as "always in use", so Delete never removes
	// shared-registry images unless a caller explicitly opts in.
	ImageInUseElsewhere func(imageRef string) bool
}

// ResolveImages runs ResolveImage for every application in env, returning a
// long-ID-keyed map ready for Plan. It is a separate, I/O-bound step so
// Plan itself stays pure.
func (p Pipeline) ResolveImages(ctx context.Context, env request.EnvironmentRequest) (map[string]string, error) {
	images := make(map[string]string, len(env.Applications))
	for _, app := range env.Applications {
		imageRef, _, err := ResolveImage(ctx, p.Registry, p.Build, p.SharedRegistryBase, app)
		if err != nil {
			return nil, err
		}
		images[app.LongID] = imageRef
	}
	return images, nil
}

// Plan renders one release per service and composes them into levels
// (databases -> {applications, containers} ->
// helm-charts -> routers). images must contain one entry per entry in
// env.Applications, as produced by ResolveImages.
func (p Pipeline) Plan(env request.EnvironmentRequest, images map[string]string) ([][]chart.Release, error) {
	serviceNames := make(map[string]string, len(env.Applications)+len(env.Containers)+len(env.Databases)+len(env.HelmCharts))

	var databases []chart.Release
	for _, db := range env.Databases {
		rel, ok := BuildDatabaseRelease(p.Namespace, db)
		if !ok {
			continue // Managed database: no Helm release, provisioned via Terraform elsewhere
		}
		databases = append(databases, rel)
		serviceNames[db.LongID] = rel.Name
	}

	var appsAndContainers []chart.Release
	for _, app := range env.Applications {
		imageRef, ok := images[app.LongID]
		if !ok {
			return nil, fmt.Errorf("workload: no resolved image for application %s", app.LongID)
		}
		rel := BuildApplicationRelease(p.Namespace, app, imageRef)
		appsAndContainers = append(appsAndContainers, rel)
		serviceNames[app.LongID] = rel.Name
	}
	for _, c := range env.Containers {
		rel := BuildContainerRelease(p.Namespace, c)
		appsAndContainers = append(appsAndContainers, rel)
		serviceNames[c.LongID] = rel.Name
	}

	var helmCharts []chart.Release
	for _, hc := range env.HelmCharts {
		rel, err := BuildHelmWrapperRelease(p.Namespace, p.WorkspaceRoot, hc)
		if err != nil {
			return nil, err
		}
		helmCharts = append(helmCharts, rel)
		serviceNames[hc.LongID] = rel.Name
	}

	serviceNameOf := func(longID string) (string, bool) {
		n, ok := serviceNames[longID]
		return n, ok
	}

	var routers []chart.Release
	for _, r := range env.Routers {
		rel, err := BuildRouterRelease(p.Namespace, r, serviceNameOf)
		if err != nil {
			return nil, eventlog.New(eventlog.TagHelmChartError, "router targets an unknown or not-yet-composed service", err).WithSubkind("RouterTargetUnresolved")
		}
		routers = append(routers, rel)
	}

	var levels [][]chart.Release
	for _, lvl := range [][]chart.Release{databases, appsAndContainers, helmCharts, routers} {
		if len(lvl) > 0 {
			levels = append(levels, lvl)
		}
	}
	return levels, nil
}

// Deploy runs ResolveImages, Plan, and internal/executor.Execute in
// sequence: resolve images, render releases, compose levels, apply
// level by level.
func (p Pipeline) Deploy(ctx context.Context, env request.EnvironmentRequest) (executor.Result, error) {
	images, err := p.ResolveImages(ctx, env)
	if err != nil {
		return executor.Result{}, eventlog.New(eventlog.TagBuildError, "resolving application images", err).WithStage(eventlog.StageEnvironmentDeploy)
	}

	levels, err := p.Plan(env, images)
	if err != nil {
		return executor.Result{}, eventlog.New(eventlog.TagHelmChartError, "composing workload release levels", err).WithStage(eventlog.StageEnvironmentDeploy)
	}

	result, err := executor.Execute(ctx, p.Helm, levels, executor.Options{WorkspaceRoot: p.WorkspaceRoot, Sink: p.Sink})
	if err != nil {
		return result, eventlog.New(eventlog.TagHelmChartError, "deploying workload releases", err).WithStage(eventlog.StageEnvironmentDeploy)
	}
	return result, nil
}

// Delete tears down every release in env in reverse composition order
// (routers -> helm-charts -> {applications, containers} -> databases) and,
// for each application whose image is no longer used by any other
// environment, deletes the underlying registry image.
// images should be the same map Deploy last used to build the environment,
// so the correct image refs are looked up for cleanup.
func (p Pipeline) Delete(ctx context.Context, env request.EnvironmentRequest, images map[string]string) (executor.Result, error) {
	levels, err := p.Plan(env, images)
	if err != nil {
		return executor.Result{}, eventlog.New(eventlog.TagHelmChartError, "composing workload release levels for delete", err).WithStage(eventlog.StageEnvironmentDelete)
	}

	reversed := make([][]chart.Release, len(levels))
	for i, lvl := range levels {
		out := make([]chart.Release, len(lvl))
		for j, r := range lvl {
			r.Action = chart.ActionDestroy
			out[j] = r
		}
		reversed[len(levels)-1-i] = out
	}

	result, err := executor.Execute(ctx, p.Helm, reversed, executor.Options{WorkspaceRoot: p.WorkspaceRoot, Sink: p.Sink})
	if err != nil {
		return result, eventlog.New(eventlog.TagHelmChartError, "deleting workload releases", err).WithStage(eventlog.StageEnvironmentDelete)
	}

	p.cleanupImages(ctx, images)
	return result, nil
}

// cleanupImages deletes each image no longer referenced elsewhere. A
// registry deletion failure is swallowed to a best-
// effort log line rather than failing the whole delete: the Helm releases
// are already gone, and a leftover shared-registry image is reclaimable
// later, unlike an environment stuck mid-delete.
func (p Pipeline) cleanupImages(ctx context.Context, images map[string]string) {
	if p.Registry == nil || p.ImageInUseElsewhere == nil {
		return
	}
	for _, imageRef := range images {
		if p.ImageInUseElsewhere(imageRef) {
			continue
		}
		if err := p.Registry.DeleteRepository(ctx, imageRef); err != nil {
			if p.Sink != nil {
				p.Sink.Emit(eventlog.Event{Transmitter: "workload", Step: "image-cleanup", Message: fmt.Sprintf("could not delete unreferenced image %s: %v", imageRef, err)})
			}
		}
	}
}
