package workload

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/clusterforge/internal/chart"
	"github.com/imamik/clusterforge/internal/eventlog"
	"github.com/imamik/clusterforge/internal/request"
)

type fakeRegistry struct {
	mu       sync.Mutex
	existing map[string]bool
	deleted  []string
}

func (f *fakeRegistry) ImageExists(ctx context.Context, imageRef string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.existing[imageRef], nil
}

func (f *fakeRegistry) DeleteRepository(ctx context.Context, imageRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, imageRef)
	return nil
}

type fakeBuild struct {
	builds []BuildRequest
}

func (f *fakeBuild) Build(ctx context.Context, req BuildRequest) error {
	f.builds = append(f.builds, req)
	return nil
}

type fakeHelm struct {
	mu          sync.Mutex
	installed   []string
	uninstalled []string
}

func (f *fakeHelm) UpgradeInstall(ctx context.Context, workspaceRoot string, r chart.Release) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.installed = append(f.installed, r.Name)
	return nil
}

func (f *fakeHelm) Uninstall(ctx context.Context, namespace, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uninstalled = append(f.uninstalled, name)
	return nil
}

func threeAppsThreeDatabasesEnv() request.EnvironmentRequest {
	app := func(id string) request.Application {
		return request.Application{
			LongID: id,
			Name:   id,
			GitURL: "https://example.com/" + id + ".git",
			Commit: "0000000000000000000000000000000000000" + id[len(id)-1:],
			Resources: request.ResourceSizing{CPUMilli: 100, MemoryMiB: 128},
		}
	}
	db := func(id string) request.Database {
		return request.Database{
			LongID:      id,
			Name:        id,
			Kind:        "postgresql",
			Mode:        request.DatabaseModeContainer,
			Resources:   request.ResourceSizing{CPUMilli: 200, MemoryMiB: 512},
			DiskSizeGiB: 10,
		}
	}
	return request.EnvironmentRequest{
		Namespace:    "ns",
		Applications: []request.Application{app("app-1"), app("app-2"), app("app-3")},
		Databases:    []request.Database{db("db-1"), db("db-2"), db("db-3")},
	}
}

func TestPipeline_Deploy_ThreeAppsThreeDatabases(t *testing.T) {
	env := threeAppsThreeDatabasesEnv()
	reg := &fakeRegistry{existing: map[string]bool{}}
	helm := &fakeHelm{}

	p := Pipeline{
		Namespace:          "ns",
		SharedRegistryBase: "registry.example.com/clusterforge",
		Registry:           reg,
		Build:              &fakeBuild{},
		Helm:               helm,
		Sink:               eventlog.NopSink{},
	}

	result, err := p.Deploy(context.Background(), env)
	require.NoError(t, err)
	assert.Len(t, result.Completed, 6)
	assert.Len(t, helm.installed, 6)
}

func TestPipeline_Plan_LevelsDatabasesBeforeApplications(t *testing.T) {
	env := threeAppsThreeDatabasesEnv()
	images := map[string]string{"app-1": "x:1", "app-2": "x:2", "app-3": "x:3"}

	p := Pipeline{Namespace: "ns"}
	levels, err := p.Plan(env, images)
	require.NoError(t, err)
	require.Len(t, levels, 2)
	assert.Len(t, levels[0], 3, "databases come first")
	assert.Len(t, levels[1], 3, "applications follow databases")
}

func TestPipeline_Plan_MissingImageErrors(t *testing.T) {
	env := request.EnvironmentRequest{
		Applications: []request.Application{{LongID: "app-1"}},
	}
	p := Pipeline{Namespace: "ns"}
	_, err := p.Plan(env, map[string]string{})
	assert.Error(t, err)
}

func TestPipeline_ResolveImages_ReusesExistingImage(t *testing.T) {
	app := request.Application{
		LongID: "app-1",
		GitURL: "https://example.com/app.git",
		Commit: "0123456789012345678901234567890123456789",
	}
	imageRef := ImageRefFor("registry.example.com/clusterforge", app)
	reg := &fakeRegistry{existing: map[string]bool{imageRef: true}}
	build := &fakeBuild{}

	p := Pipeline{SharedRegistryBase: "registry.example.com/clusterforge", Registry: reg, Build: build}
	images, err := p.ResolveImages(context.Background(), request.EnvironmentRequest{Applications: []request.Application{app}})
	require.NoError(t, err)
	assert.Equal(t, imageRef, images["app-1"])
	assert.Empty(t, build.builds, "no build should run when the image already exists")
}

func TestPipeline_Delete_ReversesLevelsAndCleansUpUnusedImages(t *testing.T) {
	env := threeAppsThreeDatabasesEnv()
	images := map[string]string{"app-1": "img-1", "app-2": "img-2", "app-3": "img-3"}
	reg := &fakeRegistry{existing: map[string]bool{}}
	helm := &fakeHelm{}

	p := Pipeline{
		Namespace: "ns",
		Registry:  reg,
		Helm:      helm,
		Sink:      eventlog.NopSink{},
		ImageInUseElsewhere: func(imageRef string) bool {
			return imageRef == "img-2"
		},
	}

	_, err := p.Delete(context.Background(), env, images)
	require.NoError(t, err)
	assert.Len(t, helm.uninstalled, 6)
	assert.ElementsMatch(t, []string{"img-1", "img-3"}, reg.deleted, "img-2 is still in use elsewhere")
}

func TestPipeline_Delete_NilImageInUseElsewhereSkipsCleanup(t *testing.T) {
	env := threeAppsThreeDatabasesEnv()
	images := map[string]string{"app-1": "img-1", "app-2": "img-2", "app-3": "img-3"}
	reg := &fakeRegistry{existing: map[string]bool{}}
	helm := &fakeHelm{}

	p := Pipeline{Namespace: "ns", Registry: reg, Helm: helm, Sink: eventlog.NopSink{}}
	_, err := p.Delete(context.Background(), env, images)
	require.NoError(t, err)
	assert.Empty(t, reg.deleted)
}
