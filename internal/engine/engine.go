// Package engine implements the infrastructure action state machine: a
// cluster moves through Create/Update/Upgrade/Pause/Resume/Delete
// transitions, each a fixed sequence of Terraform phases, verification
// steps, and chart-level executions, with single-retry remediation
// keyed on the classified Terraform error.
package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	corev1 "k8s.io/api/core/v1"

	"github.com/imamik/clusterforge/internal/chart"
	"github.com/imamik/clusterforge/internal/cloudvariant"
	"github.com/imamik/clusterforge/internal/eventlog"
	"github.com/imamik/clusterforge/internal/executor"
	"github.com/imamik/clusterforge/internal/planner"
	"github.com/imamik/clusterforge/internal/request"
	"github.com/imamik/clusterforge/internal/retry"
	"github.com/imamik/clusterforge/internal/storage"
	"github.com/imamik/clusterforge/internal/tooldrivers/kubeclient"
	"github.com/imamik/clusterforge/internal/tooldrivers/terraform"
	"github.com/imamik/clusterforge/internal/vaultsync"
)

// TerraformDriver is the subset of *internal/tooldrivers/terraform.Driver
// the engine depends on, defined consumer-side (matching
// internal/executor.HelmDriver's pattern) so tests can supply a fake
// instead of shelling out to a real Terraform binary.
type TerraformDriver interface {
	InitValidatePlanApply(ctx context.Context, workdir string, dryRun bool, env map[string]string, validators ...terraform.Validator) error
	Import(ctx context.Context, workdir, resourceAddress, cloudID string, env map[string]string, validators ...terraform.Validator) error
	Destroy(ctx context.Context, workdir string, env map[string]string, validators ...terraform.Validator) error
	ReplaceResource(ctx context.Context, workdir, resourceAddress string, env map[string]string, validators ...terraform.Validator) error
	Output(ctx context.Context, workdir string, env map[string]string) (map[string]any, error)
}

// Engine drives one cluster through the action state machine. Every
// field is an injected collaborator; Engine itself holds no
// package-level state.
type Engine struct {
	Terraform   TerraformDriver
	Helm        executor.HelmDriver
	Kube        kubeclient.Client
	Storage     BucketPurger
	Kubeconfigs KubeconfigStore
	Vault       vaultsync.Client

	Sink eventlog.Sink

	// NodesReadyPolicy overrides the default backoff used while waiting
	// for nodes-ready verification steps.
	NodesReadyPolicy *retry.Policy
}

// BucketPurger is the subset of *internal/storage.Client the delete
// transition needs.
type BucketPurger interface {
	DeleteBucket(ctx context.Context, name string, strategy storage.DeleteStrategy) error
}

// KubeconfigStore is the subset of *internal/storage.Client used to
// persist the workspace kubeconfig to object storage after each
// successful Terraform phase.
type KubeconfigStore interface {
	CreateBucket(ctx context.Context, spec storage.BucketSpec) (storage.Bucket, error)
	PutObject(ctx context.Context, bucket, key string, data []byte, tags map[string]string) error
}

// Request bundles the inputs one transition needs: the cluster's desired
// state, its Terraform workspace directory, and the chart workspace root
// the level executor's chart paths are relative to.
type Request struct {
	Cluster       request.ClusterRequest
	Variant       cloudvariant.Variant
	WorkspaceDir  string // rendered Terraform root, <workspace>/terraform/
	ChartsRoot    string // per-cloud chart tree, <workspace>/<cloud>/
	// KubeconfigPath is where the Terraform phase writes the cluster's
	// kubeconfig, <workspace>/kubeconfig. Empty skips object-storage
	// persistence.
	KubeconfigPath string
	Env            map[string]string
	Secrets        vaultsync.ClusterSecrets
}

func (e *Engine) sink() eventlog.Sink {
	if e.Sink == nil {
		return eventlog.NopSink{}
	}
	return e.Sink
}

func (e *Engine) emit(step, message string) {
	e.sink().Emit(eventlog.Event{Transmitter: "engine", Step: step, Message: message})
}

// Create runs Absent --Create--> Bootstrapping --> Active: a minimal
// Terraform apply, a nodes-ready check, bootstrap levels 1-3, the
// full-capability Terraform apply, then the complete plan. Re-applying
// levels 1-3 in the second pass is a no-op: a byte-identical release
// upgrade leaves the installed revision untouched.
func (e *Engine) Create(ctx context.Context, req Request) (State, error) {
	e.emit("create", "starting cluster creation")

	if err := e.applyTerraform(ctx, req, "create-minimal"); err != nil {
		return StateFailed, eventlog.New(eventlog.TagTerraformError, "terraform create-minimal failed", err).WithStage(eventlog.StageInfrastructureCreate)
	}

	if err := e.verifyNodesReady(ctx); err != nil {
		return StateBootstrapping, err
	}

	outputs, err := e.fetchOutputs(ctx, req)
	if err != nil {
		return StateFailed, fmt.Errorf("engine: fetching terraform outputs: %w", err)
	}

	levels, err := planner.Plan(req.Variant, outputs, req.Cluster, req.ChartsRoot)
	if err != nil {
		return StateFailed, fmt.Errorf("engine: planning bootstrap levels: %w", err)
	}
	bootstrapLevels, _ := splitLevels(levels, 3)

	if _, err := executor.Execute(ctx, e.Helm, bootstrapLevels, executor.Options{WorkspaceRoot: req.ChartsRoot, Sink: e.sink()}); err != nil {
		return StateFailed, eventlog.New(eventlog.TagHelmError, "bootstrap levels 1-3 failed", err).WithStage(eventlog.StageInfrastructureCreate)
	}

	if err := e.applyTerraform(ctx, req, "enable-full"); err != nil {
		return StateFailed, eventlog.New(eventlog.TagTerraformError, "terraform enable-full failed", err).WithStage(eventlog.StageInfrastructureCreate)
	}

	if _, err := executor.Execute(ctx, e.Helm, levels, executor.Options{WorkspaceRoot: req.ChartsRoot, Sink: e.sink()}); err != nil {
		// Helm fatal in levels 4-7: surface, do not roll back prior
		// levels. A fatal failure in levels 1-3
		// during this second pass is already reported as "cluster may be
		// unusable" by the same tag/stage, since the caller can't
		// distinguish which pass failed from the returned state alone.
		e.syncVault(ctx, req)
		return StateActive, eventlog.New(eventlog.TagHelmError, "charts(level 1..7) failed", err).WithStage(eventlog.StageInfrastructureCreate)
	}

	e.syncVault(ctx, req)
	e.emit("create", "cluster active")
	return StateActive, nil
}

// Update runs Active --Update--> Active: re-applies Terraform for drift
// and re-plans the current chart set. A minor-version upgrade
// is routed to Upgrade by the caller before calling Update, per the
// transition's own guard clause.
func (e *Engine) Update(ctx context.Context, req Request) (State, error) {
	if err := e.applyTerraform(ctx, req, "apply"); err != nil {
		return StateFailed, eventlog.New(eventlog.TagTerraformError, "terraform apply failed", err).WithStage(eventlog.StageInfrastructureCreate)
	}
	outputs, err := e.fetchOutputs(ctx, req)
	if err != nil {
		return StateFailed, fmt.Errorf("engine: fetching terraform outputs: %w", err)
	}
	levels, err := planner.Plan(req.Variant, outputs, req.Cluster, req.ChartsRoot)
	if err != nil {
		return StateFailed, fmt.Errorf("engine: planning current levels: %w", err)
	}
	if _, err := executor.Execute(ctx, e.Helm, levels, executor.Options{WorkspaceRoot: req.ChartsRoot, Sink: e.sink()}); err != nil {
		return StateActive, eventlog.New(eventlog.TagHelmError, "update plan apply failed", err).WithStage(eventlog.StageInfrastructureCreate)
	}
	e.syncVault(ctx, req)
	return StateActive, nil
}

// Upgrade runs Active --Upgrade--> Upgrading --> Active: control-plane
// version bump, control-plane-ready verification, then node pools or
// Karpenter nodes roll sequentially, then the current plan re-applies.
func (e *Engine) Upgrade(ctx context.Context, req Request, rollNodePool func(ctx context.Context) error) (State, error) {
	e.emit("upgrade", "starting control-plane upgrade")
	if err := e.applyTerraform(ctx, req, "control-plane-upgrade"); err != nil {
		return StateFailed, eventlog.New(eventlog.TagTerraformError, "control-plane upgrade failed", err).WithStage(eventlog.StageInfrastructureUpgrade)
	}
	if err := e.verifyNodesReady(ctx); err != nil {
		return StateUpgrading, err
	}
	if rollNodePool != nil {
		if err := rollNodePool(ctx); err != nil {
			return StateUpgrading, fmt.Errorf("engine: rolling node pools: %w", err)
		}
	}
	outputs, err := e.fetchOutputs(ctx, req)
	if err != nil {
		return StateFailed, fmt.Errorf("engine: fetching terraform outputs: %w", err)
	}
	levels, err := planner.Plan(req.Variant, outputs, req.Cluster, req.ChartsRoot)
	if err != nil {
		return StateFailed, fmt.Errorf("engine: planning post-upgrade levels: %w", err)
	}
	if _, err := executor.Execute(ctx, e.Helm, levels, executor.Options{WorkspaceRoot: req.ChartsRoot, Sink: e.sink()}); err != nil {
		return StateActive, eventlog.New(eventlog.TagHelmError, "post-upgrade plan apply failed", err).WithStage(eventlog.StageInfrastructureUpgrade)
	}
	e.syncVault(ctx, req)
	return StateActive, nil
}

// Pause runs Active --Pause--> Paused: node pool size=0 then uninstall
// the last level's workload charts.
func (e *Engine) Pause(ctx context.Context, req Request) (State, error) {
	if err := e.applyTerraform(ctx, req, "pause"); err != nil {
		return StateFailed, eventlog.New(eventlog.TagTerraformError, "terraform pause (pool size=0) failed", err).WithStage(eventlog.StageInfrastructurePause)
	}
	outputs, err := e.fetchOutputs(ctx, req)
	if err != nil {
		return StateFailed, fmt.Errorf("engine: fetching terraform outputs: %w", err)
	}
	levels, err := planner.Plan(req.Variant, outputs, req.Cluster, req.ChartsRoot)
	if err != nil {
		return StateFailed, fmt.Errorf("engine: planning levels for pause: %w", err)
	}
	workloadLevel := lastLevel(levels)
	names := releaseNames(workloadLevel)
	destroyLevels, err := planner.PlanDestroy(req.Variant, outputs, req.Cluster, req.ChartsRoot, names)
	if err != nil {
		return StateFailed, fmt.Errorf("engine: planning level-7 uninstall: %w", err)
	}
	if _, err := executor.Execute(ctx, e.Helm, destroyLevels, executor.Options{WorkspaceRoot: req.ChartsRoot, Sink: e.sink()}); err != nil {
		return StateFailed, eventlog.New(eventlog.TagHelmError, "uninstalling level-7 workload charts failed", err).WithStage(eventlog.StageInfrastructurePause)
	}
	return StatePaused, nil
}

// Resume runs Paused --Resume--> Active: restore pool sizes, verify
// nodes-ready, re-apply the current plan.
func (e *Engine) Resume(ctx context.Context, req Request) (State, error) {
	if err := e.applyTerraform(ctx, req, "resume"); err != nil {
		return StateFailed, eventlog.New(eventlog.TagTerraformError, "terraform resume (restore pool sizes) failed", err).WithStage(eventlog.StageInfrastructurePause)
	}
	if err := e.verifyNodesReady(ctx); err != nil {
		return StatePaused, err
	}
	outputs, err := e.fetchOutputs(ctx, req)
	if err != nil {
		return StateFailed, fmt.Errorf("engine: fetching terraform outputs: %w", err)
	}
	levels, err := planner.Plan(req.Variant, outputs, req.Cluster, req.ChartsRoot)
	if err != nil {
		return StateFailed, fmt.Errorf("engine: planning levels for resume: %w", err)
	}
	if _, err := executor.Execute(ctx, e.Helm, levels, executor.Options{WorkspaceRoot: req.ChartsRoot, Sink: e.sink()}); err != nil {
		return StateFailed, eventlog.New(eventlog.TagHelmError, "resume plan apply failed", err).WithStage(eventlog.StageInfrastructurePause)
	}
	return StateActive, nil
}

// Delete runs Any --Delete--> Deleting --> Absent: uninstall every
// release in reverse plan order, Terraform destroy, purge buckets.
func (e *Engine) Delete(ctx context.Context, req Request, bucketNames []string) (State, error) {
	e.emit("delete", "starting cluster deletion")

	outputs, err := e.fetchOutputs(ctx, req)
	if err != nil {
		return StateFailed, fmt.Errorf("engine: fetching terraform outputs: %w", err)
	}
	levels, err := planner.Plan(req.Variant, outputs, req.Cluster, req.ChartsRoot)
	if err != nil {
		return StateFailed, fmt.Errorf("engine: planning levels for delete: %w", err)
	}
	allNames := releaseNames(flatten(levels))
	destroyLevels, err := planner.PlanDestroy(req.Variant, outputs, req.Cluster, req.ChartsRoot, allNames)
	if err != nil {
		return StateFailed, fmt.Errorf("engine: planning reverse uninstall: %w", err)
	}
	if _, err := executor.Execute(ctx, e.Helm, destroyLevels, executor.Options{WorkspaceRoot: req.ChartsRoot, Sink: e.sink()}); err != nil {
		return StateFailed, eventlog.New(eventlog.TagHelmError, "reverse uninstall failed", err).WithStage(eventlog.StageInfrastructureDelete)
	}

	if err := e.destroyTerraform(ctx, req); err != nil {
		return StateFailed, eventlog.New(eventlog.TagTerraformError, "terraform destroy failed", err).WithStage(eventlog.StageInfrastructureDelete)
	}

	names := append([]string(nil), bucketNames...)
	names = append(names,
		storage.KubeconfigBucket(storage.ShortClusterID(req.Cluster.ClusterID)),
		storage.LogsBucket(req.Cluster.ClusterID),
	)
	if err := e.purgeBuckets(ctx, names); err != nil {
		return StateFailed, err
	}

	// The on-disk kubeconfig goes last, once every tool cleanup has
	// succeeded.
	if req.KubeconfigPath != "" {
		if err := os.Remove(req.KubeconfigPath); err != nil && !os.IsNotExist(err) {
			return StateFailed, eventlog.New(eventlog.TagCannotRetrieveClusterConfigFile, "removing workspace kubeconfig", err).WithStage(eventlog.StageInfrastructureDelete)
		}
	}

	e.emit("delete", "cluster absent")
	return StateAbsent, nil
}

func (e *Engine) purgeBuckets(ctx context.Context, names []string) error {
	if e.Storage == nil {
		return nil
	}
	for _, name := range names {
		if err := e.Storage.DeleteBucket(ctx, name, storage.HardDelete); err != nil {
			return eventlog.Newf(eventlog.TagObjectStorageError, err, "purging bucket %s", name).WithStage(eventlog.StageInfrastructureDelete)
		}
	}
	return nil
}

// applyTerraform runs the init/validate/plan/apply sequence against
// req.WorkspaceDir, applying the single-retry remediation table on
// failure.
func (e *Engine) applyTerraform(ctx context.Context, req Request, phase string) error {
	if e.Terraform == nil {
		return nil
	}
	run := func(ctx context.Context) error {
		return e.Terraform.InitValidatePlanApply(ctx, req.WorkspaceDir, false, req.Env)
	}
	err := run(ctx)
	if err != nil {
		handled, remErr := e.remediate(ctx, req.WorkspaceDir, req.Env, err, run)
		if !handled {
			return err
		}
		if remErr != nil {
			return remErr
		}
		e.emit(phase, "remediation succeeded")
	}
	return e.persistKubeconfig(ctx, req)
}

// persistKubeconfig uploads the workspace kubeconfig to its per-cluster
// bucket, so the on-disk file and the object-storage copy are both
// byproducts of the same successful Terraform phase.
func (e *Engine) persistKubeconfig(ctx context.Context, req Request) error {
	if e.Kubeconfigs == nil || req.KubeconfigPath == "" {
		return nil
	}
	data, err := os.ReadFile(req.KubeconfigPath)
	if err != nil {
		return eventlog.New(eventlog.TagCannotRetrieveClusterConfigFile, "reading workspace kubeconfig", err)
	}
	bucket := storage.KubeconfigBucket(storage.ShortClusterID(req.Cluster.ClusterID))
	region := ""
	if len(req.Cluster.Regions) > 0 {
		region = req.Cluster.Regions[0]
	}
	if _, err := e.Kubeconfigs.CreateBucket(ctx, storage.BucketSpec{Name: bucket, Region: region, Versioning: true}); err != nil {
		return err
	}
	return e.Kubeconfigs.PutObject(ctx, bucket, storage.KubeconfigObjectKey(req.Cluster.ClusterID), data, nil)
}

// fetchOutputs reads req.WorkspaceDir's Terraform outputs and parses
// them through req.Variant's Table.ParseOutputs (absent required keys
// are an error), producing the cloudvariant.InfrastructureOutput the
// chart-graph planner consumes. A nil Terraform driver is a no-op, mirroring
// applyTerraform's convention, and yields a zero-value output tagged with
// the variant so per-chart builders still see a valid (if empty) value.
func (e *Engine) fetchOutputs(ctx context.Context, req Request) (cloudvariant.InfrastructureOutput, error) {
	if e.Terraform == nil {
		return cloudvariant.InfrastructureOutput{Variant: req.Variant}, nil
	}
	table, err := cloudvariant.Lookup(req.Variant)
	if err != nil {
		return cloudvariant.InfrastructureOutput{}, fmt.Errorf("engine: %w", err)
	}
	raw, err := e.Terraform.Output(ctx, req.WorkspaceDir, req.Env)
	if err != nil {
		return cloudvariant.InfrastructureOutput{}, eventlog.New(eventlog.TagTerraformError, "reading terraform outputs", err)
	}
	outputs, err := table.ParseOutputs(raw)
	if err != nil {
		return cloudvariant.InfrastructureOutput{}, fmt.Errorf("engine: %w", err)
	}
	return outputs, nil
}

func (e *Engine) destroyTerraform(ctx context.Context, req Request) error {
	if e.Terraform == nil {
		return nil
	}
	return e.Terraform.Destroy(ctx, req.WorkspaceDir, req.Env)
}

func (e *Engine) syncVault(ctx context.Context, req Request) {
	vaultsync.Sync(ctx, e.Vault, req.Secrets, func(err error) {
		e.emit("vault-sync", fmt.Sprintf("warning: vault sync failed: %v", err))
	})
}

func defaultNodesReadyPolicy() retry.Policy {
	return retry.FibonacciPolicy(5*time.Second, 2*time.Minute, 0)
}

// verifyNodesReady polls until every node reports Ready; transitions
// that grow or restore node capacity gate on it before touching charts.
func (e *Engine) verifyNodesReady(ctx context.Context) error {
	if e.Kube == nil {
		return nil
	}
	policy := defaultNodesReadyPolicy()
	if e.NodesReadyPolicy != nil {
		policy = *e.NodesReadyPolicy
	}
	return retry.Do(ctx, policy, nil, func(ctx context.Context) error {
		nodes, err := e.Kube.ListNodes(ctx)
		if err != nil {
			return err
		}
		if len(nodes) == 0 {
			return eventlog.New(eventlog.TagKubernetesNodeNotReady, "no nodes registered yet", nil)
		}
		for _, n := range nodes {
			if !nodeReady(n) {
				return eventlog.New(eventlog.TagKubernetesNodeNotReady, fmt.Sprintf("node %s not ready", n.Name), nil)
			}
		}
		return nil
	})
}

func nodeReady(n corev1.Node) bool {
	for _, cond := range n.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}

func splitLevels(levels [][]chart.Release, atLevel int) (head, tail [][]chart.Release) {
	if atLevel >= len(levels) {
		return levels, nil
	}
	return levels[:atLevel], levels[atLevel:]
}

func lastLevel(levels [][]chart.Release) []chart.Release {
	if len(levels) == 0 {
		return nil
	}
	return levels[len(levels)-1]
}

func flatten(levels [][]chart.Release) []chart.Release {
	var out []chart.Release
	for _, lvl := range levels {
		out = append(out, lvl...)
	}
	return out
}

func releaseNames(releases []chart.Release) []string {
	names := make([]string, 0, len(releases))
	for _, r := range releases {
		names = append(names, r.Name)
	}
	return names
}
