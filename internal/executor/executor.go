// Package executor implements the level executor, the sole fan-out
// point in the engine. It walks a planner-produced list-of-levels,
// running each level's releases in parallel and each level strictly
// after the previous one. Fan-out uses golang.org/x/sync/errgroup:
// every sibling task's context is cancelled as soon as one fails.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/imamik/clusterforge/internal/chart"
	"github.com/imamik/clusterforge/internal/eventlog"
	"github.com/imamik/clusterforge/internal/retry"
)

// HelmDriver is the subset of internal/tooldrivers/helmdriver.Driver the
// executor depends on. Defined here (consumer side) so tests can supply a
// fake without standing up a real cluster.
type HelmDriver interface {
	UpgradeInstall(ctx context.Context, workspaceRoot string, r chart.Release) error
	Uninstall(ctx context.Context, namespace, name string) error
}

// Result reports what the executor did, level by level, for callers that
// want to log or assert on completion order.
type Result struct {
	// Completed lists release names in the order their goroutines observed
	// success. Order within a level is not meaningful; order across
	// levels is.
	Completed []string
}

// Options configures one Execute call.
type Options struct {
	// WorkspaceRoot is prefixed onto every release's ChartPath.
	WorkspaceRoot string
	// InstallCheckPolicy overrides the default Fibonacci backoff used to
	// retry a retryable install-checker failure.
	InstallCheckPolicy *retry.Policy
	Sink               eventlog.Sink
}

func defaultInstallCheckPolicy() retry.Policy {
	return retry.FibonacciPolicy(5*time.Second, 2*time.Minute, 0)
}

// Execute runs levels strictly in order, fanning out within each level,
// honoring ctx cancellation at every suspension point. The first fatal
// failure within a level cancels its siblings' context, and Execute
// returns without starting the next level.
func Execute(ctx context.Context, helm HelmDriver, levels [][]chart.Release, opts Options) (Result, error) {
	sink := opts.Sink
	if sink == nil {
		sink = eventlog.NopSink{}
	}
	policy := defaultInstallCheckPolicy()
	if opts.InstallCheckPolicy != nil {
		policy = *opts.InstallCheckPolicy
	}

	var result Result
	var mu sync.Mutex

	for levelIndex, level := range levels {
		g, gctx := errgroup.WithContext(ctx)
		for _, r := range level {
			r := r
			g.Go(func() error {
				if err := executeRelease(gctx, helm, r, opts.WorkspaceRoot, policy, sink); err != nil {
					return fmt.Errorf("level %d release %s: %w", levelIndex, r.Name, err)
				}
				mu.Lock()
				result.Completed = append(result.Completed, r.Name)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return result, err
		}
		sink.Emit(eventlog.Event{Transmitter: "executor", Step: "level", Message: fmt.Sprintf("level %d complete (%d releases)", levelIndex, len(level))})
	}
	return result, nil
}

// executeRelease runs one release's pre-hook, CRD update (folded into
// helm's UpgradeInstall per its own CRDUpdate field), Helm action, and
// install-checker, in that order: CRD update happens-before Helm apply
// happens-before install-checker.
func executeRelease(ctx context.Context, helm HelmDriver, r chart.Release, workspaceRoot string, policy retry.Policy, sink eventlog.Sink) error {
	if err := r.Validate(); err != nil {
		return eventlog.New(eventlog.TagHelmChartError, "invalid release", err).WithSubkind("InvalidRelease")
	}

	switch r.Action {
	case chart.ActionSkip:
		return nil

	case chart.ActionDestroy:
		return helm.Uninstall(ctx, r.Namespace, r.Name)

	case chart.ActionDeploy:
		if r.PreHook != nil {
			if err := r.PreHook.Run(ctx); err != nil {
				return eventlog.Newf(eventlog.TagHelmChartError, err, "pre-hook %q for %s", r.PreHook.Describe, r.Name).WithSubkind("PreHookFailed")
			}
		}

		if err := helm.UpgradeInstall(ctx, workspaceRoot, r); err != nil {
			return err
		}

		if r.InstallChecker != nil {
			if err := runInstallChecker(ctx, r.InstallChecker, policy); err != nil {
				return eventlog.Newf(eventlog.TagHelmChartError, err, "install-checker for %s", r.Name).WithSubkind("InstallCheckerFailed")
			}
		}
		return nil

	default:
		return eventlog.Newf(eventlog.TagHelmChartError, nil, "release %s: unsupported action %q", r.Name, r.Action).WithSubkind("InvalidRelease")
	}
}

// runInstallChecker retries ic.Check under policy: a false result with a
// retryable reason is retried, a false result with a fatal reason stops
// immediately.
func runInstallChecker(ctx context.Context, ic *chart.InstallChecker, policy retry.Policy) error {
	return retry.Do(ctx, policy, nil, func(ctx context.Context) error {
		ok, retryable, reason := ic.Check()
		if ok {
			return nil
		}
		if !retryable {
			return retry.Fatal(fmt.Errorf("%s: %s", ic.Describe, reason))
		}
		return fmt.Errorf("%s: not ready yet: %s", ic.Describe, reason)
	})
}
