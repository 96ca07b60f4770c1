package chart

import (
	"context"
	"fmt"
)

// Action is the desired verb for a release within a level.
type Action string

const (
	ActionDeploy  Action = "Deploy"
	ActionDestroy Action = "Destroy"
	ActionSkip    Action = "Skip"
)

// ValueSet is one inline key/value the builder sets on a release,
// distinguishing plain strings from JSON-typed values so the Helm
// driver knows whether to pass `--set` or `--set-json`.
type ValueSet struct {
	Key      string
	Value    string
	IsJSON   bool
}

// CRDUpdateSpec fetches YAML manifests from URL and server-side-applies
// them before the owning release's Helm apply.
type CRDUpdateSpec struct {
	URL       string
	Resources []string
}

// InstallChecker is a callable predicate run after a release succeeds; a
// false Retryable result is retried with bounded backoff, a false
// non-Retryable result fails the level.
type InstallChecker struct {
	Describe  string
	Check     func() (ok bool, retryable bool, reason string)
}

// PreHook runs before the release's CRD update and Helm apply, e.g.
// patching in-place daemonset labels before the chart takes ownership.
// Run receives the level executor's context so it honors cancellation.
type PreHook struct {
	Describe string
	Run      func(ctx context.Context) error
}

// Release is the level executor's atom. Constructed once per invocation
// by a chart builder and never mutated during execution.
type Release struct {
	Name      string
	Namespace string
	ChartPath string
	Action    Action

	ValuesFiles []string
	SetValues   []ValueSet
	Overrides   map[string]any // generated-yaml overrides, merged last

	TimeoutSeconds int

	// ReinstallIfInstalledVersionBelow forces an uninstall before upgrade
	// when the currently-installed chart version is older than this
	// floor (semver string, empty means no floor).
	ReinstallIfInstalledVersionBelow string

	PreHook        *PreHook
	CRDUpdate      *CRDUpdateSpec
	InstallChecker *InstallChecker
	VPA            *VPASpec
}

// Validate enforces the fields a release must carry: name and namespace
// for every Action (uninstall addresses a release by name+namespace, not
// by chart), and a chart path only when the Action is Deploy.
func (r Release) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("release: name is required")
	}
	if r.Namespace == "" {
		return fmt.Errorf("release %s: namespace is required", r.Name)
	}
	switch r.Action {
	case ActionDeploy, ActionDestroy, ActionSkip:
	default:
		return fmt.Errorf("release %s: unsupported action %q", r.Name, r.Action)
	}
	if r.Action == ActionDeploy && r.ChartPath == "" {
		return fmt.Errorf("release %s: chart_path is required to deploy", r.Name)
	}
	if r.VPA != nil {
		if r.VPA.TargetName == "" || r.VPA.TargetKind == "" {
			return fmt.Errorf("release %s: vpa spec requires target_kind and target_name", r.Name)
		}
	}
	return nil
}
