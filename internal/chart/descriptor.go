// Package chart holds the data-only descriptors produced by per-chart
// builders and consumed by the level executor. The source system modeled
// chart behavior as a `Box<dyn HelmChart>` capability object
// (chart_info/run/pre_exec/post_exec/clone_dyn); here that's replaced by a
// tagged Kind plus a data-only Descriptor. The planner turns descriptors
// into Releases, and the executor acts on each Release's Action and its
// PreHook/CRDUpdate/InstallChecker fields.
package chart

// Kind tags what category of release a descriptor represents. The
// planner uses it to pick the release's namespace and default timeout;
// it is not carried on Release, so the executor never sees it.
type Kind string

const (
	KindCRDInstall     Kind = "crd-install"
	KindInfrastructure Kind = "infrastructure" // storage-class, CoreDNS config, IAM mapper, UI view
	KindObservability  Kind = "observability"  // kube-prometheus-stack, loki, grafana, promtail
	KindCertManager    Kind = "cert-manager"
	KindAutoscaler     Kind = "autoscaler" // cluster-autoscaler or Karpenter
	KindNetworking     Kind = "networking" // ingress, DNS webhook
	KindWorkload       Kind = "workload"   // environment-scoped app/container/database/router release
)

// Descriptor is the data-only record the planner emits; it carries no
// methods with side effects. Everything needed to build, render, and
// order the release lives in its fields.
type Descriptor struct {
	Name  string
	Kind  Kind
	Level int

	ChartPath string // filesystem path, relative to the workspace's chart root

	// Dependencies names other descriptors (by Name) whose CRDs or
	// resources this one requires at runtime. The planner uses this to
	// compute levels (LevelsFromDependencies), to check them
	// (ValidateCRDOrdering), and to order destroy plans; it is not
	// consulted by the executor at apply time.
	Dependencies []string
}
