package planner

import (
	"github.com/imamik/clusterforge/internal/chart"
	"github.com/imamik/clusterforge/internal/cloudvariant"
	"github.com/imamik/clusterforge/internal/request"
)

// skeletonItem is one canonical entry in a cluster's chart skeleton.
// IncludeIf gates conditional membership by feature flag;
// a nil IncludeIf means always-included.
type skeletonItem struct {
	Name         string
	Kind         chart.Kind
	Level        int
	Dependencies []string
	IncludeIf    func(request.FeatureFlags) bool
}

func awsSkeleton() []skeletonItem {
	return []skeletonItem{
		// Level 1: cluster-wide primitives
		{Name: "storage-class", Kind: chart.KindInfrastructure, Level: 1},
		{Name: "coredns-config", Kind: chart.KindInfrastructure, Level: 1},
		{Name: "iam-user-mapper", Kind: chart.KindInfrastructure, Level: 1},
		{Name: "ui-view", Kind: chart.KindInfrastructure, Level: 1},
		{Name: "kube-prometheus-stack", Kind: chart.KindObservability, Level: 1,
			IncludeIf: func(f request.FeatureFlags) bool { return f.MetricsHistory }},
		{Name: "promtail", Kind: chart.KindObservability, Level: 1,
			IncludeIf: func(f request.FeatureFlags) bool { return f.LogsHistory }},

		// Level 2: observability backends needing level-1 CRDs & storage class
		{Name: "prometheus-adapter", Kind: chart.KindObservability, Level: 2,
			Dependencies: []string{"kube-prometheus-stack"},
			IncludeIf:    func(f request.FeatureFlags) bool { return f.MetricsHistory }},
		{Name: "kube-state-metrics", Kind: chart.KindObservability, Level: 2,
			Dependencies: []string{"kube-prometheus-stack"},
			IncludeIf:    func(f request.FeatureFlags) bool { return f.MetricsHistory }},
		{Name: "loki", Kind: chart.KindObservability, Level: 2,
			Dependencies: []string{"storage-class", "promtail"},
			IncludeIf:    func(f request.FeatureFlags) bool { return f.LogsHistory }},
		{Name: "grafana", Kind: chart.KindObservability, Level: 2,
			Dependencies: []string{"kube-prometheus-stack"},
			// Grafana dashboards read from kube-prometheus-stack; without
			// MetricsHistory the dependency wouldn't be in the plan at all,
			// so Grafana implies it rather than leaving a dangling
			// dependency for LevelsFromDependencies to reject.
			IncludeIf: func(f request.FeatureFlags) bool { return f.Grafana && f.MetricsHistory }},

		// Level 3: installs CRDs needed by level-4
		{Name: "cert-manager", Kind: chart.KindCertManager, Level: 3},

		// Level 4: requires cert-manager CRDs & operator
		{Name: "cluster-autoscaler", Kind: chart.KindAutoscaler, Level: 4,
			Dependencies: []string{"cert-manager"},
			IncludeIf:    func(f request.FeatureFlags) bool { return !f.Karpenter }},
		{Name: "karpenter", Kind: chart.KindAutoscaler, Level: 4,
			Dependencies: []string{"cert-manager"},
			IncludeIf:    func(f request.FeatureFlags) bool { return f.Karpenter }},
		{Name: "cert-manager-webhook", Kind: chart.KindCertManager, Level: 4,
			Dependencies: []string{"cert-manager"},
			IncludeIf:    func(f request.FeatureFlags) bool { return f.QoveryDNS }},

		// Level 5: leaf controllers
		{Name: "metrics-server", Kind: chart.KindInfrastructure, Level: 5},
		{Name: "node-termination-handler", Kind: chart.KindInfrastructure, Level: 5},
		{Name: "external-dns", Kind: chart.KindNetworking, Level: 5},

		// Level 6: requires cert-manager for TLS
		{Name: "nginx-ingress", Kind: chart.KindNetworking, Level: 6,
			Dependencies: []string{"cert-manager"}},

		// Level 7: control-plane integrations, must be last
		{Name: "cert-manager-issuers", Kind: chart.KindCertManager, Level: 7,
			Dependencies: []string{"cert-manager"}},
		{Name: "cluster-agent", Kind: chart.KindInfrastructure, Level: 7,
			Dependencies: []string{"nginx-ingress"}},
		{Name: "shell-agent", Kind: chart.KindInfrastructure, Level: 7,
			Dependencies: []string{"nginx-ingress"}},
		{Name: "engine-workload", Kind: chart.KindWorkload, Level: 7,
			Dependencies: []string{"nginx-ingress", "cert-manager-issuers"}},
	}
}

// gcpSkeleton and scwSkeleton substitute or omit AWS-specific items.
// GCP has no Karpenter mode (GKE autoscaling is managed by the
// node pool API) and no node-termination-handler (no spot interruption
// notices to react to); Scaleway has no managed autoscaler integration
// chart at all, running a generic cluster-autoscaler only.
func gcpSkeleton() []skeletonItem {
	items := awsSkeleton()
	filtered := items[:0]
	for _, it := range items {
		switch it.Name {
		case "karpenter", "node-termination-handler":
			continue
		case "cluster-autoscaler":
			it.IncludeIf = nil // GCP always uses the generic autoscaler chart, never Karpenter
		}
		filtered = append(filtered, it)
	}
	return filtered
}

func scwSkeleton() []skeletonItem {
	items := awsSkeleton()
	filtered := items[:0]
	for _, it := range items {
		switch it.Name {
		case "karpenter", "node-termination-handler", "iam-user-mapper":
			continue
		case "cluster-autoscaler":
			it.IncludeIf = nil
		}
		filtered = append(filtered, it)
	}
	return filtered
}

func skeletonFor(variant cloudvariant.Variant) []skeletonItem {
	switch variant {
	case cloudvariant.Gke:
		return gcpSkeleton()
	case cloudvariant.ScwKapsule:
		return scwSkeleton()
	default:
		return awsSkeleton()
	}
}
