package planner

import (
	"fmt"
	"sort"

	"github.com/imamik/clusterforge/internal/chart"
	"github.com/imamik/clusterforge/internal/cloudvariant"
	"github.com/imamik/clusterforge/internal/request"
)

// Plan assembles the variant's skeleton, drops items gated off by
// flags, and orders the result into levels via LevelsFromDependencies,
// then builds each level's releases from cr and the Terraform outputs.
// Calling Plan twice with identical arguments yields an identical
// result — skeletonFor, LevelsFromDependencies, chartPathFor, and
// buildRelease are all pure.
func Plan(variant cloudvariant.Variant, outputs cloudvariant.InfrastructureOutput, cr request.ClusterRequest, workspaceRoot string) ([][]chart.Release, error) {
	descriptors := descriptorsFor(variant, cr.Features)
	levels, err := LevelsFromDependencies(descriptors)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}
	if err := ValidateCRDOrdering(levels); err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}
	return toReleaseLevels(levels, variant, cr, outputs, workspaceRoot)
}

// PlanDestroy builds the destroy-oriented plan for the named releases:
// destroy ordering is apply ordering reversed, with each destroy-marked
// release promoted to the earliest reversed level the CRD invariant
// allows — a release with no remaining dependents left to tear down first
// doesn't need to wait for its own natural reverse slot.
// Releases not named in names are not part of this invocation and are
// omitted from the result.
func PlanDestroy(variant cloudvariant.Variant, outputs cloudvariant.InfrastructureOutput, cr request.ClusterRequest, workspaceRoot string, names []string) ([][]chart.Release, error) {
	descriptors := descriptorsFor(variant, cr.Features)
	levels, err := LevelsFromDependencies(descriptors)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}

	reversed := make([][]chart.Descriptor, len(levels))
	for i, lvl := range levels {
		reversed[len(levels)-1-i] = lvl
	}

	toDestroy := make(map[string]bool, len(names))
	for _, n := range names {
		toDestroy[n] = true
	}

	// dependents[x] = names of descriptors that declared x as a
	// Dependency in apply order — those must be destroyed before x.
	dependents := make(map[string][]string)
	for _, d := range descriptors {
		for _, dep := range d.Dependencies {
			dependents[dep] = append(dependents[dep], d.Name)
		}
	}
	reversedLevelOf := make(map[string]int, len(descriptors))
	for i, lvl := range reversed {
		for _, d := range lvl {
			reversedLevelOf[d.Name] = i
		}
	}

	earliest := make(map[string]int, len(descriptors))
	for _, d := range descriptors {
		e := 0
		for _, dependent := range dependents[d.Name] {
			if lvl, ok := reversedLevelOf[dependent]; ok && lvl+1 > e {
				e = lvl + 1
			}
		}
		earliest[d.Name] = e
	}

	promoted := make([][]chart.Descriptor, len(reversed))
	for i, lvl := range reversed {
		for _, d := range lvl {
			if !toDestroy[d.Name] {
				continue
			}
			target := earliest[d.Name]
			if target > i {
				target = i // defensive: never later than the natural reversed slot
			}
			promoted[target] = append(promoted[target], d)
		}
	}

	var compacted [][]chart.Descriptor
	for _, lvl := range promoted {
		if len(lvl) == 0 {
			continue
		}
		sort.Slice(lvl, func(i, j int) bool { return lvl[i].Name < lvl[j].Name })
		compacted = append(compacted, lvl)
	}

	out, err := toReleaseLevels(compacted, variant, cr, outputs, workspaceRoot)
	if err != nil {
		return nil, err
	}
	for _, lvl := range out {
		for i := range lvl {
			lvl[i].Action = chart.ActionDestroy
		}
	}
	return out, nil
}

// descriptorsFor expands variant's skeleton under flags into descriptors,
// applying the preserved-quirks overlay (internal/planner/quirks.go).
func descriptorsFor(variant cloudvariant.Variant, flags request.FeatureFlags) []chart.Descriptor {
	items := skeletonFor(variant)
	descriptors := make([]chart.Descriptor, 0, len(items))
	for _, it := range items {
		if it.IncludeIf != nil && !it.IncludeIf(flags) {
			continue
		}
		descriptors = append(descriptors, chart.Descriptor{
			Name:         applyQuirks(it.Name),
			Kind:         it.Kind,
			Level:        it.Level,
			ChartPath:    chartPathFor(variant, it.Name),
			Dependencies: it.Dependencies,
		})
	}
	return descriptors
}

// toReleaseLevels turns each level's descriptors into releases,
// delegating per-chart value construction to buildRelease (builders.go),
// which errors when a required input is missing.
func toReleaseLevels(levels [][]chart.Descriptor, variant cloudvariant.Variant, cr request.ClusterRequest, outputs cloudvariant.InfrastructureOutput, workspaceRoot string) ([][]chart.Release, error) {
	out := make([][]chart.Release, len(levels))
	for i, level := range levels {
		releases := make([]chart.Release, 0, len(level))
		for _, d := range level {
			r, err := buildRelease(d, variant, cr, outputs)
			if err != nil {
				return nil, fmt.Errorf("planner: building release %s: %w", d.Name, err)
			}
			releases = append(releases, r)
		}
		out[i] = releases
	}
	_ = workspaceRoot // chart paths are already workspace-relative; kept for signature symmetry with PlanDestroy
	return out, nil
}

// namespaceFor assigns the conventional namespace per chart kind; every
// variant shares the same namespace convention.
func namespaceFor(kind chart.Kind) string {
	switch kind {
	case chart.KindObservability:
		return "monitoring"
	case chart.KindCertManager:
		return "cert-manager"
	case chart.KindNetworking:
		return "networking"
	case chart.KindWorkload:
		return "qovery"
	default:
		return "kube-system"
	}
}

func defaultTimeoutFor(kind chart.Kind) int {
	switch kind {
	case chart.KindCertManager, chart.KindNetworking:
		return 600
	default:
		return 300
	}
}

// cloudDirFor maps a variant to its workspace chart-root directory
// name, the <cloud> segment of <workspace>/<cloud>/common/charts/.
func cloudDirFor(variant cloudvariant.Variant) string {
	switch variant {
	case cloudvariant.Gke:
		return "gcp"
	case cloudvariant.ScwKapsule:
		return "scw"
	case cloudvariant.AzureAks:
		return "azure"
	case cloudvariant.OnPremise:
		return "onprem"
	default:
		return "aws"
	}
}

// chartPathFor resolves name to its workspace-relative chart directory.
// It always points at the shared <cloud>/common/charts/<name> path;
// neither the planner nor its builders (builders.go) consult a
// bootstrap/charts/<name>/ per-cloud override directory.
func chartPathFor(variant cloudvariant.Variant, name string) string {
	return fmt.Sprintf("%s/common/charts/%s", cloudDirFor(variant), name)
}
