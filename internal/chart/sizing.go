package chart

import "fmt"

// MilliCpu, MebiByte and GibiByte are typed resource-sizing units, kept
// distinct so a MiB value can never be passed where a GiB value is
// expected.
type MilliCpu int
type MebiByte int
type GibiByte int

// SizingPolicyKind discriminates between letting the chart's own
// values.yaml defaults apply and pinning explicit request/limit pairs.
type SizingPolicyKind string

const (
	SizingChartDefault SizingPolicyKind = "ChartDefault"
	SizingConstrained  SizingPolicyKind = "Constrained"
)

// SizingPolicy is either ChartDefault (fields below are ignored) or
// Constrained, in which case RequestCPU/RequestMemory/LimitCPU/LimitMemory
// must all be set.
type SizingPolicy struct {
	Kind SizingPolicyKind

	RequestCPU    MilliCpu
	RequestMemory MebiByte
	LimitCPU      MilliCpu
	LimitMemory   MebiByte
}

// ChartDefaultSizing returns a policy that defers to the chart's own
// values.yaml resource block.
func ChartDefaultSizing() SizingPolicy {
	return SizingPolicy{Kind: SizingChartDefault}
}

// ConstrainedSizing returns a policy pinning explicit request/limit pairs.
func ConstrainedSizing(requestCPU MilliCpu, requestMemory MebiByte, limitCPU MilliCpu, limitMemory MebiByte) SizingPolicy {
	return SizingPolicy{
		Kind:          SizingConstrained,
		RequestCPU:    requestCPU,
		RequestMemory: requestMemory,
		LimitCPU:      limitCPU,
		LimitMemory:   limitMemory,
	}
}

// Validate rejects a Constrained policy whose limits undercut its
// requests, mirroring request.ResourceSizing's invariant at the chart
// layer.
func (p SizingPolicy) Validate() error {
	if p.Kind != SizingConstrained {
		return nil
	}
	if p.LimitCPU < p.RequestCPU {
		return fmt.Errorf("constrained sizing: limit_cpu %d < request_cpu %d", p.LimitCPU, p.RequestCPU)
	}
	if p.LimitMemory < p.RequestMemory {
		return fmt.Errorf("constrained sizing: limit_memory %d < request_memory %d", p.LimitMemory, p.RequestMemory)
	}
	return nil
}

// VPASpec describes a VerticalPodAutoscaler to attach to a release: a
// target reference and a per-container resource envelope.
type VPASpec struct {
	TargetKind string // e.g. "Deployment", "StatefulSet"
	TargetName string

	ContainerPolicies map[string]ContainerResourceEnvelope // container name -> envelope
}

// ContainerResourceEnvelope bounds a single container's VPA recommendation.
type ContainerResourceEnvelope struct {
	MinCPU    MilliCpu
	MinMemory MebiByte
	MaxCPU    MilliCpu
	MaxMemory MebiByte
}
