package request

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/imamik/clusterforge/internal/cloudvariant"
)

// ClusterRequestBuilder assembles a ClusterRequest field by field and
// validates the whole on Build, so no partially-constructed
// ClusterRequest is ever visible to the rest of the engine.
type ClusterRequestBuilder struct {
	req  ClusterRequest
	errs []error
}

// NewClusterRequestBuilder seeds a builder with the identifiers every
// request must carry.
func NewClusterRequestBuilder(organizationID, clusterID, executionID string) *ClusterRequestBuilder {
	return &ClusterRequestBuilder{
		req: ClusterRequest{
			OrganizationID: organizationID,
			ClusterID:      clusterID,
			ExecutionID:    executionID,
		},
	}
}

// NewClusterRequestBuilderWithGeneratedExecutionID seeds a builder the same
// way as NewClusterRequestBuilder, generating a random execution ID for
// callers that kick off a transition without one already assigned upstream
// (e.g. an operator-triggered create/update outside the request-issuing
// system that normally stamps execution_id).
func NewClusterRequestBuilderWithGeneratedExecutionID(organizationID, clusterID string) *ClusterRequestBuilder {
	return NewClusterRequestBuilder(organizationID, clusterID, uuid.NewString())
}

func (b *ClusterRequestBuilder) CloudProvider(variant cloudvariant.Variant) *ClusterRequestBuilder {
	b.req.CloudProvider = variant
	return b
}

func (b *ClusterRequestBuilder) Regions(regions ...string) *ClusterRequestBuilder {
	b.req.Regions = regions
	return b
}

func (b *ClusterRequestBuilder) KubernetesVersion(v string) *ClusterRequestBuilder {
	b.req.KubernetesVersion = v
	return b
}

func (b *ClusterRequestBuilder) StaticNodePools(pools ...StaticNodePool) *ClusterRequestBuilder {
	if b.req.NodeTopology.Autoscaler != nil {
		b.errs = append(b.errs, fmt.Errorf("cannot set static node pools: autoscaler already configured"))
		return b
	}
	b.req.NodeTopology.StaticPools = pools
	return b
}

func (b *ClusterRequestBuilder) Autoscaler(cfg AutoscalerConfig) *ClusterRequestBuilder {
	if len(b.req.NodeTopology.StaticPools) > 0 {
		b.errs = append(b.errs, fmt.Errorf("cannot set autoscaler: static node pools already configured"))
		return b
	}
	b.req.NodeTopology.Autoscaler = &cfg
	return b
}

func (b *ClusterRequestBuilder) Features(f FeatureFlags) *ClusterRequestBuilder {
	b.req.Features = f
	return b
}

func (b *ClusterRequestBuilder) DNSProvider(d DNSProviderConfig) *ClusterRequestBuilder {
	b.req.DNSProvider = d
	return b
}

func (b *ClusterRequestBuilder) LetsEncryptEmail(email string) *ClusterRequestBuilder {
	b.req.LetsEncryptEmail = email
	return b
}

func (b *ClusterRequestBuilder) TLSTestMode(enabled bool) *ClusterRequestBuilder {
	b.req.TLSTestMode = enabled
	return b
}

func (b *ClusterRequestBuilder) AdvancedSetting(key, value string) *ClusterRequestBuilder {
	if b.req.AdvancedSettings == nil {
		b.req.AdvancedSettings = map[string]string{}
	}
	b.req.AdvancedSettings[key] = value
	return b
}

// Build validates the accumulated fields and returns an immutable
// ClusterRequest. Once returned, nothing in this package ever mutates it
// again; callers that need a variant copy must build a new one.
func (b *ClusterRequestBuilder) Build() (ClusterRequest, error) {
	if len(b.errs) > 0 {
		return ClusterRequest{}, fmt.Errorf("cluster request builder: %s", joinErrs(b.errs))
	}
	if b.req.OrganizationID == "" || b.req.ClusterID == "" || b.req.ExecutionID == "" {
		return ClusterRequest{}, fmt.Errorf("cluster request builder: organization_id, cluster_id and execution_id are required")
	}
	if b.req.CloudProvider == "" {
		return ClusterRequest{}, fmt.Errorf("cluster request builder: cloud_provider is required")
	}
	if len(b.req.NodeTopology.StaticPools) == 0 && b.req.NodeTopology.Autoscaler == nil {
		return ClusterRequest{}, fmt.Errorf("cluster request builder: node_topology requires either static_pools or autoscaler")
	}
	return b.req, nil
}

func joinErrs(errs []error) string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}
