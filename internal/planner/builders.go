package planner

import (
	"fmt"

	"github.com/imamik/clusterforge/internal/chart"
	"github.com/imamik/clusterforge/internal/cloudvariant"
	"github.com/imamik/clusterforge/internal/request"
)

// buildRelease is the per-chart builder dispatch: it takes the
// workspace-relative descriptor, the cluster-variant inputs (outputs), and
// the feature/request inputs (cr), and returns either the release or an
// error if a required input is missing. Most charts need nothing beyond
// the skeleton's own fields; a handful read real data from cr/outputs.
func buildRelease(d chart.Descriptor, variant cloudvariant.Variant, cr request.ClusterRequest, outputs cloudvariant.InfrastructureOutput) (chart.Release, error) {
	base := chart.Release{
		Name:           d.Name,
		Namespace:      namespaceFor(d.Kind),
		ChartPath:      d.ChartPath,
		Action:         chart.ActionDeploy,
		TimeoutSeconds: defaultTimeoutFor(d.Kind),
	}

	switch d.Name {
	case "cert-manager-issuers":
		return certManagerIssuersRelease(base, cr)
	case "loki":
		return lokiRelease(base, variant, cr, outputs)
	case "external-dns":
		return externalDNSRelease(base, outputs), nil
	case "cluster-autoscaler", "karpenter":
		return autoscalerRelease(base, outputs), nil
	case "engine-workload":
		return engineWorkloadRelease(base, cr), nil
	default:
		return base, nil
	}
}

// certManagerIssuersRelease wires the ACME ClusterIssuer values: the
// contact email and DNS-01 solver provider.
// Both come from the cluster request, not Terraform, so nothing upstream
// already guarantees they're set — this is the builder that actually
// exercises the "error if required inputs are missing" path.
func certManagerIssuersRelease(base chart.Release, cr request.ClusterRequest) (chart.Release, error) {
	if cr.LetsEncryptEmail == "" {
		return chart.Release{}, fmt.Errorf("cert-manager-issuers: LetsEncryptEmail is required")
	}
	if cr.DNSProvider.Kind == "" {
		return chart.Release{}, fmt.Errorf("cert-manager-issuers: dns provider is required")
	}
	base.SetValues = []chart.ValueSet{
		{Key: "acmeEmail", Value: cr.LetsEncryptEmail},
		{Key: "dnsProvider", Value: cr.DNSProvider.Kind},
	}
	if len(cr.DNSProvider.Parameters) > 0 {
		base.Overrides = map[string]any{"dnsProviderParameters": cr.DNSProvider.Parameters}
	}
	return base, nil
}

// lokiRelease fills loki's storage backend from the variant's
// LokiStorageConfigBlob. The Terraform-output contract
// (cloudvariant.RequireKeys, run by ParseOutputs before outputs ever
// reaches the planner) is what actually guarantees the bucket name is
// populated for a real invocation; LokiStorageConfigBlob still surfaces
// its own error here in case Plan is called directly with incomplete
// outputs, e.g. from a test.
func lokiRelease(base chart.Release, variant cloudvariant.Variant, cr request.ClusterRequest, outputs cloudvariant.InfrastructureOutput) (chart.Release, error) {
	table, err := cloudvariant.Lookup(variant)
	if err != nil {
		return chart.Release{}, err
	}
	if table.LokiStorageConfigBlob == nil {
		return base, nil
	}
	cfg, err := table.LokiStorageConfigBlob(outputs)
	if err != nil {
		return chart.Release{}, fmt.Errorf("loki: %w", err)
	}
	if s3, ok := cfg["s3"].(map[string]any); ok && len(cr.Regions) > 0 {
		s3["region"] = cr.Regions[0]
	}
	base.Overrides = map[string]any{"storageConfig": cfg}
	if role := outputs.AwsIAMRoleARNs["loki"]; role != "" {
		base.SetValues = []chart.ValueSet{{Key: "serviceAccountRoleArn", Value: role}}
	}
	return base, nil
}

// externalDNSRelease and autoscalerRelease read the IAM role ARNs
// Terraform provisioned for these controllers' IRSA bindings.
// The ARNs are only populated for variants whose Table.ParseOutputs
// fills AwsIAMRoleARNs (aws.go); other variants leave the release
// without the override, which is correct — there's no IRSA concept
// outside AWS.
func externalDNSRelease(base chart.Release, outputs cloudvariant.InfrastructureOutput) chart.Release {
	if role := outputs.AwsIAMRoleARNs["external_dns"]; role != "" {
		base.SetValues = []chart.ValueSet{{Key: "serviceAccountRoleArn", Value: role}}
	}
	return base
}

func autoscalerRelease(base chart.Release, outputs cloudvariant.InfrastructureOutput) chart.Release {
	if role := outputs.AwsIAMRoleARNs["cluster_autoscaler"]; role != "" {
		base.SetValues = []chart.ValueSet{{Key: "serviceAccountRoleArn", Value: role}}
	}
	return base
}

// engineWorkloadRelease wires the ORGANIZATION env var the
// engine-workload chart reads, preserving the upstream
// cluster-id-not-organization-id quirk (quirks.go, OrganizationEnvVar)
// pending a product decision.
func engineWorkloadRelease(base chart.Release, cr request.ClusterRequest) chart.Release {
	base.SetValues = []chart.ValueSet{
		{Key: "organization", Value: OrganizationEnvVar(cr.ClusterID, cr.OrganizationID)},
	}
	return base
}
