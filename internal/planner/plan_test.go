package planner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/clusterforge/internal/chart"
	"github.com/imamik/clusterforge/internal/cloudvariant"
	"github.com/imamik/clusterforge/internal/request"
)

func validClusterRequest() request.ClusterRequest {
	return request.ClusterRequest{
		ClusterID:        "cluster-1",
		OrganizationID:   "org-1",
		Regions:          []string{"eu-west-3"},
		LetsEncryptEmail: "ops@example.com",
		DNSProvider:      request.DNSProviderConfig{Kind: "route53"},
	}
}

func validAWSOutputs() cloudvariant.InfrastructureOutput {
	return cloudvariant.InfrastructureOutput{
		Variant: cloudvariant.AwsEks,
		AwsIAMRoleARNs: map[string]string{
			"loki":               "arn:aws:iam::111111111111:role/loki",
			"external_dns":       "arn:aws:iam::111111111111:role/external-dns",
			"cluster_autoscaler": "arn:aws:iam::111111111111:role/cluster-autoscaler",
		},
		AwsS3LokiBucketName: "clusterforge-loki-logs",
	}
}

func TestPlan_Deterministic(t *testing.T) {
	cr := validClusterRequest()
	cr.Features = request.FeatureFlags{MetricsHistory: true, LogsHistory: true, Grafana: true}
	outputs := validAWSOutputs()

	a, err := Plan(cloudvariant.AwsEks, outputs, cr, "")
	require.NoError(t, err)
	b, err := Plan(cloudvariant.AwsEks, outputs, cr, "")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPlan_CRDOrderingHolds(t *testing.T) {
	cr := validClusterRequest()
	releases, err := Plan(cloudvariant.AwsEks, cloudvariant.InfrastructureOutput{}, cr, "")
	require.NoError(t, err)

	levelOf := map[string]int{}
	for i, lvl := range releases {
		for _, r := range lvl {
			levelOf[r.Name] = i
		}
	}
	certManagerLevel, ok := levelOf["cert-manager"]
	require.True(t, ok)
	ingressLevel, ok := levelOf["nginx-ingress"]
	require.True(t, ok)
	assert.Less(t, certManagerLevel, ingressLevel)
}

func TestPlan_FeatureFlagsGateOptionalReleases(t *testing.T) {
	cr := validClusterRequest()
	releases, err := Plan(cloudvariant.AwsEks, cloudvariant.InfrastructureOutput{}, cr, "")
	require.NoError(t, err)

	var names []string
	for _, lvl := range releases {
		for _, r := range lvl {
			names = append(names, r.Name)
		}
	}
	assert.NotContains(t, names, "kube-prometheus-stack")
	assert.NotContains(t, names, "loki")
}

func TestPlan_CertManagerIssuersRequiresLetsEncryptEmail(t *testing.T) {
	cr := validClusterRequest()
	cr.LetsEncryptEmail = ""
	_, err := Plan(cloudvariant.AwsEks, cloudvariant.InfrastructureOutput{}, cr, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cert-manager-issuers")
}

func TestPlan_CertManagerIssuersRequiresDNSProvider(t *testing.T) {
	cr := validClusterRequest()
	cr.DNSProvider = request.DNSProviderConfig{}
	_, err := Plan(cloudvariant.AwsEks, cloudvariant.InfrastructureOutput{}, cr, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cert-manager-issuers")
}

func TestPlan_WiresIAMRoleARNsAndOrganizationIntoReleases(t *testing.T) {
	cr := validClusterRequest()
	cr.Features = request.FeatureFlags{LogsHistory: true}
	outputs := validAWSOutputs()

	releases, err := Plan(cloudvariant.AwsEks, outputs, cr, "")
	require.NoError(t, err)

	byName := map[string]chart.Release{}
	for _, lvl := range releases {
		for _, r := range lvl {
			byName[r.Name] = r
		}
	}

	loki, ok := byName["loki"]
	require.True(t, ok)
	require.Len(t, loki.SetValues, 1)
	assert.Equal(t, "serviceAccountRoleArn", loki.SetValues[0].Key)
	assert.Equal(t, outputs.AwsIAMRoleARNs["loki"], loki.SetValues[0].Value)
	storageCfg, ok := loki.Overrides["storageConfig"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "s3", storageCfg["type"])

	dns, ok := byName["external-dns"]
	require.True(t, ok)
	require.Len(t, dns.SetValues, 1)
	assert.Equal(t, outputs.AwsIAMRoleARNs["external_dns"], dns.SetValues[0].Value)

	autoscaler, ok := byName["cluster-autoscaler"]
	require.True(t, ok)
	require.Len(t, autoscaler.SetValues, 1)
	assert.Equal(t, outputs.AwsIAMRoleARNs["cluster_autoscaler"], autoscaler.SetValues[0].Value)

	workload, ok := byName["engine-workload"]
	require.True(t, ok)
	require.Len(t, workload.SetValues, 1)
	assert.Equal(t, "organization", workload.SetValues[0].Key)
	assert.Equal(t, cr.ClusterID, workload.SetValues[0].Value)
}

func TestPlan_ReleasesSatisfyValuesFileParityAgainstRealCharts(t *testing.T) {
	cr := validClusterRequest()
	cr.Features = request.FeatureFlags{LogsHistory: true}
	outputs := validAWSOutputs()

	releases, err := Plan(cloudvariant.AwsEks, outputs, cr, "")
	require.NoError(t, err)

	root := t.TempDir()
	for _, lvl := range releases {
		for _, r := range lvl {
			if len(r.SetValues) == 0 {
				continue
			}
			chartDir := filepath.Join(root, r.ChartPath)
			require.NoError(t, os.MkdirAll(chartDir, 0o755))
			require.NoError(t, os.WriteFile(filepath.Join(chartDir, "values.yaml"), []byte(valuesYAMLFor(r)), 0o644))
			assert.NoError(t, chart.CheckValuesFileParity(root, r), "release %s", r.Name)
		}
	}
}

// valuesYAMLFor builds the minimal values.yaml a real chart would declare
// to cover r's SetValues keys, standing in for the charts this repo's
// bootstrap/common/charts tree ships on disk.
func valuesYAMLFor(r chart.Release) string {
	out := ""
	for _, sv := range r.SetValues {
		out += sv.Key + ": \"\"\n"
	}
	return out
}

func TestPlanDestroy_PromotesToEarliestEligibleLevel(t *testing.T) {
	cr := validClusterRequest()
	releases, err := PlanDestroy(cloudvariant.AwsEks, cloudvariant.InfrastructureOutput{}, cr, "", []string{"storage-class", "metrics-server"})
	require.NoError(t, err)

	var storageLevel, metricsLevel = -1, -1
	for i, lvl := range releases {
		for _, r := range lvl {
			assert.Equal(t, chart.ActionDestroy, r.Action)
			if r.Name == "storage-class" {
				storageLevel = i
			}
			if r.Name == "metrics-server" {
				metricsLevel = i
			}
		}
	}
	require.NotEqual(t, -1, storageLevel)
	require.NotEqual(t, -1, metricsLevel)
	// metrics-server has no dependents in the skeleton graph, so it's
	// promoted to destroy first (level 0); storage-class's only dependent
	// (loki) is gated off by these feature flags and so is not planned,
	// which makes it eligible immediately too.
	assert.Equal(t, 0, metricsLevel)
	assert.Equal(t, 0, storageLevel)
}

func TestPlanDestroy_OnlyIncludesNamedReleases(t *testing.T) {
	cr := validClusterRequest()
	releases, err := PlanDestroy(cloudvariant.AwsEks, cloudvariant.InfrastructureOutput{}, cr, "", []string{"cert-manager"})
	require.NoError(t, err)

	var names []string
	for _, lvl := range releases {
		for _, r := range lvl {
			names = append(names, r.Name)
		}
	}
	assert.Equal(t, []string{"cert-manager"}, names)
}
