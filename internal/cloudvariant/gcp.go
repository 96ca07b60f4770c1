package cloudvariant

import "fmt"

var gcpOutputKeys = []string{
	"gke_cluster_public_hostname",
	"loki_logging_service_account_email",
}

func init() {
	Register(Table{
		Variant:                 Gke,
		DefaultStorageClassName: "gcp-pd-csi-standard-rwo",
		OutputKeys:              gcpOutputKeys,
		ParseOutputs:            parseGCPOutputs,
		ValidateInstanceType:    validateGCPInstanceType,
		BucketRegion:            func(clusterRegion string) string { return clusterRegion },
		LokiStorageConfigBlob:   lokiStorageConfigGCS,
	})
}

func parseGCPOutputs(raw map[string]any) (InfrastructureOutput, error) {
	if missing := RequireKeys(raw, gcpOutputKeys); len(missing) > 0 {
		return InfrastructureOutput{}, fmt.Errorf("gcp terraform outputs missing required keys: %v", missing)
	}
	return InfrastructureOutput{
		Variant:                        Gke,
		GkeClusterPublicHostname:       asString(raw["gke_cluster_public_hostname"]),
		LokiLoggingServiceAccountEmail: asString(raw["loki_logging_service_account_email"]),
		ClusterPublicHostname:          asString(raw["gke_cluster_public_hostname"]),
	}, nil
}

var gcpSupportedMachineFamilies = map[string]bool{
	"e2": true, "n2": true, "n2d": true, "c2": true,
}

func validateGCPInstanceType(instanceType string) error {
	if len(instanceType) < 2 {
		return fmt.Errorf("unsupported GCP machine type %q", instanceType)
	}
	family := instanceType[:2]
	if !gcpSupportedMachineFamilies[family] {
		return fmt.Errorf("unsupported GCP machine family %q", family)
	}
	return nil
}

func lokiStorageConfigGCS(out InfrastructureOutput) (map[string]any, error) {
	if out.LokiLoggingServiceAccountEmail == "" {
		return nil, fmt.Errorf("gcp: loki logging service account not populated in infrastructure output")
	}
	return map[string]any{
		"type": "gcs",
		"gcs": map[string]any{
			"service_account": out.LokiLoggingServiceAccountEmail,
		},
	}, nil
}
