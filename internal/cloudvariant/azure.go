package cloudvariant

import "fmt"

func init() {
	Register(Table{
		Variant:                 AzureAks,
		DefaultStorageClassName: "azure-disk-csi-premium",
		OutputKeys:              []string{"cluster_security_group_id"},
		ParseOutputs: func(raw map[string]any) (InfrastructureOutput, error) {
			if missing := RequireKeys(raw, []string{"cluster_security_group_id"}); len(missing) > 0 {
				return InfrastructureOutput{}, fmt.Errorf("azure terraform outputs missing required keys: %v", missing)
			}
			return InfrastructureOutput{
				Variant:                AzureAks,
				ClusterSecurityGroupID: asString(raw["cluster_security_group_id"]),
			}, nil
		},
		ValidateInstanceType: func(instanceType string) error {
			if instanceType == "" {
				return fmt.Errorf("azure instance type must not be empty")
			}
			return nil
		},
		BucketRegion: func(clusterRegion string) string { return clusterRegion },
		LokiStorageConfigBlob: func(InfrastructureOutput) (map[string]any, error) {
			return map[string]any{"type": "azure"}, nil
		},
	})
}
