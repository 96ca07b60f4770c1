package cloudvariant

import "fmt"

var scwOutputKeys = []string{
	"cluster_security_group_id",
}

func init() {
	Register(Table{
		Variant:                 ScwKapsule,
		DefaultStorageClassName: "scw-bssd-retain",
		OutputKeys:              scwOutputKeys,
		ParseOutputs:            parseSCWOutputs,
		ValidateInstanceType:    validateSCWInstanceType,
		BucketRegion:            func(string) string { return "fr-par" }, // Scaleway Object Storage is region-pinned today
		LokiStorageConfigBlob:   lokiStorageConfigScaleway,
	})
}

func parseSCWOutputs(raw map[string]any) (InfrastructureOutput, error) {
	if missing := RequireKeys(raw, scwOutputKeys); len(missing) > 0 {
		return InfrastructureOutput{}, fmt.Errorf("scaleway terraform outputs missing required keys: %v", missing)
	}
	return InfrastructureOutput{
		Variant:                ScwKapsule,
		ClusterSecurityGroupID: asString(raw["cluster_security_group_id"]),
	}, nil
}

var scwSupportedInstanceFamilies = map[string]bool{
	"DEV1": true, "GP1": true, "PRO2": true,
}

func validateSCWInstanceType(instanceType string) error {
	family, _, _ := cutFirst(instanceType, "-")
	if !scwSupportedInstanceFamilies[family] {
		return fmt.Errorf("unsupported Scaleway instance family %q", family)
	}
	return nil
}

func cutFirst(s, sep string) (before, after string, found bool) {
	for i := 0; i+len(sep) <= len(s); i++ {
		if s[i:i+len(sep)] == sep {
			return s[:i], s[i+len(sep):], true
		}
	}
	return s, "", false
}

func lokiStorageConfigScaleway(InfrastructureOutput) (map[string]any, error) {
	return map[string]any{
		"type": "filesystem", // Scaleway variant runs Loki with local PVC storage, not object storage
	}, nil
}
