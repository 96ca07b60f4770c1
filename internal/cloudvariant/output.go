package cloudvariant

// InfrastructureOutput is the cloud-variant struct populated from
// Terraform outputs. Fields are a superset across variants; a variant's
// ParseOutputs only populates the subset relevant to it and leaves the
// rest at zero value.
type InfrastructureOutput struct {
	Variant Variant

	AwsAccountID            string
	AwsIAMRoleARNs          map[string]string // role name -> ARN, e.g. "loki", "external_dns", "cluster_autoscaler"
	AwsS3LokiBucketName     string
	LokiStorageConfigAWSS3  map[string]any
	ClusterSecurityGroupID  string

	GkeClusterPublicHostname     string
	LokiLoggingServiceAccountEmail string

	// ClusterPublicHostname is the cloud-agnostic accessor other
	// components read instead of branching on Variant.
	ClusterPublicHostname string
}

// RequireKeys checks that every key in keys is present (non-empty) in
// raw; an absent required output key is an error, never a zero value.
func RequireKeys(raw map[string]any, keys []string) []string {
	var missing []string
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			missing = append(missing, k)
		}
	}
	return missing
}
