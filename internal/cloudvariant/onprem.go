package cloudvariant

// OnPremise has no Terraform-managed cloud resources to read outputs
// from — the bare-metal/on-prem variant's ParseOutputs is a no-op that
// always succeeds; no external SDK is consulted at all, there is no
// cloud control plane to call.
func init() {
	Register(Table{
		Variant:                 OnPremise,
		DefaultStorageClassName: "local-path",
		OutputKeys:              nil,
		ParseOutputs: func(map[string]any) (InfrastructureOutput, error) {
			return InfrastructureOutput{Variant: OnPremise}, nil
		},
		ValidateInstanceType: func(string) error { return nil },
		BucketRegion:         func(string) string { return "" },
		LokiStorageConfigBlob: func(InfrastructureOutput) (map[string]any, error) {
			return map[string]any{"type": "filesystem"}, nil
		},
	})
}
