package request

import "fmt"

// RegistryKind discriminates the container registry union; each variant
// carries a URL and the credential fields appropriate to it.
type RegistryKind string

const (
	RegistryDockerHub          RegistryKind = "DockerHub"
	RegistryDoCr               RegistryKind = "DoCr"
	RegistryScalewayCr         RegistryKind = "ScalewayCr"
	RegistryPrivateEcr         RegistryKind = "PrivateEcr"
	RegistryPublicEcr          RegistryKind = "PublicEcr"
	RegistryAzureCr            RegistryKind = "AzureCr"
	RegistryGenericCr          RegistryKind = "GenericCr"
	RegistryGcpArtifactRegistry RegistryKind = "GcpArtifactRegistry"
)

// Registry is a discriminated union over the eight supported container
// registry kinds. Only the fields relevant to Kind are populated; Validate
// enforces the per-kind required subset.
type Registry struct {
	Kind RegistryKind `json:"kind" yaml:"kind"`

	URL      string `json:"url,omitempty" yaml:"url,omitempty"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	PasswordSecretRef string `json:"password_secret_ref,omitempty" yaml:"password_secret_ref,omitempty"`

	// AWS ECR
	Region  string `json:"region,omitempty" yaml:"region,omitempty"`
	RoleARN string `json:"role_arn,omitempty" yaml:"role_arn,omitempty"`

	// GCP Artifact Registry
	ProjectID string `json:"project_id,omitempty" yaml:"project_id,omitempty"`

	// Scaleway / DigitalOcean
	AccessKey       string `json:"access_key,omitempty" yaml:"access_key,omitempty"`
	SecretKeySecretRef string `json:"secret_key_secret_ref,omitempty" yaml:"secret_key_secret_ref,omitempty"`
}

// Validate enforces the required field subset for Kind.
func (r Registry) Validate() error {
	switch r.Kind {
	case RegistryDockerHub:
		if r.Username == "" {
			return fmt.Errorf("DockerHub registry requires username")
		}
	case RegistryDoCr, RegistryScalewayCr:
		if r.AccessKey == "" {
			return fmt.Errorf("%s registry requires access_key", r.Kind)
		}
	case RegistryPrivateEcr, RegistryPublicEcr:
		if r.Region == "" {
			return fmt.Errorf("%s registry requires region", r.Kind)
		}
	case RegistryAzureCr:
		if r.URL == "" {
			return fmt.Errorf("AzureCr registry requires url")
		}
	case RegistryGenericCr:
		if r.URL == "" {
			return fmt.Errorf("GenericCr registry requires url")
		}
	case RegistryGcpArtifactRegistry:
		if r.ProjectID == "" || r.Region == "" {
			return fmt.Errorf("GcpArtifactRegistry registry requires project_id and region")
		}
	default:
		return fmt.Errorf("unsupported registry kind %q", r.Kind)
	}
	return nil
}
