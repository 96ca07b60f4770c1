// Package request implements the engine's data model: the immutable
// per-invocation ClusterRequest and EnvironmentRequest, plus the JSON
// wire shapes the embedding process hands the engine.
package request

import (
	"time"

	"github.com/imamik/clusterforge/internal/cloudvariant"
)

// ClusterRequest is immutable per invocation: created when the engine is
// invoked, read by the action engine, discarded when the invocation
// ends. Build one via ClusterRequestBuilder;
// never construct and mutate the struct directly outside this package.
type ClusterRequest struct {
	OrganizationID string `json:"organization_id" yaml:"organization_id"`
	ClusterID      string `json:"cluster_id" yaml:"cluster_id"`
	ExecutionID    string `json:"execution_id" yaml:"execution_id"`

	CloudProvider cloudvariant.Variant `json:"cloud_provider" yaml:"cloud_provider"`
	Regions       []string             `json:"regions" yaml:"regions"`

	KubernetesVersion string `json:"kubernetes_version" yaml:"kubernetes_version"`

	NodeTopology NodeTopology `json:"node_topology" yaml:"node_topology"`

	Features FeatureFlags `json:"features" yaml:"features"`

	DNSProvider      DNSProviderConfig `json:"dns_provider" yaml:"dns_provider"`
	LetsEncryptEmail string            `json:"lets_encrypt_email" yaml:"lets_encrypt_email"`
	TLSTestMode      bool              `json:"tls_test_mode" yaml:"tls_test_mode"`

	AdvancedSettings map[string]string `json:"advanced_settings,omitempty" yaml:"advanced_settings,omitempty"`
}

// FeatureFlags gates conditional chart inclusion. The chart-graph
// planner reads these; nothing else mutates or interprets them.
type FeatureFlags struct {
	MetricsHistory bool `json:"metrics_history" yaml:"metrics_history"`
	LogsHistory    bool `json:"logs_history" yaml:"logs_history"`
	Grafana        bool `json:"grafana" yaml:"grafana"`
	// Karpenter selects the Karpenter autoscaler instead of
	// cluster-autoscaler / managed node groups.
	Karpenter bool `json:"karpenter" yaml:"karpenter"`
	// QoveryDNS selects the cert-manager-webhook DNS-01 path; the
	// webhook chart is only planned when this is set.
	QoveryDNS bool `json:"qovery_dns" yaml:"qovery_dns"`
}

// DNSProviderConfig names the external DNS provider; only enough is
// modeled here to route chart values, the provider itself is an
// external collaborator.
type DNSProviderConfig struct {
	Kind       string            `json:"kind" yaml:"kind"` // e.g. "cloudflare", "route53", "qovery"
	Parameters map[string]string `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// NodeTopology is either a fixed set of static pools or an autoscaler
// configuration. Exactly one of StaticPools or Autoscaler should be set; ClusterRequestBuilder
// enforces this at Build().
type NodeTopology struct {
	StaticPools []StaticNodePool  `json:"static_pools,omitempty" yaml:"static_pools,omitempty"`
	Autoscaler  *AutoscalerConfig `json:"autoscaler,omitempty" yaml:"autoscaler,omitempty"`
}

// StaticNodePool describes one fixed-size pool.
type StaticNodePool struct {
	Name         string `json:"name" yaml:"name"`
	InstanceType string `json:"instance_type" yaml:"instance_type"`
	Count        int    `json:"count" yaml:"count"`
	DiskSizeGiB  int    `json:"disk_size_gib" yaml:"disk_size_gib"`
	Architecture string `json:"architecture" yaml:"architecture"` // "amd64" | "arm64"
}

// AutoscalerConfig describes an autoscaled pool's bounds.
type AutoscalerConfig struct {
	InstanceFamilies []string `json:"instance_families" yaml:"instance_families"`
	MinSize          int      `json:"min_size" yaml:"min_size"`
	MaxSize          int      `json:"max_size" yaml:"max_size"`
	DiskSizeGiB      int      `json:"disk_size_gib" yaml:"disk_size_gib"`
	DiskType         string   `json:"disk_type" yaml:"disk_type"`
	SpotPreference   bool     `json:"spot_preference" yaml:"spot_preference"`
	Architecture     string   `json:"architecture" yaml:"architecture"`
}

// EnvironmentRequest is the per-deploy request consumed by the workload
// pipeline.
type EnvironmentRequest struct {
	OrganizationID string `json:"organization_id" yaml:"organization_id"`
	ProjectID      string `json:"project_id" yaml:"project_id"`
	Namespace      string `json:"namespace" yaml:"namespace"`

	Applications []Application   `json:"applications" yaml:"applications"`
	Containers   []Container     `json:"containers" yaml:"containers"`
	Databases    []Database      `json:"databases" yaml:"databases"`
	HelmCharts   []HelmChartSource `json:"helm_charts" yaml:"helm_charts"`
	Routers      []Router        `json:"routers" yaml:"routers"`
}

// Application is sourced from a git commit that must be built.
type Application struct {
	LongID       string            `json:"long_id" yaml:"long_id"`
	Name         string            `json:"name" yaml:"name"`
	GitURL       string            `json:"git_url" yaml:"git_url"`
	Commit       string            `json:"commit" yaml:"commit"`
	DockerfilePath string          `json:"dockerfile_path,omitempty" yaml:"dockerfile_path,omitempty"`
	BuildArgs    map[string]string `json:"build_args,omitempty" yaml:"build_args,omitempty"`
	Resources    ResourceSizing    `json:"resources" yaml:"resources"`
	Ports        []Port            `json:"ports" yaml:"ports"`
	Probes       []Probe           `json:"probes,omitempty" yaml:"probes,omitempty"`
	EnvVars      map[string]string `json:"env_vars,omitempty" yaml:"env_vars,omitempty"` // values may be base64-encoded; decoded before chart rendering
	MountedFiles []MountedFile     `json:"mounted_files,omitempty" yaml:"mounted_files,omitempty"`
	Storages     []Storage         `json:"storages,omitempty" yaml:"storages,omitempty"`
	MinInstances int               `json:"min_instances" yaml:"min_instances"`
	MaxInstances int               `json:"max_instances" yaml:"max_instances"`
}

// Container is sourced from an existing registry reference, never built.
type Container struct {
	LongID    string            `json:"long_id" yaml:"long_id"`
	Name      string            `json:"name" yaml:"name"`
	ImageRef  string            `json:"image_ref" yaml:"image_ref"`
	Resources ResourceSizing    `json:"resources" yaml:"resources"`
	Ports     []Port            `json:"ports" yaml:"ports"`
	Probes    []Probe           `json:"probes,omitempty" yaml:"probes,omitempty"`
	EnvVars   map[string]string `json:"env_vars,omitempty" yaml:"env_vars,omitempty"`
}

// MountedFile is a file injected into the application's container at a path.
type MountedFile struct {
	MountPath string `json:"mount_path" yaml:"mount_path"`
	ContentB64 string `json:"content_base64" yaml:"content_base64"`
}

// DatabaseMode selects where the database runs.
type DatabaseMode string

const (
	DatabaseModeContainer DatabaseMode = "Container"
	DatabaseModeManaged   DatabaseMode = "Managed"
)

// Database is either self-hosted (Container, a Helm release) or Managed
// (cloud-provider-hosted, provisioned via Terraform, no Helm release).
type Database struct {
	LongID              string         `json:"long_id" yaml:"long_id"`
	Name                string         `json:"name" yaml:"name"`
	Kind                string         `json:"kind" yaml:"kind"` // "postgresql" | "mongodb" | "redis" | "mysql" ...
	Version             string         `json:"version" yaml:"version"`
	Mode                DatabaseMode   `json:"mode" yaml:"mode"`
	Resources           ResourceSizing `json:"resources" yaml:"resources"`
	DiskSizeGiB         int            `json:"disk_size_in_gib" yaml:"disk_size_in_gib"`
	DiskType            string         `json:"disk_type,omitempty" yaml:"disk_type,omitempty"`
	Public              bool           `json:"public" yaml:"public"`
	DatabaseInstanceType string        `json:"database_instance_type,omitempty" yaml:"database_instance_type,omitempty"` // required when Mode == Managed
}

// HelmChartSource sources an externally-authored chart (git or registry),
// with values from raw inline YAML or a git-hosted values file.
type HelmChartSource struct {
	LongID    string            `json:"long_id" yaml:"long_id"`
	Name      string            `json:"name" yaml:"name"`
	Source    ChartOrigin       `json:"source" yaml:"source"`
	Values    ValuesSource      `json:"values" yaml:"values"`
	SetValues map[string]string `json:"set_values,omitempty" yaml:"set_values,omitempty"`
}

// ChartOrigin is a discriminated union: Git or Registry.
type ChartOrigin struct {
	Kind       string `json:"kind" yaml:"kind"` // "git" | "registry"
	GitURL     string `json:"git_url,omitempty" yaml:"git_url,omitempty"`
	GitCommit  string `json:"git_commit,omitempty" yaml:"git_commit,omitempty"`
	GitPath    string `json:"git_path,omitempty" yaml:"git_path,omitempty"`
	Registry   string `json:"registry,omitempty" yaml:"registry,omitempty"`
	ChartName  string `json:"chart_name,omitempty" yaml:"chart_name,omitempty"`
	Version    string `json:"version,omitempty" yaml:"version,omitempty"`
}

// ValuesSource is a discriminated union: Raw inline YAML or a GitRepository
// fetch.
type ValuesSource struct {
	Kind      string `json:"kind" yaml:"kind"` // "raw" | "git"
	RawYAML   string `json:"raw_yaml,omitempty" yaml:"raw_yaml,omitempty"`
	GitURL    string `json:"git_url,omitempty" yaml:"git_url,omitempty"`
	GitCommit string `json:"git_commit,omitempty" yaml:"git_commit,omitempty"`
	GitPath   string `json:"git_path,omitempty" yaml:"git_path,omitempty"`
}

// Router exposes one or more services behind a default and/or custom
// domain.
type Router struct {
	LongID           string   `json:"long_id" yaml:"long_id"`
	DefaultDomain    string   `json:"default_domain" yaml:"default_domain"`
	CustomDomains    []string `json:"custom_domains,omitempty" yaml:"custom_domains,omitempty"`
	GenerateCertificate bool  `json:"generate_certificate" yaml:"generate_certificate"`
	Routes           []Route  `json:"routes" yaml:"routes"`
}

// Route maps a path to a target service. RewriteTarget, when set,
// rewrites the matched path before it reaches the upstream.
type Route struct {
	Path          string  `json:"path" yaml:"path"`
	ServiceLongID string  `json:"service_long_id" yaml:"service_long_id"`
	RewriteTarget *string `json:"rewrite_target,omitempty" yaml:"rewrite_target,omitempty"`
}

// Clock lets tests control timestamps without an ambient time.Now() call
// scattered through the package.
type Clock func() time.Time
