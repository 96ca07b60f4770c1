// Package cloudvariant captures per-cloud variance as a tagged constant
// plus a per-variant function table for the small set of operations
// that actually diverge:
// Terraform output schema, Loki storage config shape, default storage
// class name, instance-type validation, and bucket region mapping.
package cloudvariant

import "fmt"

// Variant is the tagged cloud-provider discriminator.
type Variant string

const (
	AwsEks    Variant = "AwsEks"
	AwsEc2    Variant = "AwsEc2"
	Gke       Variant = "Gke"
	ScwKapsule Variant = "ScwKapsule"
	AzureAks  Variant = "AzureAks"
	OnPremise Variant = "OnPremise"
)

// Table holds the per-variant behavior the rest of the engine reads
// instead of branching on Variant ad-hoc. Constructed once per variant at
// process start (see aws.go, gcp.go, scw.go, azure.go, onprem.go) and held
// by value — never mutated after construction.
type Table struct {
	Variant Variant

	// DefaultStorageClassName is the name of the StorageClass the
	// storage-class chart (level 1) installs as cluster default.
	DefaultStorageClassName string

	// OutputKeys lists the Terraform output keys this variant's phase
	// must populate; ParseOutputs fails if any are absent.
	OutputKeys []string

	// ParseOutputs decodes the raw Terraform `output -json` map into an
	// InfrastructureOutput for this variant.
	ParseOutputs func(raw map[string]any) (InfrastructureOutput, error)

	// ValidateInstanceType reports whether the given instance family is
	// usable for this variant's node pools.
	ValidateInstanceType func(instanceType string) error

	// BucketRegion maps a cluster region to the bucket-region string the
	// storage adapter should use (some variants host buckets in a fixed
	// region regardless of cluster region).
	BucketRegion func(clusterRegion string) string

	// LokiStorageConfigBlob renders the promtail/loki values fragment for
	// this variant's object-storage backend.
	LokiStorageConfigBlob func(out InfrastructureOutput) (map[string]any, error)
}

// Tables is populated by each variant's init() via Register.
var tables = map[Variant]Table{}

// Register installs t under t.Variant. Called once per variant file's
// init(); a duplicate registration is a programming error.
func Register(t Table) {
	if _, exists := tables[t.Variant]; exists {
		panic(fmt.Sprintf("cloudvariant: %s already registered", t.Variant))
	}
	tables[t.Variant] = t
}

// Lookup returns the registered Table for v.
func Lookup(v Variant) (Table, error) {
	t, ok := tables[v]
	if !ok {
		return Table{}, fmt.Errorf("cloudvariant: unsupported variant %q", v)
	}
	return t, nil
}
