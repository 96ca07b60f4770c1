package request

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/imamik/clusterforge/internal/eventlog"
)

// MaxDatabaseDiskSizeGiB is the largest disk size any supported cloud
// provider's managed or self-hosted volume can satisfy. A request above
// this is rejected before Terraform or Helm
// is invoked.
const MaxDatabaseDiskSizeGiB = 16000

// DecodeClusterRequestYAML parses a raw YAML document into a
// ClusterRequest and validates it. Unmarshal then validate; no custom
// decoder.
func DecodeClusterRequestYAML(data []byte) (ClusterRequest, error) {
	var cr ClusterRequest
	if err := yaml.Unmarshal(data, &cr); err != nil {
		return ClusterRequest{}, fmt.Errorf("decode cluster request: %w", err)
	}
	if err := ValidateClusterRequest(cr); err != nil {
		return ClusterRequest{}, err
	}
	return cr, nil
}

// DecodeEnvironmentRequestYAML parses a raw YAML document into an
// EnvironmentRequest and validates it.
func DecodeEnvironmentRequestYAML(data []byte) (EnvironmentRequest, error) {
	var er EnvironmentRequest
	if err := yaml.Unmarshal(data, &er); err != nil {
		return EnvironmentRequest{}, fmt.Errorf("decode environment request: %w", err)
	}
	if err := ValidateEnvironmentRequest(er); err != nil {
		return EnvironmentRequest{}, err
	}
	return er, nil
}

// ValidateClusterRequest re-runs the builder's invariants against a
// request obtained by decoding rather than by the builder, so both entry
// points share one source of truth.
func ValidateClusterRequest(cr ClusterRequest) error {
	if cr.OrganizationID == "" || cr.ClusterID == "" || cr.ExecutionID == "" {
		return fmt.Errorf("cluster request: organization_id, cluster_id and execution_id are required")
	}
	if cr.CloudProvider == "" {
		return fmt.Errorf("cluster request: cloud_provider is required")
	}
	if len(cr.NodeTopology.StaticPools) == 0 && cr.NodeTopology.Autoscaler == nil {
		return fmt.Errorf("cluster request: node_topology requires either static_pools or autoscaler")
	}
	if len(cr.NodeTopology.StaticPools) > 0 && cr.NodeTopology.Autoscaler != nil {
		return fmt.Errorf("cluster request: node_topology must not set both static_pools and autoscaler")
	}
	return nil
}

// ValidateEnvironmentRequest checks the request's internal consistency:
// every route must target a known service long ID, and every leaf
// resource sizing/port/probe/storage must be individually valid.
func ValidateEnvironmentRequest(er EnvironmentRequest) error {
	known := make(map[string]bool)
	for _, a := range er.Applications {
		known[a.LongID] = true
		if err := validateApplication(a); err != nil {
			return err
		}
	}
	for _, c := range er.Containers {
		known[c.LongID] = true
		if err := validateContainer(c); err != nil {
			return err
		}
	}
	for _, d := range er.Databases {
		known[d.LongID] = true
		if err := validateDatabase(d); err != nil {
			return err
		}
	}
	for _, h := range er.HelmCharts {
		known[h.LongID] = true
	}
	for _, r := range er.Routers {
		for _, route := range r.Routes {
			if !known[route.ServiceLongID] {
				return fmt.Errorf("router %s: route %s targets unknown service %s", r.LongID, route.Path, route.ServiceLongID)
			}
		}
	}
	return nil
}

func validateApplication(a Application) error {
	if err := a.Resources.Validate(); err != nil {
		return fmt.Errorf("application %s: %w", a.Name, err)
	}
	for _, p := range a.Ports {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("application %s: %w", a.Name, err)
		}
	}
	for _, p := range a.Probes {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("application %s: %w", a.Name, err)
		}
	}
	for _, s := range a.Storages {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("application %s: %w", a.Name, err)
		}
	}
	if a.MinInstances < 0 || a.MaxInstances < a.MinInstances {
		return fmt.Errorf("application %s: invalid instance bounds [%d,%d]", a.Name, a.MinInstances, a.MaxInstances)
	}
	return nil
}

func validateContainer(c Container) error {
	if err := c.Resources.Validate(); err != nil {
		return fmt.Errorf("container %s: %w", c.Name, err)
	}
	for _, p := range c.Ports {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("container %s: %w", c.Name, err)
		}
	}
	for _, p := range c.Probes {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("container %s: %w", c.Name, err)
		}
	}
	return nil
}

func validateDatabase(d Database) error {
	if err := d.Resources.Validate(); err != nil {
		return fmt.Errorf("database %s: %w", d.Name, err)
	}
	if d.Mode == DatabaseModeManaged && d.DatabaseInstanceType == "" {
		return fmt.Errorf("database %s: managed mode requires database_instance_type", d.Name)
	}
	if d.DiskSizeGiB > MaxDatabaseDiskSizeGiB {
		return eventlog.Newf(eventlog.TagObjectStorageError, nil, "database %s: disk_size_in_gib %d exceeds provider maximum %d", d.Name, d.DiskSizeGiB, MaxDatabaseDiskSizeGiB).WithSubkind("OverSize")
	}
	return nil
}
