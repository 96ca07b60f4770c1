package request

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validClusterYAML = `
organization_id: org-1
cluster_id: cluster-1
execution_id: exec-1
cloud_provider: AwsEks
regions: [eu-west-3]
kubernetes_version: "1.31"
node_topology:
  static_pools:
    - name: default
      instance_type: t3.medium
      count: 3
      disk_size_gib: 50
      architecture: amd64
`

func TestDecodeClusterRequestYAML_Valid(t *testing.T) {
	t.Parallel()
	cr, err := DecodeClusterRequestYAML([]byte(validClusterYAML))
	require.NoError(t, err)
	assert.Equal(t, "cluster-1", cr.ClusterID)
	assert.Len(t, cr.NodeTopology.StaticPools, 1)
}

func TestDecodeClusterRequestYAML_MissingTopology(t *testing.T) {
	t.Parallel()
	_, err := DecodeClusterRequestYAML([]byte(`
organization_id: org-1
cluster_id: cluster-1
execution_id: exec-1
cloud_provider: AwsEks
`))
	assert.Error(t, err)
}

func TestDecodeClusterRequestYAML_Malformed(t *testing.T) {
	t.Parallel()
	_, err := DecodeClusterRequestYAML([]byte("not: valid: yaml: ["))
	assert.Error(t, err)
}

const validEnvironmentYAML = `
organization_id: org-1
project_id: proj-1
namespace: ns-1
applications:
  - long_id: app-1
    name: web
    git_url: https://example.com/repo.git
    commit: abc123
    resources: {cpu_milli: 250, memory_mib: 256}
    ports:
      - name: http
        container_port: 8080
        protocol: TCP
        public: true
    min_instances: 1
    max_instances: 3
routers:
  - long_id: router-1
    default_domain: app.example.com
    generate_certificate: true
    routes:
      - path: /
        service_long_id: app-1
`

func TestDecodeEnvironmentRequestYAML_Valid(t *testing.T) {
	t.Parallel()
	er, err := DecodeEnvironmentRequestYAML([]byte(validEnvironmentYAML))
	require.NoError(t, err)
	assert.Len(t, er.Applications, 1)
	assert.Len(t, er.Routers, 1)
}

func TestValidateEnvironmentRequest_UnknownRouteTarget(t *testing.T) {
	t.Parallel()
	er := EnvironmentRequest{
		Routers: []Router{{
			LongID:        "r1",
			DefaultDomain: "x.example.com",
			Routes:        []Route{{Path: "/", ServiceLongID: "missing"}},
		}},
	}
	err := ValidateEnvironmentRequest(er)
	assert.Error(t, err)
}

func TestValidateEnvironmentRequest_ManagedDatabaseRequiresInstanceType(t *testing.T) {
	t.Parallel()
	er := EnvironmentRequest{
		Databases: []Database{{
			LongID:    "db-1",
			Name:      "pg",
			Mode:      DatabaseModeManaged,
			Resources: ResourceSizing{CPUMilli: 100, MemoryMiB: 128},
		}},
	}
	err := ValidateEnvironmentRequest(er)
	assert.Error(t, err)
}

func TestValidateEnvironmentRequest_OversizedDatabaseDiskRejected(t *testing.T) {
	t.Parallel()
	er := EnvironmentRequest{
		Databases: []Database{{
			LongID:      "db-1",
			Name:        "pg",
			Mode:        DatabaseModeContainer,
			Resources:   ResourceSizing{CPUMilli: 100, MemoryMiB: 128},
			DiskSizeGiB: 16384,
		}},
	}
	err := ValidateEnvironmentRequest(er)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds provider maximum")
}

func TestValidateEnvironmentRequest_InvalidInstanceBounds(t *testing.T) {
	t.Parallel()
	er := EnvironmentRequest{
		Applications: []Application{{
			LongID:       "app-1",
			Name:         "web",
			Resources:    ResourceSizing{CPUMilli: 100, MemoryMiB: 128},
			MinInstances: 3,
			MaxInstances: 1,
		}},
	}
	err := ValidateEnvironmentRequest(er)
	assert.Error(t, err)
}
