package request

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResourceSizing_Validate(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ResourceSizing{CPUMilli: 100, MemoryMiB: 128}.Validate())
	assert.Error(t, ResourceSizing{CPUMilli: 0, MemoryMiB: 128}.Validate())
	assert.Error(t, ResourceSizing{CPUMilli: 100, MemoryMiB: 0}.Validate())
	assert.Error(t, ResourceSizing{CPUMilli: 100, MemoryMiB: 128, CPULimitMilli: 50}.Validate())
	assert.Error(t, ResourceSizing{CPUMilli: 100, MemoryMiB: 128, MemoryLimitMiB: 64}.Validate())
	assert.NoError(t, ResourceSizing{CPUMilli: 100, MemoryMiB: 128, CPULimitMilli: 200, MemoryLimitMiB: 256}.Validate())
}

func TestPort_Validate(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Port{Name: "http", ContainerPort: 8080, Protocol: "TCP"}.Validate())
	assert.Error(t, Port{Name: "bad", ContainerPort: 0}.Validate())
	assert.Error(t, Port{Name: "bad", ContainerPort: 70000}.Validate())
	assert.Error(t, Port{Name: "bad", ContainerPort: 80, Protocol: "SCTP"}.Validate())
}

func TestProbe_Validate(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Probe{Kind: ProbeKindHTTP, Path: "/healthz", Port: 8080}.Validate())
	assert.Error(t, Probe{Kind: ProbeKindHTTP}.Validate())
	assert.NoError(t, Probe{Kind: ProbeKindTCP, Port: 5432}.Validate())
	assert.Error(t, Probe{Kind: ProbeKindTCP}.Validate())
	assert.NoError(t, Probe{Kind: ProbeKindExec, Command: []string{"true"}}.Validate())
	assert.Error(t, Probe{Kind: ProbeKindExec}.Validate())
	assert.Error(t, Probe{Kind: "bogus"}.Validate())
}

func TestStorage_Validate(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Storage{MountPath: "/data", SizeGiB: 10}.Validate())
	assert.Error(t, Storage{MountPath: "", SizeGiB: 10}.Validate())
	assert.Error(t, Storage{MountPath: "/data", SizeGiB: 0}.Validate())
}
