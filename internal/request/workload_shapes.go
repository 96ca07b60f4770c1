package request

import "fmt"

// ResourceSizing holds resource quantities as milliCPU and MiB rather
// than raw Kubernetes quantity strings so the
// planner and chart renderer can do arithmetic on sizing without parsing.
type ResourceSizing struct {
	CPUMilli   int `json:"cpu_milli" yaml:"cpu_milli"`
	MemoryMiB  int `json:"memory_mib" yaml:"memory_mib"`
	// A zero limit means no limit is given: Validate skips its check, and
	// the workload builders pass the value to the chart unchanged.
	CPULimitMilli  int `json:"cpu_limit_milli,omitempty" yaml:"cpu_limit_milli,omitempty"`
	MemoryLimitMiB int `json:"memory_limit_mib,omitempty" yaml:"memory_limit_mib,omitempty"`
}

// Validate checks the sizing is internally consistent.
func (r ResourceSizing) Validate() error {
	if r.CPUMilli <= 0 {
		return fmt.Errorf("cpu_milli must be positive, got %d", r.CPUMilli)
	}
	if r.MemoryMiB <= 0 {
		return fmt.Errorf("memory_mib must be positive, got %d", r.MemoryMiB)
	}
	if r.CPULimitMilli != 0 && r.CPULimitMilli < r.CPUMilli {
		return fmt.Errorf("cpu_limit_milli %d must be >= cpu_milli %d", r.CPULimitMilli, r.CPUMilli)
	}
	if r.MemoryLimitMiB != 0 && r.MemoryLimitMiB < r.MemoryMiB {
		return fmt.Errorf("memory_limit_mib %d must be >= memory_mib %d", r.MemoryLimitMiB, r.MemoryMiB)
	}
	return nil
}

// Port is one exposed container port.
type Port struct {
	Name          string `json:"name" yaml:"name"`
	ContainerPort int    `json:"container_port" yaml:"container_port"`
	Protocol      string `json:"protocol" yaml:"protocol"` // "HTTP" | "GRPC" | "TCP" | "UDP"
	Public        bool   `json:"public" yaml:"public"`
}

func (p Port) Validate() error {
	if p.ContainerPort <= 0 || p.ContainerPort > 65535 {
		return fmt.Errorf("port %q: container_port %d out of range", p.Name, p.ContainerPort)
	}
	switch p.Protocol {
	case "HTTP", "GRPC", "TCP", "UDP", "":
	default:
		return fmt.Errorf("port %q: unsupported protocol %q", p.Name, p.Protocol)
	}
	return nil
}

// ProbeKind selects the probe mechanism.
type ProbeKind string

const (
	ProbeKindHTTP ProbeKind = "http"
	ProbeKindTCP  ProbeKind = "tcp"
	ProbeKindExec ProbeKind = "exec"
)

// Probe models a liveness/readiness/startup check.
type Probe struct {
	Kind                ProbeKind `json:"kind" yaml:"kind"`
	Type                string    `json:"type" yaml:"type"` // "liveness" | "readiness" | "startup"
	Path                string    `json:"path,omitempty" yaml:"path,omitempty"`
	Port                int       `json:"port,omitempty" yaml:"port,omitempty"`
	Command             []string  `json:"command,omitempty" yaml:"command,omitempty"`
	InitialDelaySeconds int       `json:"initial_delay_seconds" yaml:"initial_delay_seconds"`
	PeriodSeconds       int       `json:"period_seconds" yaml:"period_seconds"`
	TimeoutSeconds      int       `json:"timeout_seconds" yaml:"timeout_seconds"`
	FailureThreshold    int       `json:"failure_threshold" yaml:"failure_threshold"`
}

func (p Probe) Validate() error {
	switch p.Kind {
	case ProbeKindHTTP:
		if p.Path == "" || p.Port == 0 {
			return fmt.Errorf("http probe requires path and port")
		}
	case ProbeKindTCP:
		if p.Port == 0 {
			return fmt.Errorf("tcp probe requires port")
		}
	case ProbeKindExec:
		if len(p.Command) == 0 {
			return fmt.Errorf("exec probe requires a command")
		}
	default:
		return fmt.Errorf("unsupported probe kind %q", p.Kind)
	}
	return nil
}

// Storage is a persistent volume claim attached to an application.
type Storage struct {
	MountPath   string `json:"mount_path" yaml:"mount_path"`
	SizeGiB     int    `json:"size_gib" yaml:"size_gib"`
	StorageClass string `json:"storage_class,omitempty" yaml:"storage_class,omitempty"`
}

func (s Storage) Validate() error {
	if s.MountPath == "" {
		return fmt.Errorf("storage mount_path must not be empty")
	}
	if s.SizeGiB <= 0 {
		return fmt.Errorf("storage %q: size_gib must be positive", s.MountPath)
	}
	return nil
}
