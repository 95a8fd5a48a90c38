package core

// WorkerConfig holds the per-node configuration. It is built once at startup
// from the command line, immutable thereafter, and shared by reference with
// every component.
type WorkerConfig struct {
	CPUPoolSize int
	GPUPoolSize int
	IOPoolSize  int

	MaxMemoryPerTenantMB  int64
	MaxCPUTimePerTenantMS int64

	SandboxMode bool

	NATSURL            string
	PrometheusEndpoint string
}

// DefaultWorkerConfig returns the configuration used when a flag is left at
// its default.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		CPUPoolSize:           4,
		GPUPoolSize:           1,
		IOPoolSize:            8,
		MaxMemoryPerTenantMB:  1024,
		MaxCPUTimePerTenantMS: 3600000,
		SandboxMode:           false,
		NATSURL:               "nats://localhost:4222",
		PrometheusEndpoint:    "0.0.0.0:9090",
	}
}

// PoolSize returns the configured concurrency for a resource class.
func (c WorkerConfig) PoolSize(class ResourceClass) int {
	switch class {
	case ResourceGPU:
		return c.GPUPoolSize
	case ResourceIO:
		return c.IOPoolSize
	default:
		return c.CPUPoolSize
	}
}
