package router

// RouterConfig holds configuration for the partition router.
type RouterConfig struct {
	Partitions    int // Worker partitions. Default: 4
	QueueCapacity int // Per-partition queue bound. Default: 4096
}

// DefaultRouterConfig returns default configuration.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		Partitions:    4,
		QueueCapacity: 4096,
	}
}
