// Package metrics exposes Prometheus instrumentation for long-running
// backup, restore, validate, and gc invocations. Metrics are opt-in: until
// InitRegistry is called, every recording function is a no-op so the CLI
// carries zero overhead for short-lived commands.
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.Mutex
	registry *prometheus.Registry
	enabled  atomic.Bool
)

// InitRegistry creates and installs the package-level Prometheus registry.
// Safe to call more than once; later calls are no-ops.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()

	if registry != nil {
		return registry
	}

	registry = prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	enabled.Store(true)
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return enabled.Load()
}

// GetRegistry returns the package-level registry, initializing it if needed.
func GetRegistry() *prometheus.Registry {
	mu.Lock()
	r := registry
	mu.Unlock()
	if r != nil {
		return r
	}
	return InitRegistry()
}

// Reset tears down the registry. Intended for tests that call InitRegistry
// repeatedly across test cases.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	registry = nil
	enabled.Store(false)
}
