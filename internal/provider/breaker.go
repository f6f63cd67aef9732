package provider

import (
	"time"

	"github.com/sony/gobreaker"
)

// NewProviderBreaker builds a per-provider circuit breaker that opens after
// 5 consecutive failures and probes again after 30s, classifying
// ProviderTransient failures (§7) as the failures it counts. Grounded on
// jordigilh-kubernaut's circuitbreaker.NewManager(gobreaker.Settings{...})
// usage.
func NewProviderBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}
