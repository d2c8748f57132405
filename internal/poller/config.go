package poller

import (
	"time"

	"diagnosys-poller/internal/domain"
)

// RetryPolicy controls in-cycle retries of fetch and diagnose calls
type RetryPolicy struct {
	MaxRetries  int           // 0 = one attempt per cycle
	BaseBackoff time.Duration // initial backoff duration
	MaxBackoff  time.Duration // upper bound on backoff
	JitterFn    func(time.Duration) time.Duration
}

// HealthPolicy defines when an endpoint is considered unhealthy or recovered
type HealthPolicy struct {
	FailureThreshold int // consecutive failures to mark unhealthy
	SuccessThreshold int // consecutive successes to mark healthy again
}

// Policy is fixed for the lifetime of an Orchestrator.
type Policy struct {
	Asset    domain.AssetID
	Interval time.Duration // <= 0 runs a single cycle
	Retry    RetryPolicy
	Health   HealthPolicy
}

// Continuous reports whether the orchestrator repeats cycles.
func (p Policy) Continuous() bool { return p.Interval > 0 }

func DefaultPolicy() Policy {
	return Policy{
		Asset: domain.DefaultAsset,
		Retry: RetryPolicy{
			MaxRetries:  0,
			BaseBackoff: 200 * time.Millisecond,
			MaxBackoff:  2 * time.Second,
			JitterFn:    func(d time.Duration) time.Duration { return d / 2 }, //default jitter:50%
		},
		Health: HealthPolicy{
			FailureThreshold: 3,
			SuccessThreshold: 1,
		},
	}
}
