package poller

import (
	"sort"
	"sync"

	"diagnosys-poller/internal/metrics"
)

// EndpointState represents the health state of an endpoint.
type EndpointState int

const (
	Healthy EndpointState = iota
	Unhealthy
)

func (s EndpointState) String() string {
	if s == Unhealthy {
		return "unhealthy"
	}
	return "healthy"
}

// Endpoint tracks the health-related state of one remote call site,
// keyed as "<asset>/<stage>".
type Endpoint struct {
	Name         string        `json:"name"`
	State        EndpointState `json:"-"`
	Status       string        `json:"status"`
	FailureCount int           `json:"failure_count"`
	SuccessCount int           `json:"success_count"`
}

// EndpointTracker manages the health state of every endpoint the
// orchestrators call. It is shared between orchestrators.
type EndpointTracker struct {
	mu        sync.RWMutex
	endpoints map[string]*Endpoint
	policy    HealthPolicy
	metrics   *metrics.Registry
}

// NewEndpointTracker creates a new tracker. reg may be nil.
func NewEndpointTracker(policy HealthPolicy, reg *metrics.Registry) *EndpointTracker {
	if policy.FailureThreshold <= 0 {
		policy.FailureThreshold = 1
	}
	if policy.SuccessThreshold <= 0 {
		policy.SuccessThreshold = 1
	}
	return &EndpointTracker{
		endpoints: make(map[string]*Endpoint),
		policy:    policy,
		metrics:   reg,
	}
}

// Track registers an endpoint as healthy if it is not known yet
func (t *EndpointTracker) Track(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.endpoints[name]; !exists {
		t.endpoints[name] = &Endpoint{Name: name, State: Healthy}
	}
}

// MarkFailure records a failed call
func (t *EndpointTracker) MarkFailure(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ep, ok := t.endpoints[name]
	if !ok {
		return
	}
	ep.FailureCount++
	ep.SuccessCount = 0
	t.add(metrics.EndpointFailuresTotal, 1)

	if ep.State == Healthy && ep.FailureCount >= t.policy.FailureThreshold {
		ep.State = Unhealthy
		t.add(metrics.EndpointsUnhealthy, 1)
	}
}

// MarkSuccess records a successful call
func (t *EndpointTracker) MarkSuccess(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ep, ok := t.endpoints[name]
	if !ok {
		return
	}
	ep.SuccessCount++
	ep.FailureCount = 0

	if ep.State == Unhealthy && ep.SuccessCount >= t.policy.SuccessThreshold {
		ep.State = Healthy
		t.add(metrics.EndpointsUnhealthy, -1)
	}
}

func (t *EndpointTracker) IsHealthy(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ep, ok := t.endpoints[name]
	return ok && ep.State == Healthy
}

// Snapshot returns a copy of every endpoint, sorted by name.
func (t *EndpointTracker) Snapshot() []Endpoint {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Endpoint, 0, len(t.endpoints))
	for _, ep := range t.endpoints {
		cp := *ep
		cp.Status = ep.State.String()
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Unhealthy returns the names of unhealthy endpoints.
func (t *EndpointTracker) Unhealthy() []string {
	var names []string
	for _, ep := range t.Snapshot() {
		if ep.State == Unhealthy {
			names = append(names, ep.Name)
		}
	}
	return names
}

func (t *EndpointTracker) add(key metrics.MetricKey, delta int64) {
	if t.metrics != nil {
		t.metrics.Add(key, delta)
	}
}
