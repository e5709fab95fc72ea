package grpcsource

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoEndpoints indicates no endpoint is configured for a service.
var ErrNoEndpoints = errors.New("grpcsource: no endpoints configured")

// EndpointProvider chooses the endpoint (host:port) for one call to a fully
// qualified gRPC service. Selection policy lives entirely in the provider —
// the transport asks once per call and dials whatever comes back — so
// balancing, failover and discovery can be swapped without touching the
// transport. Implementations must be safe for concurrent use.
type EndpointProvider interface {
	Pick(ctx context.Context, service string) (string, error)
}

// RoundRobin rotates through a static per-service endpoint list.
type RoundRobin struct {
	mu        sync.Mutex
	next      map[string]int
	endpoints map[string][]string
}

// NewRoundRobin copies endpoints into a provider.
func NewRoundRobin(endpoints map[string][]string) *RoundRobin {
	cp := make(map[string][]string, len(endpoints))
	for svc, eps := range endpoints {
		cp[svc] = append([]string(nil), eps...)
	}
	return &RoundRobin{next: make(map[string]int, len(cp)), endpoints: cp}
}

// Pick implements EndpointProvider.
func (r *RoundRobin) Pick(ctx context.Context, service string) (string, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	eps := r.endpoints[service]
	if len(eps) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoEndpoints, service)
	}
	i := r.next[service] % len(eps)
	r.next[service] = i + 1
	return eps[i], nil
}
