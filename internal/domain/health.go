package domain

import (
	"context"
	"time"
)

// CheckName identifies one probe type.
type CheckName string

const (
	// CheckResource verifies the slot's infrastructure is running
	// (the resource answers on its address at all).
	CheckResource CheckName = "resource-running"
	// CheckEndpoint verifies the slot's health endpoint returns a
	// success status code.
	CheckEndpoint CheckName = "endpoint-reachable"
	// CheckLatency verifies the health endpoint answers within the
	// configured round-trip threshold. Fail-closed: unreachable counts
	// as failure, never as skip.
	CheckLatency CheckName = "latency-threshold"
	// CheckHeaders verifies the health endpoint carries the required
	// security headers.
	CheckHeaders CheckName = "security-headers"
)

// DefaultChecks is the full probe set run for a validation round.
var DefaultChecks = []CheckName{CheckResource, CheckEndpoint, CheckLatency, CheckHeaders}

// SlotEndpoint is the resolved network identity of one slot: where its
// health endpoint lives and the raw address for resource-level probes.
type SlotEndpoint struct {
	Slot      Slot
	HealthURL string
	Addr      string // host:port
}

// CheckResult is the outcome of a single probe. Never mutated after
// construction.
type CheckResult struct {
	Check   CheckName
	Passed  bool
	Detail  string
	Latency time.Duration
}

// HealthVerdict aggregates one validation round for a slot. Passed is
// the logical AND of all check results. Created fresh per validation
// call and never mutated.
type HealthVerdict struct {
	Slot        Slot
	Passed      bool
	Checks      []CheckResult
	EvaluatedAt time.Time
}

// FailedChecks returns the names of checks that did not pass.
func (v HealthVerdict) FailedChecks() []CheckName {
	var failed []CheckName
	for _, c := range v.Checks {
		if !c.Passed {
			failed = append(failed, c.Check)
		}
	}
	return failed
}

// Prober executes a single health check against a slot endpoint. A
// prober never retries and never panics on probe failure: connection
// timeouts, non-success status codes and missing resources all map to
// Passed=false with a human-readable Detail. Retry is the validator's
// responsibility.
type Prober interface {
	Probe(ctx context.Context, endpoint SlotEndpoint, check CheckName) CheckResult
}

// EndpointResolver resolves a slot's network identity from the
// provisioning engine's live outputs.
type EndpointResolver interface {
	Resolve(ctx context.Context, environment string, slot Slot) (SlotEndpoint, error)
}
