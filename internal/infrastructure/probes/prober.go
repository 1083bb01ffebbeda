// Package probes implements [domain.Prober] over HTTP and TCP. Each
// probe is a single shot: classification only, no retries, no panics on
// unreachable targets.
package probes

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/switchover/switchover/internal/domain"
)

// Settings configures probe behavior for all check types.
type Settings struct {
	// Timeout bounds each individual network call.
	Timeout time.Duration
	// LatencyThreshold is the round-trip budget for the
	// latency-threshold check. Fail-closed: an unreachable endpoint
	// fails the check, it is never skipped.
	LatencyThreshold time.Duration
	// RequiredHeaders must all be present on the health endpoint's
	// response for the security-header check to pass.
	RequiredHeaders []string
	TLSServerName   string
	TLSSkipVerify   bool
}

// DefaultSettings: one second per call, 500ms latency budget, and the
// hardening headers the provisioning playbooks configure on the web tier.
func DefaultSettings() Settings {
	return Settings{
		Timeout:          time.Second,
		LatencyThreshold: 500 * time.Millisecond,
		RequiredHeaders:  []string{"X-Content-Type-Options", "X-Frame-Options"},
	}
}

// Prober implements [domain.Prober] with a dedicated keep-alive-free
// HTTP client and a raw dialer for resource-level checks.
type Prober struct {
	client   *http.Client
	dialer   net.Dialer
	settings Settings
}

func New(settings Settings) *Prober {
	if settings.Timeout == 0 {
		settings.Timeout = time.Second
	}
	transport := &http.Transport{
		DisableKeepAlives: true,
	}
	if settings.TLSServerName != "" || settings.TLSSkipVerify {
		transport.TLSClientConfig = &tls.Config{
			ServerName:         settings.TLSServerName,
			InsecureSkipVerify: settings.TLSSkipVerify,
		}
		transport.TLSHandshakeTimeout = settings.Timeout
	}
	return &Prober{
		client: &http.Client{
			Timeout:   settings.Timeout,
			Transport: transport,
		},
		dialer:   net.Dialer{Timeout: settings.Timeout, KeepAlive: -1},
		settings: settings,
	}
}

func (p *Prober) Probe(ctx context.Context, endpoint domain.SlotEndpoint, check domain.CheckName) domain.CheckResult {
	switch check {
	case domain.CheckResource:
		return p.probeResource(ctx, endpoint)
	case domain.CheckEndpoint:
		return p.probeEndpoint(ctx, endpoint)
	case domain.CheckLatency:
		return p.probeLatency(ctx, endpoint)
	case domain.CheckHeaders:
		return p.probeHeaders(ctx, endpoint)
	default:
		return domain.CheckResult{
			Check:  check,
			Passed: false,
			Detail: fmt.Sprintf("unknown check %q", check),
		}
	}
}

// probeResource verifies the slot's address accepts connections at all.
func (p *Prober) probeResource(ctx context.Context, endpoint domain.SlotEndpoint) domain.CheckResult {
	start := time.Now()
	conn, err := p.dialer.DialContext(ctx, "tcp", endpoint.Addr)
	elapsed := time.Since(start)
	if err != nil {
		return domain.CheckResult{
			Check:   domain.CheckResource,
			Passed:  false,
			Detail:  fmt.Sprintf("dial %s: %v", endpoint.Addr, err),
			Latency: elapsed,
		}
	}
	_ = conn.Close()
	return domain.CheckResult{
		Check:   domain.CheckResource,
		Passed:  true,
		Detail:  "resource accepting connections",
		Latency: elapsed,
	}
}

func (p *Prober) probeEndpoint(ctx context.Context, endpoint domain.SlotEndpoint) domain.CheckResult {
	resp, elapsed, err := p.get(ctx, endpoint)
	if err != nil {
		return domain.CheckResult{
			Check:   domain.CheckEndpoint,
			Passed:  false,
			Detail:  fmt.Sprintf("request %s: %v", endpoint.HealthURL, err),
			Latency: elapsed,
		}
	}
	if resp.StatusCode/100 != 2 {
		return domain.CheckResult{
			Check:   domain.CheckEndpoint,
			Passed:  false,
			Detail:  fmt.Sprintf("status %d from %s", resp.StatusCode, endpoint.HealthURL),
			Latency: elapsed,
		}
	}
	return domain.CheckResult{
		Check:   domain.CheckEndpoint,
		Passed:  true,
		Detail:  fmt.Sprintf("status %d", resp.StatusCode),
		Latency: elapsed,
	}
}

func (p *Prober) probeLatency(ctx context.Context, endpoint domain.SlotEndpoint) domain.CheckResult {
	resp, elapsed, err := p.get(ctx, endpoint)
	if err != nil {
		return domain.CheckResult{
			Check:   domain.CheckLatency,
			Passed:  false,
			Detail:  fmt.Sprintf("request %s: %v", endpoint.HealthURL, err),
			Latency: elapsed,
		}
	}
	if resp.StatusCode/100 != 2 {
		return domain.CheckResult{
			Check:   domain.CheckLatency,
			Passed:  false,
			Detail:  fmt.Sprintf("status %d from %s", resp.StatusCode, endpoint.HealthURL),
			Latency: elapsed,
		}
	}
	if elapsed > p.settings.LatencyThreshold {
		return domain.CheckResult{
			Check:   domain.CheckLatency,
			Passed:  false,
			Detail:  fmt.Sprintf("round trip %v exceeds threshold %v", elapsed, p.settings.LatencyThreshold),
			Latency: elapsed,
		}
	}
	return domain.CheckResult{
		Check:   domain.CheckLatency,
		Passed:  true,
		Detail:  fmt.Sprintf("round trip %v within %v", elapsed, p.settings.LatencyThreshold),
		Latency: elapsed,
	}
}

func (p *Prober) probeHeaders(ctx context.Context, endpoint domain.SlotEndpoint) domain.CheckResult {
	resp, elapsed, err := p.get(ctx, endpoint)
	if err != nil {
		return domain.CheckResult{
			Check:   domain.CheckHeaders,
			Passed:  false,
			Detail:  fmt.Sprintf("request %s: %v", endpoint.HealthURL, err),
			Latency: elapsed,
		}
	}
	var missing []string
	for _, header := range p.settings.RequiredHeaders {
		if resp.Header.Get(header) == "" {
			missing = append(missing, header)
		}
	}
	if len(missing) > 0 {
		return domain.CheckResult{
			Check:   domain.CheckHeaders,
			Passed:  false,
			Detail:  fmt.Sprintf("missing security headers: %v", missing),
			Latency: elapsed,
		}
	}
	return domain.CheckResult{
		Check:   domain.CheckHeaders,
		Passed:  true,
		Detail:  "all required security headers present",
		Latency: elapsed,
	}
}

// get issues one GET to the health endpoint, discards the body, and
// returns the response with its round-trip time.
func (p *Prober) get(ctx context.Context, endpoint domain.SlotEndpoint) (*http.Response, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.HealthURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	start := time.Now()
	resp, err := p.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return nil, elapsed, err
	}
	_ = resp.Body.Close()
	return resp, elapsed, nil
}
