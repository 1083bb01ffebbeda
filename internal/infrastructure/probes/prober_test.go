package probes_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/switchover/switchover/internal/domain"
	"github.com/switchover/switchover/internal/infrastructure/probes"
)

func healthServer(t *testing.T, handler http.HandlerFunc) domain.SlotEndpoint {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return domain.SlotEndpoint{
		Slot:      domain.SlotGreen,
		HealthURL: srv.URL + "/health",
		Addr:      strings.TrimPrefix(srv.URL, "http://"),
	}
}

func secureHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.WriteHeader(http.StatusOK)
}

func TestProbe_AllChecksAgainstHealthyEndpoint(t *testing.T) {
	endpoint := healthServer(t, secureHandler)
	p := probes.New(probes.DefaultSettings())

	for _, check := range domain.DefaultChecks {
		result := p.Probe(context.Background(), endpoint, check)
		if !result.Passed {
			t.Errorf("%s: Passed = false (%s)", check, result.Detail)
		}
		if result.Check != check {
			t.Errorf("result.Check = %q, want %q", result.Check, check)
		}
	}
}

func TestProbe_NonSuccessStatusFails(t *testing.T) {
	endpoint := healthServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	p := probes.New(probes.DefaultSettings())

	result := p.Probe(context.Background(), endpoint, domain.CheckEndpoint)
	if result.Passed {
		t.Error("Passed = true, want false for 503")
	}
	if !strings.Contains(result.Detail, "503") {
		t.Errorf("Detail = %q, want status code mention", result.Detail)
	}
}

func TestProbe_UnreachableTargetFailsClosed(t *testing.T) {
	// Reserved TEST-NET-1 address: connection will not succeed.
	endpoint := domain.SlotEndpoint{
		Slot:      domain.SlotGreen,
		HealthURL: "http://192.0.2.1:9/health",
		Addr:      "192.0.2.1:9",
	}
	settings := probes.DefaultSettings()
	settings.Timeout = 100 * time.Millisecond
	p := probes.New(settings)

	for _, check := range domain.DefaultChecks {
		result := p.Probe(context.Background(), endpoint, check)
		if result.Passed {
			t.Errorf("%s: Passed = true for unreachable target, want fail-closed", check)
		}
		if result.Detail == "" {
			t.Errorf("%s: empty Detail, want diagnostic reason", check)
		}
	}
}

func TestProbe_LatencyThresholdExceeded(t *testing.T) {
	endpoint := healthServer(t, func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})
	settings := probes.DefaultSettings()
	settings.LatencyThreshold = 10 * time.Millisecond
	p := probes.New(settings)

	result := p.Probe(context.Background(), endpoint, domain.CheckLatency)
	if result.Passed {
		t.Error("Passed = true, want false when round trip exceeds threshold")
	}
	if result.Latency < 50*time.Millisecond {
		t.Errorf("Latency = %v, want measured round trip >= 50ms", result.Latency)
	}
}

func TestProbe_MissingSecurityHeaders(t *testing.T) {
	endpoint := healthServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusOK)
	})
	p := probes.New(probes.DefaultSettings())

	result := p.Probe(context.Background(), endpoint, domain.CheckHeaders)
	if result.Passed {
		t.Error("Passed = true, want false with X-Frame-Options missing")
	}
	if !strings.Contains(result.Detail, "X-Frame-Options") {
		t.Errorf("Detail = %q, want missing header named", result.Detail)
	}
}

func TestProbe_ResourceCheckDialsRawAddress(t *testing.T) {
	endpoint := healthServer(t, secureHandler)
	p := probes.New(probes.DefaultSettings())

	result := p.Probe(context.Background(), endpoint, domain.CheckResource)
	if !result.Passed {
		t.Errorf("Passed = false (%s)", result.Detail)
	}
}
