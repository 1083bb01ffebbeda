package terraform_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchover/switchover/internal/domain"
	"github.com/switchover/switchover/internal/infrastructure/terraform"
)

func TestResolve_ReturnsSlotEndpoint(t *testing.T) {
	runner := &scriptedRunner{
		stdout: []byte(`{
			"active_slot":      {"value": "blue"},
			"green_health_url": {"value": "http://10.0.1.5/health"},
			"green_address":    {"value": "10.0.1.5:80"}
		}`),
	}
	resolver := &terraform.Resolver{Engine: newEngine(runner)}

	endpoint, err := resolver.Resolve(context.Background(), "staging", domain.SlotGreen)
	require.NoError(t, err)

	assert.Equal(t, domain.SlotGreen, endpoint.Slot)
	assert.Equal(t, "http://10.0.1.5/health", endpoint.HealthURL)
	assert.Equal(t, "10.0.1.5:80", endpoint.Addr)
}

func TestResolve_MissingOutputsIsNotFound(t *testing.T) {
	runner := &scriptedRunner{
		stdout: []byte(`{"active_slot": {"value": "blue"}}`),
	}
	resolver := &terraform.Resolver{Engine: newEngine(runner)}

	_, err := resolver.Resolve(context.Background(), "staging", domain.SlotGreen)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
