package terraform

import (
	"context"
	"fmt"

	"github.com/switchover/switchover/internal/domain"
)

// Resolver implements [domain.EndpointResolver] on top of the engine's
// live outputs. Environments expose "<slot>_health_url" and
// "<slot>_address" outputs for both slots.
type Resolver struct {
	Engine *Engine
}

func (r *Resolver) Resolve(ctx context.Context, environment string, slot domain.Slot) (domain.SlotEndpoint, error) {
	live, err := r.Engine.ReadLiveState(ctx, environment)
	if err != nil {
		return domain.SlotEndpoint{}, err
	}

	healthURL, ok := live.Outputs[string(slot)+"_health_url"]
	if !ok {
		return domain.SlotEndpoint{}, fmt.Errorf("%w: output %s_health_url in %s", domain.ErrNotFound, slot, environment)
	}
	addr, ok := live.Outputs[string(slot)+"_address"]
	if !ok {
		return domain.SlotEndpoint{}, fmt.Errorf("%w: output %s_address in %s", domain.ErrNotFound, slot, environment)
	}

	return domain.SlotEndpoint{
		Slot:      slot,
		HealthURL: healthURL,
		Addr:      addr,
	}, nil
}
