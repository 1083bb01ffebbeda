package application

import (
	"context"
	"fmt"
	"sync"

	"github.com/switchover/switchover/internal/domain"
)

// SwitchService runs slot switches as durable workflows, serializing
// concurrent requests per environment: a switch for an environment with
// one already in flight is refused, not queued.
type SwitchService struct {
	Workflow domain.SwitchRunner

	mu       sync.Mutex
	inflight map[string]struct{}
}

// Switch routes the environment's traffic to the requested slot and
// waits for the definitive terminal outcome.
func (s *SwitchService) Switch(ctx context.Context, req domain.SwitchRequest) (domain.SwitchResult, error) {
	if req.Environment == "" {
		return domain.SwitchResult{}, fmt.Errorf("%w: environment is required", domain.ErrInvalidArgument)
	}
	if _, err := domain.ParseSlot(string(req.Target)); err != nil {
		return domain.SwitchResult{}, err
	}

	if err := s.acquire(req.Environment); err != nil {
		return domain.SwitchResult{}, err
	}
	defer s.release(req.Environment)

	handle, err := s.Workflow.Run(ctx, req)
	if err != nil {
		return domain.SwitchResult{}, fmt.Errorf("start switch workflow: %w", err)
	}
	return handle.AwaitResult(ctx)
}

func (s *SwitchService) acquire(environment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight == nil {
		s.inflight = make(map[string]struct{})
	}
	if _, busy := s.inflight[environment]; busy {
		return fmt.Errorf("%w: environment %s", domain.ErrSwitchInProgress, environment)
	}
	s.inflight[environment] = struct{}{}
	return nil
}

func (s *SwitchService) release(environment string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, environment)
}
