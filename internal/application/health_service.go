package application

import (
	"context"
	"fmt"

	"github.com/switchover/switchover/internal/domain"
)

// HealthService runs on-demand health validation against a slot without
// touching routing state.
type HealthService struct {
	Validator domain.Validator
}

// Check validates the slot under the given policy and returns the full
// verdict, failed checks included.
func (s *HealthService) Check(ctx context.Context, environment string, slot domain.Slot, policy domain.ValidationPolicy) (domain.HealthVerdict, error) {
	if environment == "" {
		return domain.HealthVerdict{}, fmt.Errorf("%w: environment is required", domain.ErrInvalidArgument)
	}
	if _, err := domain.ParseSlot(string(slot)); err != nil {
		return domain.HealthVerdict{}, err
	}
	return s.Validator.Validate(ctx, environment, slot, policy)
}
