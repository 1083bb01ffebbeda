package domain

import "fmt"

// Slot identifies one of the two interchangeable infrastructure
// environments of a deployment. Exactly one slot receives traffic at any
// time; the other is standby.
type Slot string

const (
	SlotBlue  Slot = "blue"
	SlotGreen Slot = "green"
)

// Other returns the counterpart slot. Blue and green are the only two
// members of the enum, so Other is a total involution.
func (s Slot) Other() Slot {
	if s == SlotBlue {
		return SlotGreen
	}
	return SlotBlue
}

func (s Slot) String() string { return string(s) }

// ParseSlot validates a caller-provided slot name.
func ParseSlot(name string) (Slot, error) {
	switch Slot(name) {
	case SlotBlue:
		return SlotBlue, nil
	case SlotGreen:
		return SlotGreen, nil
	default:
		return "", fmt.Errorf("%w: unknown slot %q (want %q or %q)", ErrInvalidArgument, name, SlotBlue, SlotGreen)
	}
}
