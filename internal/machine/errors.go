package machine

import (
	"errors"
	"fmt"
)

// Domain errors for the machine package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, machine.ErrMachineNotFound) {
//	    // handle not found case
//	}
//
// The specific validation errors all match ErrInvalidMachine, so callers
// that only care about valid-or-not can check the umbrella sentinel.
var (
	// ErrMachineNotFound is returned when a machine ID does not exist.
	ErrMachineNotFound = errors.New("machine: not found")

	// ErrInvalidMachine is returned when machine validation fails.
	ErrInvalidMachine = errors.New("machine: invalid")

	// ErrInvalidName is returned when a machine name is empty or too long.
	ErrInvalidName = fmt.Errorf("%w name", ErrInvalidMachine)

	// ErrInvalidType is returned when a provider type tag is malformed.
	ErrInvalidType = fmt.Errorf("%w type", ErrInvalidMachine)

	// ErrInvalidPollInterval is returned when a poll interval is out of range.
	ErrInvalidPollInterval = fmt.Errorf("%w poll interval", ErrInvalidMachine)
)
