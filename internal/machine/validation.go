package machine

import (
	"fmt"
	"regexp"
)

// Validation limits.
const (
	// maxNameLength bounds machine names for UI display.
	maxNameLength = 128

	// minPollIntervalMS is the smallest accepted poll interval. Anything
	// faster hammers the device and makes the liveness window meaningless.
	minPollIntervalMS = 100

	// maxPollIntervalMS is the largest accepted poll interval (1 hour).
	maxPollIntervalMS = 3600_000
)

// typeTagPattern matches valid provider type tags: lowercase alphanumeric
// with hyphens, starting with a letter (e.g. "octoprint", "mqtt", "moonraker-v2").
var typeTagPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// Validate checks a machine registration for structural correctness.
//
// It does not verify that the provider type is registered - that is the
// orchestrator's concern at sync time, since the factory registry is not
// visible from this package.
//
// Returns:
//   - error: Wrapped sentinel (ErrInvalidName, ErrInvalidType,
//     ErrInvalidPollInterval) or nil if valid
func Validate(m *Machine) error {
	if m == nil {
		return ErrInvalidMachine
	}

	if m.Name == "" {
		return fmt.Errorf("%w: required", ErrInvalidName)
	}
	if len(m.Name) > maxNameLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidName, maxNameLength)
	}

	if m.Type == "" {
		return fmt.Errorf("%w: required", ErrInvalidType)
	}
	if !typeTagPattern.MatchString(m.Type) {
		return fmt.Errorf("%w: %q is not a valid type tag", ErrInvalidType, m.Type)
	}

	// Zero means "use default"; anything else must be in range.
	if m.PollIntervalMS != 0 {
		if m.PollIntervalMS < minPollIntervalMS || m.PollIntervalMS > maxPollIntervalMS {
			return fmt.Errorf("%w: %dms outside [%d, %d]",
				ErrInvalidPollInterval, m.PollIntervalMS, minPollIntervalMS, maxPollIntervalMS)
		}
	}

	return nil
}
