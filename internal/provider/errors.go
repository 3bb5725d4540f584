package provider

import "errors"

var (
	// ErrStartFailed wraps definitive provider startup failures.
	ErrStartFailed = errors.New("provider: start failed")

	// ErrUnknownType indicates no factory is registered for a machine type.
	ErrUnknownType = errors.New("provider: unknown provider type")

	// ErrDuplicateType indicates a factory is already registered for a type.
	ErrDuplicateType = errors.New("provider: duplicate provider type")

	// ErrInvalidConfig indicates a machine's config blob is malformed for
	// its provider type.
	ErrInvalidConfig = errors.New("provider: invalid config")
)
