package monitor

import "errors"

var (
	// ErrMachineNotRunning indicates a command was dispatched to a
	// machine with no running provider handle.
	ErrMachineNotRunning = errors.New("monitor: machine not running")

	// ErrHandleStopped indicates an operation on a handle that has
	// already been stopped.
	ErrHandleStopped = errors.New("monitor: handle stopped")

	// ErrUnknownCommand indicates a command name outside the supported set.
	ErrUnknownCommand = errors.New("monitor: unknown command")
)
