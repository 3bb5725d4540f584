package monitor

import (
	"context"
	"errors"
	"fmt"
)

// Command names accepted by the dispatcher.
const (
	CommandPause  = "pause"
	CommandResume = "resume"
	CommandCancel = "cancel"
)

// Dispatcher routes job commands to the running handle for a machine.
//
// The provider's own verdict travels back unchanged: if the device
// rejects a pause, the caller sees the device's error, not a dispatcher
// wrapper. The only error the dispatcher adds is ErrMachineNotRunning
// when no running handle exists for the machine, including a handle
// that stopped mid-dispatch.
type Dispatcher struct {
	orchestrator *Orchestrator
	logger       Logger
}

// NewDispatcher creates a dispatcher backed by the orchestrator's
// handle set.
func NewDispatcher(orchestrator *Orchestrator, logger Logger) *Dispatcher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Dispatcher{orchestrator: orchestrator, logger: logger}
}

// Dispatch sends a named command to a machine.
func (d *Dispatcher) Dispatch(ctx context.Context, machineID int64, command string) error {
	h, ok := d.orchestrator.handleFor(machineID)
	if !ok {
		return fmt.Errorf("%w: machine %d", ErrMachineNotRunning, machineID)
	}

	var err error
	switch command {
	case CommandPause:
		err = h.PauseJob(ctx)
	case CommandResume:
		err = h.ResumeJob(ctx)
	case CommandCancel:
		err = h.CancelJob(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}

	// The handle can stop between the lookup and the command call; to
	// the caller that is the same as no handle at all.
	if errors.Is(err, ErrHandleStopped) {
		return fmt.Errorf("%w: machine %d", ErrMachineNotRunning, machineID)
	}

	if err != nil {
		d.logger.Warn("command failed",
			"machine_id", machineID, "command", command, "error", err)
		return err
	}

	d.logger.Info("command dispatched",
		"machine_id", machineID, "command", command)
	return nil
}

// PauseJob pauses the current job on a machine.
func (d *Dispatcher) PauseJob(ctx context.Context, machineID int64) error {
	return d.Dispatch(ctx, machineID, CommandPause)
}

// ResumeJob resumes a paused job on a machine.
func (d *Dispatcher) ResumeJob(ctx context.Context, machineID int64) error {
	return d.Dispatch(ctx, machineID, CommandResume)
}

// CancelJob aborts the current job on a machine.
func (d *Dispatcher) CancelJob(ctx context.Context, machineID int64) error {
	return d.Dispatch(ctx, machineID, CommandCancel)
}
