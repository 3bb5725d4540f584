// Package mqttpush implements a push-driven provider for machines that
// publish their own status over MQTT.
//
// The machine (or an edge adapter in front of it) publishes JSON status
// messages to shopfloor/machines/<id>/status; the provider converts each
// message into an envelope. Because pushes arrive on the device's
// schedule, the provider also runs an idle-repeat ticker that re-emits
// the last known status whenever a full poll interval passes without a
// push, so downstream liveness tracking sees a heartbeat either way.
package mqttpush

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/shopfloor-io/shopfloor-core/internal/infrastructure/mqtt"
	"github.com/shopfloor-io/shopfloor-core/internal/machine"
	"github.com/shopfloor-io/shopfloor-core/internal/provider"
)

// Broker is the slice of the MQTT client the provider needs.
// Satisfied by *mqtt.Client.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Logger is the logging interface used by the provider.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// statusMessage is the wire format machines publish.
type statusMessage struct {
	State       string              `json:"state"`
	Progress    float64             `json:"progress"`
	ElapsedMS   int64               `json:"elapsed_ms"`
	RemainingMS int64               `json:"remaining_ms"`
	Temps       map[string]tempWire `json:"temps,omitempty"`
}

type tempWire struct {
	Actual float64 `json:"actual"`
	Target float64 `json:"target"`
}

// commandMessage is published to the machine's command topic.
type commandMessage struct {
	Command string `json:"command"`
}

// Provider receives pushed status for one machine.
type Provider struct {
	machineID int64
	interval  time.Duration
	broker    Broker
	topics    mqtt.Topics
	logger    Logger

	mu   sync.Mutex
	last *provider.Envelope

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewFactory returns a provider factory for machines of type "mqtt".
// The broker connection is shared across all mqtt-type machines.
func NewFactory(broker Broker, logger Logger) provider.Factory {
	if logger == nil {
		logger = noopLogger{}
	}
	return func(m machine.Machine, interval time.Duration) (provider.Provider, error) {
		if broker == nil {
			return nil, fmt.Errorf("%w: mqtt machine %d: no broker connection configured", provider.ErrInvalidConfig, m.ID)
		}
		return &Provider{
			machineID: m.ID,
			interval:  interval,
			broker:    broker,
			logger:    logger,
		}, nil
	}
}

// Start subscribes to the machine's status topic and launches the
// idle-repeat loop. A failed subscribe is definitive.
func (p *Provider) Start(ctx context.Context, emit provider.EmitFunc) error {
	ctx, p.cancel = context.WithCancel(ctx)

	// Emissions stop permanently once ctx is cancelled; the broker may
	// still deliver a few in-flight messages after Unsubscribe.
	handler := func(_ string, payload []byte) error {
		if ctx.Err() != nil {
			return nil
		}
		env, err := p.parseStatus(payload)
		if err != nil {
			p.logger.Warn("mqttpush: dropping malformed status",
				"machine_id", p.machineID, "error", err)
			return err
		}

		p.mu.Lock()
		p.last = &env
		p.mu.Unlock()

		emit(env)
		return nil
	}

	topic := p.topics.MachineStatus(p.machineID)
	if err := p.broker.Subscribe(topic, 1, handler); err != nil {
		p.cancel()
		return fmt.Errorf("%w: mqtt machine %d: %v", provider.ErrStartFailed, p.machineID, err)
	}

	p.wg.Add(1)
	go p.idleRepeat(ctx, emit)
	return nil
}

// Stop unsubscribes and waits for the idle-repeat loop to exit. Idempotent.
func (p *Provider) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		if err := p.broker.Unsubscribe(p.topics.MachineStatus(p.machineID)); err != nil {
			p.logger.Debug("mqttpush: unsubscribe failed",
				"machine_id", p.machineID, "error", err)
		}
		p.wg.Wait()
	})
}

// idleRepeat guarantees at least one emission per interval. Until the
// first push arrives the machine is reported offline; afterwards the
// last pushed status is repeated under a fresh envelope ID.
func (p *Provider) idleRepeat(ctx context.Context, emit provider.EmitFunc) {
	defer p.wg.Done()

	emit(p.snapshot())

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			emit(p.snapshot())
		}
	}
}

// snapshot returns the last known status under a fresh ID, or an
// offline envelope when nothing has been pushed yet.
func (p *Provider) snapshot() provider.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.last == nil {
		return provider.NewEnvelope(p.machineID, provider.StateOffline)
	}

	env := provider.NewEnvelope(p.machineID, p.last.State)
	env.Progress = p.last.Progress
	env.Elapsed = p.last.Elapsed
	env.Remaining = p.last.Remaining
	env.Temps = provider.CloneTemps(p.last.Temps)
	return env
}

func (p *Provider) parseStatus(payload []byte) (provider.Envelope, error) {
	var msg statusMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return provider.Envelope{}, fmt.Errorf("decoding status: %w", err)
	}

	state := provider.State(msg.State)
	if !state.Valid() {
		return provider.Envelope{}, fmt.Errorf("unknown state %q", msg.State)
	}

	env := provider.NewEnvelope(p.machineID, state)
	env.Progress = msg.Progress
	env.Elapsed = time.Duration(msg.ElapsedMS) * time.Millisecond
	env.Remaining = time.Duration(msg.RemainingMS) * time.Millisecond

	if len(msg.Temps) > 0 {
		env.Temps = make(map[int]provider.Temp, len(msg.Temps))
		for key, t := range msg.Temps {
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 {
				return provider.Envelope{}, fmt.Errorf("invalid heater index %q", key)
			}
			env.Temps[idx] = provider.Temp{Actual: t.Actual, Target: t.Target}
		}
	}

	return env, nil
}

// PauseJob publishes a pause command to the machine's command topic.
func (p *Provider) PauseJob(ctx context.Context) error {
	return p.publishCommand(ctx, "pause")
}

// ResumeJob publishes a resume command.
func (p *Provider) ResumeJob(ctx context.Context) error {
	return p.publishCommand(ctx, "resume")
}

// CancelJob publishes a cancel command.
func (p *Provider) CancelJob(ctx context.Context) error {
	return p.publishCommand(ctx, "cancel")
}

func (p *Provider) publishCommand(ctx context.Context, command string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(commandMessage{Command: command})
	if err != nil {
		return fmt.Errorf("mqttpush: encoding command: %w", err)
	}

	if err := p.broker.Publish(p.topics.MachineCommand(p.machineID), payload, 1, false); err != nil {
		return fmt.Errorf("mqttpush: publishing %s command for machine %d: %w", command, p.machineID, err)
	}
	return nil
}
