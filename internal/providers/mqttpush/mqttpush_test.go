package mqttpush

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopfloor-io/shopfloor-core/internal/infrastructure/mqtt"
	"github.com/shopfloor-io/shopfloor-core/internal/machine"
	"github.com/shopfloor-io/shopfloor-core/internal/provider"
)

// fakeBroker is an in-process Broker for tests.
type fakeBroker struct {
	mu        sync.Mutex
	handlers  map[string]mqtt.MessageHandler
	published []publishedMessage

	subscribeErr error
	publishErr   error
}

type publishedMessage struct {
	topic   string
	payload []byte
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]mqtt.MessageHandler)}
}

func (b *fakeBroker) Publish(topic string, payload []byte, _ byte, _ bool) error {
	if b.publishErr != nil {
		return b.publishErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, publishedMessage{topic, payload})
	return nil
}

func (b *fakeBroker) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	if b.subscribeErr != nil {
		return b.subscribeErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

func (b *fakeBroker) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, topic)
	return nil
}

// push delivers a payload to the handler subscribed on topic.
func (b *fakeBroker) push(t *testing.T, topic string, payload []byte) {
	t.Helper()

	b.mu.Lock()
	handler := b.handlers[topic]
	b.mu.Unlock()

	if handler == nil {
		t.Fatalf("no handler subscribed on %s", topic)
	}
	handler(topic, payload) //nolint:errcheck // Handler errors checked via emissions
}

func (b *fakeBroker) lastPublished() (string, []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.published) == 0 {
		return "", nil
	}
	last := b.published[len(b.published)-1]
	return last.topic, last.payload
}

func testProvider(t *testing.T, broker Broker, interval time.Duration) *Provider {
	t.Helper()

	m := machine.Machine{ID: 7, Type: "mqtt"}
	p, err := NewFactory(broker, nil)(m, interval)
	if err != nil {
		t.Fatalf("factory error = %v", err)
	}
	return p.(*Provider)
}

func statusPayload(t *testing.T, msg statusMessage) []byte {
	t.Helper()
	payload, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	return payload
}

func TestFactory_RequiresBroker(t *testing.T) {
	_, err := NewFactory(nil, nil)(machine.Machine{ID: 1, Type: "mqtt"}, time.Second)
	if !errors.Is(err, provider.ErrInvalidConfig) {
		t.Errorf("factory error = %v, want ErrInvalidConfig", err)
	}
}

func TestProvider_PushedStatusEmitted(t *testing.T) {
	broker := newFakeBroker()
	p := testProvider(t, broker, time.Hour)

	envelopes := make(chan provider.Envelope, 8)
	if err := p.Start(context.Background(), func(e provider.Envelope) {
		envelopes <- e
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer p.Stop()

	// First emission is the pre-push offline snapshot.
	first := <-envelopes
	if first.State != provider.StateOffline {
		t.Errorf("initial state = %q, want offline", first.State)
	}

	broker.push(t, "shopfloor/machines/7/status", statusPayload(t, statusMessage{
		State:       "operational",
		Progress:    0.5,
		ElapsedMS:   60_000,
		RemainingMS: 60_000,
		Temps:       map[string]tempWire{"0": {Actual: 210, Target: 215}},
	}))

	env := <-envelopes
	if env.State != provider.StateOperational {
		t.Errorf("State = %q, want operational", env.State)
	}
	if env.Progress != 0.5 || env.Elapsed != time.Minute || env.Remaining != time.Minute {
		t.Errorf("timers/progress = %v/%v/%v", env.Progress, env.Elapsed, env.Remaining)
	}
	if env.Temps[0].Target != 215 {
		t.Errorf("Temps[0] = %+v", env.Temps[0])
	}
	if env.MachineID != 7 {
		t.Errorf("MachineID = %d, want 7", env.MachineID)
	}
}

func TestProvider_MalformedStatusDropped(t *testing.T) {
	broker := newFakeBroker()
	p := testProvider(t, broker, time.Hour)

	envelopes := make(chan provider.Envelope, 8)
	if err := p.Start(context.Background(), func(e provider.Envelope) {
		envelopes <- e
	}); err != nil {
		t.Fatal(err)
	}
	defer p.Stop()

	<-envelopes // initial offline snapshot

	broker.push(t, "shopfloor/machines/7/status", []byte("not json"))
	broker.push(t, "shopfloor/machines/7/status", statusPayload(t, statusMessage{State: "exploded"}))
	broker.push(t, "shopfloor/machines/7/status", []byte(`{"state":"idle","temps":{"abc":{}}}`))

	select {
	case env := <-envelopes:
		t.Errorf("malformed payload produced envelope %+v", env)
	case <-time.After(50 * time.Millisecond):
	}

	// A good payload still goes through afterwards.
	broker.push(t, "shopfloor/machines/7/status", statusPayload(t, statusMessage{State: "idle"}))
	env := <-envelopes
	if env.State != provider.StateIdle {
		t.Errorf("State = %q, want idle", env.State)
	}
}

func TestProvider_IdleRepeat(t *testing.T) {
	broker := newFakeBroker()
	p := testProvider(t, broker, 30*time.Millisecond)

	envelopes := make(chan provider.Envelope, 64)
	if err := p.Start(context.Background(), func(e provider.Envelope) {
		select {
		case envelopes <- e:
		default:
		}
	}); err != nil {
		t.Fatal(err)
	}
	defer p.Stop()

	<-envelopes // initial snapshot

	broker.push(t, "shopfloor/machines/7/status", statusPayload(t, statusMessage{
		State: "idle", Progress: 0.25,
	}))
	pushed := <-envelopes

	// With no further pushes the ticker must re-emit the last status.
	var repeat provider.Envelope
	select {
	case repeat = <-envelopes:
	case <-time.After(time.Second):
		t.Fatal("no idle repeat within interval")
	}

	if repeat.ID == pushed.ID {
		t.Error("idle repeat reused the pushed envelope ID")
	}
	if !repeat.Equal(pushed) {
		t.Errorf("idle repeat %+v not structurally equal to pushed %+v", repeat, pushed)
	}
}

func TestProvider_StopUnsubscribesAndQuiesces(t *testing.T) {
	broker := newFakeBroker()
	p := testProvider(t, broker, 20*time.Millisecond)

	var mu sync.Mutex
	count := 0
	if err := p.Start(context.Background(), func(provider.Envelope) {
		mu.Lock()
		count++
		mu.Unlock()
	}); err != nil {
		t.Fatal(err)
	}

	p.Stop()
	p.Stop() // idempotent

	broker.mu.Lock()
	_, stillSubscribed := broker.handlers["shopfloor/machines/7/status"]
	broker.mu.Unlock()
	if stillSubscribed {
		t.Error("status topic still subscribed after Stop")
	}

	mu.Lock()
	after := count
	mu.Unlock()
	time.Sleep(60 * time.Millisecond)
	mu.Lock()
	final := count
	mu.Unlock()
	if final != after {
		t.Errorf("emissions continued after Stop: %d -> %d", after, final)
	}
}

func TestProvider_Commands(t *testing.T) {
	broker := newFakeBroker()
	p := testProvider(t, broker, time.Hour)
	ctx := context.Background()

	for _, tt := range []struct {
		call func(context.Context) error
		want string
	}{
		{p.PauseJob, "pause"},
		{p.ResumeJob, "resume"},
		{p.CancelJob, "cancel"},
	} {
		if err := tt.call(ctx); err != nil {
			t.Fatalf("%s command error = %v", tt.want, err)
		}

		topic, payload := broker.lastPublished()
		if topic != "shopfloor/machines/7/command" {
			t.Errorf("command published to %q", topic)
		}
		var msg commandMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Command != tt.want {
			t.Errorf("Command = %q, want %q", msg.Command, tt.want)
		}
	}
}

func TestProvider_CommandPublishErrorSurfaced(t *testing.T) {
	broker := newFakeBroker()
	broker.publishErr = mqtt.ErrNotConnected

	p := testProvider(t, broker, time.Hour)

	if err := p.PauseJob(context.Background()); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("PauseJob() error = %v, want ErrNotConnected", err)
	}
}

func TestProvider_StartSubscribeFailure(t *testing.T) {
	broker := newFakeBroker()
	broker.subscribeErr = mqtt.ErrNotConnected

	p := testProvider(t, broker, time.Hour)

	err := p.Start(context.Background(), func(provider.Envelope) {})
	if !errors.Is(err, provider.ErrStartFailed) {
		t.Errorf("Start() error = %v, want ErrStartFailed", err)
	}
}
