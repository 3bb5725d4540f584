package monitor

import (
	"sync"
	"testing"

	"github.com/shopfloor-io/shopfloor-core/internal/provider"
)

// recordingSubscriber collects notified statuses.
type recordingSubscriber struct {
	mu       sync.Mutex
	statuses []Status
}

func (s *recordingSubscriber) subscribe(r *Reconciler) {
	r.Subscribe(func(status Status) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.statuses = append(s.statuses, status)
	})
}

func (s *recordingSubscriber) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.statuses)
}

func (s *recordingSubscriber) last() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[len(s.statuses)-1]
}

func TestReconciler_AcceptAndGet(t *testing.T) {
	r := NewReconciler()

	env := provider.NewEnvelope(7, provider.StateIdle)
	if !r.Accept(env, 1) {
		t.Fatal("Accept() = false for fresh envelope")
	}

	status, ok := r.Get(7)
	if !ok {
		t.Fatal("Get() found nothing after Accept")
	}
	if status.Envelope.ID != env.ID || status.Generation != 1 {
		t.Errorf("Get() = %+v", status)
	}
	if status.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}
}

func TestReconciler_LastWriteWins(t *testing.T) {
	r := NewReconciler()

	first := provider.NewEnvelope(7, provider.StateIdle)
	second := provider.NewEnvelope(7, provider.StateOperational)

	r.Accept(first, 1)
	r.Accept(second, 1)

	status, _ := r.Get(7)
	if status.Envelope.State != provider.StateOperational {
		t.Errorf("table holds %q, want the later write", status.Envelope.State)
	}
}

func TestReconciler_StaleGenerationDropped(t *testing.T) {
	r := NewReconciler()
	sub := &recordingSubscriber{}
	sub.subscribe(r)

	r.SetGeneration(7, 1)
	current := provider.NewEnvelope(7, provider.StateOperational)
	r.Accept(current, 1)

	// Handle restart: generation moves to 2, then a delayed envelope
	// from the stopped generation-1 provider arrives.
	r.SetGeneration(7, 2)
	stale := provider.NewEnvelope(7, provider.StateIdle)
	if r.Accept(stale, 1) {
		t.Error("Accept() = true for stale generation")
	}

	status, _ := r.Get(7)
	if status.Envelope.ID != current.ID {
		t.Error("stale envelope overwrote the table")
	}
	if sub.count() != 1 {
		t.Errorf("subscriber notified %d times, want 1", sub.count())
	}
	if got := r.Stats().StaleDropped; got != 1 {
		t.Errorf("StaleDropped = %d, want 1", got)
	}
}

func TestReconciler_GenerationNeverRegresses(t *testing.T) {
	r := NewReconciler()

	r.SetGeneration(7, 3)
	r.SetGeneration(7, 2)

	if r.Accept(provider.NewEnvelope(7, provider.StateIdle), 2) {
		t.Error("Accept() = true under a regressed generation")
	}
}

func TestReconciler_DuplicateIDSkipsNotification(t *testing.T) {
	r := NewReconciler()
	sub := &recordingSubscriber{}
	sub.subscribe(r)

	env := provider.NewEnvelope(7, provider.StateIdle)
	r.Accept(env, 1)
	if !r.Accept(env, 1) {
		t.Error("Accept() = false for redelivered envelope")
	}

	if sub.count() != 1 {
		t.Errorf("subscriber notified %d times for one envelope ID, want 1", sub.count())
	}
	if got := r.Stats().Duplicates; got != 1 {
		t.Errorf("Duplicates = %d, want 1", got)
	}
}

func TestReconciler_NotifyCarriesStatus(t *testing.T) {
	r := NewReconciler()
	sub := &recordingSubscriber{}
	sub.subscribe(r)

	env := provider.NewEnvelope(9, provider.StatePaused)
	env.Progress = 0.8
	r.Accept(env, 4)

	got := sub.last()
	if got.Envelope.MachineID != 9 || got.Generation != 4 || got.Envelope.Progress != 0.8 {
		t.Errorf("notified status = %+v", got)
	}
}

func TestReconciler_Purge(t *testing.T) {
	r := NewReconciler()

	r.SetGeneration(7, 5)
	r.Accept(provider.NewEnvelope(7, provider.StateIdle), 5)
	r.Purge(7)

	if _, ok := r.Get(7); ok {
		t.Error("entry survived Purge")
	}

	// With the generation record gone, a later re-registration starts
	// fresh: generation 1 envelopes are acceptable again.
	if !r.Accept(provider.NewEnvelope(7, provider.StateIdle), 1) {
		t.Error("Accept() = false after Purge reset the generation")
	}
}

func TestReconciler_List(t *testing.T) {
	r := NewReconciler()

	r.Accept(provider.NewEnvelope(1, provider.StateIdle), 1)
	r.Accept(provider.NewEnvelope(2, provider.StateOperational), 1)

	table := r.List()
	if len(table) != 2 {
		t.Fatalf("List() returned %d entries, want 2", len(table))
	}

	// The returned map is a copy.
	delete(table, 1)
	if _, ok := r.Get(1); !ok {
		t.Error("mutating List() result affected the table")
	}
}
