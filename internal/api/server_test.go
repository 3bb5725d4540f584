package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopfloor-io/shopfloor-core/internal/infrastructure/config"
	"github.com/shopfloor-io/shopfloor-core/internal/infrastructure/logging"
	"github.com/shopfloor-io/shopfloor-core/internal/machine"
	"github.com/shopfloor-io/shopfloor-core/internal/monitor"
	"github.com/shopfloor-io/shopfloor-core/internal/provider"
)

// memRepo is an in-memory machine.Repository for handler tests.
type memRepo struct {
	mu       sync.Mutex
	machines map[int64]*machine.Machine
	nextID   int64
}

func newMemRepo() *memRepo {
	return &memRepo{machines: make(map[int64]*machine.Machine), nextID: 1}
}

func (r *memRepo) GetByID(_ context.Context, id int64) (*machine.Machine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.machines[id]; ok {
		return m.DeepCopy(), nil
	}
	return nil, machine.ErrMachineNotFound
}

func (r *memRepo) List(_ context.Context) ([]machine.Machine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]machine.Machine, 0, len(r.machines))
	for _, m := range r.machines {
		out = append(out, *m.DeepCopy())
	}
	return out, nil
}

func (r *memRepo) ListEnabled(_ context.Context) ([]machine.Machine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []machine.Machine
	for _, m := range r.machines {
		if m.Enabled {
			out = append(out, *m.DeepCopy())
		}
	}
	return out, nil
}

func (r *memRepo) Create(_ context.Context, m *machine.Machine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.ID = r.nextID
	r.nextID++
	r.machines[m.ID] = m.DeepCopy()
	return nil
}

func (r *memRepo) Update(_ context.Context, m *machine.Machine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.machines[m.ID]; !ok {
		return machine.ErrMachineNotFound
	}
	r.machines[m.ID] = m.DeepCopy()
	return nil
}

func (r *memRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.machines[id]; !ok {
		return machine.ErrMachineNotFound
	}
	delete(r.machines, id)
	return nil
}

func (r *memRepo) SetEnabled(_ context.Context, id int64, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.machines[id]
	if !ok {
		return machine.ErrMachineNotFound
	}
	m.Enabled = enabled
	return nil
}

// idleProvider runs no goroutines and accepts all commands.
type idleProvider struct {
	commandErr error
}

func (idleProvider) Start(_ context.Context, _ provider.EmitFunc) error { return nil }
func (idleProvider) Stop()                                              {}
func (p idleProvider) PauseJob(_ context.Context) error                 { return p.commandErr }
func (p idleProvider) ResumeJob(_ context.Context) error                { return p.commandErr }
func (p idleProvider) CancelJob(_ context.Context) error                { return p.commandErr }

type testServer struct {
	srv        *Server
	router     http.Handler
	registry   *machine.Registry
	reconciler *monitor.Reconciler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	registry := machine.NewRegistry(newMemRepo())
	reconciler := monitor.NewReconciler()

	factories := provider.NewRegistry()
	if err := factories.Register("fake", func(machine.Machine, time.Duration) (provider.Provider, error) {
		return idleProvider{}, nil
	}); err != nil {
		t.Fatal(err)
	}

	orchestrator := monitor.NewOrchestrator(registry, factories, reconciler, monitor.Options{
		OfflineMultiplier:   2,
		DefaultPollInterval: time.Second,
		QueueSize:           16,
	}, nil)
	t.Cleanup(orchestrator.Stop)

	srv, err := New(Deps{
		Config:       config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS:           config.WebSocketConfig{PingInterval: 30, PongTimeout: 60},
		Logger:       logging.Default(),
		Registry:     registry,
		Reconciler:   reconciler,
		Orchestrator: orchestrator,
		Dispatcher:   monitor.NewDispatcher(orchestrator, nil),
		Version:      "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	srv.hub = NewHub(srv.wsCfg, srv.logger)

	return &testServer{
		srv:        srv,
		router:     srv.buildRouter(),
		registry:   registry,
		reconciler: reconciler,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return out
}

func createFakeMachine(t *testing.T, ts *testServer) machineResponse {
	t.Helper()

	rec := ts.do(t, http.MethodPost, "/api/v1/machines", createMachineRequest{
		Name:           "mill-1",
		Type:           "fake",
		PollIntervalMS: 1000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create machine: status %d body %s", rec.Code, rec.Body.String())
	}
	return decode[machineResponse](t, rec)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	body := decode[map[string]any](t, rec)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
}

func TestCreateMachine_StartsHandle(t *testing.T) {
	ts := newTestServer(t)

	m := createFakeMachine(t, ts)
	if m.ID == 0 || !m.Enabled {
		t.Errorf("created machine = %+v", m)
	}
	if ts.srv.orchestrator.Running() != 1 {
		t.Errorf("Running() = %d after create, want 1", ts.srv.orchestrator.Running())
	}
}

func TestCreateMachine_ValidationError(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/machines", createMachineRequest{
		Name: "", Type: "fake",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if e := decode[Error](t, rec); e.Code != ErrCodeValidation {
		t.Errorf("error code = %q", e.Code)
	}
}

func TestGetMachine_NotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/machines/42", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGetMachine_BadID(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/machines/banana", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUpdateMachine_Partial(t *testing.T) {
	ts := newTestServer(t)
	m := createFakeMachine(t, ts)

	newName := "mill-renamed"
	rec := ts.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/machines/%d", m.ID),
		updateMachineRequest{Name: &newName})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}

	got := decode[machineResponse](t, rec)
	if got.Name != newName {
		t.Errorf("Name = %q", got.Name)
	}
	if got.PollIntervalMS != 1000 {
		t.Errorf("PollIntervalMS = %d, absent field must be unchanged", got.PollIntervalMS)
	}
}

func TestDisableMachine_StopsHandleKeepsStatus(t *testing.T) {
	ts := newTestServer(t)
	m := createFakeMachine(t, ts)

	// Seed a status entry as if the provider had reported.
	env := provider.NewEnvelope(m.ID, provider.StateIdle)
	ts.reconciler.Accept(env, 1)

	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/api/v1/machines/%d/disable", m.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	if ts.srv.orchestrator.Running() != 0 {
		t.Errorf("Running() = %d after disable", ts.srv.orchestrator.Running())
	}

	statusRec := ts.do(t, http.MethodGet, fmt.Sprintf("/api/v1/machines/%d/status", m.ID), nil)
	if statusRec.Code != http.StatusOK {
		t.Errorf("status entry gone after disable: %d", statusRec.Code)
	}
}

func TestDeleteMachine_PurgesStatus(t *testing.T) {
	ts := newTestServer(t)
	m := createFakeMachine(t, ts)
	ts.reconciler.Accept(provider.NewEnvelope(m.ID, provider.StateIdle), 1)

	rec := ts.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/machines/%d", m.ID), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}

	statusRec := ts.do(t, http.MethodGet, fmt.Sprintf("/api/v1/machines/%d/status", m.ID), nil)
	if statusRec.Code != http.StatusNotFound {
		t.Errorf("status entry survived delete: %d", statusRec.Code)
	}
}

func TestListStatus(t *testing.T) {
	ts := newTestServer(t)

	envA := provider.NewEnvelope(2, provider.StateOperational)
	envA.Progress = 0.5
	envA.Elapsed = time.Minute
	envA.Temps = map[int]provider.Temp{0: {Actual: 210, Target: 215}}
	ts.reconciler.Accept(envA, 1)
	ts.reconciler.Accept(provider.NewEnvelope(1, provider.StateIdle), 1)

	rec := ts.do(t, http.MethodGet, "/api/v1/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	body := decode[struct {
		Status []statusResponse `json:"status"`
		Count  int              `json:"count"`
	}](t, rec)

	if body.Count != 2 {
		t.Fatalf("count = %d, want 2", body.Count)
	}
	if body.Status[0].MachineID != 1 || body.Status[1].MachineID != 2 {
		t.Errorf("status not ordered by machine ID: %+v", body.Status)
	}
	if body.Status[1].ElapsedMS != 60_000 {
		t.Errorf("ElapsedMS = %d, want 60000", body.Status[1].ElapsedMS)
	}
	if body.Status[1].Temps[0].Target != 215 {
		t.Errorf("Temps = %+v", body.Status[1].Temps)
	}
}

func TestCommand_Dispatched(t *testing.T) {
	ts := newTestServer(t)
	m := createFakeMachine(t, ts)

	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/api/v1/machines/%d/commands", m.ID),
		commandRequest{Command: "pause"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
}

func TestCommand_MachineNotRunning(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/machines/42/commands",
		commandRequest{Command: "pause"})
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestCommand_Unknown(t *testing.T) {
	ts := newTestServer(t)
	m := createFakeMachine(t, ts)

	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/api/v1/machines/%d/commands", m.ID),
		commandRequest{Command: "launch"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t)
	createFakeMachine(t, ts)

	rec := ts.do(t, http.MethodGet, "/api/v1/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	body := decode[map[string]any](t, rec)
	for _, key := range []string{"machines", "orchestrator", "reconciler", "websocket"} {
		if _, ok := body[key]; !ok {
			t.Errorf("metrics missing %q", key)
		}
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() with no deps succeeded")
	}
}
