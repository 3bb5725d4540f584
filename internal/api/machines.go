package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shopfloor-io/shopfloor-core/internal/machine"
)

// machineResponse is the API representation of a machine registration.
type machineResponse struct {
	ID             int64          `json:"id"`
	Name           string         `json:"name"`
	Type           string         `json:"type"`
	Enabled        bool           `json:"enabled"`
	PollIntervalMS int64          `json:"poll_interval_ms"`
	Config         machine.Config `json:"config"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func machineFromModel(m machine.Machine) machineResponse {
	return machineResponse{
		ID:             m.ID,
		Name:           m.Name,
		Type:           m.Type,
		Enabled:        m.Enabled,
		PollIntervalMS: m.PollIntervalMS,
		Config:         m.Config,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// createMachineRequest is the payload for POST /machines.
type createMachineRequest struct {
	Name           string         `json:"name"`
	Type           string         `json:"type"`
	Enabled        *bool          `json:"enabled"`
	PollIntervalMS int64          `json:"poll_interval_ms"`
	Config         machine.Config `json:"config"`
}

// updateMachineRequest is the payload for PATCH /machines/{id}.
// Absent fields are left unchanged.
type updateMachineRequest struct {
	Name           *string         `json:"name"`
	Type           *string         `json:"type"`
	Enabled        *bool           `json:"enabled"`
	PollIntervalMS *int64          `json:"poll_interval_ms"`
	Config         *machine.Config `json:"config"`
}

func (s *Server) handleListMachines(w http.ResponseWriter, r *http.Request) {
	machines, err := s.registry.ListMachines(r.Context())
	if err != nil {
		s.logger.Error("listing machines failed", "error", err)
		writeInternalError(w, "failed to list machines")
		return
	}

	out := make([]machineResponse, 0, len(machines))
	for _, m := range machines {
		out = append(out, machineFromModel(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"machines": out, "count": len(out)})
}

func (s *Server) handleGetMachine(w http.ResponseWriter, r *http.Request) {
	id, ok := machineID(w, r)
	if !ok {
		return
	}

	m, err := s.registry.GetMachine(r.Context(), id)
	if err != nil {
		if errors.Is(err, machine.ErrMachineNotFound) {
			writeNotFound(w, "machine not found")
			return
		}
		s.logger.Error("getting machine failed", "machine_id", id, "error", err)
		writeInternalError(w, "failed to get machine")
		return
	}
	writeJSON(w, http.StatusOK, machineFromModel(*m))
}

func (s *Server) handleCreateMachine(w http.ResponseWriter, r *http.Request) {
	var req createMachineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	m := &machine.Machine{
		Name:           req.Name,
		Type:           req.Type,
		Enabled:        true,
		PollIntervalMS: req.PollIntervalMS,
		Config:         req.Config,
	}
	if req.Enabled != nil {
		m.Enabled = *req.Enabled
	}
	if m.Config == nil {
		m.Config = machine.Config{}
	}

	if err := s.registry.CreateMachine(r.Context(), m); err != nil {
		if errors.Is(err, machine.ErrInvalidMachine) {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		s.logger.Error("creating machine failed", "error", err)
		writeInternalError(w, "failed to create machine")
		return
	}

	s.resync(r)
	writeJSON(w, http.StatusCreated, machineFromModel(*m))
}

func (s *Server) handleUpdateMachine(w http.ResponseWriter, r *http.Request) {
	id, ok := machineID(w, r)
	if !ok {
		return
	}

	var req updateMachineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	m, err := s.registry.GetMachine(r.Context(), id)
	if err != nil {
		if errors.Is(err, machine.ErrMachineNotFound) {
			writeNotFound(w, "machine not found")
			return
		}
		s.logger.Error("getting machine failed", "machine_id", id, "error", err)
		writeInternalError(w, "failed to get machine")
		return
	}

	if req.Name != nil {
		m.Name = *req.Name
	}
	if req.Type != nil {
		m.Type = *req.Type
	}
	if req.Enabled != nil {
		m.Enabled = *req.Enabled
	}
	if req.PollIntervalMS != nil {
		m.PollIntervalMS = *req.PollIntervalMS
	}
	if req.Config != nil {
		m.Config = *req.Config
	}

	if err := s.registry.UpdateMachine(r.Context(), m); err != nil {
		if errors.Is(err, machine.ErrInvalidMachine) {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		s.logger.Error("updating machine failed", "machine_id", id, "error", err)
		writeInternalError(w, "failed to update machine")
		return
	}

	s.resync(r)
	writeJSON(w, http.StatusOK, machineFromModel(*m))
}

func (s *Server) handleDeleteMachine(w http.ResponseWriter, r *http.Request) {
	id, ok := machineID(w, r)
	if !ok {
		return
	}

	if err := s.registry.DeleteMachine(r.Context(), id); err != nil {
		if errors.Is(err, machine.ErrMachineNotFound) {
			writeNotFound(w, "machine not found")
			return
		}
		s.logger.Error("deleting machine failed", "machine_id", id, "error", err)
		writeInternalError(w, "failed to delete machine")
		return
	}

	s.resync(r)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEnableMachine(w http.ResponseWriter, r *http.Request) {
	s.setEnabled(w, r, true)
}

func (s *Server) handleDisableMachine(w http.ResponseWriter, r *http.Request) {
	s.setEnabled(w, r, false)
}

func (s *Server) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	id, ok := machineID(w, r)
	if !ok {
		return
	}

	if err := s.registry.SetMachineEnabled(r.Context(), id, enabled); err != nil {
		if errors.Is(err, machine.ErrMachineNotFound) {
			writeNotFound(w, "machine not found")
			return
		}
		s.logger.Error("toggling machine failed", "machine_id", id, "error", err)
		writeInternalError(w, "failed to update machine")
		return
	}

	s.resync(r)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "enabled": enabled})
}

// resync converges running handles after a registration change.
func (s *Server) resync(r *http.Request) {
	if err := s.orchestrator.Sync(r.Context()); err != nil {
		s.logger.Error("orchestrator sync failed", "error", err)
	}
}

// machineID parses the {id} route parameter.
func machineID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(w, "invalid machine id")
		return 0, false
	}
	return id, true
}
