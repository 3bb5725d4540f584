package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/shopfloor-io/shopfloor-core/internal/monitor"
	"github.com/shopfloor-io/shopfloor-core/internal/provider"
)

// statusResponse is the API representation of one reconciled status entry.
// Durations travel as milliseconds on the wire.
type statusResponse struct {
	MachineID   int64                `json:"machine_id"`
	State       provider.State       `json:"state"`
	Progress    float64              `json:"progress"`
	ElapsedMS   int64                `json:"elapsed_ms"`
	RemainingMS int64                `json:"remaining_ms"`
	Temps       map[int]tempResponse `json:"temps,omitempty"`
	Generation  uint64               `json:"generation"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

type tempResponse struct {
	Actual float64 `json:"actual"`
	Target float64 `json:"target"`
}

func statusFromMonitor(status monitor.Status) statusResponse {
	env := status.Envelope

	out := statusResponse{
		MachineID:   env.MachineID,
		State:       env.State,
		Progress:    env.Progress,
		ElapsedMS:   env.Elapsed.Milliseconds(),
		RemainingMS: env.Remaining.Milliseconds(),
		Generation:  status.Generation,
		UpdatedAt:   status.UpdatedAt,
	}
	if len(env.Temps) > 0 {
		out.Temps = make(map[int]tempResponse, len(env.Temps))
		for heater, t := range env.Temps {
			out.Temps[heater] = tempResponse{Actual: t.Actual, Target: t.Target}
		}
	}
	return out
}

// handleListStatus returns the full reconciled status table, ordered by
// machine ID.
func (s *Server) handleListStatus(w http.ResponseWriter, _ *http.Request) {
	table := s.reconciler.List()

	out := make([]statusResponse, 0, len(table))
	for _, status := range table {
		out = append(out, statusFromMonitor(status))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MachineID < out[j].MachineID })

	writeJSON(w, http.StatusOK, map[string]any{"status": out, "count": len(out)})
}

// handleGetStatus returns the reconciled status for one machine.
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := machineID(w, r)
	if !ok {
		return
	}

	status, ok := s.reconciler.Get(id)
	if !ok {
		writeNotFound(w, "no status for machine")
		return
	}
	writeJSON(w, http.StatusOK, statusFromMonitor(status))
}
