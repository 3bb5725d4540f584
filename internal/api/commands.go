package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopfloor-io/shopfloor-core/internal/monitor"
)

// commandRequest is the payload for POST /machines/{id}/commands.
type commandRequest struct {
	Command string `json:"command"`
}

// handleCommand dispatches a job command to a machine's provider.
//
// The provider's own verdict maps straight onto the response: a machine
// with no running handle is a 409, an unknown command a 400, and a
// device-side rejection a 502 carrying the device's error text.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	id, ok := machineID(w, r)
	if !ok {
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	err := s.dispatcher.Dispatch(r.Context(), id, req.Command)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{
			"machine_id": id,
			"command":    req.Command,
			"dispatched": true,
		})
	case errors.Is(err, monitor.ErrUnknownCommand):
		writeBadRequest(w, err.Error())
	case errors.Is(err, monitor.ErrMachineNotRunning):
		writeConflict(w, err.Error())
	default:
		writeError(w, http.StatusBadGateway, "device_error", err.Error())
	}
}
