package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/lightswitch/internal/state"
)

// healthCheckTimeout bounds the store probe made by the health endpoint.
const healthCheckTimeout = 3 * time.Second

// setStateRequest is the body of POST set/{device}. State is kept raw so that
// only the literals true and false are accepted.
type setStateRequest struct {
	State json.RawMessage `json:"state"`
}

// DeviceInfo describes one device for the panel.
type DeviceInfo struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Label       string `json:"label,omitempty"`
	Description string `json:"description,omitempty"`
}

// HealthResponse is the body of GET health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Store   string `json:"store"`
}

// handleGetStates returns the full snapshot.
func (s *Server) handleGetStates(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.Read(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err, msgFetchFailed)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleToggle flips one device, or every device for the all/both tokens.
//
// The read and the write are not isolated: two concurrent toggles of the
// same device can both read the old value, and the last write wins.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "device")
	keys, err := s.store.Catalog().Resolve(token)
	if err != nil {
		writeBadRequest(w, msgUnknownDevice)
		return
	}

	current, err := s.store.Read(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err, msgUpdateFailed)
		return
	}

	persisted, err := s.store.Write(r.Context(), current.Toggled(keys))
	if err != nil {
		s.writeStoreError(w, r, err, msgUpdateFailed)
		return
	}

	s.logger.Info("device toggled", "device", token, "request_id", requestIDFrom(r.Context()))
	writeJSON(w, http.StatusOK, persisted.Only(keys))
}

// handleSet assigns an explicit value to one device.
func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "device")
	if !s.store.Catalog().Has(key) {
		writeBadRequest(w, msgUnknownDevice)
		return
	}

	on, err := decodeSetState(r)
	if err != nil {
		writeBadRequest(w, msgInvalidState)
		return
	}

	current, err := s.store.Read(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err, msgUpdateFailed)
		return
	}

	persisted, err := s.store.Write(r.Context(), current.With(key, on))
	if err != nil {
		s.writeStoreError(w, r, err, msgUpdateFailed)
		return
	}

	s.logger.Info("device set", "device", key, "on", on, "request_id", requestIDFrom(r.Context()))
	writeJSON(w, http.StatusOK, persisted.Only([]string{key}))
}

// decodeSetState extracts the boolean from a set request body.
//
// Returns:
//   - bool: The requested value
//   - error: state.ErrInvalidState if the body is malformed or state is
//     missing or not a JSON boolean
func decodeSetState(r *http.Request) (bool, error) {
	var req setStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return false, fmt.Errorf("%w: %w", state.ErrInvalidState, err)
	}

	switch string(req.State) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, state.ErrInvalidState
	}
}

// handleListDevices returns device metadata in catalog order.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	out := make([]DeviceInfo, 0, len(s.devices))
	for _, d := range s.devices {
		name := d.Name
		if name == "" {
			name = d.Key
		}
		out = append(out, DeviceInfo{
			Key:         d.Key,
			Name:        name,
			Label:       d.Label,
			Description: d.Description,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": out})
}

// handleHealth reports process and store health. A store that is not
// configured or not reachable yields 503 so load balancers can act on it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Version: s.version, Store: "ok"}
	status := http.StatusOK

	if err := s.store.HealthCheck(ctx); err != nil {
		resp.Status = "degraded"
		resp.Store = "unavailable"
		if errors.Is(err, state.ErrNotConfigured) {
			resp.Store = "not_configured"
		}
		status = http.StatusServiceUnavailable
		s.logger.Warn("health check failed", "error", err)
	}

	writeJSON(w, status, resp)
}
