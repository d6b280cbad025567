package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"switchbot-sensor-gateway/internal/liveness"
	"switchbot-sensor-gateway/internal/store"
)

const statusEventLimit = 20

// Snapshotter is satisfied by *liveness.Tracker.
type Snapshotter interface {
	Snapshot() liveness.Snapshot
}

// MeterStore is the read side of store.Repository used by /status.
type MeterStore interface {
	GetMeter(address string) (store.MeterState, error)
	GetStatusEvents(address string, limit int) ([]store.StatusEvent, error)
}

type statusResponse struct {
	liveness.Snapshot
	TimeoutSeconds int                 `json:"timeout_seconds"`
	Stored         *store.MeterState   `json:"stored,omitempty"`
	Events         []store.StatusEvent `json:"events"`
}

type statusHandler struct {
	tracker Snapshotter
	meters  MeterStore
}

func (h *statusHandler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := h.tracker.Snapshot()
	resp := statusResponse{
		Snapshot:       snap,
		TimeoutSeconds: int(snap.Timeout.Seconds()),
		Events:         []store.StatusEvent{},
	}

	m, err := h.meters.GetMeter(snap.Address)
	switch {
	case err == nil:
		resp.Stored = &m
	case errors.Is(err, store.ErrMeterNotFound):
	default:
		slog.Error("failed to load meter", "addr", snap.Address, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load meter")
		return
	}

	events, err := h.meters.GetStatusEvents(snap.Address, statusEventLimit)
	if err != nil {
		slog.Error("failed to load status events", "addr", snap.Address, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load status events")
		return
	}
	if events != nil {
		resp.Events = events
	}
	writeJSON(w, http.StatusOK, resp)
}

func registerStatus(mux *http.ServeMux, tracker Snapshotter, meters MeterStore) {
	h := &statusHandler{tracker: tracker, meters: meters}
	mux.HandleFunc("GET /status", h.handleStatus)
}
