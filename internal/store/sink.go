package store

import (
	"log/slog"
	"time"

	"switchbot-sensor-gateway/internal/liveness"
	"switchbot-sensor-gateway/internal/meter"
)

// Sink records tracker events in the repository. Write failures are logged
// and otherwise ignored so a full disk never stalls the tracker.
type Sink struct {
	repo   Repository
	logger *slog.Logger
}

func NewSink(repo Repository, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{repo: repo, logger: logger}
}

func (s *Sink) ReadingUpdated(address string, _ meter.Reading, at time.Time) {
	if err := s.repo.TouchMeter(address, at); err != nil {
		s.logger.Error("store: touch meter", "addr", address, "error", err)
	}
}

func (s *Sink) StatusChanged(address string, st liveness.Status) {
	var reason string
	if st.Err != nil {
		reason = st.Err.Error()
	}
	if err := s.repo.RecordStatus(address, st.Online, st.At, reason); err != nil {
		s.logger.Error("store: record status", "addr", address, "status", st.String(), "error", err)
	}
}
