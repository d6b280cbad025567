package mqtt

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"switchbot-sensor-gateway/internal/liveness"
	"switchbot-sensor-gateway/internal/meter"
)

const defaultQueueSize = 64

// Publisher is what the Sink needs from a broker client.
type Publisher interface {
	PublishReading(address string, r meter.Reading, at time.Time) error
	PublishStatus(address string, st liveness.Status, lastSeen time.Time) error
}

type outbound struct {
	address string
	at      time.Time
	reading *meter.Reading
	status  *liveness.Status
}

// Sink is a liveness.Sink that hands events to a background publisher so a
// slow broker never blocks the BLE scan callback. Events keep their order.
// When the queue is full a new reading is dropped; a status change instead
// evicts the oldest queued reading, so transitions are never lost.
type Sink struct {
	pub    Publisher
	logger *slog.Logger
	limit  int

	mu    sync.Mutex
	queue []outbound
	wake  chan struct{}
}

func NewSink(pub Publisher, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		pub:    pub,
		logger: logger,
		limit:  defaultQueueSize,
		wake:   make(chan struct{}, 1),
	}
}

func (s *Sink) ReadingUpdated(address string, r meter.Reading, at time.Time) {
	s.enqueue(outbound{address: address, at: at, reading: &r})
}

func (s *Sink) StatusChanged(address string, st liveness.Status) {
	s.enqueue(outbound{address: address, at: st.At, status: &st})
}

func (s *Sink) enqueue(o outbound) {
	s.mu.Lock()
	if len(s.queue) >= s.limit {
		if o.status == nil {
			s.mu.Unlock()
			s.logger.Warn("mqtt: publish queue full, dropping reading", "addr", o.address)
			return
		}
		if i := slices.IndexFunc(s.queue, func(q outbound) bool { return q.reading != nil }); i >= 0 {
			s.queue = slices.Delete(s.queue, i, i+1)
			s.logger.Warn("mqtt: publish queue full, evicted oldest reading", "addr", o.address)
		}
	}
	s.queue = append(s.queue, o)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Sink) next() (outbound, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return outbound{}, false
	}
	o := s.queue[0]
	s.queue = s.queue[1:]
	return o, true
}

// Run publishes queued events until ctx is canceled.
func (s *Sink) Run(ctx context.Context) {
	lastSeen := make(map[string]time.Time)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}
		for ctx.Err() == nil {
			o, ok := s.next()
			if !ok {
				break
			}
			s.handle(o, lastSeen)
		}
	}
}

func (s *Sink) handle(o outbound, lastSeen map[string]time.Time) {
	switch {
	case o.reading != nil:
		lastSeen[o.address] = o.at
		if err := s.pub.PublishReading(o.address, *o.reading, o.at); err != nil {
			s.logger.Warn("mqtt: failed to publish reading", "addr", o.address, "error", err)
		}
	case o.status != nil:
		if err := s.pub.PublishStatus(o.address, *o.status, lastSeen[o.address]); err != nil {
			s.logger.Warn("mqtt: failed to publish status", "addr", o.address, "status", o.status.String(), "error", err)
			return
		}
		s.logger.Info("mqtt: status published", "addr", o.address, "status", o.status.String())
	}
}
