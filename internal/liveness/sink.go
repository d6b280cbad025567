package liveness

import (
	"time"

	"switchbot-sensor-gateway/internal/meter"
)

// Status is an online/offline transition of a tracked meter. Err is set only
// for offline transitions and wraps ErrLivenessTimeout when the meter went
// silent, so consumers can show "no data" rather than a zero reading.
type Status struct {
	Online bool
	At     time.Time
	Err    error
}

func (s Status) String() string {
	if s.Online {
		return "online"
	}
	return "offline"
}

// Sink receives the events a Tracker emits. Calls for one tracker are made
// serially and in order; implementations must not call back into the tracker.
type Sink interface {
	ReadingUpdated(address string, r meter.Reading, at time.Time)
	StatusChanged(address string, s Status)
}

// Sinks fans every event out to each sink in order.
type Sinks []Sink

func (s Sinks) ReadingUpdated(address string, r meter.Reading, at time.Time) {
	for _, sink := range s {
		sink.ReadingUpdated(address, r, at)
	}
}

func (s Sinks) StatusChanged(address string, st Status) {
	for _, sink := range s {
		sink.StatusChanged(address, st)
	}
}

// SinkFuncs adapts plain functions to a Sink. Nil funcs are skipped.
type SinkFuncs struct {
	OnReading func(address string, r meter.Reading, at time.Time)
	OnStatus  func(address string, s Status)
}

func (f SinkFuncs) ReadingUpdated(address string, r meter.Reading, at time.Time) {
	if f.OnReading != nil {
		f.OnReading(address, r, at)
	}
}

func (f SinkFuncs) StatusChanged(address string, s Status) {
	if f.OnStatus != nil {
		f.OnStatus(address, s)
	}
}
