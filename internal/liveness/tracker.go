// Package liveness tracks whether a meter is reachable based on how recently
// one of its advertisements decoded successfully.
//
// A Tracker starts offline. The first good reading moves it online and arms an
// expiry timer; every further good reading restarts the timer. When the timer
// fires the tracker goes offline again and reports a timeout. Malformed
// packets never touch the timer.
package liveness

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"switchbot-sensor-gateway/internal/meter"
)

// DefaultTimeout applies when Config.Timeout is not positive.
const DefaultTimeout = 300 * time.Second

// ErrLivenessTimeout is carried by the offline Status emitted when no reading
// arrived within the configured timeout.
var ErrLivenessTimeout = errors.New("liveness timeout")

type Config struct {
	Address string
	Timeout time.Duration
}

// Snapshot is a point-in-time copy of a tracker's state.
type Snapshot struct {
	Address     string         `json:"address"`
	Online      bool           `json:"online"`
	LastSeenAt  time.Time      `json:"last_seen_at,omitzero"`
	Timeout     time.Duration  `json:"-"`
	LastReading *meter.Reading `json:"last_reading,omitempty"`
}

// Tracker owns the liveness state of a single meter address.
type Tracker struct {
	address string
	timeout time.Duration
	sink    Sink
	logger  *slog.Logger
	now     func() time.Time

	mu          sync.Mutex
	online      bool
	lastSeen    time.Time
	lastReading *meter.Reading
	timer       *time.Timer
	gen         uint64 // bumped on every re-arm; stale expiries compare unequal
	closed      bool
}

// New creates a Tracker for cfg.Address. A nil logger means slog.Default().
func New(cfg Config, sink Sink, logger *slog.Logger) *Tracker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = SinkFuncs{}
	}
	return &Tracker{
		address: cfg.Address,
		timeout: cfg.Timeout,
		sink:    sink,
		logger:  logger.With("addr", cfg.Address),
		now:     time.Now,
	}
}

func (t *Tracker) Address() string { return t.address }

// Matches reports whether address refers to the tracked meter. MAC addresses
// are compared case-insensitively.
func (t *Tracker) Matches(address string) bool {
	return strings.EqualFold(strings.TrimSpace(address), t.address)
}

// OnRawAdvertisement feeds one advertisement to the tracker. Advertisements
// for other addresses are ignored.
func (t *Tracker) OnRawAdvertisement(adv meter.Advertisement) {
	if !t.Matches(adv.Address) {
		return
	}

	r, diags, err := meter.DecodeAdvertisement(adv)
	if err != nil {
		for _, d := range diags {
			t.logger.Warn("meter: dropped advertisement", "reason", d.Message, "rssi", adv.RSSI)
		}
		return
	}
	for _, d := range diags {
		t.logger.Info("meter: decoded with notice", "notice", d.Message)
	}

	t.logger.Debug("meter: received data",
		"temperature_c", r.TemperatureCelsius,
		"humidity_pct", r.RelativeHumidityPercent,
		"battery_pct", r.BatteryPercent,
		"rssi", adv.RSSI,
	)

	at := adv.SeenAt
	if at.IsZero() {
		at = t.now()
	}
	t.accept(r, at)
}

func (t *Tracker) accept(r meter.Reading, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	if !t.online {
		t.online = true
		t.logger.Info("meter: received data, device is now online")
		t.emitStatus(Status{Online: true, At: at})
	}
	t.lastSeen = at
	t.lastReading = &r
	t.rearm()

	t.emit("reading", func() { t.sink.ReadingUpdated(t.address, r, at) })
}

// rearm cancels any pending expiry and schedules a new one. Callers hold t.mu.
func (t *Tracker) rearm() {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.timer = time.AfterFunc(t.timeout, func() { t.expire(gen) })
}

func (t *Tracker) expire(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	// A reset may have raced with this callback; only the latest arm counts.
	if t.closed || gen != t.gen || !t.online {
		return
	}

	t.online = false
	t.timer = nil
	t.logger.Warn("meter: no message received, device offline", "timeout", t.timeout.String())
	t.emitStatus(Status{
		Online: false,
		At:     t.now(),
		Err:    fmt.Errorf("%w: no reading for %s", ErrLivenessTimeout, t.timeout),
	})
}

func (t *Tracker) emitStatus(st Status) {
	t.emit("status", func() { t.sink.StatusChanged(t.address, st) })
}

// emit calls a sink and contains a panic there, so a broken sink costs one
// event instead of the scan goroutine or the expiry timer.
func (t *Tracker) emit(event string, call func()) {
	defer func() {
		if p := recover(); p != nil {
			t.logger.Error("liveness: sink panicked", "event", event, "panic", p)
		}
	}()
	call()
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		Address:    t.address,
		Online:     t.online,
		LastSeenAt: t.lastSeen,
		Timeout:    t.timeout,
	}
	if t.lastReading != nil {
		r := *t.lastReading
		s.LastReading = &r
	}
	return s
}

// Close cancels the pending expiry. Events arriving afterwards are dropped.
// Safe to call more than once.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
