package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"switchbot-sensor-gateway/internal/liveness"
	"switchbot-sensor-gateway/internal/meter"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"

	// errOperationTimedOut marks values as missing rather than zero when the
	// meter went silent.
	errOperationTimedOut = "operation_timed_out"
)

// StateMessage is published to <prefix>/<device>/state for every reading.
type StateMessage struct {
	TemperatureC float64   `json:"temperature_c"`
	HumidityPct  int       `json:"humidity_pct"`
	BatteryPct   int       `json:"battery_pct"`
	BatteryLow   bool      `json:"battery_low"`
	Timestamp    time.Time `json:"timestamp"`
}

// StatusMessage is published retained to <prefix>/<device>/status on every
// online/offline transition.
type StatusMessage struct {
	Online   bool      `json:"online"`
	At       time.Time `json:"at"`
	LastSeen time.Time `json:"last_seen,omitzero"`
	Error    string    `json:"error,omitempty"`
	Detail   string    `json:"detail,omitempty"`
}

func newStateMessage(r meter.Reading, at time.Time) StateMessage {
	return StateMessage{
		TemperatureC: r.TemperatureCelsius,
		HumidityPct:  r.RelativeHumidityPercent,
		BatteryPct:   r.BatteryPercent,
		BatteryLow:   r.IsLowBattery,
		Timestamp:    at.UTC(),
	}
}

func newStatusMessage(st liveness.Status, lastSeen time.Time) StatusMessage {
	msg := StatusMessage{Online: st.Online, At: st.At.UTC()}
	if !lastSeen.IsZero() {
		msg.LastSeen = lastSeen.UTC()
	}
	if st.Err != nil {
		msg.Error = "error"
		if errors.Is(st.Err, liveness.ErrLivenessTimeout) {
			msg.Error = errOperationTimedOut
		}
		msg.Detail = st.Err.Error()
	}
	return msg
}

// PublishReading publishes the decoded values of one advertisement.
func (c *Client) PublishReading(address string, r meter.Reading, at time.Time) error {
	return c.publishJSON(c.stateTopic(address), false, newStateMessage(r, at))
}

// PublishStatus publishes availability and the status document, both
// retained. They are remembered first so a later reconnect replays them even
// if this publish fails.
func (c *Client) PublishStatus(address string, st liveness.Status, lastSeen time.Time) error {
	status, err := json.Marshal(newStatusMessage(st, lastSeen))
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	availability := payloadOffline
	if st.Online {
		availability = payloadOnline
	}

	if address == c.cfg.MeterAddress {
		c.mu.Lock()
		c.lastAvailability = availability
		c.lastStatus = status
		c.mu.Unlock()
	}

	if err := c.publish(c.availabilityTopic(address), true, []byte(availability)); err != nil {
		return err
	}
	return c.publish(c.statusTopic(address), true, status)
}
