// Package meter decodes advertisements broadcast by SwitchBot thermo-hygrometers.
//
// Manufacturer data layout (company ID included, 13 bytes minimum):
// [0:2] company ID uint16 LE (0x0969), [2:8] device MAC,
// [10] low nibble: tenths of a degree, [11] bit 7: sign (set = positive),
// bits 0-6: whole degrees, [12] bits 0-6: relative humidity %.
//
// Service data layout (3 bytes minimum):
// [0] bits 0-6: device type character, [2] bits 0-6: battery %.
package meter

import (
	"encoding/binary"
	"fmt"
	"strings"
)

const (
	// CompanyID is the Bluetooth SIG company identifier of Woan Technology.
	CompanyID uint16 = 0x0969

	// ServiceUUID is the 16-bit service data UUID SwitchBot devices advertise under.
	ServiceUUID = "fd3d"

	manufacturerDataMinLen = 13
	serviceDataMinLen      = 3

	lowBatteryThreshold = 15
)

// Device type characters of the meter family.
const (
	TypeMeter        byte = 'T'
	TypeMeterPlus    byte = 'i'
	TypeOutdoorMeter byte = 'w'
)

// Reading is a decoded sensor value set.
type Reading struct {
	TemperatureCelsius      float64 `json:"temperature_c"`
	RelativeHumidityPercent int     `json:"humidity_pct"`
	BatteryPercent          int     `json:"battery_pct"`
	IsLowBattery            bool    `json:"battery_low"`
}

// Decode turns the manufacturer data and the first service data payload of an
// advertisement into a Reading.
//
// A non-nil error wraps ErrInvalidPayload and means no Reading was produced;
// the returned diagnostics are all warnings. On success the diagnostics, if
// any, are informational (vendor or device type mismatch).
func Decode(manufacturerData, serviceData []byte) (Reading, []Diagnostic, error) {
	var diags []Diagnostic
	if len(manufacturerData) < manufacturerDataMinLen {
		diags = append(diags, invalidPayload("invalid manufacturer data"))
	}
	if len(serviceData) < serviceDataMinLen {
		diags = append(diags, invalidPayload("invalid service data"))
	}
	if len(diags) > 0 {
		msgs := make([]string, 0, len(diags))
		for _, d := range diags {
			msgs = append(msgs, d.Message)
		}
		return Reading{}, diags, fmt.Errorf("%w: %s (manufacturer data %d bytes, service data %d bytes)",
			ErrInvalidPayload, strings.Join(msgs, ", "), len(manufacturerData), len(serviceData))
	}

	if id := binary.LittleEndian.Uint16(manufacturerData[0:2]); id != CompanyID {
		diags = append(diags, unexpectedSource("company id 0x%04X, want 0x%04X", id, CompanyID))
	}
	if t := serviceData[0] & 0x7F; !isMeterType(t) {
		diags = append(diags, unexpectedSource("device type %q is not a meter", rune(t)))
	}

	return Reading{
		TemperatureCelsius:      temperature(manufacturerData[10], manufacturerData[11]),
		RelativeHumidityPercent: int(manufacturerData[12] & 0x7F),
		BatteryPercent:          int(serviceData[2] & 0x7F),
		IsLowBattery:            int(serviceData[2]&0x7F) < lowBatteryThreshold,
	}, diags, nil
}

// DecodeAdvertisement decodes adv using its first service data entry.
func DecodeAdvertisement(adv Advertisement) (Reading, []Diagnostic, error) {
	return Decode(adv.ManufacturerData, adv.PrimaryServiceData())
}

// temperature works in decidegrees so that equal inputs give identical floats.
func temperature(frac, whole byte) float64 {
	deci := int(frac&0x0F) + 10*int(whole&0x7F)
	if whole&0x80 == 0 {
		deci = -deci
	}
	return float64(deci) / 10
}

func isMeterType(t byte) bool {
	switch t {
	case TypeMeter, TypeMeterPlus, TypeOutdoorMeter:
		return true
	}
	return false
}
