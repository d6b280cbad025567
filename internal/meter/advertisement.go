package meter

import "time"

// Advertisement is a single observation of a BLE peripheral as handed over by
// the scanner. ManufacturerData carries the little-endian company identifier
// in its first two bytes.
type Advertisement struct {
	Address          string
	RSSI             int16
	LocalName        string
	ManufacturerData []byte
	ServiceData      []ServiceData
	SeenAt           time.Time
}

type ServiceData struct {
	UUID string
	Data []byte
}

// PrimaryServiceData returns the payload of the first service data entry, or
// nil if the advertisement carried none.
func (a Advertisement) PrimaryServiceData() []byte {
	if len(a.ServiceData) == 0 {
		return nil
	}
	return a.ServiceData[0].Data
}
