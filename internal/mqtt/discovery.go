package mqtt

import "fmt"

// DeviceInfo holds the Home Assistant device registry fields shared by every
// entity of the meter, so HA groups them under a single device page.
type DeviceInfo struct {
	Identifiers  []string   `json:"identifiers"`
	Connections  [][]string `json:"connections,omitempty"`
	Name         string     `json:"name"`
	Manufacturer string     `json:"manufacturer"`
	Model        string     `json:"model"`
	SerialNumber string     `json:"serial_number,omitempty"`
	SWVersion    string     `json:"sw_version,omitempty"`
}

// SensorConfig is the JSON payload of an HA MQTT discovery message for a
// sensor or binary_sensor entity.
type SensorConfig struct {
	Name              string     `json:"name"`
	UniqueID          string     `json:"unique_id"`
	StateTopic        string     `json:"state_topic"`
	AvailabilityTopic string     `json:"availability_topic"`
	Device            DeviceInfo `json:"device"`
	DeviceClass       string     `json:"device_class,omitempty"`
	UnitOfMeasurement string     `json:"unit_of_measurement,omitempty"`
	StateClass        string     `json:"state_class,omitempty"`
	ValueTemplate     string     `json:"value_template,omitempty"`
	EntityCategory    string     `json:"entity_category,omitempty"`
	PayloadOn         string     `json:"payload_on,omitempty"`
	PayloadOff        string     `json:"payload_off,omitempty"`
}

// NewDeviceInfo describes the meter. The MAC doubles as identifier and serial
// number; the gateway version is reported as the software version.
func NewDeviceInfo(address, name, version string) DeviceInfo {
	return DeviceInfo{
		Identifiers:  []string{"switchbot_" + DeviceID(address)},
		Connections:  [][]string{{"mac", address}},
		Name:         name,
		Manufacturer: "SwitchBot",
		Model:        "W3400010",
		SerialNumber: address,
		SWVersion:    version,
	}
}

type entityDef struct {
	component string
	entity    string
	config    SensorConfig
}

func (c *Client) entityDefinitions() []entityDef {
	addr := c.cfg.MeterAddress
	id := DeviceID(addr)
	state := c.stateTopic(addr)
	avail := c.availabilityTopic(addr)

	return []entityDef{
		{
			component: "sensor",
			entity:    "temperature",
			config: SensorConfig{
				Name:              "Temperature",
				UniqueID:          id + "_temperature",
				StateTopic:        state,
				AvailabilityTopic: avail,
				Device:            c.device,
				DeviceClass:       "temperature",
				UnitOfMeasurement: "°C",
				StateClass:        "measurement",
				ValueTemplate:     "{{ value_json.temperature_c }}",
			},
		},
		{
			component: "sensor",
			entity:    "humidity",
			config: SensorConfig{
				Name:              "Humidity",
				UniqueID:          id + "_humidity",
				StateTopic:        state,
				AvailabilityTopic: avail,
				Device:            c.device,
				DeviceClass:       "humidity",
				UnitOfMeasurement: "%",
				StateClass:        "measurement",
				ValueTemplate:     "{{ value_json.humidity_pct }}",
			},
		},
		{
			component: "sensor",
			entity:    "battery",
			config: SensorConfig{
				Name:              "Battery",
				UniqueID:          id + "_battery",
				StateTopic:        state,
				AvailabilityTopic: avail,
				Device:            c.device,
				DeviceClass:       "battery",
				UnitOfMeasurement: "%",
				StateClass:        "measurement",
				ValueTemplate:     "{{ value_json.battery_pct }}",
				EntityCategory:    "diagnostic",
			},
		},
		{
			component: "binary_sensor",
			entity:    "battery_low",
			config: SensorConfig{
				Name:              "Battery Low",
				UniqueID:          id + "_battery_low",
				StateTopic:        state,
				AvailabilityTopic: avail,
				Device:            c.device,
				DeviceClass:       "battery",
				ValueTemplate:     "{{ 'ON' if value_json.battery_low else 'OFF' }}",
				PayloadOn:         "ON",
				PayloadOff:        "OFF",
				EntityCategory:    "diagnostic",
			},
		},
	}
}

// PublishDiscovery publishes a retained discovery config for every entity.
func (c *Client) PublishDiscovery() error {
	for _, def := range c.entityDefinitions() {
		topic := c.discoveryTopic(def.component, def.entity)
		if err := c.publishJSON(topic, true, def.config); err != nil {
			return fmt.Errorf("discovery %s: %w", def.entity, err)
		}
	}
	c.logger.Debug("mqtt: discovery published", "entities", len(c.entityDefinitions()))
	return nil
}
