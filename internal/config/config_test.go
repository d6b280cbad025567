package config

import (
	"log/slog"
	"testing"
	"time"
)

// setEnv clears every variable LoadFromEnv reads, then applies overrides.
func setEnv(t *testing.T, overrides map[string]string) {
	t.Helper()
	for _, k := range []string{
		"APP_ENV", "LOG_LEVEL", "HTTP_ADDR",
		"METER_ADDRESS", "METER_NAME", "METER_TIMEOUT_SECONDS", "BLE_ADAPTER",
		"MQTT_ENABLED", "MQTT_BROKER", "MQTT_PORT", "MQTT_CLIENT_ID",
		"MQTT_TOPIC_PREFIX", "MQTT_DISCOVERY_PREFIX",
		"SQLITE_PATH", "SQLITE_DSN", "SQLITE_LOG_SQL",
	} {
		t.Setenv(k, "")
	}
	if _, ok := overrides["METER_ADDRESS"]; !ok {
		t.Setenv("METER_ADDRESS", "d2:3a:4b:5c:6d:7e")
	}
	for k, v := range overrides {
		t.Setenv(k, v)
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	setEnv(t, nil)

	got, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v, want nil", err)
	}

	if got.AppEnv != "dev" {
		t.Errorf("AppEnv = %q, want %q", got.AppEnv, "dev")
	}
	if got.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want %v", got.LogLevel, slog.LevelInfo)
	}
	if got.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", got.HTTPAddr, ":8080")
	}
	if got.MeterAddress != "D2:3A:4B:5C:6D:7E" {
		t.Errorf("MeterAddress = %q, want upper-cased", got.MeterAddress)
	}
	if got.MeterTimeout != 300*time.Second {
		t.Errorf("MeterTimeout = %v, want 5m0s", got.MeterTimeout)
	}
	if got.BLEAdapter != "hci0" {
		t.Errorf("BLEAdapter = %q, want hci0", got.BLEAdapter)
	}
	if !got.MQTTEnabled || got.MQTTBroker != "localhost" || got.MQTTPort != 1883 {
		t.Errorf("MQTT = %v %q:%d, want enabled localhost:1883", got.MQTTEnabled, got.MQTTBroker, got.MQTTPort)
	}
	if got.MQTTTopicPrefix != "switchbot" || got.MQTTDiscoveryPrefix != "homeassistant" {
		t.Errorf("prefixes = %q/%q", got.MQTTTopicPrefix, got.MQTTDiscoveryPrefix)
	}
	if got.SQLitePath != "data/gateway.db" || got.SQLiteLogSQL {
		t.Errorf("SQLite = %q log=%v", got.SQLitePath, got.SQLiteLogSQL)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	setEnv(t, map[string]string{
		"APP_ENV":               " prod ",
		"LOG_LEVEL":             "WARNING",
		"METER_TIMEOUT_SECONDS": "45",
		"MQTT_ENABLED":          "false",
		"MQTT_TOPIC_PREFIX":     "/home/meters/",
		"SQLITE_LOG_SQL":        "1",
	})

	got, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if got.AppEnv != "prod" {
		t.Errorf("AppEnv = %q, want prod", got.AppEnv)
	}
	if got.LogLevel != slog.LevelWarn {
		t.Errorf("LogLevel = %v, want WARN", got.LogLevel)
	}
	if got.MeterTimeout != 45*time.Second {
		t.Errorf("MeterTimeout = %v, want 45s", got.MeterTimeout)
	}
	if got.MQTTEnabled {
		t.Error("MQTTEnabled = true, want false")
	}
	if got.MQTTTopicPrefix != "home/meters" {
		t.Errorf("MQTTTopicPrefix = %q, want slashes trimmed", got.MQTTTopicPrefix)
	}
	if !got.SQLiteLogSQL {
		t.Error("SQLiteLogSQL = false, want true")
	}
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown app env", env: map[string]string{"APP_ENV": "staging"}},
		{name: "uppercase app env", env: map[string]string{"APP_ENV": "DEV"}},
		{name: "bad log level", env: map[string]string{"LOG_LEVEL": "verbose"}},
		{name: "missing meter address", env: map[string]string{"METER_ADDRESS": ""}},
		{name: "malformed meter address", env: map[string]string{"METER_ADDRESS": "not-a-mac"}},
		{name: "zero timeout", env: map[string]string{"METER_TIMEOUT_SECONDS": "0"}},
		{name: "negative timeout", env: map[string]string{"METER_TIMEOUT_SECONDS": "-5"}},
		{name: "non-numeric timeout", env: map[string]string{"METER_TIMEOUT_SECONDS": "5m"}},
		{name: "bad mqtt port", env: map[string]string{"MQTT_PORT": "mqtt"}},
		{name: "bad mqtt enabled", env: map[string]string{"MQTT_ENABLED": "maybe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, tt.env)
			if _, err := LoadFromEnv(); err == nil {
				t.Fatalf("LoadFromEnv() error = nil, want non-nil")
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: " Info ", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
	}
	for _, tt := range tests {
		got, err := parseLogLevel(tt.in)
		if err != nil {
			t.Errorf("parseLogLevel(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
