package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	// MeterAddress is the BLE MAC of the tracked meter, upper-cased.
	MeterAddress string
	MeterName    string
	MeterTimeout time.Duration
	BLEAdapter   string

	MQTTEnabled         bool
	MQTTBroker          string
	MQTTPort            int
	MQTTClientID        string
	MQTTTopicPrefix     string
	MQTTDiscoveryPrefix string

	SQLitePath   string
	SQLiteDSN    string
	SQLiteLogSQL bool
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	httpAddr := strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	meterAddress := strings.TrimSpace(os.Getenv("METER_ADDRESS"))
	if meterAddress == "" {
		return Config{}, fmt.Errorf("METER_ADDRESS is required")
	}
	if _, err := net.ParseMAC(meterAddress); err != nil {
		return Config{}, fmt.Errorf("invalid METER_ADDRESS %q: %w", meterAddress, err)
	}
	meterAddress = strings.ToUpper(meterAddress)

	meterName := strings.TrimSpace(os.Getenv("METER_NAME"))
	if meterName == "" {
		meterName = "Outdoor Meter"
	}

	timeoutStr := strings.TrimSpace(os.Getenv("METER_TIMEOUT_SECONDS"))
	if timeoutStr == "" {
		timeoutStr = "300"
	}
	timeoutSeconds, err := strconv.Atoi(timeoutStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid METER_TIMEOUT_SECONDS %q: %w", timeoutStr, err)
	}
	if timeoutSeconds <= 0 {
		return Config{}, fmt.Errorf("METER_TIMEOUT_SECONDS must be positive, got %d", timeoutSeconds)
	}

	bleAdapter := strings.TrimSpace(os.Getenv("BLE_ADAPTER"))
	if bleAdapter == "" {
		bleAdapter = "hci0"
	}

	mqttEnabled, err := parseBool("MQTT_ENABLED", true)
	if err != nil {
		return Config{}, err
	}

	mqttBroker := strings.TrimSpace(os.Getenv("MQTT_BROKER"))
	if mqttBroker == "" {
		mqttBroker = "localhost"
	}

	mqttPortStr := strings.TrimSpace(os.Getenv("MQTT_PORT"))
	if mqttPortStr == "" {
		mqttPortStr = "1883"
	}
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}

	mqttClientID := strings.TrimSpace(os.Getenv("MQTT_CLIENT_ID"))
	if mqttClientID == "" {
		mqttClientID = "switchbot-sensor-gateway"
	}

	topicPrefix := strings.Trim(strings.TrimSpace(os.Getenv("MQTT_TOPIC_PREFIX")), "/")
	if topicPrefix == "" {
		topicPrefix = "switchbot"
	}

	discoveryPrefix := strings.Trim(strings.TrimSpace(os.Getenv("MQTT_DISCOVERY_PREFIX")), "/")
	if discoveryPrefix == "" {
		discoveryPrefix = "homeassistant"
	}

	sqlitePath := strings.TrimSpace(os.Getenv("SQLITE_PATH"))
	if sqlitePath == "" {
		sqlitePath = "data/gateway.db"
	}
	sqliteDSN := strings.TrimSpace(os.Getenv("SQLITE_DSN"))

	sqliteLogSQL, err := parseBool("SQLITE_LOG_SQL", false)
	if err != nil {
		return Config{}, err
	}

	return Config{
		AppEnv:              appEnv,
		LogLevel:            level,
		HTTPAddr:            httpAddr,
		MeterAddress:        meterAddress,
		MeterName:           meterName,
		MeterTimeout:        time.Duration(timeoutSeconds) * time.Second,
		BLEAdapter:          bleAdapter,
		MQTTEnabled:         mqttEnabled,
		MQTTBroker:          mqttBroker,
		MQTTPort:            mqttPort,
		MQTTClientID:        mqttClientID,
		MQTTTopicPrefix:     topicPrefix,
		MQTTDiscoveryPrefix: discoveryPrefix,
		SQLitePath:          sqlitePath,
		SQLiteDSN:           sqliteDSN,
		SQLiteLogSQL:        sqliteLogSQL,
	}, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}

func parseBool(name string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(name))
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return v, nil
}
