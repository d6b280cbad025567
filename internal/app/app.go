package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"switchbot-sensor-gateway/internal/ble"
	"switchbot-sensor-gateway/internal/config"
	"switchbot-sensor-gateway/internal/httpapi"
	"switchbot-sensor-gateway/internal/liveness"
	"switchbot-sensor-gateway/internal/mqtt"
	"switchbot-sensor-gateway/internal/store"
)

func Run(ctx context.Context, cfg config.Config, version string) error {
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"meterAddress", cfg.MeterAddress,
		"meterTimeout", cfg.MeterTimeout,
		"bleAdapter", cfg.BLEAdapter,
		"mqttEnabled", cfg.MQTTEnabled,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"sqlitePath", cfg.SQLitePath,
	)

	dbConn, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(dbConn); closeErr != nil {
			slog.Error("db close", "error", closeErr)
		}
	}()

	if err := store.Migrate(dbConn); err != nil {
		return err
	}
	repo := store.NewRepository(dbConn)
	if err := repo.RegisterMeter(cfg.MeterAddress, cfg.MeterName); err != nil {
		return err
	}

	sinks := liveness.Sinks{store.NewSink(repo, slog.Default())}

	var mqttClient *mqtt.Client
	if cfg.MQTTEnabled {
		mqttClient, err = mqtt.NewClient(cfg, version, slog.Default())
		if err != nil {
			return err
		}
		// Short timeout so a missing broker never blocks startup; paho keeps
		// retrying in the background.
		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		err = mqttClient.Connect(connectCtx)
		connectCancel()
		if err != nil {
			slog.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
		}

		mqttSink := mqtt.NewSink(mqttClient, slog.Default())
		go mqttSink.Run(ctx)
		sinks = append(sinks, mqttSink)
	}

	tracker := liveness.New(liveness.Config{
		Address: cfg.MeterAddress,
		Timeout: cfg.MeterTimeout,
	}, sinks, slog.Default())
	defer tracker.Close()

	bleHandler := ble.NewHandler(tracker)
	bleListener := ble.NewListener(ble.Options{
		Adapter: cfg.BLEAdapter,
		Filter:  ble.Filter{Addresses: bleHandler.Addresses()},
	})
	bleHandler.StartListener(ctx, bleListener)

	srv := httpapi.NewServer(cfg, httpapi.NewMux(dbConn, tracker, repo))

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if mqttClient != nil {
		slog.Info("mqtt disconnecting")
		mqttClient.Disconnect()
	}

	slog.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}
