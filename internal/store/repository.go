package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

//go:embed sql/upsert-meter.sql
var upsertMeterSQL string

//go:embed sql/touch-meter.sql
var touchMeterSQL string

//go:embed sql/set-meter-online.sql
var setMeterOnlineSQL string

//go:embed sql/insert-status-event.sql
var insertStatusEventSQL string

//go:embed sql/get-meter.sql
var getMeterSQL string

//go:embed sql/get-status-events.sql
var getStatusEventsSQL string

var ErrMeterNotFound = errors.New("meter not found")

type MeterState struct {
	Address    string    `json:"address"`
	Name       string    `json:"name"`
	Online     bool      `json:"online"`
	LastSeenAt time.Time `json:"last_seen_at,omitzero"`
}

type StatusEvent struct {
	Online bool      `json:"online"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

type Repository interface {
	RegisterMeter(address, name string) error
	TouchMeter(address string, at time.Time) error
	RecordStatus(address string, online bool, at time.Time, reason string) error
	GetMeter(address string) (MeterState, error)
	GetStatusEvents(address string, limit int) ([]StatusEvent, error)
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) RegisterMeter(address, name string) error {
	if _, err := r.db.Exec(upsertMeterSQL, address, name); err != nil {
		return fmt.Errorf("register meter %s: %w", address, err)
	}
	return nil
}

func (r *repositoryImpl) TouchMeter(address string, at time.Time) error {
	res, err := r.db.Exec(touchMeterSQL, formatTime(at), address)
	if err != nil {
		return fmt.Errorf("touch meter %s: %w", address, err)
	}
	return requireRow(res, address)
}

func (r *repositoryImpl) RecordStatus(address string, online bool, at time.Time, reason string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	res, err := tx.Exec(setMeterOnlineSQL, online, address)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("set meter status: %w", err)
	}
	if err := requireRow(res, address); err != nil {
		_ = tx.Rollback()
		return err
	}

	var reasonVal any
	if reason != "" {
		reasonVal = reason
	}
	if _, err := tx.Exec(insertStatusEventSQL, address, online, formatTime(at), reasonVal); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert status event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *repositoryImpl) GetMeter(address string) (MeterState, error) {
	var (
		m        MeterState
		lastSeen sql.NullString
	)
	err := r.db.QueryRow(getMeterSQL, address).Scan(&m.Address, &m.Name, &m.Online, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return MeterState{}, fmt.Errorf("%w: %s", ErrMeterNotFound, address)
	}
	if err != nil {
		return MeterState{}, fmt.Errorf("get meter %s: %w", address, err)
	}
	if lastSeen.Valid {
		if m.LastSeenAt, err = parseTime(lastSeen.String); err != nil {
			return MeterState{}, err
		}
	}
	return m, nil
}

func (r *repositoryImpl) GetStatusEvents(address string, limit int) ([]StatusEvent, error) {
	rows, err := r.db.Query(getStatusEventsSQL, address, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close status event rows", "error", err)
		}
	}()

	var out []StatusEvent
	for rows.Next() {
		var (
			e      StatusEvent
			at     string
			reason sql.NullString
		)
		if err := rows.Scan(&e.Online, &at, &reason); err != nil {
			return nil, err
		}
		if e.At, err = parseTime(at); err != nil {
			return nil, err
		}
		e.Reason = reason.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result, address string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrMeterNotFound, address)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		var err2 error
		t, err2 = time.Parse(time.RFC3339, s)
		if err2 != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: RFC3339Nano: %w; RFC3339: %w", s, err, err2)
		}
	}
	return t, nil
}
