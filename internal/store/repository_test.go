package store

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"switchbot-sensor-gateway/internal/config"
	"switchbot-sensor-gateway/internal/liveness"
	"switchbot-sensor-gateway/internal/meter"

	_ "github.com/mattn/go-sqlite3"
)

const testAddr = "D2:3A:4B:5C:6D:7E"

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// :memory: databases are per connection.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if closeErr := db.Close(); closeErr != nil {
			t.Errorf("close db: %v", closeErr)
		}
	})
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestMigrate_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	if err := Migrate(db); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != 1 {
		t.Errorf("schema_migrations rows = %d; want 1", n)
	}
}

func TestPendingMigrations_OrderAndSkip(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/0002_second.sql": {Data: []byte("SELECT 2;")},
		"migrations/0001_first.sql":  {Data: []byte("SELECT 1;")},
		"migrations/0003_third.sql":  {Data: []byte("SELECT 3;")},
		"migrations/README.md":       {Data: []byte("not a migration")},
	}

	got, err := pendingMigrations(fsys, map[string]bool{"0002": true})
	if err != nil {
		t.Fatalf("pendingMigrations: %v", err)
	}
	var names []string
	for _, m := range got {
		names = append(names, m.version+"_"+m.name)
	}
	if strings.Join(names, ",") != "0001_first,0003_third" {
		t.Errorf("pending = %v; want [0001_first 0003_third]", names)
	}
}

func TestRepository_MeterLifecycle(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	if _, err := repo.GetMeter(testAddr); !errors.Is(err, ErrMeterNotFound) {
		t.Fatalf("GetMeter before register: err = %v; want ErrMeterNotFound", err)
	}
	if err := repo.TouchMeter(testAddr, time.Now()); !errors.Is(err, ErrMeterNotFound) {
		t.Fatalf("TouchMeter before register: err = %v; want ErrMeterNotFound", err)
	}

	if err := repo.RegisterMeter(testAddr, "Outdoor Meter"); err != nil {
		t.Fatalf("RegisterMeter: %v", err)
	}
	if err := repo.RegisterMeter(testAddr, "Garden"); err != nil {
		t.Fatalf("RegisterMeter again: %v", err)
	}

	m, err := repo.GetMeter(testAddr)
	if err != nil {
		t.Fatalf("GetMeter: %v", err)
	}
	if m.Name != "Garden" || m.Online || !m.LastSeenAt.IsZero() {
		t.Errorf("GetMeter = %+v; want renamed, offline, never seen", m)
	}

	seen := time.Date(2026, 10, 19, 8, 30, 0, 123000000, time.UTC)
	if err := repo.TouchMeter(testAddr, seen); err != nil {
		t.Fatalf("TouchMeter: %v", err)
	}
	m, err = repo.GetMeter(testAddr)
	if err != nil {
		t.Fatalf("GetMeter: %v", err)
	}
	if !m.LastSeenAt.Equal(seen) {
		t.Errorf("LastSeenAt = %v; want %v", m.LastSeenAt, seen)
	}
}

func TestRepository_RecordStatus(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	if err := repo.RegisterMeter(testAddr, "Outdoor Meter"); err != nil {
		t.Fatalf("RegisterMeter: %v", err)
	}

	base := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	if err := repo.RecordStatus(testAddr, true, base, ""); err != nil {
		t.Fatalf("RecordStatus online: %v", err)
	}
	if err := repo.RecordStatus(testAddr, false, base.Add(5*time.Minute), "liveness timeout: no reading for 5m0s"); err != nil {
		t.Fatalf("RecordStatus offline: %v", err)
	}

	m, err := repo.GetMeter(testAddr)
	if err != nil {
		t.Fatalf("GetMeter: %v", err)
	}
	if m.Online {
		t.Error("meter online after offline event")
	}

	events, err := repo.GetStatusEvents(testAddr, 10)
	if err != nil {
		t.Fatalf("GetStatusEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d; want 2", len(events))
	}
	if events[0].Online || events[0].Reason == "" || !events[0].At.Equal(base.Add(5*time.Minute)) {
		t.Errorf("events[0] = %+v; want newest offline with reason", events[0])
	}
	if !events[1].Online || events[1].Reason != "" {
		t.Errorf("events[1] = %+v; want online without reason", events[1])
	}

	limited, err := repo.GetStatusEvents(testAddr, 1)
	if err != nil {
		t.Fatalf("GetStatusEvents limit: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limited events = %d; want 1", len(limited))
	}

	if err := repo.RecordStatus("AA:BB:CC:DD:EE:FF", true, base, ""); !errors.Is(err, ErrMeterNotFound) {
		t.Errorf("RecordStatus unknown meter: err = %v; want ErrMeterNotFound", err)
	}
}

func TestSink_WritesTrackerEvents(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	if err := repo.RegisterMeter(testAddr, "Outdoor Meter"); err != nil {
		t.Fatalf("RegisterMeter: %v", err)
	}
	sink := NewSink(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))

	at := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	sink.StatusChanged(testAddr, liveness.Status{Online: true, At: at})
	sink.ReadingUpdated(testAddr, meter.Reading{TemperatureCelsius: 12.3}, at)
	sink.StatusChanged(testAddr, liveness.Status{
		At:  at.Add(time.Minute),
		Err: fmt.Errorf("%w: no reading for 1m0s", liveness.ErrLivenessTimeout),
	})

	m, err := repo.GetMeter(testAddr)
	if err != nil {
		t.Fatalf("GetMeter: %v", err)
	}
	if m.Online || !m.LastSeenAt.Equal(at) {
		t.Errorf("meter = %+v; want offline, last seen %v", m, at)
	}
	events, err := repo.GetStatusEvents(testAddr, 10)
	if err != nil {
		t.Fatalf("GetStatusEvents: %v", err)
	}
	if len(events) != 2 || !strings.Contains(events[0].Reason, "liveness timeout") {
		t.Errorf("events = %+v", events)
	}
}

func TestOpen_FileBacked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "gateway.db")
	db, err := Open(config.Config{SQLitePath: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() {
		if err := Close(db); err != nil {
			t.Errorf("Close: %v", err)
		}
	}()
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := NewRepository(db).RegisterMeter(testAddr, "Outdoor Meter"); err != nil {
		t.Fatalf("RegisterMeter: %v", err)
	}
}

func TestOpen_LoggingConnector(t *testing.T) {
	db, err := Open(config.Config{SQLiteDSN: ":memory:", SQLiteLogSQL: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = Close(db) }()
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate through logging connector: %v", err)
	}
	// Both tables of the multi-statement migration must exist.
	for _, table := range []string{"meters", "status_events"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s: %v", table, err)
		}
	}
}

func TestBuildDSN(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{name: "explicit dsn", cfg: config.Config{SQLiteDSN: "file::memory:?cache=shared"}, want: "file::memory:?cache=shared"},
		{name: "plain path", cfg: config.Config{SQLitePath: dir + "/a.db"}, want: "file:" + dir + "/a.db?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"},
		{name: "file uri with params", cfg: config.Config{SQLitePath: "file:" + dir + "/b.db?mode=rwc"}, want: "file:" + dir + "/b.db?mode=rwc&_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildDSN(tt.cfg)
			if err != nil {
				t.Fatalf("buildDSN: %v", err)
			}
			if got != tt.want {
				t.Errorf("buildDSN = %q; want %q", got, tt.want)
			}
		})
	}
}
