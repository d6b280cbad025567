package httpapi

import (
	"database/sql"
	"net/http"

	"switchbot-sensor-gateway/internal/config"
)

func NewMux(db *sql.DB, tracker Snapshotter, meters MeterStore) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, db)
	registerStatus(mux, tracker, meters)
	return mux
}

func NewServer(cfg config.Config, mux *http.ServeMux) *http.Server {
	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: requestLogger(mux),
	}
}
