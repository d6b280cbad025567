package ble

import (
	"context"
	"log/slog"

	"switchbot-sensor-gateway/internal/meter"
	"switchbot-sensor-gateway/internal/utils"
)

// Tracker consumes advertisements for one meter address.
type Tracker interface {
	Address() string
	OnRawAdvertisement(adv meter.Advertisement)
}

// Handler routes advertisements to the tracker registered for their address.
type Handler struct {
	trackers map[string]Tracker
}

func NewHandler(trackers ...Tracker) *Handler {
	h := &Handler{trackers: make(map[string]Tracker, len(trackers))}
	for _, t := range trackers {
		h.trackers[normalizeAddress(t.Address())] = t
	}
	return h
}

// Addresses lists the addresses a Listener should let through.
func (h *Handler) Addresses() []string {
	out := make([]string, 0, len(h.trackers))
	for a := range h.trackers {
		out = append(out, a)
	}
	return out
}

// HandleAdvertisement forwards adv to its tracker; unknown addresses are dropped.
func (h *Handler) HandleAdvertisement(adv meter.Advertisement) {
	t, ok := h.trackers[normalizeAddress(adv.Address)]
	if !ok {
		return
	}

	var companyID string
	if len(adv.ManufacturerData) >= 2 {
		companyID = utils.Hex4(uint16(adv.ManufacturerData[0]) | uint16(adv.ManufacturerData[1])<<8)
	}
	slog.Debug("ble: advertisement",
		"addr", adv.Address,
		"rssi", adv.RSSI,
		"company", companyID,
		"mfr_data", utils.BytesToHex(adv.ManufacturerData),
		"svc_data", utils.BytesToHex(adv.PrimaryServiceData()),
	)
	t.OnRawAdvertisement(adv)
}

// StartListener starts the BLE listener with this handler.
func (h *Handler) StartListener(ctx context.Context, listener *Listener) {
	go func() {
		err := listener.Run(ctx, h.HandleAdvertisement)
		if err != nil {
			slog.Warn("ble listener could not be initialized; gateway continues without BLE",
				"error", err,
			)
		}
	}()
}
