package ble

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"switchbot-sensor-gateway/internal/meter"

	"tinygo.org/x/bluetooth"
)

// Filter limits which peripherals reach the handler. Empty fields match all.
type Filter struct {
	Addresses []string
	LocalName string
}

type Options struct {
	Adapter string // "hci0" by default
	Filter  Filter
}

// Listener wraps BlueZ scanning with context cancellation.
type Listener struct {
	adapter *bluetooth.Adapter
	opts    Options
	allow   map[string]struct{}
}

func NewListener(opts Options) *Listener {
	if opts.Adapter == "" {
		opts.Adapter = "hci0"
	}

	allow := make(map[string]struct{}, len(opts.Filter.Addresses))
	for _, a := range opts.Filter.Addresses {
		allow[normalizeAddress(a)] = struct{}{}
	}

	return &Listener{
		adapter: bluetooth.NewAdapter(opts.Adapter),
		opts:    opts,
		allow:   allow,
	}
}

// Run enables the adapter and scans until ctx is canceled, handing every
// matching advertisement to onAdv. The callback runs on the scan goroutine,
// one advertisement at a time.
func (l *Listener) Run(ctx context.Context, onAdv func(meter.Advertisement)) error {
	slog.Info("ble: enabling adapter", "adapter", l.opts.Adapter)
	if err := l.adapter.Enable(); err != nil {
		return fmt.Errorf("ble enable (%s): %w", l.opts.Adapter, err)
	}
	slog.Info("ble: adapter enabled", "adapter", l.opts.Adapter)

	go func() {
		<-ctx.Done()
		_ = l.adapter.StopScan()
	}()

	slog.Info("ble: scanning started",
		"filter_addresses", l.opts.Filter.Addresses,
		"filter_name", l.opts.Filter.LocalName,
	)

	// adapter.Scan blocks until StopScan() or error.
	err := l.adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
		addr := r.Address.String()
		if !l.accept(addr, r.LocalName()) {
			return
		}
		adv := toAdvertisement(addr, r.RSSI, r.LocalName(), r.ManufacturerData(), r.ServiceData(), time.Now())
		if onAdv != nil {
			onAdv(adv)
		}
	})

	// If ctx canceled, treat as clean shutdown.
	if ctx.Err() != nil {
		slog.Info("ble: scanning stopped (context canceled)")
		return nil
	}

	if err != nil {
		return fmt.Errorf("ble scan: %w", err)
	}

	slog.Info("ble: scanning stopped")
	return nil
}

func (l *Listener) accept(addr, localName string) bool {
	if len(l.allow) > 0 {
		if _, ok := l.allow[normalizeAddress(addr)]; !ok {
			return false
		}
	}
	if l.opts.Filter.LocalName != "" && localName != l.opts.Filter.LocalName {
		return false
	}
	return true
}

// toAdvertisement copies a scan result into a meter.Advertisement. The scanner
// splits the company identifier out of manufacturer data; it is put back in
// front, little-endian, as it appears on air.
func toAdvertisement(
	addr string,
	rssi int16,
	localName string,
	mfr []bluetooth.ManufacturerDataElement,
	svc []bluetooth.ServiceDataElement,
	seenAt time.Time,
) meter.Advertisement {
	adv := meter.Advertisement{
		Address:   normalizeAddress(addr),
		RSSI:      rssi,
		LocalName: localName,
		SeenAt:    seenAt,
	}

	if len(mfr) > 0 {
		md := mfr[0]
		data := make([]byte, 2, 2+len(md.Data))
		binary.LittleEndian.PutUint16(data, md.CompanyID)
		adv.ManufacturerData = append(data, md.Data...)
	}

	for _, sd := range svc {
		adv.ServiceData = append(adv.ServiceData, meter.ServiceData{
			UUID: uuidString(sd.UUID),
			Data: append([]byte(nil), sd.Data...),
		})
	}
	return adv
}

func uuidString(u bluetooth.UUID) string {
	if u.Is16Bit() {
		return fmt.Sprintf("%04x", u.Get16Bit())
	}
	return u.String()
}

func normalizeAddress(addr string) string {
	return strings.ToUpper(strings.TrimSpace(addr))
}
