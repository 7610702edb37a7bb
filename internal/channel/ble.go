package channel

import (
	"fmt"
	"log"
	"sync/atomic"

	"tinygo.org/x/bluetooth"
)

// GATT layout shared with the mobile client.
const (
	ServiceUUID      = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
	ConfigCharUUID   = "6e400002-b5a3-f393-e0a9-e50e24dcca9e"
	TelemetryUUID    = "6e400003-b5a3-f393-e0a9-e50e24dcca9e"
	FileTransferUUID = "6e400005-b5a3-f393-e0a9-e50e24dcca9e"
)

// BLE is a GATT peripheral. Commands may be written to either the config or
// the file-transfer characteristic; responses are notified on file-transfer
// and telemetry on its own characteristic.
type BLE struct {
	LocalName string
	MTU       int

	adapter   *bluetooth.Adapter
	adv       *bluetooth.Advertisement
	telemetry bluetooth.Characteristic
	config    bluetooth.Characteristic
	files     bluetooth.Characteristic
	connected atomic.Bool
}

// NewBLE returns a peripheral on the default adapter.
func NewBLE(localName string, mtu int) *BLE {
	return &BLE{LocalName: localName, MTU: mtu, adapter: bluetooth.DefaultAdapter}
}

// ParseUUIDs resolves the service and characteristic UUIDs.
func ParseUUIDs() (svc, cfg, tlm, file bluetooth.UUID, err error) {
	ids := []*bluetooth.UUID{&svc, &cfg, &tlm, &file}
	for i, s := range []string{ServiceUUID, ConfigCharUUID, TelemetryUUID, FileTransferUUID} {
		if *ids[i], err = bluetooth.ParseUUID(s); err != nil {
			return svc, cfg, tlm, file, fmt.Errorf("parse uuid %s: %w", s, err)
		}
	}
	return svc, cfg, tlm, file, nil
}

// Start enables the adapter, registers the service and starts advertising.
func (b *BLE) Start(h Handler) error {
	if err := b.adapter.Enable(); err != nil {
		return fmt.Errorf("enable ble adapter: %w", err)
	}
	svcUUID, cfgUUID, tlmUUID, fileUUID, err := ParseUUIDs()
	if err != nil {
		return err
	}

	b.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		b.connected.Store(connected)
		if connected {
			log.Printf("[ble] central %s connected", device.Address.String())
			safeCall("ble", h.HandleConnect)
			if b.MTU > 0 {
				safeCall("ble", func() { h.HandleMTU(b.MTU) })
			}
			return
		}
		log.Printf("[ble] central %s disconnected", device.Address.String())
		safeCall("ble", h.HandleDisconnect)
	})

	onWrite := func(client bluetooth.Connection, offset int, value []byte) {
		msg := append([]byte(nil), value...)
		safeCall("ble", func() { h.HandleWrite(msg) })
	}

	err = b.adapter.AddService(&bluetooth.Service{
		UUID: svcUUID,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				Handle: &b.telemetry,
				UUID:   tlmUUID,
				Flags:  bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicNotifyPermission,
			},
			{
				Handle:     &b.config,
				UUID:       cfgUUID,
				Flags:      bluetooth.CharacteristicWritePermission | bluetooth.CharacteristicWriteWithoutResponsePermission,
				WriteEvent: onWrite,
			},
			{
				Handle: &b.files,
				UUID:   fileUUID,
				Flags: bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicWritePermission |
					bluetooth.CharacteristicWriteWithoutResponsePermission | bluetooth.CharacteristicNotifyPermission,
				WriteEvent: onWrite,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("add gatt service: %w", err)
	}

	b.adv = b.adapter.DefaultAdvertisement()
	if err := b.adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    b.LocalName,
		ServiceUUIDs: []bluetooth.UUID{svcUUID},
	}); err != nil {
		return fmt.Errorf("configure advertisement: %w", err)
	}
	if err := b.adv.Start(); err != nil {
		return fmt.Errorf("start advertisement: %w", err)
	}
	log.Printf("[ble] advertising as %q", b.LocalName)
	return nil
}

// Ready reports whether a central is connected.
func (b *BLE) Ready() bool { return b.connected.Load() }

// Notify sends one fragment on the file-transfer characteristic.
func (b *BLE) Notify(p []byte) error {
	if !b.connected.Load() {
		return ErrNotConnected
	}
	_, err := b.files.Write(p)
	return err
}

// Publish notifies one telemetry packet.
func (b *BLE) Publish(p []byte) error {
	if !b.connected.Load() {
		return nil
	}
	_, err := b.telemetry.Write(p)
	return err
}

// Close stops advertising.
func (b *BLE) Close() error {
	b.connected.Store(false)
	if b.adv == nil {
		return nil
	}
	return b.adv.Stop()
}
