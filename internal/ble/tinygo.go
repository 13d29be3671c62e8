package ble

import (
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"
)

// TinyGoAdapter implements Adapter on tinygo.org/x/bluetooth, which
// backs onto BlueZ on Linux and CoreBluetooth on macOS.
type TinyGoAdapter struct {
	adapter *bluetooth.Adapter

	mu      sync.Mutex
	enabled bool
	cfg     AdapterConfig
	adv     *bluetooth.Advertisement
	chars   map[string]*bluetooth.Characteristic
	device  *bluetooth.Device
}

func NewTinyGoAdapter() *TinyGoAdapter {
	return &TinyGoAdapter{
		adapter: bluetooth.DefaultAdapter,
		chars:   make(map[string]*bluetooth.Characteristic),
	}
}

func (a *TinyGoAdapter) Configure(cfg AdapterConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.enabled {
		if err := a.adapter.Enable(); err != nil {
			return fmt.Errorf("ble: enable adapter: %w", err)
		}
		a.enabled = true
	}
	a.cfg = cfg

	svcUUID, err := bluetooth.ParseUUID(cfg.ServiceUUID)
	if err != nil {
		return fmt.Errorf("ble: parse service uuid: %w", err)
	}

	charCfgs := make([]bluetooth.CharacteristicConfig, 0, len(cfg.Characteristics))
	for _, cc := range cfg.Characteristics {
		uuid, err := bluetooth.ParseUUID(cc.UUID)
		if err != nil {
			return fmt.Errorf("ble: parse characteristic uuid %q: %w", cc.UUID, err)
		}
		handle := new(bluetooth.Characteristic)
		a.chars[cc.UUID] = handle

		var flags bluetooth.CharacteristicPermissions
		if cc.Properties&PropRead != 0 {
			flags |= bluetooth.CharacteristicReadPermission
		}
		if cc.Properties&PropWrite != 0 {
			flags |= bluetooth.CharacteristicWritePermission
		}
		if cc.Properties&PropWriteWithoutResponse != 0 {
			flags |= bluetooth.CharacteristicWriteWithoutResponsePermission
		}
		if cc.Properties&PropNotify != 0 {
			flags |= bluetooth.CharacteristicNotifyPermission
		}

		charCfg := bluetooth.CharacteristicConfig{
			Handle: handle,
			UUID:   uuid,
			Flags:  flags,
		}
		if onWrite := cc.OnWrite; onWrite != nil {
			charCfg.WriteEvent = func(client bluetooth.Connection, offset int, value []byte) {
				// Characteristic writes carry whole messages; a
				// nonzero offset would mean a long-write we do not
				// support.
				if offset != 0 {
					return
				}
				buf := make([]byte, len(value))
				copy(buf, value)
				onWrite(buf)
			}
		}
		charCfgs = append(charCfgs, charCfg)
	}

	if err := a.adapter.AddService(&bluetooth.Service{
		UUID:            svcUUID,
		Characteristics: charCfgs,
	}); err != nil {
		return fmt.Errorf("ble: add service: %w", err)
	}

	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		remote := device.Address.String()
		a.mu.Lock()
		if connected {
			d := device
			a.device = &d
		} else if a.device != nil && a.device.Address.String() == remote {
			a.device = nil
		}
		onConnect := a.cfg.OnConnect
		onDisconnect := a.cfg.OnDisconnect
		a.mu.Unlock()

		if connected {
			if onConnect != nil {
				onConnect(remote)
			}
		} else if onDisconnect != nil {
			onDisconnect(remote)
		}
	})
	return nil
}

func (a *TinyGoAdapter) Advertise() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.enabled {
		return ErrNotConfigured
	}
	svcUUID, err := bluetooth.ParseUUID(a.cfg.ServiceUUID)
	if err != nil {
		return err
	}
	adv := a.adapter.DefaultAdvertisement()
	if err := adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    a.cfg.LocalName,
		ServiceUUIDs: []bluetooth.UUID{svcUUID},
	}); err != nil {
		return fmt.Errorf("ble: configure advertisement: %w", err)
	}
	if err := adv.Start(); err != nil {
		return fmt.Errorf("ble: start advertising: %w", err)
	}
	a.adv = adv
	return nil
}

func (a *TinyGoAdapter) StopAdvertising() error {
	a.mu.Lock()
	adv := a.adv
	a.adv = nil
	a.mu.Unlock()
	if adv == nil {
		return nil
	}
	return adv.Stop()
}

func (a *TinyGoAdapter) Notify(charUUID string, data []byte) error {
	a.mu.Lock()
	char := a.chars[charUUID]
	a.mu.Unlock()
	if char == nil {
		return ErrNotConfigured
	}
	_, err := char.Write(data)
	return err
}

func (a *TinyGoAdapter) Disconnect() error {
	a.mu.Lock()
	device := a.device
	a.device = nil
	a.mu.Unlock()
	if device == nil {
		return nil
	}
	return device.Disconnect()
}

// MTU is not exposed by the peripheral API; 0 means unknown and the
// bridge assumes the central negotiated enough for a pose write.
func (a *TinyGoAdapter) MTU() int { return 0 }

var _ Adapter = (*TinyGoAdapter)(nil)
