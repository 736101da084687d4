// Beaconbridge - FindMy to Traccar Location Reconciliation Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beaconbridge

package bridge

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/tomtom215/beaconbridge/internal/config"
	"github.com/tomtom215/beaconbridge/internal/logging"
)

// deviceIDRange bounds derived identifiers to 0..999999 so they stay
// usable as Traccar device identifiers.
const deviceIDRange = 1_000_000

// DeviceKind distinguishes the two supported identity sources.
type DeviceKind string

const (
	// DeviceKindKey is a tracker identified by a base64 private key string.
	DeviceKindKey DeviceKind = "key"
	// DeviceKindAccessory is a tracker identified by an accessory identifier.
	DeviceKindAccessory DeviceKind = "accessory"
)

// Device is one configured tracker. Identity is the opaque public
// identity material the upstream gateway needs to resolve reports;
// ID is the stable numeric identifier derived from it, used as the
// store key and the downstream device id.
type Device struct {
	Kind     DeviceKind
	Identity string
	ID       int64
}

// NewDevice builds a Device with its derived identifier.
func NewDevice(kind DeviceKind, identity string) Device {
	return Device{
		Kind:     kind,
		Identity: identity,
		ID:       DeriveDeviceID(identity),
	}
}

// DeriveDeviceID maps identity material to a stable identifier in
// [0, 1_000_000). The same rule applies to both device kinds: sha256
// of the identity, first 8 bytes as a big-endian integer, reduced
// into the range.
func DeriveDeviceID(identity string) int64 {
	sum := sha256.Sum256([]byte(identity))
	return int64(binary.BigEndian.Uint64(sum[:8]) % deviceIDRange)
}

// LoadDevices builds the device set from configuration. Zero devices
// is the single fatal configuration condition: polling and delivering
// against an empty set is meaningless.
func LoadDevices(cfg *config.BridgeConfig) ([]Device, error) {
	devices := make([]Device, 0, len(cfg.DeviceKeys)+len(cfg.AccessoryIDs))
	seen := make(map[int64]Device)

	add := func(kind DeviceKind, identity string) {
		if identity == "" {
			// An empty identity is configuration noise (a stray
			// delimiter or blank env var), never a real tracker.
			logging.Warn().Str("kind", string(kind)).Msg("Ignoring empty device identity")
			return
		}
		dev := NewDevice(kind, identity)
		if prev, ok := seen[dev.ID]; ok {
			logging.Warn().
				Int64("device_id", dev.ID).
				Str("kind", string(kind)).
				Str("colliding_kind", string(prev.Kind)).
				Msg("Derived device ID collides with an already configured device; skipping")
			return
		}
		seen[dev.ID] = dev
		devices = append(devices, dev)
	}

	for _, key := range cfg.DeviceKeys {
		add(DeviceKindKey, key)
	}
	for _, id := range cfg.AccessoryIDs {
		add(DeviceKindAccessory, id)
	}

	if len(devices) == 0 {
		return nil, fmt.Errorf("no tracking devices configured: set BRIDGE_PRIVATE_KEYS or BRIDGE_ACCESSORY_IDS")
	}

	logging.Info().
		Int("keys", len(cfg.DeviceKeys)).
		Int("accessories", len(cfg.AccessoryIDs)).
		Int("total", len(devices)).
		Msg("Loaded tracking devices")
	return devices, nil
}
