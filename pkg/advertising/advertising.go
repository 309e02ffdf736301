// Package advertising builds the BLE advertising payload that announces a
// device's class, model, setup/capability flags, and public device id to
// clients scanning for it.
//
// Grounded on original_source/src/libuweave/src/ble_advertising.c/.h.
package advertising

import (
	"github.com/mahmed8003/esp8266-weave-test/pkg/identity"
	"github.com/mahmed8003/esp8266-weave-test/pkg/settings"
)

// googleID is the official BLE Google Manufacturer Data id. Grounded on
// kGoogleId_.
const googleID = 0xE000

const (
	fieldPrivetDataTag = 0x0D
	fieldPublicIDTag   = 0x0E
)

// Setup-state flags, folded into the Privet field's first capability
// byte. Grounded on kUwBleAdvertisingFlagNeedsWiFiSetup/
// _NeedsWeaveRegistration.
const (
	FlagNeedsWiFiSetup         uint8 = 1 << 0
	FlagNeedsWeaveRegistration uint8 = 1 << 1
)

// Capability flags, folded into the Privet field's second capability
// byte. Grounded on kUwBleAdvertisingFlagWiFi24Ghz/_WiFi50Ghz/_Ble40.
const (
	FlagWiFi24GHz uint8 = 1 << 0
	FlagWiFi50GHz uint8 = 1 << 1
	FlagBLE40     uint8 = 1 << 2
)

// privetFieldLen is sizeof(AdvertisingLayout): tag + device_class(2) +
// model_id(3) + capabilities(2).
const privetFieldLen = 1 + 2 + 3 + 2

// publicIDFieldLen is sizeof(PublicIdLayout): type + a 4-byte device id.
const publicIDFieldLen = 1 + identity.DeviceIDSize

// contentLen is the number of bytes BuildPayload actually fills; the rest
// of the fixed-size payload is reserved and stays zero.
const contentLen = 1 + privetFieldLen + 1 + publicIDFieldLen

// PayloadSize is the fixed size of the advertising payload. Grounded on
// UwBleAdvertisingData.bytes[20]: the provider is always handed the full
// 20-byte block, reserved trailing bytes included.
const PayloadSize = 20

// GoogleManufacturerID returns the manufacturer id clients filter
// advertisements by.
func GoogleManufacturerID() uint16 { return googleID }

func capabilityFlags(s *settings.Settings) uint8 {
	var caps uint8
	if s.SupportsWiFi24GHz {
		caps |= FlagWiFi24GHz
	}
	if s.SupportsWiFi50GHz {
		caps |= FlagWiFi50GHz
	}
	if s.SupportsBLE40 {
		caps |= FlagBLE40
	}
	return caps
}

// BuildPayload renders the 20-byte advertising payload for the current
// device state. Grounded on uw_ble_advertising_get_data_.
func BuildPayload(s *settings.Settings, id *identity.Identity) [PayloadSize]byte {
	var out [PayloadSize]byte
	pos := 0

	out[pos] = privetFieldLen
	pos++

	out[pos] = fieldPrivetDataTag
	pos++
	copy(out[pos:pos+2], s.DeviceClass[:])
	pos += 2
	copy(out[pos:pos+3], s.ModelID[:])
	pos += 3

	var setupFlag uint8
	if !id.HasClientAuthzKey {
		setupFlag = FlagNeedsWeaveRegistration
	}
	out[pos] = setupFlag
	pos++
	out[pos] = capabilityFlags(s)
	pos++

	out[pos] = publicIDFieldLen
	pos++
	out[pos] = fieldPublicIDTag
	pos++
	copy(out[pos:pos+identity.DeviceIDSize], id.DeviceID[:])
	pos += identity.DeviceIDSize

	return out
}

// Broadcaster publishes a new advertising payload to the link layer.
// Satisfied by whatever BLE stack pkg/device is wired to (accept
// interfaces, matching uwp_ble_set_advertising_data's provider boundary).
type Broadcaster interface {
	SetAdvertisingData(name string, manufacturerID uint16, payload []byte) error
}

// Update rebuilds the payload from current settings/identity and pushes it
// to broadcaster. Grounded on uw_ble_advertising_update_data_.
func Update(broadcaster Broadcaster, s *settings.Settings, id *identity.Identity) error {
	payload := BuildPayload(s, id)
	return broadcaster.SetAdvertisingData(s.Name(), googleID, payload[:])
}
