// Package settings holds device-wide configuration the application
// supplies at startup and the subset /setup is allowed to change at
// runtime: the advertised name, the supported pairing types, and the
// model/firmware identity fields folded into /info.
//
// Grounded on original_source/src/libuweave/include/uweave/settings.h,
// uweave/pairing_type.h, uweave/embedded_code.h, and
// src/settings.h/.c for the persistence and model-manifest-id behavior.
package settings

import (
	"log/slog"
	"sync"

	"github.com/mahmed8003/esp8266-weave-test/pkg/wcbor"
)

// MaxNameLength bounds the device name, matching both
// UW_SETTINGS_MAX_NAME_LENGTH and PRIVET_SETUP_NAME_MAX_LENGTH.
const MaxNameLength = 32

// PairingType is a bitfield entry of supported pairing mechanisms.
// Grounded on UwPairingType.
type PairingType uint8

const (
	PairingTypeNone         PairingType = 0
	PairingTypePinCode      PairingType = 1 << 0
	PairingTypeEmbeddedCode PairingType = 1 << 1
)

// EmbeddedCodeSource selects how an embedded pairing code is obtained.
// Grounded on UwEmbeddedCodeSource.
type EmbeddedCodeSource int

const (
	EmbeddedCodeSourceNone EmbeddedCodeSource = iota
	EmbeddedCodeSourceFixed
	EmbeddedCodeSourceCallback
)

// EmbeddedCode describes how to obtain the device's printed pairing code.
type EmbeddedCode struct {
	Source   EmbeddedCodeSource
	Code     string
	Callback func() (string, bool)
}

// Get returns the current embedded code, or false if unavailable. Grounded
// on get_embedded_code_ in pairing_request.c.
func (e EmbeddedCode) Get() (string, bool) {
	switch e.Source {
	case EmbeddedCodeSourceFixed:
		return e.Code, true
	case EmbeddedCodeSourceCallback:
		if e.Callback == nil {
			return "", false
		}
		return e.Callback()
	default:
		return "", false
	}
}

// PairingCallback, if set, is informed when a pairing exchange begins and
// ends (e.g. to display/hide a generated PIN).
type PairingCallback struct {
	Begin func(sessionID uint32, pairingType PairingType, passcode string) bool
	End   func(sessionID uint32) bool
}

// Store is the persisted blob interface Settings needs for the writable
// name field, satisfied by pkg/storage's implementations.
type Store interface {
	Get(name string) ([]byte, bool, error)
	Put(name string, data []byte) error
}

const storageFileSettings = "settings"
const keyName = 0

// Settings holds the application-fixed fields plus the runtime-writable
// name. Construct with New; fields other than Name are immutable after
// construction and safe to read concurrently.
type Settings struct {
	store Store
	log   *slog.Logger
	mu    sync.RWMutex

	FirmwareVersion string
	OEMName         string
	ModelName       string
	ModelID         [3]byte
	DeviceClass     [2]byte

	SupportedPairingTypes PairingType
	PairingCallback       PairingCallback
	EmbeddedCode          EmbeddedCode

	SupportsWiFi24GHz bool
	SupportsWiFi50GHz bool
	SupportsBLE40     bool

	EnableMultipairing bool

	name string
}

// New constructs Settings with defaultName as the initial device name,
// then overrides it with any name persisted by a previous /setup call.
// Grounded on UwSettings' "device overrides with the stored value, if
// present" contract.
func New(store Store, log *slog.Logger, defaultName string) *Settings {
	if log == nil {
		log = slog.Default()
	}
	s := &Settings{store: store, log: log, name: defaultName}
	s.tryLoadName()
	return s
}

func (s *Settings) tryLoadName() {
	raw, ok, err := s.store.Get(storageFileSettings)
	if err != nil || !ok || len(raw) == 0 {
		if err != nil {
			s.log.Warn("settings: name file not read", "error", err)
		}
		return
	}
	v, st := wcbor.Decode(raw)
	if !st.OK() {
		s.log.Warn("settings: error scanning settings file", "status", st)
		return
	}
	entries, ok := v.Map()
	if !ok {
		return
	}
	if e, ok := entries.Get(keyName); ok && e.Kind == wcbor.KindText {
		s.name = e.Text
	}
}

// Name returns the current device name.
func (s *Settings) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// SetName updates and persists the device name. Grounded on /setup's
// settings->name assignment followed by uw_settings_write_to_storage_.
func (s *Settings) SetName(name string) error {
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()

	out, st := wcbor.Encode(wcbor.MapVal(wcbor.MapEntry{Key: keyName, Value: wcbor.TextVal(name)}))
	if !st.OK() {
		return st
	}
	return s.store.Put(storageFileSettings, out)
}

// ModelManifestID is the 5-character model/device-class identity string
// folded into /info. Grounded on uw_settings_get_model_manifest_id.
func (s *Settings) ModelManifestID() string {
	return string(s.ModelID[:]) + string(s.DeviceClass[:])
}
