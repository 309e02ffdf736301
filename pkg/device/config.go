package device

import (
	"log/slog"
	"time"

	"github.com/mahmed8003/esp8266-weave-test/pkg/settings"
	"github.com/mahmed8003/esp8266-weave-test/pkg/storage"
)

// Config groups everything NewDevice needs to assemble the dispatch table
// and the per-connection crypto/transport pipeline. Grouped into sections
// the way pkg/matter.NodeConfig groups a node's configuration, though this
// domain has no direct equivalent of Matter's fabric/commissioning
// configuration.
type Config struct {
	// --- Identity & storage ---

	// Store persists keys, settings, and counters across restarts. Required.
	Store storage.Store

	// --- Device information ---

	// DefaultName is the advertised name before any /setup call renames it.
	DefaultName string
	// FirmwareVersion, OEMName, ModelName, ModelID, DeviceClass describe the
	// device for /info and the advertising payload.
	FirmwareVersion string
	OEMName         string
	ModelName       string
	ModelID         [3]byte
	DeviceClass     [2]byte

	// --- Pairing ---

	SupportedPairingTypes settings.PairingType
	PairingCallback       settings.PairingCallback
	EmbeddedCode          settings.EmbeddedCode

	// --- Capabilities advertised over BLE ---

	SupportsWiFi24GHz  bool
	SupportsWiFi50GHz  bool
	SupportsBLE40      bool
	EnableMultipairing bool

	// --- Transport ---

	// MaxPacketSize bounds a single BLE characteristic write/notify,
	// matching the value negotiated during the connection handshake.
	MaxPacketSize int
	// MaxMessageSize bounds the reassembled message buffers (in and out).
	MaxMessageSize int
	// CommandSlots is the number of concurrent /execute commands the
	// device can track at once (see pkg/command.List).
	CommandSlots int

	// --- Counters ---

	// AppCounterIDs are the application-defined counter ids to track
	// alongside the built-in diagnostic counters.
	AppCounterIDs []uint16
	// CounterGenerationID distinguishes counter snapshots across factory
	// resets; callers that don't care can leave it zero.
	CounterGenerationID uint32

	// --- Handlers (all optional; a nil handler is simply never wired) ---

	StateHandler   StateHandler
	ExecuteHandler ExecuteHandler

	// --- Callbacks ---

	// Broadcaster receives updated BLE advertising data whenever the
	// device's name or pairing state changes.
	Broadcaster Broadcaster

	// OnWorkAvailable, if set, is called once whenever HandleEvents
	// transitions the device from idle to busy, so a host event loop that
	// was about to sleep knows to call HandleEvents again soon. Grounded
	// on uw_device_notify_work.
	OnWorkAvailable func()

	// Clock overrides the time source countersset.Set uses to coalesce
	// persistence writes, for deterministic tests. The device's own wall
	// clock (used by /info, /setup, and pairing) is always a live
	// pkg/clock.Clock, since that package already models "unset until a
	// client sets it" on its own.
	Clock interface {
		Now() time.Time
	}

	Log *slog.Logger
}

// Broadcaster publishes BLE advertising data. Mirrors
// pkg/advertising.Broadcaster; kept as its own interface so callers
// configuring a Device don't need to import pkg/advertising directly.
type Broadcaster interface {
	SetAdvertisingData(name string, manufacturerID uint16, payload []byte) error
}

func (c *Config) validate() error {
	if c.Store == nil {
		return ErrStorageRequired
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Log == nil {
		c.Log = slog.Default()
	}
	if c.DefaultName == "" {
		c.DefaultName = "weave-device"
	}
	if c.MaxPacketSize <= 0 {
		c.MaxPacketSize = 182
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 2048
	}
	if c.CommandSlots <= 0 {
		c.CommandSlots = 4
	}
}

// countersSetNow adapts Config.Clock (or time.Now) to the func() time.Time
// shape countersset.New wants.
func (c *Config) countersSetNow() func() time.Time {
	if c.Clock == nil {
		return time.Now
	}
	return c.Clock.Now
}
