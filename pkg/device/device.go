// Package device is the composition root: it owns the device's identity,
// settings, counters, and command slots, wires the Privet API handlers into
// a dispatcher, and drives the connection pipeline and background services
// through their lifecycle.
//
// Grounded on original_source/src/libuweave/src/device.c and service.c for
// the device lifecycle, and on pkg/matter's node composition pattern
// (config.go/node.go/state.go/errors.go) for the Go shape: a validated
// Config, a constructor that wires subsystems in a fixed order, and a
// small state machine guarding Start/Stop.
package device

import (
	"log/slog"
	"sync"

	"github.com/mahmed8003/esp8266-weave-test/pkg/accesscontrol"
	"github.com/mahmed8003/esp8266-weave-test/pkg/advertising"
	"github.com/mahmed8003/esp8266-weave-test/pkg/auth"
	"github.com/mahmed8003/esp8266-weave-test/pkg/clock"
	"github.com/mahmed8003/esp8266-weave-test/pkg/command"
	"github.com/mahmed8003/esp8266-weave-test/pkg/countersset"
	"github.com/mahmed8003/esp8266-weave-test/pkg/debugapi"
	"github.com/mahmed8003/esp8266-weave-test/pkg/dispatch"
	"github.com/mahmed8003/esp8266-weave-test/pkg/identity"
	"github.com/mahmed8003/esp8266-weave-test/pkg/info"
	"github.com/mahmed8003/esp8266-weave-test/pkg/pairing"
	"github.com/mahmed8003/esp8266-weave-test/pkg/privet"
	"github.com/mahmed8003/esp8266-weave-test/pkg/settings"
	"github.com/mahmed8003/esp8266-weave-test/pkg/setup"
	"github.com/mahmed8003/esp8266-weave-test/pkg/status"
	"github.com/mahmed8003/esp8266-weave-test/pkg/tracelog"
)

// maxReplyBodySize bounds a single command's reply, independent of the
// transport's packet size: a large synchronous reply is reassembled message
// by message before it is ever fragmented into packets.
const maxReplyBodySize = 512

// Device is the running instance assembled by NewDevice.
type Device struct {
	mu sync.Mutex

	log    *slog.Logger
	config Config

	identity *identity.Identity
	settings *settings.Settings
	clock    *clock.Clock
	counters *countersset.Set
	trace    *tracelog.Log
	commands *command.List

	dispatcher *dispatch.Dispatcher

	info          *info.Handler
	pairing       *pairing.Handler
	auth          *auth.Handler
	setup         *setup.Handler
	accessControl *accesscontrol.Handler
	debug         *debugapi.Handler

	services  []Service
	workState WorkState

	started bool
}

// clockAdapter satisfies accesscontrol's clockSource (Now() returning an
// interface rather than the concrete time.Time pkg/clock.Clock reports),
// without pkg/clock taking a dependency on that narrower shape.
type clockAdapter struct{ clock *clock.Clock }

func (a clockAdapter) Now() interface{ Unix() int64 } { return a.clock.Now() }

// NewDevice validates config, loads persisted identity/settings/counters
// from its storage backend, and wires every Privet API onto a dispatcher.
// Grounded on uw_device_init.
func NewDevice(config Config) (*Device, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()
	log := config.Log

	id, err := identity.Load(config.Store, log)
	if err != nil {
		return nil, err
	}

	s := settings.New(config.Store, log, config.DefaultName)
	s.FirmwareVersion = config.FirmwareVersion
	s.OEMName = config.OEMName
	s.ModelName = config.ModelName
	s.ModelID = config.ModelID
	s.DeviceClass = config.DeviceClass
	s.SupportedPairingTypes = config.SupportedPairingTypes
	s.PairingCallback = config.PairingCallback
	s.EmbeddedCode = config.EmbeddedCode
	s.SupportsWiFi24GHz = config.SupportsWiFi24GHz
	s.SupportsWiFi50GHz = config.SupportsWiFi50GHz
	s.SupportsBLE40 = config.SupportsBLE40
	s.EnableMultipairing = config.EnableMultipairing
	if config.SupportedPairingTypes == settings.PairingTypeNone {
		log.Warn("no pairing type is supported; the device can never be claimed")
	}

	clk := clock.New()
	counters := countersset.New(config.Store, config.CounterGenerationID, config.AppCounterIDs, config.countersSetNow())
	trace := tracelog.New(func() int64 { return clk.Now().Unix() })
	commands := command.NewList(config.CommandSlots, maxReplyBodySize, func() uint32 {
		return uint32(clk.UptimeSeconds())
	})

	d := &Device{
		log:      log,
		config:   config,
		identity: id,
		settings: s,
		clock:    clk,
		counters: counters,
		trace:    trace,
		commands: commands,

		dispatcher:    dispatch.New(log),
		info:          info.New(log, id, s, clk),
		pairing:       pairing.New(log, id, s, clk),
		auth:          auth.New(log, id, clk, counters),
		setup:         setup.New(log, s, clk, counters),
		accessControl: accesscontrol.New(log, id, counters, clockAdapter{clock: clk}),
		debug:         debugapi.New(log, counters, trace),
	}

	if config.Broadcaster != nil {
		refreshAdvertising := func() {
			if err := advertising.Update(config.Broadcaster, d.settings, d.identity); err != nil {
				d.log.Warn("advertising update failed", "error", err)
			}
		}
		d.setup.OnNameChanged = refreshAdvertising
		d.accessControl.OnClaimed = refreshAdvertising
	}

	d.dispatcher.Handle(dispatch.APIIDInfo, d.info.Handle)
	d.dispatcher.Handle(dispatch.APIIDPairingStart, d.pairing.HandleStart)
	d.dispatcher.Handle(dispatch.APIIDPairingConfirm, d.pairing.HandleConfirm)
	d.dispatcher.Handle(dispatch.APIIDAuth, d.auth.Handle)
	d.dispatcher.Handle(dispatch.APIIDState, d.handleState)
	d.dispatcher.Handle(dispatch.APIIDExecute, d.handleExecute)
	d.dispatcher.Handle(dispatch.APIIDSetup, d.handleSetup)
	d.dispatcher.Handle(dispatch.APIIDAccessControlClaim, d.accessControl.HandleClaim)
	d.dispatcher.Handle(dispatch.APIIDAccessControlConfirm, d.accessControl.HandleConfirm)

	return d, nil
}

// handleSetup wraps the /setup handler with the secure-connection and
// Manager-role requirements device.c applies before calling into it.
func (d *Device) handleSetup(req *dispatch.Request) status.Status {
	if st := req.RequireSecure(); !st.OK() {
		return st
	}
	if st := req.RequireRole(privet.RoleManager); !st.OK() {
		return st
	}
	return d.setup.Handle(req)
}

// IsSetUp reports whether a client has ever claimed this device. Grounded
// on uw_device_is_setup.
func (d *Device) IsSetUp() bool {
	return d.identity.HasClientAuthzKey
}

// Start begins every registered service, in registration order. Grounded
// on uw_device_start (by way of uw_service_start_'s chain walk).
func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return ErrAlreadyStarted
	}
	for _, svc := range d.services {
		svc.Start()
	}
	d.started = true
	return nil
}

// Stop ends every registered service, in registration order. Grounded on
// uw_device_stop.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return ErrNotStarted
	}
	for _, svc := range d.services {
		svc.Stop()
	}
	d.started = false
	return nil
}

// HandleEvents polls every registered service once and reports whether any
// of them still has work pending. Grounded on uw_device_handle_events,
// including uw_device_notify_work's "only on an idle-to-busy transition"
// callback semantics.
func (d *Device) HandleEvents() WorkState {
	d.mu.Lock()
	defer d.mu.Unlock()

	busy := false
	for _, svc := range d.services {
		if svc.HandleEvents() {
			busy = true
		}
	}

	previous := d.workState
	if busy {
		d.workState = WorkStateBusy
	} else {
		d.workState = WorkStateIdle
	}
	if previous == WorkStateIdle && d.workState == WorkStateBusy && d.config.OnWorkAvailable != nil {
		d.config.OnWorkAvailable()
	}
	return d.workState
}

// FactoryReset wipes all persisted key material, resets the advertised
// setup-needed state, and counts the event. Grounded on
// uw_device_factory_reset.
func (d *Device) FactoryReset() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.trace.AppendFactoryResetBegin()
	defer d.trace.AppendFactoryResetEnd()

	if err := d.identity.Reset(); err != nil {
		return err
	}
	if d.config.Broadcaster != nil {
		if err := advertising.Update(d.config.Broadcaster, d.settings, d.identity); err != nil {
			d.log.Warn("advertising update failed during factory reset", "error", err)
		}
	}
	d.counters.Increment(countersset.InternalFactoryReset)
	return nil
}

// IncrementAppCounter increments an application-defined counter. Grounded
// on uw_device_increment_app_counter.
func (d *Device) IncrementAppCounter(id uint16) { d.counters.IncrementApp(id) }

// AppCounter reads an application-defined counter. Grounded on
// uw_device_get_app_counter.
func (d *Device) AppCounter(id uint16) uint32 { return d.counters.GetApp(id) }

// Settings exposes the device's runtime settings (name, capabilities) for
// an application that needs to read or extend them.
func (d *Device) Settings() *settings.Settings { return d.settings }

// Identity exposes the device's key material for an application's own
// diagnostics; modifying it outside of pkg/identity's own methods is not
// supported.
func (d *Device) Identity() *identity.Identity { return d.identity }
