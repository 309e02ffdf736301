// Package setup implements the /setup call: the Manager-or-better step that
// names the device and, whenever the request carries a timestamp, sets the
// wall clock from it.
//
// Grounded on original_source/src/libuweave/src/setup_request.c.
package setup

import (
	"log/slog"

	"github.com/mahmed8003/esp8266-weave-test/pkg/clock"
	"github.com/mahmed8003/esp8266-weave-test/pkg/countersset"
	"github.com/mahmed8003/esp8266-weave-test/pkg/dispatch"
	"github.com/mahmed8003/esp8266-weave-test/pkg/privet"
	"github.com/mahmed8003/esp8266-weave-test/pkg/settings"
	"github.com/mahmed8003/esp8266-weave-test/pkg/status"
	"github.com/mahmed8003/esp8266-weave-test/pkg/wcbor"
)

// minPlausibleTimestamp rejects a /setup timestamp earlier than the Unix
// gigasecond (2001-09-09), matching the origin's sanity check.
const minPlausibleTimestamp = 1000000000

// Handler implements /setup.
type Handler struct {
	log      *slog.Logger
	settings *settings.Settings
	clock    *clock.Clock
	counters *countersset.Set

	// OnNameChanged, when set, is invoked after a new name is persisted —
	// the device uses this to refresh its advertising payload, mirroring
	// uw_ble_advertising_update_data_.
	OnNameChanged func()
}

// New constructs a setup Handler.
func New(log *slog.Logger, s *settings.Settings, clk *clock.Clock, counters *countersset.Set) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, settings: s, clock: clk, counters: counters}
}

// Handle services /setup. Grounded on uw_setup_request_.
func (h *Handler) Handle(req *dispatch.Request) status.Status {
	if len(req.Params()) == 0 {
		return status.PrivetInvalidParam
	}
	v, st := wcbor.Decode(req.Params())
	if !st.OK() {
		return status.PrivetInvalidParam
	}
	params, ok := v.Map()
	if !ok {
		return status.PrivetInvalidParam
	}

	nameParam, hasName := params.Get(privet.SetupKeyName)
	if hasName {
		if nameParam.Kind != wcbor.KindText {
			return status.PrivetInvalidParam
		}
		if len(nameParam.Text) > settings.MaxNameLength || len(nameParam.Text) > privet.SetupNameMaxLength {
			h.log.Warn("setup: name too long", "length", len(nameParam.Text))
			return status.TooLong
		}
	}

	timestampParam, hasTimestamp := params.Get(privet.SetupKeyTimestamp)
	if hasTimestamp {
		if timestampParam.Kind != wcbor.KindInt {
			return status.PrivetInvalidParam
		}
		if timestampParam.Int < minPlausibleTimestamp {
			h.log.Warn("setup: implausible timestamp", "value", timestampParam.Int)
			return status.InvalidInput
		}
	}

	// Only commit changes after verifying every changeable parameter.
	if hasTimestamp {
		h.counters.Increment(countersset.InternalSetupTimeSet)
		h.clock.SetUnixSeconds(timestampParam.Int)
	}

	if hasName && nameParam.Text != h.settings.Name() {
		if err := h.settings.SetName(nameParam.Text); err != nil {
			return status.InvalidArgument
		}
		if h.OnNameChanged != nil {
			h.OnNameChanged()
		}
	}

	return req.Reply(wcbor.MapVal(
		wcbor.MapEntry{Key: privet.SetupKeyVersion, Value: wcbor.Int(privet.RPCValueVersion)},
	))
}
