package device

import (
	"github.com/mahmed8003/esp8266-weave-test/pkg/dispatch"
	"github.com/mahmed8003/esp8266-weave-test/pkg/privet"
	"github.com/mahmed8003/esp8266-weave-test/pkg/status"
	"github.com/mahmed8003/esp8266-weave-test/pkg/wcbor"
)

// StateReply accumulates the /state response as it is built: a
// fingerprint identifying the reported snapshot, plus a per-component,
// per-trait map of state values. Grounded on
// original_source/src/libuweave/src/state_reply.c/.h, which the origin
// builds through a streaming encoder callback; this port instead collects
// the whole reply and leaves a single SetState call to populate it.
type StateReply struct {
	hasState bool
	value    wcbor.Value
}

// SetState records the reply's fingerprint and component/trait state map.
// Grounded on uw_state_reply_start_/_add_component_/_add_trait_ folded into
// one call: components maps a component id to its traits, each trait id
// mapping to that trait's state fields.
func (r *StateReply) SetState(fingerprint int64, components map[int64]map[int64]wcbor.Value) status.Status {
	componentEntries := make(wcbor.MapEntries, 0, len(components))
	for componentID, traits := range components {
		traitEntries := make(wcbor.MapEntries, 0, len(traits))
		for traitID, traitState := range traits {
			traitEntries = append(traitEntries, wcbor.MapEntry{Key: traitID, Value: traitState})
		}
		componentEntries = append(componentEntries, wcbor.MapEntry{
			Key: componentID,
			Value: wcbor.MapVal(
				wcbor.MapEntry{Key: privet.StateKeyComponentState, Value: wcbor.MapVal(traitEntries...)},
			),
		})
	}

	r.value = wcbor.MapVal(
		wcbor.MapEntry{Key: privet.StateKeyFingerprint, Value: wcbor.Int(fingerprint)},
		wcbor.MapEntry{Key: privet.StateKeyComponents, Value: wcbor.MapVal(componentEntries...)},
	)
	r.hasState = true
	return status.Success
}

// StateHandler reports the device's current component/trait state.
// Grounded on UwDeviceHandlers.state_handler.
type StateHandler func(reply *StateReply) status.Status

// handleState services /state. Grounded on the APIIDState case of
// uw_device_dispatch_request_: requires a secure connection and at least
// Viewer role, then defers to the application's state handler if one is
// set, otherwise warns and replies with an empty snapshot (matching the
// origin's no-op when device_handlers->state_handler is unset).
func (d *Device) handleState(req *dispatch.Request) status.Status {
	if st := req.RequireSecure(); !st.OK() {
		return st
	}
	if st := req.RequireRole(privet.RoleViewer); !st.OK() {
		return st
	}

	if d.config.StateHandler == nil {
		d.log.Warn("state requested but no state handler is configured")
		return req.Reply(wcbor.MapVal(
			wcbor.MapEntry{Key: privet.StateKeyFingerprint, Value: wcbor.Int(0)},
			wcbor.MapEntry{Key: privet.StateKeyComponents, Value: wcbor.MapVal()},
		))
	}

	var reply StateReply
	if st := d.config.StateHandler(&reply); !st.OK() {
		return req.ReplyError(st, "state handler failed")
	}
	if !reply.hasState {
		return req.ReplyError(status.InvalidArgument, "state handler did not report a state")
	}
	return req.Reply(reply.value)
}
