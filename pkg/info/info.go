// Package info implements the /info call: an unauthenticated summary of the
// device's identity, naming, pairing capabilities, and current clock
// status, used by clients to decide how to pair and authenticate.
//
// Grounded on original_source/src/libuweave/src/info_request.c.
package info

import (
	"log/slog"

	"github.com/mahmed8003/esp8266-weave-test/pkg/clock"
	"github.com/mahmed8003/esp8266-weave-test/pkg/dispatch"
	"github.com/mahmed8003/esp8266-weave-test/pkg/identity"
	"github.com/mahmed8003/esp8266-weave-test/pkg/privet"
	"github.com/mahmed8003/esp8266-weave-test/pkg/settings"
	"github.com/mahmed8003/esp8266-weave-test/pkg/status"
	"github.com/mahmed8003/esp8266-weave-test/pkg/wcbor"
)

// buildVersion is reported in the reply's "build" field. Original to this
// package; the origin hardcodes its own build string the same way.
const buildVersion = "v2.3.0"

// Handler implements /info.
type Handler struct {
	log      *slog.Logger
	identity *identity.Identity
	settings *settings.Settings
	clock    *clock.Clock
}

// New constructs an info Handler.
func New(log *slog.Logger, id *identity.Identity, s *settings.Settings, clk *clock.Clock) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, identity: id, settings: s, clock: clk}
}

func pairingValues(supported settings.PairingType) []wcbor.Value {
	var out []wcbor.Value
	if supported&settings.PairingTypePinCode != 0 {
		out = append(out, wcbor.Int(privet.InfoAuthValuePairingPin))
	}
	if supported&settings.PairingTypeEmbeddedCode != 0 {
		out = append(out, wcbor.Int(privet.InfoAuthValuePairingEmbedded))
	}
	return out
}

// Handle services /info. Grounded on uw_info_request_set_info_.
func (h *Handler) Handle(req *dispatch.Request) status.Status {
	authentication := wcbor.MapVal(
		wcbor.MapEntry{Key: privet.InfoAuthKeyMode, Value: wcbor.ArrayVal(
			wcbor.Int(privet.AuthModePairing),
			wcbor.Int(privet.AuthModeToken),
		)},
		wcbor.MapEntry{Key: privet.InfoAuthKeyPairing, Value: wcbor.ArrayVal(pairingValues(h.settings.SupportedPairingTypes)...)},
		wcbor.MapEntry{Key: privet.InfoAuthKeyCrypto, Value: wcbor.ArrayVal(
			wcbor.Int(privet.InfoAuthValueCryptoSpakeP224),
		)},
	)

	return req.Reply(wcbor.MapVal(
		wcbor.MapEntry{Key: privet.InfoKeyVersion, Value: wcbor.Int(privet.RPCValueVersion)},
		wcbor.MapEntry{Key: privet.InfoKeyAuth, Value: authentication},
		wcbor.MapEntry{Key: privet.InfoKeyModelManifestID, Value: wcbor.TextVal(h.settings.ModelManifestID())},
		wcbor.MapEntry{Key: privet.InfoKeyDeviceID, Value: wcbor.BytesVal(h.identity.DeviceID[:])},
		wcbor.MapEntry{Key: privet.InfoKeyName, Value: wcbor.TextVal(h.settings.Name())},
		wcbor.MapEntry{Key: privet.InfoKeyTimestamp, Value: wcbor.Int(h.clock.Now().Unix())},
		wcbor.MapEntry{Key: privet.InfoKeyTimeStatus, Value: wcbor.Int(h.clock.Status())},
		wcbor.MapEntry{Key: privet.InfoKeyBuild, Value: wcbor.TextVal(buildVersion)},
	))
}
