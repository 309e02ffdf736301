// Package auth implements the /auth call: exchanging a pairing or client
// authorization macaroon for an authenticated role on the current session.
//
// Grounded on original_source/src/libuweave/src/auth_request.c.
package auth

import (
	"log/slog"

	"github.com/mahmed8003/esp8266-weave-test/pkg/clock"
	"github.com/mahmed8003/esp8266-weave-test/pkg/countersset"
	"github.com/mahmed8003/esp8266-weave-test/pkg/dispatch"
	"github.com/mahmed8003/esp8266-weave-test/pkg/identity"
	"github.com/mahmed8003/esp8266-weave-test/pkg/macaroon"
	"github.com/mahmed8003/esp8266-weave-test/pkg/privet"
	"github.com/mahmed8003/esp8266-weave-test/pkg/status"
	"github.com/mahmed8003/esp8266-weave-test/pkg/wcbor"
)

// Handler implements /auth.
type Handler struct {
	log      *slog.Logger
	identity *identity.Identity
	clock    *clock.Clock
	counters *countersset.Set
}

// New constructs a /auth Handler.
func New(log *slog.Logger, id *identity.Identity, clk *clock.Clock, counters *countersset.Set) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, identity: id, clock: clk, counters: counters}
}

func validateMacaroon(raw []byte, key []byte, ctx macaroon.Context) (*macaroon.ValidationResult, status.Status) {
	token, err := macaroon.Deserialize(raw)
	if err != nil {
		return nil, status.InvalidInput
	}
	result, err := macaroon.Validate(token, key, ctx)
	if err != nil {
		return nil, status.VerificationFailed
	}
	return result, status.Success
}

// Handle services a parsed /auth request. Grounded on
// uw_auth_request_handler_.
func (h *Handler) Handle(req *dispatch.Request) status.Status {
	if st := req.RequireSecure(); !st.OK() {
		return st
	}

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

	mode, hasMode := params.Get(privet.AuthKeyMode)
	authCode, hasAuthCode := params.Get(privet.AuthKeyAuthCode)
	if !hasMode || !hasAuthCode || authCode.Kind != wcbor.KindBytes {
		// Valid but unprivileged, matching the origin's
		// uw_session_start_valid_ fallback on a malformed parameter set.
		req.Session().StartValid()
		return status.PrivetInvalidParam
	}

	var role privet.Role
	var expiration uint32

	switch mode.Int {
	case privet.AuthModeAnonymous:
		return status.InvalidInput

	case privet.AuthModePairing:
		h.counters.Increment(countersset.InternalAuthPairing)
		if !h.identity.HasEphemeralPairingKey {
			return status.PairingRequired
		}
		result, st := validateMacaroon(authCode.Bytes, h.identity.EphemeralPairingKey[:16], macaroon.Context{
			CurrentTime: macaroon.FromUnix(h.clock.Now().Unix()),
		})
		if !st.OK() {
			return st
		}
		role = privet.FromScope(result.GrantedScope)
		req.Session().SetAccessControlAuthorized(true)
		expiration = result.ExpirationTime

	case privet.AuthModeToken:
		h.counters.Increment(countersset.InternalAuthToken)
		if !h.identity.HasClientAuthzKey {
			return status.DeviceCryptoNoKeys
		}
		result, st := validateMacaroon(authCode.Bytes, h.identity.ClientAuthzKey[:], macaroon.Context{
			CurrentTime: macaroon.FromUnix(h.clock.Now().Unix()),
			SessionID:   req.Session().Crypto.SessionID(),
		})
		if !st.OK() {
			return st
		}
		role = privet.FromScope(result.GrantedScope)
		expiration = result.ExpirationTime

	default:
		return status.InvalidInput
	}

	if role == privet.RoleUnspecified {
		return status.InvalidArgument
	}
	if !h.clock.IsSet() && role != privet.RoleOwner {
		return status.TimeRequired
	}

	req.Session().SetRole(role)
	req.Session().SetExpirationTime(macaroon.ToUnix(expiration))

	return req.Reply(wcbor.MapVal(
		wcbor.MapEntry{Key: privet.AuthResponseKeyRole, Value: wcbor.Int(int64(role))},
		wcbor.MapEntry{Key: privet.AuthResponseKeyTime, Value: wcbor.Int(h.clock.Now().Unix())},
		wcbor.MapEntry{Key: privet.AuthResponseKeyTimeStatus, Value: wcbor.Int(h.clock.Status())},
	))
}
