// Package accesscontrol implements the /accessControl/claim and
// /accessControl/confirm calls: issuing a pending client authorization key
// to a caller already authorized from /pairing, then committing that key
// once the client proves it can present a macaroon sealed under it.
//
// Grounded on original_source/src/libuweave/src/access_control_request.c.
package accesscontrol

import (
	"log/slog"

	"github.com/mahmed8003/esp8266-weave-test/pkg/countersset"
	"github.com/mahmed8003/esp8266-weave-test/pkg/dispatch"
	"github.com/mahmed8003/esp8266-weave-test/pkg/identity"
	"github.com/mahmed8003/esp8266-weave-test/pkg/macaroon"
	"github.com/mahmed8003/esp8266-weave-test/pkg/privet"
	"github.com/mahmed8003/esp8266-weave-test/pkg/status"
	"github.com/mahmed8003/esp8266-weave-test/pkg/wcbor"
)

// notCloudRegistered marks a freshly-minted client authorization token as
// not yet delegated to any cloud service.
const notCloudRegistered uint8 = 0

// Handler implements /accessControl/claim and /accessControl/confirm.
type Handler struct {
	log      *slog.Logger
	identity *identity.Identity
	counters *countersset.Set
	clock    clockSource

	// OnClaimed, when set, is invoked once a client token is confirmed and
	// committed — the device uses this to refresh its advertising payload,
	// mirroring uw_ble_advertising_update_data_.
	OnClaimed func()
}

// clockSource is the slice of pkg/clock.Clock this package depends on.
type clockSource interface {
	Now() interface {
		Unix() int64
	}
}

// New constructs an accesscontrol Handler.
func New(log *slog.Logger, id *identity.Identity, counters *countersset.Set, clk clockSource) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, identity: id, counters: counters, clock: clk}
}

// HandleClaim services /accessControl/claim: mints a pending client
// authorization token bound to a freshly generated pending key. Grounded on
// uw_access_control_request_claim_.
func (h *Handler) HandleClaim(req *dispatch.Request) status.Status {
	if st := req.RequireSecure(); !st.OK() {
		return st
	}
	if !req.Session().IsAccessControlAuthorized() {
		return status.PairingRequired
	}
	h.counters.Increment(countersset.InternalAccessControlClaim)

	pendingKey, err := h.identity.GeneratePendingClientAuthzKey()
	if err != nil {
		return status.VerificationFailed
	}

	token, err := macaroon.MintClientAuthorizationToken(
		pendingKey[:], nil, macaroon.FromUnix(h.clock.Now().Unix()), notCloudRegistered)
	if err != nil {
		h.log.Warn("accessControl/claim: mint failed", "err", err)
		return status.VerificationFailed
	}
	wire, err := token.Serialize()
	if err != nil {
		h.log.Warn("accessControl/claim: serialize failed", "err", err)
		return status.VerificationFailed
	}

	return req.Reply(wcbor.MapVal(
		wcbor.MapEntry{Key: privet.AccessControlClaimResponseKeyClientToken, Value: wcbor.BytesVal(wire)},
	))
}

// HandleConfirm services /accessControl/confirm: verifies the client
// presents a token sealed under the pending key (or, if the client missed
// the claim reply, the already-committed key) and commits it. Grounded on
// uw_access_control_request_confirm_.
func (h *Handler) HandleConfirm(req *dispatch.Request) status.Status {
	if !req.Session().IsAccessControlAuthorized() {
		return status.PairingRequired
	}
	h.counters.Increment(countersset.InternalAccessControlConfirm)

	if len(req.Params()) == 0 {
		return status.InvalidInput
	}
	v, st := wcbor.Decode(req.Params())
	if !st.OK() {
		return status.InvalidInput
	}
	params, ok := v.Map()
	if !ok {
		return status.InvalidInput
	}
	tokenParam, ok := params.Get(privet.AccessControlConfirmRequestKeyClientToken)
	if !ok || tokenParam.Kind != wcbor.KindBytes {
		return status.InvalidInput
	}

	token, err := macaroon.Deserialize(tokenParam.Bytes)
	if err != nil {
		return status.VerificationFailed
	}
	ctx := macaroon.Context{CurrentTime: macaroon.FromUnix(h.clock.Now().Unix())}

	if h.identity.HasPendingClientAuthzKey {
		if _, err := macaroon.Validate(token, h.identity.PendingClientAuthzKey[:], ctx); err != nil {
			return status.VerificationFailed
		}
		if err := h.identity.CommitPendingClientAuthzKey(); err != nil {
			return status.VerificationFailed
		}
	} else {
		// The client lost the claim reply after we already committed the
		// key; accept if it can present a token sealed under the key
		// that's live now.
		if _, err := macaroon.Validate(token, h.identity.ClientAuthzKey[:], ctx); err != nil {
			return status.VerificationFailed
		}
	}

	if h.OnClaimed != nil {
		h.OnClaimed()
	}

	return req.Reply(wcbor.MapVal())
}
