// Package dispatch implements the Privet RPC envelope: parsing the
// {version, api_id, request_id, params} request map, routing by api_id to a
// registered handler, and encoding the {request_id, result|error} reply.
//
// Grounded on original_source/src/libuweave/src/privet_request.h/.c
// (envelope parse/reply) and src/session.h/.c (per-connection auth state).
package dispatch

import (
	"time"

	"github.com/mahmed8003/esp8266-weave-test/pkg/privet"
	"github.com/mahmed8003/esp8266-weave-test/pkg/session"
	"github.com/mahmed8003/esp8266-weave-test/pkg/spake2"
	"github.com/mahmed8003/esp8266-weave-test/pkg/status"
)

// Session tracks one connection's authentication state across calls, layered
// over the encryption state machine in pkg/session. Grounded on UwSession_
// in src/session.h.
type Session struct {
	Crypto *session.State

	valid                  bool
	accessControlAuthz     bool
	role                   privet.Role
	expirationTime         int64
	pairingSessionID       uint32
	pairingState           *spake2.State
	deviceCommitment       []byte
}

// NewSession wraps a freshly-constructed crypto session state.
func NewSession(crypto *session.State) *Session {
	return &Session{Crypto: crypto}
}

// IsValid reports whether the connection is alive (set once the transport
// handshake completes). Grounded on uw_session_is_valid_.
func (s *Session) IsValid() bool { return s.valid }

// StartValid marks a freshly-connected session as valid but unprivileged.
// Grounded on uw_session_start_valid_.
func (s *Session) StartValid() { s.valid = true }

// Invalidate clears a session on disconnect or timeout. Grounded on
// uw_session_invalidate_.
func (s *Session) Invalidate() {
	*s = Session{Crypto: s.Crypto}
}

// IsSecure reports whether the underlying crypto session is encrypted.
// Grounded on uw_session_is_secure.
func (s *Session) IsSecure() bool {
	return s.Crypto != nil && s.Crypto.IsEncrypted()
}

// Role returns the currently authenticated role.
func (s *Session) Role() privet.Role { return s.role }

// SetRole sets the authenticated role, as the final step of a successful
// /auth call. Grounded on uw_session_set_role_.
func (s *Session) SetRole(role privet.Role) { s.role = role }

// RoleAtLeast reports whether the session's role satisfies min. Grounded on
// uw_session_role_at_least.
func (s *Session) RoleAtLeast(min privet.Role) status.Status {
	if !s.role.AtLeast(min) {
		return status.InsufficientRole
	}
	return status.Success
}

// ExpirationTime is the unix time the authenticated role expires, or zero
// for "no expiration".
func (s *Session) ExpirationTime() int64 { return s.expirationTime }

// SetExpirationTime records when the current role's authorization expires.
func (s *Session) SetExpirationTime(t int64) { s.expirationTime = t }

// CheckExpiration reports SessionExpired once ExpirationTime has passed.
// Grounded on uw_session_check_expiration_.
func (s *Session) CheckExpiration(now time.Time) status.Status {
	if s.expirationTime == 0 {
		return status.Success
	}
	if now.Unix() >= s.expirationTime {
		return status.SessionExpired
	}
	return status.Success
}

// IsAccessControlAuthorized reports whether the client went through a
// /pairing -> /auth sequence and may call /accessControl/claim. Grounded on
// uw_session_is_access_control_authorized.
func (s *Session) IsAccessControlAuthorized() bool { return s.accessControlAuthz }

// SetAccessControlAuthorized sets the /pairing -> /auth flag. Grounded on
// uw_session_set_access_control_authorized.
func (s *Session) SetAccessControlAuthorized(v bool) { s.accessControlAuthz = v }

// PairingSessionID returns the session id established by the most recent
// /pairing/start call.
func (s *Session) PairingSessionID() uint32 { return s.pairingSessionID }

// BeginPairing records a fresh SPAKE2 exchange and its session id, as
// /pairing/start does after computing its commitment.
func (s *Session) BeginPairing(id uint32, state *spake2.State, commitment []byte) {
	s.pairingSessionID = id
	s.pairingState = state
	s.deviceCommitment = commitment
}

// PairingState returns the in-progress SPAKE2 exchange started by
// /pairing/start, or nil if none is in progress.
func (s *Session) PairingState() *spake2.State { return s.pairingState }

// DeviceCommitment returns the commitment sent in the /pairing/start reply.
func (s *Session) DeviceCommitment() []byte { return s.deviceCommitment }
