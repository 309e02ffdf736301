package privet

import "github.com/mahmed8003/esp8266-weave-test/pkg/macaroon"

// Role is the wire-level privilege level carried in /auth and /info
// replies and checked by every command handler. The numeric gaps between
// values are the origin's own spacing, not ours, and must be preserved: a
// future role can be inserted between two existing ones without a wire
// format change. Grounded on uweave/session.h's UwRole.
type Role int

const (
	// RoleUnspecified means no role has been granted, as in a session that
	// has not completed /auth.
	RoleUnspecified Role = 0
	RoleOwner       Role = 2
	RoleManager     Role = 8
	RoleUser        Role = 14
	RoleViewer      Role = 20
)

// AtLeast reports whether r carries at least the privilege of min. Role
// values decrease in privilege as they increase numerically (Owner is the
// strongest role), matching uw_session_role_at_least: r qualifies when it
// is numerically no greater than min.
func (r Role) AtLeast(min Role) bool {
	if min == RoleUnspecified {
		return true
	}
	return r != RoleUnspecified && r <= min
}

// FromScope converts a macaroon scope (Owner..Viewer, narrowest wins) into
// its wire-level Role. The two enums are intentionally kept distinct:
// Scope is macaroon-internal ordering, Role is the wire representation
// transmitted in Privet replies.
func FromScope(s macaroon.Scope) Role {
	switch s {
	case macaroon.ScopeOwner:
		return RoleOwner
	case macaroon.ScopeManager:
		return RoleManager
	case macaroon.ScopeUser:
		return RoleUser
	case macaroon.ScopeViewer:
		return RoleViewer
	default:
		return RoleUnspecified
	}
}
