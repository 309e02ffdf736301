// Package macaroon implements the tag-chained capability tokens used to
// authenticate pairing and authorization exchanges: a root-keyed HMAC-CMAC
// chain over an ordered list of typed caveats, plus a validator that
// recomputes the chain and interprets the caveats against a request
// context.
//
// Grounded on original_source/src/libuweave/src/macaroon.h,
// macaroon_context.h/.c and macaroon_helpers.h/.c. The caveat wire format
// itself (macaroon_caveat.h/.c) isn't present in the reference pack, so the
// per-caveat byte layout here (type byte + payload) and the overall CBOR
// envelope ([tag, [caveat bytes...]]) are original to this package, built on
// pkg/wcbor and pkg/wcrypto (CMAC).
package macaroon

import (
	"bytes"
	"errors"

	"github.com/mahmed8003/esp8266-weave-test/pkg/wcbor"
	"github.com/mahmed8003/esp8266-weave-test/pkg/wcrypto"
)

// MACLen is the tag size, in bytes: one AES-128 block.
const MACLen = 16

// J2000EpochOffset is Jan 1 2000 00:00:00 UTC in Unix epoch seconds. Macaroon
// timestamps are carried internally in J2000 seconds; ToUnix/FromUnix
// convert at the boundary.
const J2000EpochOffset = 946684800

// ToUnix converts a J2000 timestamp to Unix epoch seconds.
func ToUnix(j2000 uint32) int64 { return int64(j2000) + J2000EpochOffset }

// FromUnix converts a Unix epoch timestamp to J2000 seconds. Negative
// results (timestamps before 2000) clamp to 0.
func FromUnix(unix int64) uint32 {
	v := unix - J2000EpochOffset
	if v < 0 {
		return 0
	}
	return uint32(v)
}

// CaveatType identifies the kind of restriction or annotation a caveat
// carries.
type CaveatType uint8

const (
	CaveatNonce CaveatType = iota
	CaveatDelegationTimestamp
	CaveatExpiration
	CaveatScope
	CaveatServerAuthenticationTokenV1
	CaveatClientAuthorizationTokenV1
	CaveatDelegateeService
	CaveatAuthenticationChallenge
	CaveatAppCommandsOnly
	CaveatLanSessionID
)

// Scope is the granted role, ordered from most to least privileged. Chained
// scope caveats narrow: validation reports the least privileged (highest
// valued) scope seen along the chain.
type Scope uint8

const (
	ScopeOwner Scope = iota
	ScopeManager
	ScopeUser
	ScopeViewer
)

// DelegateeType classifies an entry recorded by a DelegateeService caveat.
type DelegateeType uint8

const (
	DelegateeNone DelegateeType = iota
	DelegateeUser
	DelegateeApp
	DelegateeService
)

// MaxDelegatees bounds the delegatee list a validation result tracks,
// matching the origin's fixed-size MAX_NUM_DELEGATEES.
const MaxDelegatees = 10

// Caveat is one typed restriction in a macaroon's caveat chain.
type Caveat struct {
	Type    CaveatType
	Payload []byte
}

func (c Caveat) encode() []byte {
	out := make([]byte, 1+len(c.Payload))
	out[0] = byte(c.Type)
	copy(out[1:], c.Payload)
	return out
}

func decodeCaveat(b []byte) (Caveat, error) {
	if len(b) == 0 {
		return Caveat{}, errors.New("macaroon: empty caveat encoding")
	}
	return Caveat{Type: CaveatType(b[0]), Payload: append([]byte(nil), b[1:]...)}, nil
}

// NonceCaveat returns a uniqueness caveat carrying opaque nonce bytes.
func NonceCaveat(nonce []byte) Caveat {
	return Caveat{Type: CaveatNonce, Payload: append([]byte(nil), nonce...)}
}

// DelegationTimestampCaveat records the J2000 "issued at" time.
func DelegationTimestampCaveat(j2000 uint32) Caveat {
	return Caveat{Type: CaveatDelegationTimestamp, Payload: encodeUint32(j2000)}
}

// ExpirationCaveat narrows the allowed-until time to a J2000 timestamp. 0
// means no expiration.
func ExpirationCaveat(j2000 uint32) Caveat {
	return Caveat{Type: CaveatExpiration, Payload: encodeUint32(j2000)}
}

// ScopeCaveat narrows the granted role.
func ScopeCaveat(s Scope) Caveat {
	return Caveat{Type: CaveatScope, Payload: []byte{byte(s)}}
}

// ServerAuthenticationTokenV1Caveat marks a macaroon as a Server
// Authentication Token, with an optional opaque token string.
func ServerAuthenticationTokenV1Caveat(tokenStr []byte) Caveat {
	return Caveat{Type: CaveatServerAuthenticationTokenV1, Payload: append([]byte(nil), tokenStr...)}
}

// ClientAuthorizationTokenV1Caveat marks a macaroon as a Client
// Authorization Token, with an optional opaque token string.
func ClientAuthorizationTokenV1Caveat(tokenStr []byte) Caveat {
	return Caveat{Type: CaveatClientAuthorizationTokenV1, Payload: append([]byte(nil), tokenStr...)}
}

// DelegateeServiceCaveat records the token's initial delegatee service id.
func DelegateeServiceCaveat(serviceID uint8) Caveat {
	return Caveat{Type: CaveatDelegateeService, Payload: []byte{serviceID}}
}

// AuthenticationChallengeCaveat binds the token to a specific handshake
// challenge nonce.
func AuthenticationChallengeCaveat(challenge []byte) Caveat {
	return Caveat{Type: CaveatAuthenticationChallenge, Payload: append([]byte(nil), challenge...)}
}

// AppCommandsOnlyCaveat restricts the token to application commands.
func AppCommandsOnlyCaveat() Caveat {
	return Caveat{Type: CaveatAppCommandsOnly}
}

// LanSessionIDCaveat binds the token to a specific transport session id.
func LanSessionIDCaveat(id []byte) Caveat {
	return Caveat{Type: CaveatLanSessionID, Payload: append([]byte(nil), id...)}
}

func encodeUint32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func decodeUint32(b []byte) uint32 {
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return v
}

// Macaroon is a tag plus an ordered caveat chain.
type Macaroon struct {
	Tag     []byte
	Caveats []Caveat
}

// Mint creates a new macaroon over caveats, chaining the CMAC tag starting
// from rootKey. Grounded on uw_macaroon_create_from_root_key_.
func Mint(rootKey []byte, caveats []Caveat) (*Macaroon, error) {
	if len(caveats) == 0 {
		return nil, errors.New("macaroon: at least one caveat is required")
	}
	key := rootKey
	var tag []byte
	for _, c := range caveats {
		t, err := wcrypto.CMAC(key, c.encode())
		if err != nil {
			return nil, err
		}
		tag = t
		key = t
	}
	return &Macaroon{Tag: tag, Caveats: append([]Caveat(nil), caveats...)}, nil
}

// Extend appends an additional caveat to old, chaining the tag from old's
// current tag. Grounded on uw_macaroon_extend_.
func Extend(old *Macaroon, additional Caveat) (*Macaroon, error) {
	tag, err := wcrypto.CMAC(old.Tag, additional.encode())
	if err != nil {
		return nil, err
	}
	caveats := append(append([]Caveat(nil), old.Caveats...), additional)
	return &Macaroon{Tag: tag, Caveats: caveats}, nil
}

// MintServerAuthenticationToken mints an initial SAT: a ServerAuthentication
// TokenV1 caveat followed by a uniqueness nonce. Grounded on
// uw_macaroon_mint_server_authentication_token_.
func MintServerAuthenticationToken(rootKey, tokenStr, nonce []byte) (*Macaroon, error) {
	return Mint(rootKey, []Caveat{
		ServerAuthenticationTokenV1Caveat(tokenStr),
		NonceCaveat(nonce),
	})
}

// MintClientAuthorizationToken mints an initial CAT: a ClientAuthorization
// TokenV1 caveat, a delegation timestamp, and the initial delegatee service.
// Grounded on uw_macaroon_mint_client_authorization_token_.
func MintClientAuthorizationToken(rootKey, tokenStr []byte, currentTime uint32, serviceID uint8) (*Macaroon, error) {
	return Mint(rootKey, []Caveat{
		ClientAuthorizationTokenV1Caveat(tokenStr),
		DelegationTimestampCaveat(currentTime),
		DelegateeServiceCaveat(serviceID),
	})
}

// Serialize encodes m as CBOR: [tag, [caveat0_bytes, caveat1_bytes, ...]].
func (m *Macaroon) Serialize() ([]byte, error) {
	items := make(wcbor.ArrayItems, len(m.Caveats))
	for i, c := range m.Caveats {
		items[i] = wcbor.BytesVal(c.encode())
	}
	v := wcbor.ArrayVal(wcbor.BytesVal(m.Tag), wcbor.ArrayFrom(items))
	out, st := wcbor.Encode(v)
	if !st.OK() {
		return nil, st
	}
	return out, nil
}

// Deserialize decodes the CBOR wire form produced by Serialize.
func Deserialize(in []byte) (*Macaroon, error) {
	v, st := wcbor.Decode(in)
	if !st.OK() {
		return nil, st
	}
	arr, ok := v.Array()
	if !ok || len(arr) != 2 {
		return nil, errors.New("macaroon: malformed envelope")
	}
	if arr[0].Kind != wcbor.KindBytes {
		return nil, errors.New("macaroon: malformed tag")
	}
	caveatItems, ok := arr[1].Array()
	if !ok {
		return nil, errors.New("macaroon: malformed caveat list")
	}
	caveats := make([]Caveat, len(caveatItems))
	for i, item := range caveatItems {
		if item.Kind != wcbor.KindBytes {
			return nil, errors.New("macaroon: malformed caveat entry")
		}
		c, err := decodeCaveat(item.Bytes)
		if err != nil {
			return nil, err
		}
		caveats[i] = c
	}
	return &Macaroon{Tag: append([]byte(nil), arr[0].Bytes...), Caveats: caveats}, nil
}

// Context carries the request-time values caveats are checked against.
type Context struct {
	// CurrentTime is "now" in J2000 seconds. Zero means the clock is unset;
	// Expiration caveats always fail validation against an unset clock.
	CurrentTime uint32
	// SessionID is the current transport session id, checked against
	// LanSessionID caveats.
	SessionID []byte
	// AuthChallenge is the handshake challenge nonce, checked against
	// AuthenticationChallenge caveats.
	AuthChallenge []byte
}

// DelegateeInfo is one entry from a DelegateeService caveat chain.
type DelegateeInfo struct {
	Type      DelegateeType
	ServiceID uint8
	Timestamp uint32
}

// ValidationResult is the outcome of walking a macaroon's caveat chain.
type ValidationResult struct {
	GrantedScope    Scope
	IssuedAt        uint32
	ExpirationTime  uint32
	AppCommandsOnly bool
	LanSessionID    []byte
	Delegatees      []DelegateeInfo
}

// ErrVerificationFailed is returned when the recomputed tag chain doesn't
// match, a caveat fails its context check, or an unrecognized caveat type is
// encountered.
var ErrVerificationFailed = errors.New("macaroon: verification failed")

// Validate recomputes m's tag chain from rootKey and interprets its caveats
// against ctx, narrowing scope and tracking expiration/delegatees as it
// walks. Grounded on uw_macaroon_validate_.
func Validate(m *Macaroon, rootKey []byte, ctx Context) (*ValidationResult, error) {
	if len(m.Caveats) == 0 {
		return nil, ErrVerificationFailed
	}

	key := rootKey
	var tag []byte
	for _, c := range m.Caveats {
		t, err := wcrypto.CMAC(key, c.encode())
		if err != nil {
			return nil, err
		}
		tag = t
		key = t
	}
	if !bytes.Equal(tag, m.Tag) {
		return nil, ErrVerificationFailed
	}

	result := &ValidationResult{GrantedScope: ScopeOwner}
	for _, c := range m.Caveats {
		switch c.Type {
		case CaveatNonce:
			// Uniqueness/replay tracking is the caller's responsibility
			// (it needs a store spanning many validations); nothing to
			// check against a single request's context.
		case CaveatDelegationTimestamp:
			result.IssuedAt = decodeUint32(c.Payload)
		case CaveatExpiration:
			exp := decodeUint32(c.Payload)
			if exp != 0 {
				if ctx.CurrentTime == 0 || ctx.CurrentTime > exp {
					return nil, ErrVerificationFailed
				}
				if result.ExpirationTime == 0 || exp < result.ExpirationTime {
					result.ExpirationTime = exp
				}
			}
		case CaveatScope:
			if len(c.Payload) != 1 {
				return nil, ErrVerificationFailed
			}
			s := Scope(c.Payload[0])
			if s > result.GrantedScope {
				result.GrantedScope = s
			}
		case CaveatServerAuthenticationTokenV1, CaveatClientAuthorizationTokenV1:
			// Token-kind markers only; no context check.
		case CaveatDelegateeService:
			if len(c.Payload) != 1 {
				return nil, ErrVerificationFailed
			}
			if len(result.Delegatees) < MaxDelegatees {
				result.Delegatees = append(result.Delegatees, DelegateeInfo{
					Type:      DelegateeService,
					ServiceID: c.Payload[0],
					Timestamp: result.IssuedAt,
				})
			}
		case CaveatAuthenticationChallenge:
			if !bytes.Equal(c.Payload, ctx.AuthChallenge) {
				return nil, ErrVerificationFailed
			}
		case CaveatAppCommandsOnly:
			result.AppCommandsOnly = true
		case CaveatLanSessionID:
			if !bytes.Equal(c.Payload, ctx.SessionID) {
				return nil, ErrVerificationFailed
			}
			result.LanSessionID = append([]byte(nil), c.Payload...)
		default:
			return nil, ErrVerificationFailed
		}
	}

	return result, nil
}
