package auth

import (
	"bytes"
	"testing"

	"github.com/mahmed8003/esp8266-weave-test/pkg/clock"
	"github.com/mahmed8003/esp8266-weave-test/pkg/countersset"
	"github.com/mahmed8003/esp8266-weave-test/pkg/dispatch"
	"github.com/mahmed8003/esp8266-weave-test/pkg/identity"
	"github.com/mahmed8003/esp8266-weave-test/pkg/macaroon"
	"github.com/mahmed8003/esp8266-weave-test/pkg/privet"
	"github.com/mahmed8003/esp8266-weave-test/pkg/session"
	"github.com/mahmed8003/esp8266-weave-test/pkg/status"
	"github.com/mahmed8003/esp8266-weave-test/pkg/wbuffer"
	"github.com/mahmed8003/esp8266-weave-test/pkg/wcbor"
)

type memStore struct{ data map[string][]byte }

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }
func (m *memStore) Get(name string) ([]byte, bool, error) {
	v, ok := m.data[name]
	return v, ok, nil
}
func (m *memStore) Put(name string, data []byte) error {
	m.data[name] = append([]byte(nil), data...)
	return nil
}

func newTestIdentity(t *testing.T) *identity.Identity {
	t.Helper()
	id, err := identity.Load(newMemStore(), nil)
	if err != nil {
		t.Fatalf("identity.Load: %v", err)
	}
	return id
}

// establishedSession runs a real token handshake so the returned
// dispatch.Session reports IsSecure() == true, matching what /auth actually
// sees once a connection's handshake has completed.
func establishedSession(t *testing.T, id *identity.Identity) *dispatch.Session {
	t.Helper()
	crypto := session.New(nil, session.RoleDevice)

	out := wbuffer.New(make([]byte, 64))
	clientRandom := bytes.Repeat([]byte{0x22}, 12)
	request := append([]byte{0x02}, clientRandom...)
	if err := crypto.Init(request, out); err != nil {
		t.Fatalf("Init: %v", err)
	}
	serverRandom := append([]byte(nil), out.Bytes()...)

	sat, err := macaroon.MintServerAuthenticationToken(id.DeviceAuthKey[:], []byte("tok"), []byte{0x01})
	if err != nil {
		t.Fatalf("MintServerAuthenticationToken: %v", err)
	}
	satNonce := append([]byte{0x01}, append(append([]byte(nil), clientRandom...), serverRandom...)...)
	satPrime, err := macaroon.Extend(sat, macaroon.AuthenticationChallengeCaveat(satNonce))
	if err != nil {
		t.Fatalf("Extend: %v", err)
	}
	wire, err := satPrime.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	messageIn := wbuffer.NewWithUsed(append([]byte(nil), wire...), len(wire))
	messageOut := wbuffer.New(make([]byte, 64))
	if st := crypto.ProcessIn(id, messageIn, messageOut); !st.OK() {
		t.Fatalf("ProcessIn: %v", st)
	}

	sess := dispatch.NewSession(crypto)
	sess.StartValid()
	return sess
}

func newHandler(t *testing.T) (*Handler, *identity.Identity, *clock.Clock) {
	t.Helper()
	id := newTestIdentity(t)
	clk := clock.New()
	counters := countersset.New(newMemStore(), 1, nil, nil)
	return New(nil, id, clk, counters), id, clk
}

func encodeAuthRequest(t *testing.T, mode int64, authCode []byte, includeParams bool) []byte {
	t.Helper()
	entries := wcbor.MapEntries{
		{Key: privet.RPCKeyVersion, Value: wcbor.Int(privet.RPCValueVersion)},
		{Key: privet.RPCKeyAPIID, Value: wcbor.Int(int64(dispatch.APIIDAuth))},
		{Key: privet.RPCKeyRequestID, Value: wcbor.Int(1)},
	}
	if includeParams {
		params := wcbor.MapVal(
			wcbor.MapEntry{Key: privet.AuthKeyMode, Value: wcbor.Int(mode)},
			wcbor.MapEntry{Key: privet.AuthKeyAuthCode, Value: wcbor.BytesVal(authCode)},
		)
		entries = append(entries, wcbor.MapEntry{Key: privet.RPCKeyParams, Value: params})
	}
	out, st := wcbor.Encode(wcbor.MapVal(entries...))
	if !st.OK() {
		t.Fatalf("encode request: %v", st)
	}
	return out
}

func dispatchAuth(t *testing.T, h *Handler, sess *dispatch.Session, raw []byte) wcbor.MapEntries {
	t.Helper()
	d := dispatch.New(nil)
	d.Handle(dispatch.APIIDAuth, h.Handle)
	reply := wbuffer.New(make([]byte, 512))
	if st := d.Dispatch(raw, reply, sess); !st.OK() {
		t.Fatalf("Dispatch: %v", st)
	}
	v, st := wcbor.Decode(reply.Bytes())
	if !st.OK() {
		t.Fatalf("decode reply: %v", st)
	}
	m, ok := v.Map()
	if !ok {
		t.Fatalf("reply is not a map")
	}
	return m
}

func errorCode(t *testing.T, m wcbor.MapEntries) status.Status {
	t.Helper()
	errVal, ok := m.Get(privet.RPCKeyError)
	if !ok {
		t.Fatalf("expected an error field, got %+v", m)
	}
	entries, ok := errVal.Map()
	if !ok {
		t.Fatalf("error field is not a map")
	}
	code, ok := entries.Get(privet.RPCErrorKeyCode)
	if !ok {
		t.Fatalf("error map has no code")
	}
	return status.Status(code.Int)
}

func TestAuthRequiresSecureSession(t *testing.T) {
	h, _, _ := newHandler(t)
	sess := dispatch.NewSession(session.New(nil, session.RoleDevice))
	sess.StartValid()

	raw := encodeAuthRequest(t, privet.AuthModeToken, []byte("x"), true)
	m := dispatchAuth(t, h, sess, raw)
	if got := errorCode(t, m); got != status.EncryptionRequired {
		t.Fatalf("expected EncryptionRequired, got %v", got)
	}
}

func TestAuthMalformedParamsStartsValidSession(t *testing.T) {
	h, id, _ := newHandler(t)
	sess := establishedSession(t, id)

	raw := encodeAuthRequest(t, 0, nil, false) // no params map at all
	m := dispatchAuth(t, h, sess, raw)
	if got := errorCode(t, m); got != status.PrivetInvalidParam {
		t.Fatalf("expected PrivetInvalidParam, got %v", got)
	}
	if !sess.IsValid() {
		t.Fatalf("expected session to be marked valid despite malformed params")
	}
}

func TestAuthAnonymousModeIsRejected(t *testing.T) {
	h, id, _ := newHandler(t)
	sess := establishedSession(t, id)

	raw := encodeAuthRequest(t, privet.AuthModeAnonymous, []byte{}, true)
	m := dispatchAuth(t, h, sess, raw)
	if got := errorCode(t, m); got != status.InvalidInput {
		t.Fatalf("expected InvalidInput, got %v", got)
	}
}

func TestAuthPairingModeWithoutEphemeralKeyFails(t *testing.T) {
	h, id, _ := newHandler(t)
	sess := establishedSession(t, id)

	raw := encodeAuthRequest(t, privet.AuthModePairing, []byte("bogus"), true)
	m := dispatchAuth(t, h, sess, raw)
	if got := errorCode(t, m); got != status.PairingRequired {
		t.Fatalf("expected PairingRequired, got %v", got)
	}
}

func TestAuthPairingModeGrantsRoleFromMacaroon(t *testing.T) {
	h, id, clk := newHandler(t)
	if err := id.RememberPairingKey(bytes.Repeat([]byte{0x07}, identity.PairingKeySize), 0); err != nil {
		t.Fatalf("RememberPairingKey: %v", err)
	}
	clk.SetUnixSeconds(1700000000)
	sess := establishedSession(t, id)

	cat, err := macaroon.MintClientAuthorizationToken(id.EphemeralPairingKey[:16], []byte("pair"), macaroon.FromUnix(clk.Now().Unix()), 0)
	if err != nil {
		t.Fatalf("MintClientAuthorizationToken: %v", err)
	}
	cat, err = macaroon.Extend(cat, macaroon.ScopeCaveat(macaroon.ScopeManager))
	if err != nil {
		t.Fatalf("Extend scope: %v", err)
	}
	wire, err := cat.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	raw := encodeAuthRequest(t, privet.AuthModePairing, wire, true)
	m := dispatchAuth(t, h, sess, raw)

	result, ok := m.Get(privet.RPCKeyResult)
	if !ok {
		t.Fatalf("expected a result field, got %+v", m)
	}
	resultMap, ok := result.Map()
	if !ok {
		t.Fatalf("result is not a map")
	}
	role, ok := resultMap.Get(privet.AuthResponseKeyRole)
	if !ok || privet.Role(role.Int) != privet.RoleManager {
		t.Fatalf("expected RoleManager in reply, got %+v", role)
	}
	if sess.Role() != privet.RoleManager {
		t.Fatalf("expected session role RoleManager, got %v", sess.Role())
	}
	if !sess.IsAccessControlAuthorized() {
		t.Fatalf("expected pairing-mode auth to set access-control-authorized")
	}
}

func TestAuthTokenModeGrantsRoleFromMacaroon(t *testing.T) {
	h, id, clk := newHandler(t)
	id.ClientAuthzKey = [identity.ClientAuthzKeySize]byte{0x09, 0x09, 0x09}
	id.HasClientAuthzKey = true
	clk.SetUnixSeconds(1700000000)
	sess := establishedSession(t, id)

	cat, err := macaroon.MintClientAuthorizationToken(id.ClientAuthzKey[:], []byte("tok"), macaroon.FromUnix(clk.Now().Unix()), 0)
	if err != nil {
		t.Fatalf("MintClientAuthorizationToken: %v", err)
	}
	cat, err = macaroon.Extend(cat, macaroon.LanSessionIDCaveat(sess.Crypto.SessionID()))
	if err != nil {
		t.Fatalf("Extend lan session id: %v", err)
	}
	wire, err := cat.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	raw := encodeAuthRequest(t, privet.AuthModeToken, wire, true)
	m := dispatchAuth(t, h, sess, raw)

	result, ok := m.Get(privet.RPCKeyResult)
	if !ok {
		t.Fatalf("expected a result field, got %+v", m)
	}
	resultMap, _ := result.Map()
	role, ok := resultMap.Get(privet.AuthResponseKeyRole)
	if !ok || privet.Role(role.Int) != privet.RoleOwner {
		t.Fatalf("expected RoleOwner (unnarrowed scope), got %+v", role)
	}
	timeStatus, ok := resultMap.Get(privet.AuthResponseKeyTimeStatus)
	if !ok || timeStatus.Int != privet.InfoTimeStatusOK {
		t.Fatalf("expected InfoTimeStatusOK, got %+v", timeStatus)
	}
}

func TestAuthTokenModeWrongKeyFailsVerification(t *testing.T) {
	h, id, clk := newHandler(t)
	id.ClientAuthzKey = [identity.ClientAuthzKeySize]byte{0x09, 0x09, 0x09}
	id.HasClientAuthzKey = true
	clk.SetUnixSeconds(1700000000)
	sess := establishedSession(t, id)

	wrongKey := bytes.Repeat([]byte{0xAA}, identity.ClientAuthzKeySize)
	cat, err := macaroon.MintClientAuthorizationToken(wrongKey, []byte("tok"), macaroon.FromUnix(clk.Now().Unix()), 0)
	if err != nil {
		t.Fatalf("MintClientAuthorizationToken: %v", err)
	}
	wire, err := cat.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	raw := encodeAuthRequest(t, privet.AuthModeToken, wire, true)
	m := dispatchAuth(t, h, sess, raw)
	if got := errorCode(t, m); got != status.VerificationFailed {
		t.Fatalf("expected VerificationFailed, got %v", got)
	}
}

func TestAuthTimeRequiredWhenClockUnsetAndRoleBelowManager(t *testing.T) {
	h, id, _ := newHandler(t) // clock never set
	id.ClientAuthzKey = [identity.ClientAuthzKeySize]byte{0x09, 0x09, 0x09}
	id.HasClientAuthzKey = true
	sess := establishedSession(t, id)

	cat, err := macaroon.MintClientAuthorizationToken(id.ClientAuthzKey[:], []byte("tok"), 0, 0)
	if err != nil {
		t.Fatalf("MintClientAuthorizationToken: %v", err)
	}
	cat, err = macaroon.Extend(cat, macaroon.ScopeCaveat(macaroon.ScopeUser))
	if err != nil {
		t.Fatalf("Extend scope: %v", err)
	}
	cat, err = macaroon.Extend(cat, macaroon.LanSessionIDCaveat(sess.Crypto.SessionID()))
	if err != nil {
		t.Fatalf("Extend lan session id: %v", err)
	}
	wire, err := cat.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	raw := encodeAuthRequest(t, privet.AuthModeToken, wire, true)
	m := dispatchAuth(t, h, sess, raw)
	if got := errorCode(t, m); got != status.TimeRequired {
		t.Fatalf("expected TimeRequired, got %v", got)
	}
}
