package info

import (
	"testing"

	"github.com/mahmed8003/esp8266-weave-test/pkg/clock"
	"github.com/mahmed8003/esp8266-weave-test/pkg/dispatch"
	"github.com/mahmed8003/esp8266-weave-test/pkg/identity"
	"github.com/mahmed8003/esp8266-weave-test/pkg/privet"
	"github.com/mahmed8003/esp8266-weave-test/pkg/session"
	"github.com/mahmed8003/esp8266-weave-test/pkg/settings"
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

func newFixtures(t *testing.T) (*Handler, *settings.Settings) {
	t.Helper()
	id, err := identity.Load(newMemStore(), nil)
	if err != nil {
		t.Fatalf("identity.Load: %v", err)
	}
	s := settings.New(newMemStore(), nil, "living-room-light")
	s.SupportedPairingTypes = settings.PairingTypePinCode | settings.PairingTypeEmbeddedCode
	clk := clock.New()
	return New(nil, id, s, clk), s
}

func dispatchInfo(t *testing.T, h *Handler) wcbor.MapEntries {
	t.Helper()
	sess := dispatch.NewSession(session.New(nil, session.RoleDevice))
	sess.StartValid()

	out, st := wcbor.Encode(wcbor.MapVal(
		wcbor.MapEntry{Key: privet.RPCKeyVersion, Value: wcbor.Int(privet.RPCValueVersion)},
		wcbor.MapEntry{Key: privet.RPCKeyAPIID, Value: wcbor.Int(int64(dispatch.APIIDInfo))},
		wcbor.MapEntry{Key: privet.RPCKeyRequestID, Value: wcbor.Int(1)},
	))
	if !st.OK() {
		t.Fatalf("encode: %v", st)
	}

	d := dispatch.New(nil)
	d.Handle(dispatch.APIIDInfo, h.Handle)
	reply := wbuffer.New(make([]byte, 512))
	if st := d.Dispatch(out, reply, sess); !st.OK() {
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
	result, ok := m.Get(privet.RPCKeyResult)
	if !ok {
		t.Fatalf("expected a result, got %+v", m)
	}
	resultMap, ok := result.Map()
	if !ok {
		t.Fatalf("result is not a map")
	}
	return resultMap
}

func TestInfoReportsNameAndDeviceID(t *testing.T) {
	h, s := newFixtures(t)
	m := dispatchInfo(t, h)

	name, ok := m.Get(privet.InfoKeyName)
	if !ok || name.Text != s.Name() {
		t.Fatalf("expected name %q, got %+v", s.Name(), name)
	}
	deviceID, ok := m.Get(privet.InfoKeyDeviceID)
	if !ok || deviceID.Kind != wcbor.KindBytes || len(deviceID.Bytes) != identity.DeviceIDSize {
		t.Fatalf("expected a %d-byte device id, got %+v", identity.DeviceIDSize, deviceID)
	}
}

func TestInfoListsSupportedPairingTypes(t *testing.T) {
	h, _ := newFixtures(t)
	m := dispatchInfo(t, h)

	auth, ok := m.Get(privet.InfoKeyAuth)
	if !ok {
		t.Fatalf("expected an auth entry")
	}
	authMap, _ := auth.Map()
	pairing, ok := authMap.Get(privet.InfoAuthKeyPairing)
	if !ok {
		t.Fatalf("expected a pairing entry")
	}
	items, ok := pairing.Array()
	if !ok || len(items) != 2 {
		t.Fatalf("expected 2 supported pairing types, got %+v", pairing)
	}
}

func TestInfoOmitsUnsupportedPairingTypes(t *testing.T) {
	h, s := newFixtures(t)
	s.SupportedPairingTypes = settings.PairingTypePinCode
	m := dispatchInfo(t, h)

	auth, _ := m.Get(privet.InfoKeyAuth)
	authMap, _ := auth.Map()
	pairing, _ := authMap.Get(privet.InfoAuthKeyPairing)
	items, _ := pairing.Array()
	if len(items) != 1 || items[0].Int != privet.InfoAuthValuePairingPin {
		t.Fatalf("expected only pin-code pairing listed, got %+v", items)
	}
}
