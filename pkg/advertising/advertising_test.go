package advertising

import (
	"testing"

	"github.com/mahmed8003/esp8266-weave-test/pkg/identity"
	"github.com/mahmed8003/esp8266-weave-test/pkg/settings"
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

func newFixtures(t *testing.T) (*settings.Settings, *identity.Identity) {
	t.Helper()
	s := settings.New(newMemStore(), nil, "porch-light")
	s.ModelID = [3]byte{'A', 'B', 'C'}
	s.DeviceClass = [2]byte{'L', 'T'}
	id, err := identity.Load(newMemStore(), nil)
	if err != nil {
		t.Fatalf("identity.Load: %v", err)
	}
	return s, id
}

func TestBuildPayloadLayout(t *testing.T) {
	s, id := newFixtures(t)
	payload := BuildPayload(s, id)

	if len(payload) != PayloadSize {
		t.Fatalf("expected a %d-byte payload, got %d", PayloadSize, len(payload))
	}
	if payload[0] != privetFieldLen {
		t.Fatalf("expected first length byte %d, got %d", privetFieldLen, payload[0])
	}
	if payload[1] != fieldPrivetDataTag {
		t.Fatalf("expected privet field tag, got %#x", payload[1])
	}
	if payload[2] != 'L' || payload[3] != 'T' {
		t.Fatalf("expected device class bytes, got %v", payload[2:4])
	}
	if payload[4] != 'A' || payload[5] != 'B' || payload[6] != 'C' {
		t.Fatalf("expected model id bytes, got %v", payload[4:7])
	}

	publicIDOffset := 1 + privetFieldLen
	if payload[publicIDOffset] != publicIDFieldLen {
		t.Fatalf("expected public id length byte %d, got %d", publicIDFieldLen, payload[publicIDOffset])
	}
	if payload[publicIDOffset+1] != fieldPublicIDTag {
		t.Fatalf("expected public id tag, got %#x", payload[publicIDOffset+1])
	}
	for i := 0; i < identity.DeviceIDSize; i++ {
		if payload[publicIDOffset+2+i] != id.DeviceID[i] {
			t.Fatalf("expected device id byte %d to match identity.DeviceID", i)
		}
	}
}

func TestBuildPayloadLeavesReservedTailZero(t *testing.T) {
	s, id := newFixtures(t)
	payload := BuildPayload(s, id)

	for i := contentLen; i < PayloadSize; i++ {
		if payload[i] != 0 {
			t.Fatalf("expected reserved byte %d to be zero, got %#x", i, payload[i])
		}
	}
}

func TestBuildPayloadFlagsNeedsRegistrationWhenUnpaired(t *testing.T) {
	s, id := newFixtures(t)
	payload := BuildPayload(s, id)

	setupFlagOffset := 1 + 1 + 2 + 3
	if payload[setupFlagOffset]&FlagNeedsWeaveRegistration == 0 {
		t.Fatalf("expected FlagNeedsWeaveRegistration to be set for an unpaired device")
	}
}

func TestBuildPayloadClearsNeedsRegistrationWhenPaired(t *testing.T) {
	s, id := newFixtures(t)
	id.ClientAuthzKey = [identity.ClientAuthzKeySize]byte{0x01}
	id.HasClientAuthzKey = true
	payload := BuildPayload(s, id)

	setupFlagOffset := 1 + 1 + 2 + 3
	if payload[setupFlagOffset]&FlagNeedsWeaveRegistration != 0 {
		t.Fatalf("expected FlagNeedsWeaveRegistration to be clear once paired")
	}
}

func TestBuildPayloadEncodesCapabilityFlags(t *testing.T) {
	s, id := newFixtures(t)
	s.SupportsWiFi24GHz = true
	s.SupportsBLE40 = true
	payload := BuildPayload(s, id)

	capsOffset := 1 + 1 + 2 + 3 + 1
	caps := payload[capsOffset]
	if caps&FlagWiFi24GHz == 0 || caps&FlagBLE40 == 0 {
		t.Fatalf("expected WiFi24GHz and BLE40 capability flags set, got %#x", caps)
	}
	if caps&FlagWiFi50GHz != 0 {
		t.Fatalf("expected WiFi50GHz capability flag clear, got %#x", caps)
	}
}

type fakeBroadcaster struct {
	name           string
	manufacturerID uint16
	payload        []byte
}

func (f *fakeBroadcaster) SetAdvertisingData(name string, manufacturerID uint16, payload []byte) error {
	f.name = name
	f.manufacturerID = manufacturerID
	f.payload = append([]byte(nil), payload...)
	return nil
}

func TestUpdatePublishesCurrentPayload(t *testing.T) {
	s, id := newFixtures(t)
	b := &fakeBroadcaster{}

	if err := Update(b, s, id); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if b.name != s.Name() {
		t.Fatalf("expected broadcaster to receive the device name")
	}
	if b.manufacturerID != GoogleManufacturerID() {
		t.Fatalf("expected the Google manufacturer id")
	}
	if len(b.payload) != PayloadSize {
		t.Fatalf("expected a %d-byte payload, got %d", PayloadSize, len(b.payload))
	}
}
