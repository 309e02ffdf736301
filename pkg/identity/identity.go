// Package identity holds the device's persistent key material: the device
// authentication key used to sign Server Authentication Tokens, the client
// authorization key (and a pending replacement awaiting confirmation) used
// to validate Client Authorization Tokens, the ephemeral pairing key
// established by the most recent SPAKE2 exchange, and the device id
// advertised to clients.
//
// Grounded on original_source/src/libuweave/src/device_crypto.c
// (uw_device_crypto_init_/_reset_/_remember_pairing_key_/
// _generate_pending_client_authz_key_/_commit_pending_client_authz_key_).
// The corresponding header and the UW_DEVICE_CRYPTO_KEY_* storage-map key
// constants it defines are not present under original_source/; the key
// constants and the CBOR map layout below are original to this package, a
// map of optional byte-string fields for the persisted Keys record.
package identity

import (
	"crypto/rand"
	"errors"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mahmed8003/esp8266-weave-test/pkg/wcbor"
)

// instanceNameNamespace scopes the UUIDs InstanceName derives, so the same
// device id never collides with an unrelated namespace's output.
var instanceNameNamespace = uuid.MustParse("b72743e0-9e6f-4f1b-9b0a-2f2a2e9a2b38")

const (
	// DeviceAuthKeySize is the size of the device authentication key.
	DeviceAuthKeySize = 16
	// ClientAuthzKeySize is the size of the client authorization key (and
	// its pending replacement).
	ClientAuthzKeySize = 16
	// PairingKeySize is the size of the SPAKE2 DH-derived ephemeral pairing
	// key (a raw P-224 point, see pkg/spake2.PointSize).
	PairingKeySize = 56
	// DeviceIDSize is the size of the advertised device id.
	DeviceIDSize = 4
)

// Storage map keys for the persisted Keys record. Original to this package
// (see package doc comment).
const (
	keyDeviceAuthKey  = 0
	keyClientAuthzKey = 1
	keyDeviceID       = 2
)

const (
	storageFileKeys   = "keys"
	storageAlignBytes = 16 // pad writes to this boundary, matching UW_STORAGE_ALIGNMENT
)

// Store is the persisted blob interface identity needs: a named byte-string
// get/put, satisfied by pkg/storage's implementations. Declared here (an
// "accept interfaces" boundary) rather than imported, so identity doesn't
// depend on a concrete storage backend.
type Store interface {
	Get(name string) ([]byte, bool, error)
	Put(name string, data []byte) error
}

// ErrNoPendingKey is returned by CommitPendingClientAuthzKey when there is no
// pending key to commit.
var ErrNoPendingKey = errors.New("identity: no pending client authorization key")

// ErrWrongKeyLength is returned by RememberPairingKey when given a key that
// isn't exactly PairingKeySize bytes.
var ErrWrongKeyLength = errors.New("identity: wrong pairing key length")

// Identity holds the device's live key state. The zero value is not usable;
// construct with Load.
type Identity struct {
	store Store
	log   *slog.Logger

	DeviceAuthKey    [DeviceAuthKeySize]byte
	HasDeviceAuthKey bool

	ClientAuthzKey    [ClientAuthzKeySize]byte
	HasClientAuthzKey bool

	PendingClientAuthzKey    [ClientAuthzKeySize]byte
	HasPendingClientAuthzKey bool

	EphemeralPairingKey     [PairingKeySize]byte
	EphemeralIssueTimestamp uint64
	HasEphemeralPairingKey  bool

	DeviceID    [DeviceIDSize]byte
	HasDeviceID bool
}

// Load reads any persisted keys from store, generating and persisting a
// device authentication key and device id if they're missing. Grounded on
// uw_device_crypto_init_.
func Load(store Store, log *slog.Logger) (*Identity, error) {
	if log == nil {
		log = slog.Default()
	}
	id := &Identity{store: store, log: log}
	id.tryLoad()

	dirty := false
	if !id.HasDeviceAuthKey {
		if _, err := io.ReadFull(rand.Reader, id.DeviceAuthKey[:]); err != nil {
			return nil, err
		}
		id.HasDeviceAuthKey = true
		dirty = true
	}
	if !id.HasDeviceID {
		if _, err := io.ReadFull(rand.Reader, id.DeviceID[:]); err != nil {
			return nil, err
		}
		id.HasDeviceID = true
		dirty = true
	}

	if dirty {
		if err := id.save(); err != nil {
			return nil, err
		}
	}
	return id, nil
}

func (id *Identity) tryLoad() {
	raw, ok, err := id.store.Get(storageFileKeys)
	if err != nil {
		id.log.Warn("identity: key file not read", "error", err)
		return
	}
	if !ok || len(raw) == 0 {
		return
	}

	v, st := wcbor.Decode(raw)
	if !st.OK() {
		id.log.Warn("identity: error scanning key file", "status", st)
		return
	}
	entries, ok := v.Map()
	if !ok {
		id.log.Warn("identity: key file is not a map")
		return
	}

	if e, ok := entries.Get(keyDeviceAuthKey); ok && e.Kind == wcbor.KindBytes {
		if len(e.Bytes) == DeviceAuthKeySize {
			copy(id.DeviceAuthKey[:], e.Bytes)
			id.HasDeviceAuthKey = true
		} else {
			id.log.Warn("identity: invalid device auth key length", "length", len(e.Bytes))
		}
	}
	if e, ok := entries.Get(keyClientAuthzKey); ok && e.Kind == wcbor.KindBytes {
		if len(e.Bytes) == ClientAuthzKeySize {
			copy(id.ClientAuthzKey[:], e.Bytes)
			id.HasClientAuthzKey = true
		} else {
			id.log.Warn("identity: invalid client authz key length", "length", len(e.Bytes))
		}
	}
	if e, ok := entries.Get(keyDeviceID); ok && e.Kind == wcbor.KindBytes && len(e.Bytes) > 0 {
		copy(id.DeviceID[:], e.Bytes)
		id.HasDeviceID = true
	}
}

func (id *Identity) save() error {
	var entries wcbor.MapEntries
	if id.HasDeviceAuthKey {
		entries = append(entries, wcbor.MapEntry{Key: keyDeviceAuthKey, Value: wcbor.BytesVal(id.DeviceAuthKey[:])})
	}
	if id.HasClientAuthzKey {
		entries = append(entries, wcbor.MapEntry{Key: keyClientAuthzKey, Value: wcbor.BytesVal(id.ClientAuthzKey[:])})
	}
	if id.HasDeviceID {
		entries = append(entries, wcbor.MapEntry{Key: keyDeviceID, Value: wcbor.BytesVal(id.DeviceID[:])})
	}

	out, st := wcbor.Encode(wcbor.MapVal(entries...))
	if !st.OK() {
		return st
	}
	if pad := len(out) % storageAlignBytes; pad != 0 {
		out = append(out, make([]byte, storageAlignBytes-pad)...)
	}
	return id.store.Put(storageFileKeys, out)
}

// Reset clears all key state, persists the empty record, then re-runs Load's
// bring-up logic to mint a fresh device authentication key and device id.
// Grounded on uw_device_crypto_reset_.
func (id *Identity) Reset() error {
	*id = Identity{store: id.store, log: id.log}
	if err := id.save(); err != nil {
		return err
	}
	fresh, err := Load(id.store, id.log)
	if err != nil {
		return err
	}
	*id = *fresh
	return nil
}

// InstanceName derives a stable, opaque name from the device id, suitable
// for a host-side service-discovery bridge to advertise this device under
// without leaking the raw device id onto the local network. Deterministic
// across calls for the same device id, since a bridge restart shouldn't
// change the name clients have already cached.
func (id *Identity) InstanceName() string {
	return uuid.NewSHA1(instanceNameNamespace, id.DeviceID[:]).String()
}

// RememberPairingKey stores the SPAKE2 DH secret from a just-completed
// pairing exchange as the ephemeral pairing key, along with the wall-clock
// timestamp it was issued at. Grounded on
// uw_device_crypto_remember_pairing_key_.
func (id *Identity) RememberPairingKey(key []byte, timestamp uint64) error {
	if len(key) != PairingKeySize {
		return ErrWrongKeyLength
	}
	copy(id.EphemeralPairingKey[:], key)
	id.EphemeralIssueTimestamp = timestamp
	id.HasEphemeralPairingKey = true
	return nil
}

// GeneratePendingClientAuthzKey draws a fresh random client authorization
// key and holds it as "pending" until CommitPendingClientAuthzKey confirms
// it. Grounded on uw_device_crypto_generate_pending_client_authz_key_.
func (id *Identity) GeneratePendingClientAuthzKey() ([ClientAuthzKeySize]byte, error) {
	if _, err := io.ReadFull(rand.Reader, id.PendingClientAuthzKey[:]); err != nil {
		return [ClientAuthzKeySize]byte{}, err
	}
	id.HasPendingClientAuthzKey = true
	return id.PendingClientAuthzKey, nil
}

// CommitPendingClientAuthzKey promotes the pending client authorization key
// to the active one and persists it. Grounded on
// uw_device_crypto_commit_pending_client_authz_key_.
func (id *Identity) CommitPendingClientAuthzKey() error {
	if !id.HasPendingClientAuthzKey {
		return ErrNoPendingKey
	}
	id.ClientAuthzKey = id.PendingClientAuthzKey
	id.HasClientAuthzKey = true
	if err := id.save(); err != nil {
		return err
	}
	id.HasPendingClientAuthzKey = false
	id.PendingClientAuthzKey = [ClientAuthzKeySize]byte{}
	return nil
}
