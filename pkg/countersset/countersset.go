// Package countersset tracks the device's built-in diagnostic counters
// (BLE connects, auth attempts, dispatch calls, ...) plus an
// application-defined set of additional counters, coalescing persistence of
// both and encoding them for /debug/metrics.
//
// Grounded on original_source/src/libuweave/include/uweave/counters.h and
// src/counters.h/.c.
package countersset

import (
	"sync"
	"time"

	"github.com/mahmed8003/esp8266-weave-test/pkg/wcbor"
)

// Internal is a built-in diagnostic counter id. Grounded on
// UwInternalCounter; values are contiguous and must stay so (the origin
// indexes a flat array by this enum).
type Internal int

const (
	InternalBLEConnect Internal = iota
	InternalBLEDisconnect
	InternalAuthPairing
	InternalAuthToken
	InternalAccessControlClaim
	InternalAccessControlConfirm
	InternalSetupTimeSet
	InternalSessionHandshakeFailure
	InternalSessionDecryptionFailure
	InternalSessionEncryptionFailure
	InternalPrivetDispatch
	InternalFactoryReset

	internalCount
)

// CoalesceInterval is how long a Set waits after its first dirty counter
// before it's considered due for a storage write. Grounded on
// kUwCounterCoalesceIntervalSeconds.
const CoalesceInterval = 10 * time.Second

// Store is the persisted blob interface Set needs, satisfied by
// pkg/storage's implementations.
type Store interface {
	Get(name string) ([]byte, bool, error)
	Put(name string, data []byte) error
}

const storageFileCounters = "counters"

// Set holds both the built-in counters and an application-defined set,
// identified by arbitrary small integer ids so the set can grow across
// firmware versions without renumbering. Grounded on UwCounterSet_.
type Set struct {
	mu sync.Mutex

	store Store
	now   func() time.Time

	generationID   uint32
	generationTime time.Time
	earliestChange time.Time

	internalCounters [internalCount]uint32
	appCounters      map[uint16]uint32
	appOrder         []uint16
}

// New constructs a Set with the given application counter ids (any order;
// values start at zero and Increment rejects unknown ids). Grounded on
// uw_counter_set_init.
func New(store Store, generationID uint32, appIDs []uint16, now func() time.Time) *Set {
	if now == nil {
		now = time.Now
	}
	s := &Set{
		store:        store,
		now:          now,
		generationID: generationID,
		appCounters:  make(map[uint16]uint32, len(appIDs)),
		appOrder:     append([]uint16(nil), appIDs...),
	}
	for _, id := range appIDs {
		s.appCounters[id] = 0
	}
	s.tryLoad()
	if s.generationTime.IsZero() {
		s.generationTime = now()
	}
	return s
}

func (s *Set) markDirty() {
	if s.earliestChange.IsZero() {
		s.earliestChange = s.now()
	}
}

// Increment bumps a built-in counter. Grounded on
// uw_counter_set_increment_uw_counter_.
func (s *Set) Increment(id Internal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= internalCount {
		return
	}
	s.markDirty()
	s.internalCounters[id]++
}

// Get returns a built-in counter's current value.
func (s *Set) Get(id Internal) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= internalCount {
		return 0
	}
	return s.internalCounters[id]
}

// IncrementApp bumps an application counter registered at construction.
// Grounded on uw_counter_set_increment_app_counter_.
func (s *Set) IncrementApp(id uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.appCounters[id]; !ok {
		return
	}
	s.markDirty()
	s.appCounters[id]++
}

// GetApp returns an application counter's current value.
func (s *Set) GetApp(id uint16) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appCounters[id]
}

// ShouldCoalesce reports whether the earliest dirty change is old enough to
// warrant a storage write. Grounded on uw_counter_set_try_coalesce_.
func (s *Set) ShouldCoalesce() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.earliestChange.IsZero() {
		return false
	}
	return s.now().Sub(s.earliestChange) >= CoalesceInterval
}

// Encode returns the counter set as a CBOR map value: an array of built-in
// counter values, the app counters keyed by id, and the generation id/time.
// Grounded on uw_counter_set_encode_.
func (s *Set) Encode() wcbor.Value {
	s.mu.Lock()
	defer s.mu.Unlock()

	uwItems := make(wcbor.ArrayItems, internalCount)
	for i := range s.internalCounters {
		uwItems[i] = wcbor.Int(int64(s.internalCounters[i]))
	}

	var appEntries wcbor.MapEntries
	for _, id := range s.appOrder {
		appEntries = append(appEntries, wcbor.MapEntry{Key: int64(id), Value: wcbor.Int(int64(s.appCounters[id]))})
	}

	return wcbor.MapVal(
		wcbor.MapEntry{Key: 0, Value: wcbor.Int(int64(s.generationID))},
		wcbor.MapEntry{Key: 1, Value: wcbor.Int(s.generationTime.Unix())},
		wcbor.MapEntry{Key: 2, Value: wcbor.ArrayVal(uwItems...)},
		wcbor.MapEntry{Key: 3, Value: wcbor.MapVal(appEntries...)},
	)
}

// persist keys mirror Encode's map keys.
const (
	keyGenerationID   = 0
	keyGenerationTime = 1
	keyUwCounters     = 2
	keyAppCounters    = 3
)

// WriteToStorage persists the counter set and clears the dirty marker.
// Grounded on uw_counter_set_write_to_storage_.
func (s *Set) WriteToStorage() error {
	encoded := s.Encode()

	out, st := wcbor.Encode(encoded)
	if !st.OK() {
		return st
	}
	if err := s.store.Put(storageFileCounters, out); err != nil {
		return err
	}

	s.mu.Lock()
	s.earliestChange = time.Time{}
	s.mu.Unlock()
	return nil
}

func (s *Set) tryLoad() {
	raw, ok, err := s.store.Get(storageFileCounters)
	if err != nil || !ok || len(raw) == 0 {
		return
	}
	v, st := wcbor.Decode(raw)
	if !st.OK() {
		return
	}
	entries, ok := v.Map()
	if !ok {
		return
	}
	if e, ok := entries.Get(keyGenerationID); ok && e.Kind == wcbor.KindInt {
		s.generationID = uint32(e.Int)
	}
	if e, ok := entries.Get(keyGenerationTime); ok && e.Kind == wcbor.KindInt {
		s.generationTime = time.Unix(e.Int, 0)
	}
	if e, ok := entries.Get(keyUwCounters); ok {
		if items, ok := e.Array(); ok {
			for i := 0; i < len(items) && i < int(internalCount); i++ {
				if items[i].Kind == wcbor.KindInt {
					s.internalCounters[i] = uint32(items[i].Int)
				}
			}
		}
	}
	if e, ok := entries.Get(keyAppCounters); ok {
		if m, ok := e.Map(); ok {
			for _, entry := range m {
				if _, known := s.appCounters[uint16(entry.Key)]; known && entry.Value.Kind == wcbor.KindInt {
					s.appCounters[uint16(entry.Key)] = uint32(entry.Value.Int)
				}
			}
		}
	}
}
