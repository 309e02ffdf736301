// Package tracelog holds a fixed-size ring buffer of recent protocol
// events (call begin/end, auth results, BLE connects, session lifecycle,
// command dispatch, factory reset) for retrieval through /debug's
// traceQuery and traceDump commands.
//
// Grounded on original_source/src/libuweave/src/trace.c/.h.
package tracelog

import (
	"github.com/mahmed8003/esp8266-weave-test/pkg/privet"
	"github.com/mahmed8003/esp8266-weave-test/pkg/status"
	"github.com/mahmed8003/esp8266-weave-test/pkg/wcbor"
)

// Type identifies the shape of an entry's parameters. Grounded on
// UwTraceType.
type Type int

const (
	TypeEmpty Type = iota
	TypeCallBegin
	TypeCallEnd
	TypeAuthResult
	TypeBLEEvent
	TypeCommandExecute
	TypeSession
	TypeFactoryResetBegin
	TypeFactoryResetEnd
)

// BLEEvent identifies a link-level BLE event. Grounded on UwTraceBleEvent.
type BLEEvent int

const (
	BLEEventConnect BLEEvent = iota + 1
	BLEEventDisconnect
	BLEEventDisconnectDrop
)

// SessionEvent identifies a point in the encrypted-session lifecycle.
// Grounded on UwTraceSession.
type SessionEvent int

const (
	SessionHandshake SessionEvent = iota + 1
	SessionProcessIn
	SessionDispatch
	SessionProcessOut
	SessionExpiration
)

// entryCapacity is the ring buffer's size. Grounded on
// UW_TRACE_LOG_ENTRY_COUNT (a build-time config value in the origin); 64
// is a reasonable default for a low-power device with modest RAM.
const entryCapacity = 64

// dumpMaxEntries caps a single traceDump response. Grounded on
// kUwTraceDumpMaxEntries.
const dumpMaxEntries = 16

// entry is one ring-buffer slot. The origin unions together one of several
// small param structs by Type; here every field is simply present and
// Encode reads only the ones Type calls for.
type entry struct {
	id        uint32
	timestamp int64
	typ       Type

	authMode uint8
	authRole uint8

	bleEvent BLEEvent
	bleState uint8

	callAPIID  uint8
	callStatus status.Status

	commandTrait uint16
	commandName  uint16

	sessionType   SessionEvent
	sessionStatus status.Status
}

// Log is a fixed-capacity ring buffer of trace entries.
type Log struct {
	entries   [entryCapacity]entry
	nextIndex int
	nextID    uint32
	now       func() int64
}

// New constructs an empty Log. now reports the current Unix timestamp,
// stamped onto each appended entry.
func New(now func() int64) *Log {
	return &Log{now: now}
}

func (l *Log) append(typ Type) *entry {
	e := &l.entries[l.nextIndex]
	l.nextIndex = (l.nextIndex + 1) % entryCapacity
	*e = entry{id: l.nextID, timestamp: l.now(), typ: typ}
	l.nextID++
	return e
}

// AppendCallBegin records the start of a Privet API call. Grounded on
// uw_trace_call_begin.
func (l *Log) AppendCallBegin(apiID uint8) {
	l.append(TypeCallBegin).callAPIID = apiID
}

// AppendCallEnd records a Privet API call's result. Grounded on
// uw_trace_call_end.
func (l *Log) AppendCallEnd(apiID uint8, st status.Status) {
	e := l.append(TypeCallEnd)
	e.callAPIID, e.callStatus = apiID, st
}

// AppendAuthResult records the mode and granted role of an /auth call.
// Grounded on uw_trace_auth_result.
func (l *Log) AppendAuthResult(mode, role uint8) {
	e := l.append(TypeAuthResult)
	e.authMode, e.authRole = mode, role
}

// AppendBLEEvent records a link-level connect/disconnect. Grounded on
// uw_trace_ble_event.
func (l *Log) AppendBLEEvent(event BLEEvent, state uint8) {
	e := l.append(TypeBLEEvent)
	e.bleEvent, e.bleState = event, state
}

// AppendCommandExecute records a dispatched trait+name command. Grounded
// on uw_trace_command_execute.
func (l *Log) AppendCommandExecute(trait, name uint16) {
	e := l.append(TypeCommandExecute)
	e.commandTrait, e.commandName = trait, name
}

// AppendSession records an encrypted-session lifecycle event. Grounded on
// uw_trace_session.
func (l *Log) AppendSession(event SessionEvent, st status.Status) {
	e := l.append(TypeSession)
	e.sessionType, e.sessionStatus = event, st
}

// AppendFactoryResetBegin/End bracket a factory reset.
func (l *Log) AppendFactoryResetBegin() { l.append(TypeFactoryResetBegin) }
func (l *Log) AppendFactoryResetEnd()   { l.append(TypeFactoryResetEnd) }

func (l *Log) lastIndex() int {
	return (l.nextIndex - 1 + entryCapacity) % entryCapacity
}

// GetRange reports the ids of the oldest and newest entries currently
// held, or (0, 0) if the log is empty. Grounded on uw_trace_log_get_range_.
func (l *Log) GetRange() (min, max uint32) {
	last := &l.entries[l.lastIndex()]
	if last.typ == TypeEmpty {
		return 0, 0
	}
	next := &l.entries[l.nextIndex]
	if next.typ == TypeEmpty {
		return l.entries[0].id, last.id
	}
	return next.id, last.id
}

// findRange computes the ring-buffer start index and length of entries
// whose ids fall within [start, end], clamped to dumpMaxEntries. Grounded
// on find_entries_.
func (l *Log) findRange(start, end uint32) (startIndex, length int) {
	last := &l.entries[l.lastIndex()]
	if last.typ == TypeEmpty {
		return 0, 0
	}

	idx := l.nextIndex
	if l.entries[idx].typ == TypeEmpty {
		idx = 0
	}
	first := &l.entries[idx]

	minID, maxID := first.id, last.id
	count := int(maxID-minID) + 1

	if start >= end || start > maxID || end < minID {
		return 0, 0
	}
	if end < maxID {
		count -= int(maxID - end)
	}
	if start > minID {
		delta := int(start - minID)
		idx += delta
		count -= delta
	}
	if count > dumpMaxEntries {
		count = dumpMaxEntries
	}
	if count < 0 {
		count = 0
	}
	return idx, count
}

func encodeEntry(e *entry) wcbor.Value {
	var params []wcbor.MapEntry
	switch e.typ {
	case TypeAuthResult:
		params = append(params,
			wcbor.MapEntry{Key: privet.DebugTraceParamsKeyAuthMode, Value: wcbor.Int(int64(e.authMode))},
			wcbor.MapEntry{Key: privet.DebugTraceParamsKeyAuthRole, Value: wcbor.Int(int64(e.authRole))},
		)
	case TypeBLEEvent:
		params = append(params,
			wcbor.MapEntry{Key: privet.DebugTraceParamsKeyBLEEvent, Value: wcbor.Int(int64(e.bleEvent))},
			wcbor.MapEntry{Key: privet.DebugTraceParamsKeyBLEState, Value: wcbor.Int(int64(e.bleState))},
		)
	case TypeCallBegin:
		params = append(params,
			wcbor.MapEntry{Key: privet.DebugTraceParamsKeyCallAPIID, Value: wcbor.Int(int64(e.callAPIID))},
		)
	case TypeCallEnd:
		params = append(params,
			wcbor.MapEntry{Key: privet.DebugTraceParamsKeyCallAPIID, Value: wcbor.Int(int64(e.callAPIID))},
			wcbor.MapEntry{Key: privet.DebugTraceParamsKeyCallStatus, Value: wcbor.Int(int64(e.callStatus))},
		)
	case TypeCommandExecute:
		params = append(params,
			wcbor.MapEntry{Key: privet.DebugTraceParamsKeyCommandExecuteTrait, Value: wcbor.Int(int64(e.commandTrait))},
			wcbor.MapEntry{Key: privet.DebugTraceParamsKeyCommandExecuteName, Value: wcbor.Int(int64(e.commandName))},
		)
	case TypeSession:
		params = append(params,
			wcbor.MapEntry{Key: privet.DebugTraceParamsKeySessionType, Value: wcbor.Int(int64(e.sessionType))},
			wcbor.MapEntry{Key: privet.DebugTraceParamsKeySessionStatus, Value: wcbor.Int(int64(e.sessionStatus))},
		)
	}

	entries := wcbor.MapEntries{
		{Key: privet.DebugTraceDumpResultEntryKeyType, Value: wcbor.Int(int64(e.typ))},
		{Key: privet.DebugTraceDumpResultEntryKeyTimestamp, Value: wcbor.Int(e.timestamp)},
		{Key: privet.DebugTraceDumpResultEntryKeyID, Value: wcbor.Int(int64(e.id))},
		{Key: privet.DebugTraceDumpResultEntryKeyParams, Value: wcbor.MapVal(params...)},
	}
	return wcbor.MapVal(entries...)
}

// Encode renders the entries in [start, end] (inclusive, capped at
// dumpMaxEntries) as the traceDump result array; start >= end yields an
// empty array. Grounded on
// entry_encoding_callback_/uw_trace_log_encode_to_privet_request_ (the
// reply-shaping is left to the debug handler; this returns only the dump
// array).
func (l *Log) Encode(start, end uint32) wcbor.Value {
	startIndex, length := l.findRange(start, end)
	items := make([]wcbor.Value, length)
	for i := 0; i < length; i++ {
		items[i] = encodeEntry(&l.entries[(startIndex+i)%entryCapacity])
	}
	return wcbor.ArrayVal(items...)
}
