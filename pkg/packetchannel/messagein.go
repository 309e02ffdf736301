package packetchannel

import (
	"github.com/mahmed8003/esp8266-weave-test/pkg/status"
	"github.com/mahmed8003/esp8266-weave-test/pkg/wbuffer"
)

// MessageIn reassembles an inbound message from a series of packets.
//
// It starts Empty and transitions to Busy on the first AppendPacket call;
// the last fragment transitions it to Complete. A Complete message must be
// Reset before it can be reused. Grounded on message_in.h/.c.
type MessageIn struct {
	buf     *wbuffer.Buffer
	state   State
	typ     Type
	readPos int
}

// NewMessageIn wraps buf (caller-owned, reused across messages via Reset).
func NewMessageIn(buf *wbuffer.Buffer) *MessageIn {
	m := &MessageIn{buf: buf}
	m.Reset()
	return m
}

// Reset clears the buffer and returns the message to the Empty state.
func (m *MessageIn) Reset() {
	m.buf.Reset()
	m.state = StateEmpty
	m.typ = TypeUnknown
	m.readPos = 0
}

// Type returns the message type determined by the first appended packet.
func (m *MessageIn) Type() Type { return m.typ }

// State returns the current reassembly state.
func (m *MessageIn) State() State { return m.state }

// Buffer returns the backing buffer passed to NewMessageIn.
func (m *MessageIn) Buffer() *wbuffer.Buffer { return m.buf }

// ReadUint8 reads one byte at the current read position and advances it.
// Valid only once State is Complete.
func (m *MessageIn) ReadUint8() (byte, status.Status) {
	if m.state != StateComplete {
		return 0, status.TransportMessageNotComplete
	}
	bytes := m.buf.Bytes()
	if m.readPos+1 > len(bytes) {
		return 0, status.TransportBufferTooSmall
	}
	v := bytes[m.readPos]
	m.readPos++
	return v, status.Success
}

// ReadUint16 reads a big-endian uint16 at the current read position and
// advances it.
func (m *MessageIn) ReadUint16() (uint16, status.Status) {
	if m.state != StateComplete {
		return 0, status.TransportMessageNotComplete
	}
	bytes := m.buf.Bytes()
	if m.readPos+2 > len(bytes) {
		return 0, status.TransportBufferTooSmall
	}
	v := uint16(bytes[m.readPos])<<8 | uint16(bytes[m.readPos+1])
	m.readPos += 2
	return v, status.Success
}

// ReadRemainingBytes returns a Buffer aliasing the unread tail of the
// message and advances the read position past it.
func (m *MessageIn) ReadRemainingBytes() (*wbuffer.Buffer, status.Status) {
	if m.state != StateComplete {
		return nil, status.TransportMessageNotComplete
	}
	bytes := m.buf.Bytes()
	out, st := m.buf.Slice(m.readPos, len(bytes)-m.readPos)
	if !st.OK() {
		return nil, st
	}
	m.readPos = len(bytes)
	return out, status.Success
}

// AppendPacket feeds one packet's header byte and payload into the
// reassembly buffer and returns the new state. Grounded on
// uw_message_in_append_packet_.
func (m *MessageIn) AppendPacket(header byte, data []byte) State {
	typ := messageTypeFromHeader(header)

	firstPacket := true
	lastPacket := true
	if typ == TypeData {
		firstPacket = IsFirst(header)
		lastPacket = IsLast(header)
	}

	switch {
	case m.state == StateComplete:
		m.state = StateError
	case firstPacket && m.state != StateEmpty:
		m.state = StateError
	case !firstPacket && m.state == StateEmpty:
		m.state = StateError
	default:
		if st := m.buf.Append(data); st.OK() {
			m.typ = typ
			if lastPacket {
				m.state = StateComplete
			} else {
				m.state = StateBusy
			}
		} else {
			m.state = StateError
		}
	}

	return m.state
}
