package packetchannel

import (
	"github.com/mahmed8003/esp8266-weave-test/pkg/status"
	"github.com/mahmed8003/esp8266-weave-test/pkg/wbuffer"
)

// MessageOut assembles an outbound message and hands it out one
// max-packet-size-sized fragment at a time.
//
// A caller builds the payload with Start/AppendUint8/AppendUint16/
// AppendBytes/Ready while the message is Empty, then repeatedly calls
// GetNextPacket (Busy) until the state reaches Complete. Grounded on
// message_out.h/.c.
type MessageOut struct {
	buf          *wbuffer.Buffer
	state        State
	typ          Type
	packetOffset int
}

// NewMessageOut wraps buf (caller-owned, reused across messages via Reset).
func NewMessageOut(buf *wbuffer.Buffer) *MessageOut {
	m := &MessageOut{buf: buf}
	m.Reset()
	return m
}

// Reset clears the buffer and returns the message to the Empty state.
func (m *MessageOut) Reset() {
	m.buf.Reset()
	m.state = StateEmpty
	m.typ = TypeUnknown
	m.packetOffset = 0
}

// State returns the current send state.
func (m *MessageOut) State() State { return m.state }

// Buffer returns the backing buffer passed to NewMessageOut.
func (m *MessageOut) Buffer() *wbuffer.Buffer { return m.buf }

// AppendUint8 appends one byte to the message payload.
func (m *MessageOut) AppendUint8(v byte) status.Status {
	return m.buf.AppendByte(v)
}

// AppendUint16 appends a big-endian uint16 to the message payload.
func (m *MessageOut) AppendUint16(v uint16) status.Status {
	return m.buf.Append([]byte{byte(v >> 8), byte(v)})
}

// AppendBytes appends an arbitrary byte slice to the message payload.
func (m *MessageOut) AppendBytes(b []byte) status.Status {
	return m.buf.Append(b)
}

// Start marks the beginning of assembly for a message of the given type.
// The message remains Empty until Ready is called. Panics (via an assertion
// analog returning an error) are avoided in favor of a Status the caller
// can check: calling Start twice, or on a message with payload already
// written, is a caller bug and returns TransportPacketOutOfSequence.
func (m *MessageOut) Start(typ Type) status.Status {
	if m.typ != TypeUnknown {
		return status.TransportPacketOutOfSequence
	}
	if m.buf.Len() != 0 {
		return status.TransportPacketOutOfSequence
	}
	m.typ = typ
	return status.Success
}

// Ready marks the message ready to send, transitioning Empty to Busy.
func (m *MessageOut) Ready() status.Status {
	if m.state != StateEmpty {
		return status.TransportPacketOutOfSequence
	}
	if m.typ == TypeUnknown {
		return status.TransportPacketOutOfSequence
	}
	m.state = StateBusy
	return status.Success
}

// Discard cancels a Start, clearing the payload and type.
func (m *MessageOut) Discard() status.Status {
	if m.state != StateEmpty {
		return status.TransportPacketOutOfSequence
	}
	m.buf.Reset()
	m.typ = TypeUnknown
	return status.Success
}

// GetNextPacket copies the next fragment of the message into packetBuffer
// (which must have at least maxPacketSize capacity remaining), using
// packetCounter for the fragment header, and returns the new state.
// Grounded on uw_message_out_get_next_packet_.
func (m *MessageOut) GetNextPacket(packetBuffer *wbuffer.Buffer, maxPacketSize int, packetCounter byte) State {
	if packetBuffer.Len() != 0 || m.state != StateBusy || packetBuffer.Cap() < maxPacketSize {
		m.state = StateError
		return m.state
	}

	messageBytes := m.buf.Bytes()
	isLast := false
	packetDataLength := maxPacketSize - 1
	remaining := len(messageBytes) - m.packetOffset
	if remaining <= packetDataLength {
		packetDataLength = remaining
		isLast = true
	}

	var header byte
	if m.typ == TypeData {
		header = NewDataHeader(m.packetOffset == 0, isLast, packetCounter)
	} else {
		if !isLast {
			m.state = StateError
			return m.state
		}
		cmd, ok := m.typ.headerCmd()
		if !ok {
			m.state = StateError
			return m.state
		}
		header = NewControlHeader(cmd, packetCounter)
	}

	if st := packetBuffer.AppendByte(header); !st.OK() {
		m.state = StateError
		return m.state
	}
	chunk := messageBytes[m.packetOffset : m.packetOffset+packetDataLength]
	if st := packetBuffer.Append(chunk); !st.OK() {
		m.state = StateError
		return m.state
	}

	m.packetOffset += packetDataLength
	if isLast {
		m.state = StateComplete
	} else {
		m.state = StateBusy
	}
	return m.state
}
