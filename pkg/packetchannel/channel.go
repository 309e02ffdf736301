package packetchannel

import (
	"github.com/mahmed8003/esp8266-weave-test/pkg/status"
	"github.com/mahmed8003/esp8266-weave-test/pkg/wbuffer"
)

// MessageHandler is invoked once an inbound message finishes reassembly.
type MessageHandler func() status.Status

// Channel assembles incoming packets into a MessageIn and splits outgoing
// packets off a MessageOut, tracking the per-direction 3-bit packet counter
// on both sides. Grounded on channel.h/.c.
type Channel struct {
	handler       MessageHandler
	maxPacketSize int

	packetInCounter byte
	messageIn       *MessageIn

	packetOutCounter byte
	messageOut       *MessageOut
}

// New creates a channel over the given message buffers. handler may be nil.
func New(handler MessageHandler, messageInBuf, messageOutBuf *wbuffer.Buffer, maxPacketSize int) *Channel {
	return &Channel{
		handler:       handler,
		maxPacketSize: maxPacketSize,
		messageIn:     NewMessageIn(messageInBuf),
		messageOut:    NewMessageOut(messageOutBuf),
	}
}

// ResetMessages resets the in/out message state but preserves the packet
// counters, for reuse between commands on the same connection.
func (c *Channel) ResetMessages() {
	c.messageIn.Reset()
	c.messageOut.Reset()
}

// Reset resets the packet counters and message state, for reuse between
// connections. max_packet_size is left untouched.
func (c *Channel) Reset() {
	c.packetInCounter = 0
	c.packetOutCounter = 0
	c.ResetMessages()
}

// MaxPacketSize returns the negotiated maximum packet size.
func (c *Channel) MaxPacketSize() int { return c.maxPacketSize }

// SetMaxPacketSize updates the negotiated maximum packet size.
func (c *Channel) SetMaxPacketSize(n int) { c.maxPacketSize = n }

// MessageIn returns the inbound message reassembly state machine.
func (c *Channel) MessageIn() *MessageIn { return c.messageIn }

// MessageOut returns the outbound message fragmentation state machine.
func (c *Channel) MessageOut() *MessageOut { return c.messageOut }

// InState returns the inbound message's current state.
func (c *Channel) InState() State { return c.messageIn.State() }

// OutState returns the outbound message's current state.
func (c *Channel) OutState() State { return c.messageOut.State() }

// AppendPacketIn feeds one raw packet (header byte + payload) into the
// inbound message. A non-OK Status means the channel is now in an undefined
// state and the underlying transport must be reset. Grounded on
// uw_channel_append_packet_in_.
func (c *Channel) AppendPacketIn(packetBuffer *wbuffer.Buffer) status.Status {
	raw := packetBuffer.Bytes()
	if len(raw) == 0 {
		return status.TransportBufferTooSmall
	}
	header := raw[0]
	data := raw[1:]

	counter := Counter(header)
	if counter != c.packetInCounter {
		return status.TransportUnexpectedPacketCounter
	}
	c.packetInCounter = (c.packetInCounter + 1) % 8

	state := c.messageIn.AppendPacket(header, data)
	if state == StateError {
		return status.TransportPacketOutOfSequence
	}

	if state == StateComplete && c.handler != nil {
		return c.handler()
	}
	return status.Success
}

// GetNextPacketOut writes the next fragment of the current outbound message
// into packetBuffer. A non-OK Status means the channel is now in an
// undefined state. Grounded on uw_channel_get_next_packet_out_.
func (c *Channel) GetNextPacketOut(packetBuffer *wbuffer.Buffer) status.Status {
	state := c.messageOut.GetNextPacket(packetBuffer, c.maxPacketSize, c.packetOutCounter)
	c.packetOutCounter = (c.packetOutCounter + 1) % 8
	if state == StateError {
		return status.TransportPacketOutOfSequence
	}
	return status.Success
}
