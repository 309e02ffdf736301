// Package devicechannel implements the outer connection handshake layered
// over pkg/packetchannel: negotiating protocol version and max packet size,
// then handing the connection-request payload to an inner handshake
// (typically encryption session setup) before the channel is considered
// connected. Grounded on device_channel.h/.c.
package devicechannel

import (
	"log/slog"

	"github.com/mahmed8003/esp8266-weave-test/pkg/packetchannel"
	"github.com/mahmed8003/esp8266-weave-test/pkg/status"
	"github.com/mahmed8003/esp8266-weave-test/pkg/wbuffer"
)

// MinSupportedVersion is the only connection protocol version this device
// core accepts; connection requests must carry it as their advertised
// minimum.
const MinSupportedVersion = 1

// MinMaxPacketSize is the smallest max_packet_size a peer may request.
const MinMaxPacketSize = 20

// HandshakeHandler performs the inner handshake (session establishment) once
// the outer version/packet-size negotiation has succeeded. It reads
// request's payload and, on success, writes its own reply payload directly
// into reply (which has already had the version/packet-size fields
// appended) and returns true. Returning false fails the whole connection
// attempt and the client is sent a control Error message instead.
type HandshakeHandler func(request *wbuffer.Buffer, reply *packetchannel.MessageOut) bool

// ResetHandler is invoked whenever a session is torn down, either by an
// explicit Reset or by a fresh connection request superseding an
// established one.
type ResetHandler func()

// Channel layers the connection handshake and packet-size negotiation over
// a packetchannel.Channel.
type Channel struct {
	log *slog.Logger

	handshake HandshakeHandler
	onReset   ResetHandler

	channel *packetchannel.Channel

	// didConnectionRequest is true once a connection request has been
	// accepted by the handshake handler.
	didConnectionRequest bool
}

// New wires a device channel over the given message buffers.
func New(log *slog.Logger, handshake HandshakeHandler, onReset ResetHandler, messageInBuf, messageOutBuf *wbuffer.Buffer, maxPacketSize int) *Channel {
	if log == nil {
		log = slog.Default()
	}
	dc := &Channel{log: log, handshake: handshake, onReset: onReset}
	dc.channel = packetchannel.New(dc.handleMessageIn, messageInBuf, messageOutBuf, maxPacketSize)
	return dc
}

// Channel returns the underlying packet channel, for the transport layer to
// push packets into via AppendPacketIn and pull packets out of via
// GetNextPacketOut.
func (dc *Channel) Channel() *packetchannel.Channel { return dc.channel }

func (dc *Channel) sessionReset() {
	dc.didConnectionRequest = false
	if dc.onReset != nil {
		dc.onReset()
	}
}

// Reset tears down any established session and clears packet-level state,
// for use when the underlying transport link itself is dropped.
func (dc *Channel) Reset() {
	dc.sessionReset()
	dc.channel.Reset()
}

// CompleteExchange resets the message buffers (not the packet counters or
// session) once a request/reply exchange has finished.
func (dc *Channel) CompleteExchange() {
	dc.channel.ResetMessages()
}

// IsConnected reports whether a connection request has been accepted and
// neither direction of the packet channel has faulted.
func (dc *Channel) IsConnected() bool {
	return dc.didConnectionRequest &&
		dc.channel.InState() != packetchannel.StateError &&
		dc.channel.OutState() != packetchannel.StateError
}

func (dc *Channel) handleMessageIn() status.Status {
	switch dc.channel.MessageIn().Type() {
	case packetchannel.TypeData:
		if !dc.didConnectionRequest {
			dc.log.Warn("data packet before connection request")
			return status.TransportPacketOutOfSequence
		}
		// Data messages are handled by the caller once AppendPacketIn
		// returns, via MessageIn().
		return status.Success

	case packetchannel.TypeConnectionRequest:
		if dc.didConnectionRequest {
			dc.log.Info("resetting open session for new connection request")
			dc.sessionReset()
		}
		return dc.handleConnectionRequest()

	case packetchannel.TypeConnectionConfirm:
		dc.log.Error("unexpected connection confirm packet")
		return status.TransportPacketOutOfSequence

	case packetchannel.TypeError:
		dc.log.Error("received connection error control packet")
		return status.TransportPacketOutOfSequence

	default:
		dc.log.Error("received unknown control packet")
		return status.TransportPacketOutOfSequence
	}
}

func (dc *Channel) handleConnectionRequest() status.Status {
	in := dc.channel.MessageIn()

	minVersion, st := in.ReadUint16()
	if !st.OK() || minVersion != MinSupportedVersion {
		dc.log.Warn("invalid minimum version in connection request", "min_version", minVersion)
		if st := dc.channel.MessageOut().Start(packetchannel.TypeError); !st.OK() {
			return st
		}
		return dc.channel.MessageOut().Ready()
	}

	maxVersion, st := in.ReadUint16()
	if !st.OK() {
		dc.log.Warn("missing max_version in connection request")
		return status.TransportPacketOutOfSequence
	}
	_ = maxVersion

	requestedMaxPacketSize, st := in.ReadUint16()
	if !st.OK() || requestedMaxPacketSize < MinMaxPacketSize {
		dc.log.Warn("invalid max_packet_size in connection request", "max_packet_size", requestedMaxPacketSize)
		if st := dc.channel.MessageOut().Start(packetchannel.TypeError); !st.OK() {
			return st
		}
		return dc.channel.MessageOut().Ready()
	}

	negotiatedMaxPacketSize := requestedMaxPacketSize
	if int(requestedMaxPacketSize) < dc.channel.MaxPacketSize() {
		dc.channel.SetMaxPacketSize(int(requestedMaxPacketSize))
	} else {
		negotiatedMaxPacketSize = uint16(dc.channel.MaxPacketSize())
	}

	out := dc.channel.MessageOut()
	if st := out.Start(packetchannel.TypeConnectionConfirm); !st.OK() {
		return st
	}
	if st := out.AppendUint16(MinSupportedVersion); !st.OK() {
		return st
	}
	if st := out.AppendUint16(negotiatedMaxPacketSize); !st.OK() {
		return st
	}

	requestData, st := in.ReadRemainingBytes()
	if !st.OK() {
		return st
	}

	handshakeOK := false
	if dc.handshake != nil {
		handshakeOK = dc.handshake(requestData, out)
	}

	if !handshakeOK {
		dc.log.Warn("connection handshake failed")
		if st := out.Discard(); !st.OK() {
			return st
		}
		if st := out.Start(packetchannel.TypeError); !st.OK() {
			return st
		}
	}

	if st := out.Ready(); !st.OK() {
		return st
	}

	// TODO: distinguish a channel that attempted and failed the handshake
	// from one that never tried, so a caller can tell "bad credentials"
	// from "still waiting for a request".
	dc.didConnectionRequest = handshakeOK

	return status.Success
}
