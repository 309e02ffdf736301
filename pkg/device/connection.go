package device

import (
	"log/slog"

	"github.com/mahmed8003/esp8266-weave-test/pkg/devicechannel"
	"github.com/mahmed8003/esp8266-weave-test/pkg/dispatch"
	"github.com/mahmed8003/esp8266-weave-test/pkg/packetchannel"
	"github.com/mahmed8003/esp8266-weave-test/pkg/session"
	"github.com/mahmed8003/esp8266-weave-test/pkg/status"
	"github.com/mahmed8003/esp8266-weave-test/pkg/wbuffer"
)

// Connection is one transport-level link's worth of state: the outer
// connection handshake and packet reassembly (pkg/devicechannel), the
// encryption session it negotiates into (pkg/session), and the Privet
// session role/validity tracked across calls (pkg/dispatch.Session). A
// Device can have as many Connections live as its transport supports
// concurrently (e.g. one per BLE central).
//
// Grounded on device_channel.c/.h and channel_encryption.c/.h, layered the
// way device.c's single-connection assumption implies without a named
// "connection" type of its own — this port makes that implicit unit
// explicit so a transport can host more than one.
type Connection struct {
	log    *slog.Logger
	device *Device

	channel *devicechannel.Channel
	crypto  *session.State
	session *dispatch.Session
}

// NewConnection allocates a fresh connection over caller-owned message
// buffers, wired to device's identity, dispatcher, and command list.
// messageInBuf/messageOutBuf must each be at least Config.MaxMessageSize
// bytes, sized independently of the transport's packet size.
func (d *Device) NewConnection(messageInBuf, messageOutBuf []byte) *Connection {
	crypto := session.New(d.log, session.RoleDevice)
	c := &Connection{
		log:     d.log,
		device:  d,
		crypto:  crypto,
		session: dispatch.NewSession(crypto),
	}
	c.channel = devicechannel.New(
		d.log,
		c.handshake,
		c.onReset,
		wbuffer.New(messageInBuf),
		wbuffer.New(messageOutBuf),
		d.config.MaxPacketSize,
	)
	return c
}

// handshake bridges devicechannel's inner-handshake callback to the
// encryption session's own handshake step.
func (c *Connection) handshake(request *wbuffer.Buffer, reply *packetchannel.MessageOut) bool {
	if err := c.crypto.Init(request.Bytes(), reply.Buffer()); err != nil {
		c.log.Warn("connection handshake failed", "error", err)
		return false
	}
	c.session.StartValid()
	return true
}

func (c *Connection) onReset() {
	c.session.Invalidate()
}

// AppendPacketIn feeds one raw transport packet into the connection. Once a
// full inbound message is reassembled, a data message runs through the
// decrypt/dispatch/encrypt pipeline in place, leaving its reply (if any)
// ready to be drained by GetNextPacketOut; a control message's own reply
// (e.g. a connection confirm) is queued the same way by devicechannel
// itself. Grounded on the caller-side contract devicechannel.Channel
// documents for its packetchannel.TypeData case.
func (c *Connection) AppendPacketIn(packetBuffer *wbuffer.Buffer) status.Status {
	inner := c.channel.Channel()
	if st := inner.AppendPacketIn(packetBuffer); !st.OK() {
		return st
	}

	in := inner.MessageIn()
	if in.Type() != packetchannel.TypeData || in.State() != packetchannel.StateComplete {
		return status.Success
	}
	return c.dispatchDataMessage()
}

// dispatchDataMessage decrypts a completed inbound data message, routes it
// through the device's dispatcher, encrypts the reply in place, and starts
// the outbound data message carrying it.
func (c *Connection) dispatchDataMessage() status.Status {
	inner := c.channel.Channel()
	in := inner.MessageIn()
	out := inner.MessageOut()

	if st := c.crypto.ProcessIn(c.device.identity, in.Buffer(), out.Buffer()); !st.OK() {
		return st
	}

	requestBytes := in.Buffer().Bytes()
	if len(requestBytes) == 0 {
		// A handshake-only message (e.g. the SAT' exchange) carries no
		// Privet call; whatever ProcessIn already wrote into out, if
		// anything, is this message's whole reply.
		return c.finishReply(out.Buffer())
	}

	out.Buffer().Reset()
	c.device.dispatcher.Dispatch(requestBytes, out.Buffer(), c.session)
	return c.finishReply(out.Buffer())
}

// finishReply seals replyBuffer under the session's crypto (a no-op in
// pass-through mode) and starts the outbound data message carrying it.
// replyBuffer must be the connection's own MessageOut buffer: ProcessOut
// seals it in place, and Start requires that buffer empty before a new
// message can begin, so the sealed bytes are saved off and re-appended
// after the reset.
func (c *Connection) finishReply(replyBuffer *wbuffer.Buffer) status.Status {
	if st := c.crypto.ProcessOut(replyBuffer); !st.OK() {
		return st
	}

	sealed := append([]byte(nil), replyBuffer.Bytes()...)
	replyBuffer.Reset()

	out := c.channel.Channel().MessageOut()
	if st := out.Start(packetchannel.TypeData); !st.OK() {
		return st
	}
	if st := out.AppendBytes(sealed); !st.OK() {
		return st
	}
	return out.Ready()
}

// GetNextPacketOut drains the next outbound packet fragment, for the
// transport to send. Grounded on uw_channel_get_next_packet_out_.
func (c *Connection) GetNextPacketOut(packetBuffer *wbuffer.Buffer) status.Status {
	return c.channel.Channel().GetNextPacketOut(packetBuffer)
}

// CompleteExchange clears the message buffers once a request/reply round
// trip has been fully drained, readying the connection for the next one.
func (c *Connection) CompleteExchange() {
	c.channel.CompleteExchange()
}

// IsConnected reports whether the outer handshake has completed and
// neither packet direction has faulted.
func (c *Connection) IsConnected() bool {
	return c.channel.IsConnected()
}

// Reset tears the connection down, as when the underlying transport link
// itself drops.
func (c *Connection) Reset() {
	c.channel.Reset()
}
