package packetchannel

import (
	"bytes"
	"testing"

	"github.com/mahmed8003/esp8266-weave-test/pkg/status"
	"github.com/mahmed8003/esp8266-weave-test/pkg/wbuffer"
)

const testMaxPacketSize = 8

func newTestChannel(handler MessageHandler) *Channel {
	inBuf := wbuffer.New(make([]byte, 256))
	outBuf := wbuffer.New(make([]byte, 256))
	return New(handler, inBuf, outBuf, testMaxPacketSize)
}

func splitIntoPackets(t *testing.T, c *Channel, typ Type, payload []byte) [][]byte {
	t.Helper()
	if st := c.MessageOut().Start(typ); !st.OK() {
		t.Fatalf("Start: %v", st)
	}
	if st := c.MessageOut().AppendBytes(payload); !st.OK() {
		t.Fatalf("AppendBytes: %v", st)
	}
	if st := c.MessageOut().Ready(); !st.OK() {
		t.Fatalf("Ready: %v", st)
	}

	var packets [][]byte
	for {
		pktBacking := make([]byte, testMaxPacketSize)
		pktBuf := wbuffer.New(pktBacking)
		if st := c.GetNextPacketOut(pktBuf); !st.OK() {
			t.Fatalf("GetNextPacketOut: %v", st)
		}
		out := make([]byte, pktBuf.Len())
		copy(out, pktBuf.Bytes())
		packets = append(packets, out)
		if c.OutState() == StateComplete {
			break
		}
	}
	return packets
}

func TestChannelRoundTripsFragmentedDataMessage(t *testing.T) {
	sender := newTestChannel(nil)
	payload := []byte("the quick brown fox jumps over the lazy dog")
	packets := splitIntoPackets(t, sender, TypeData, payload)
	if len(packets) < 2 {
		t.Fatalf("expected payload to span multiple packets, got %d", len(packets))
	}

	var reassembled []byte
	var receiver *Channel
	receiver = newTestChannel(func() status.Status {
		body, st := receiver.MessageIn().ReadRemainingBytes()
		if !st.OK() {
			return st
		}
		reassembled = append(reassembled, body.Bytes()...)
		return status.Success
	})

	for _, pkt := range packets {
		buf := wbuffer.NewWithUsed(append([]byte(nil), pkt...), len(pkt))
		if st := receiver.AppendPacketIn(buf); !st.OK() {
			t.Fatalf("AppendPacketIn: %v", st)
		}
	}

	if !bytes.Equal(reassembled, payload) {
		t.Fatalf("reassembled = %q, want %q", reassembled, payload)
	}
	if receiver.InState() != StateComplete {
		t.Fatalf("receiver state = %v, want complete", receiver.InState())
	}
}

func TestChannelRejectsUnexpectedPacketCounter(t *testing.T) {
	c := newTestChannel(nil)
	badHeader := NewDataHeader(true, true, 5)
	raw := []byte{badHeader, 'x'}
	buf := wbuffer.NewWithUsed(raw, len(raw))
	if st := c.AppendPacketIn(buf); st != status.TransportUnexpectedPacketCounter {
		t.Fatalf("AppendPacketIn = %v, want TransportUnexpectedPacketCounter", st)
	}
}

func TestChannelResetClearsCountersAndMessages(t *testing.T) {
	sender := newTestChannel(nil)
	splitIntoPackets(t, sender, TypeData, []byte("hello"))
	if sender.OutState() != StateComplete {
		t.Fatalf("expected complete before reset")
	}

	sender.Reset()
	if sender.OutState() != StateEmpty || sender.InState() != StateEmpty {
		t.Fatalf("Reset did not clear message state")
	}

	packets := splitIntoPackets(t, sender, TypeData, []byte("hi"))
	if Counter(packets[0][0]) != 0 {
		t.Fatalf("Reset did not rewind packet-out counter")
	}
}

func TestChannelControlMessageRoundTrip(t *testing.T) {
	sender := newTestChannel(nil)
	packets := splitIntoPackets(t, sender, TypeConnectionRequest, []byte{0x01, 0x02})
	if len(packets) != 1 {
		t.Fatalf("control message should fit in one packet, got %d", len(packets))
	}

	var gotType Type
	var receiver *Channel
	receiver = newTestChannel(func() status.Status {
		gotType = receiver.MessageIn().Type()
		return status.Success
	})
	buf := wbuffer.NewWithUsed(packets[0], len(packets[0]))
	if st := receiver.AppendPacketIn(buf); !st.OK() {
		t.Fatalf("AppendPacketIn: %v", st)
	}
	if gotType != TypeConnectionRequest {
		t.Fatalf("got type %v, want TypeConnectionRequest", gotType)
	}
}
