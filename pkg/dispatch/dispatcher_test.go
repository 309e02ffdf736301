package dispatch

import (
	"testing"

	"github.com/mahmed8003/esp8266-weave-test/pkg/privet"
	"github.com/mahmed8003/esp8266-weave-test/pkg/status"
	"github.com/mahmed8003/esp8266-weave-test/pkg/wbuffer"
	"github.com/mahmed8003/esp8266-weave-test/pkg/wcbor"
)

func encodeRequest(t *testing.T, apiID APIID, requestID int64, params wcbor.Value, hasParams bool) []byte {
	t.Helper()
	entries := wcbor.MapEntries{
		{Key: privet.RPCKeyVersion, Value: wcbor.Int(privet.RPCValueVersion)},
		{Key: privet.RPCKeyAPIID, Value: wcbor.Int(int64(apiID))},
		{Key: privet.RPCKeyRequestID, Value: wcbor.Int(requestID)},
	}
	if hasParams {
		entries = append(entries, wcbor.MapEntry{Key: privet.RPCKeyParams, Value: params})
	}
	out, st := wcbor.Encode(wcbor.MapVal(entries...))
	if !st.OK() {
		t.Fatalf("encode request: %v", st)
	}
	return out
}

func decodeReply(t *testing.T, raw []byte) wcbor.MapEntries {
	t.Helper()
	v, st := wcbor.Decode(raw)
	if !st.OK() {
		t.Fatalf("decode reply: %v", st)
	}
	m, ok := v.Map()
	if !ok {
		t.Fatalf("reply is not a map")
	}
	return m
}

func TestDispatchRoutesToRegisteredHandler(t *testing.T) {
	d := New(nil)
	var gotAPIID APIID
	d.Handle(APIIDInfo, func(req *Request) status.Status {
		gotAPIID = req.APIID()
		return req.Reply(wcbor.MapVal(wcbor.MapEntry{Key: 0, Value: wcbor.Int(3)}))
	})

	raw := encodeRequest(t, APIIDInfo, 7, wcbor.Value{}, false)
	reply := wbuffer.New(make([]byte, 256))
	sess := NewSession(nil)
	if st := d.Dispatch(raw, reply, sess); !st.OK() {
		t.Fatalf("Dispatch: %v", st)
	}
	if gotAPIID != APIIDInfo {
		t.Fatalf("handler did not see APIIDInfo")
	}

	m := decodeReply(t, reply.Bytes())
	reqID, ok := m.Get(privet.RPCKeyRequestID)
	if !ok || reqID.Int != 7 {
		t.Fatalf("expected request_id=7, got %+v", reqID)
	}
	if _, ok := m.Get(privet.RPCKeyResult); !ok {
		t.Fatalf("expected a result field")
	}
}

func TestDispatchUnknownAPIRepliesNotFound(t *testing.T) {
	d := New(nil)
	raw := encodeRequest(t, APIID(999), 1, wcbor.Value{}, false)
	reply := wbuffer.New(make([]byte, 256))
	if st := d.Dispatch(raw, reply, NewSession(nil)); !st.OK() {
		t.Fatalf("Dispatch: %v", st)
	}

	m := decodeReply(t, reply.Bytes())
	errVal, ok := m.Get(privet.RPCKeyError)
	if !ok {
		t.Fatalf("expected an error field")
	}
	errEntries, _ := errVal.Map()
	code, _ := errEntries.Get(privet.RPCErrorKeyCode)
	if code.Int != int64(status.PrivetNotFound) {
		t.Fatalf("expected PrivetNotFound, got %+v", code)
	}
}

func TestDispatchHandlerFailureWithoutReplySynthesizesError(t *testing.T) {
	d := New(nil)
	d.Handle(APIIDAuth, func(req *Request) status.Status {
		return status.EncryptionRequired
	})

	raw := encodeRequest(t, APIIDAuth, 2, wcbor.Value{}, false)
	reply := wbuffer.New(make([]byte, 256))
	if st := d.Dispatch(raw, reply, NewSession(nil)); !st.OK() {
		t.Fatalf("Dispatch: %v", st)
	}

	m := decodeReply(t, reply.Bytes())
	errVal, ok := m.Get(privet.RPCKeyError)
	if !ok {
		t.Fatalf("expected an error field")
	}
	errEntries, _ := errVal.Map()
	code, _ := errEntries.Get(privet.RPCErrorKeyCode)
	if code.Int != int64(status.EncryptionRequired) {
		t.Fatalf("expected EncryptionRequired, got %+v", code)
	}
}

func TestDispatchMalformedEnvelopeIsRejected(t *testing.T) {
	d := New(nil)
	reply := wbuffer.New(make([]byte, 256))
	if st := d.Dispatch([]byte{0xff}, reply, NewSession(nil)); st.OK() {
		t.Fatalf("expected a parse failure status")
	}
}

func TestRequireSecureAndRequireRole(t *testing.T) {
	d := New(nil)
	d.Handle(APIIDSetup, func(req *Request) status.Status {
		if st := req.RequireRole(privet.RoleOwner); !st.OK() {
			return st
		}
		return req.Reply(wcbor.MapVal())
	})

	raw := encodeRequest(t, APIIDSetup, 9, wcbor.Value{}, false)
	reply := wbuffer.New(make([]byte, 256))
	sess := NewSession(nil)
	if st := d.Dispatch(raw, reply, sess); !st.OK() {
		t.Fatalf("Dispatch: %v", st)
	}
	m := decodeReply(t, reply.Bytes())
	if _, ok := m.Get(privet.RPCKeyError); !ok {
		t.Fatalf("expected unauthorized role to error, got %+v", m)
	}

	sess.SetRole(privet.RoleOwner)
	reply2 := wbuffer.New(make([]byte, 256))
	if st := d.Dispatch(raw, reply2, sess); !st.OK() {
		t.Fatalf("Dispatch: %v", st)
	}
	m2 := decodeReply(t, reply2.Bytes())
	if _, ok := m2.Get(privet.RPCKeyResult); !ok {
		t.Fatalf("expected owner role to succeed, got %+v", m2)
	}
}
