package dispatch

import (
	"github.com/mahmed8003/esp8266-weave-test/pkg/privet"
	"github.com/mahmed8003/esp8266-weave-test/pkg/status"
	"github.com/mahmed8003/esp8266-weave-test/pkg/wbuffer"
	"github.com/mahmed8003/esp8266-weave-test/pkg/wcbor"
)

// APIID identifies a top-level Privet call. Grounded on
// UwPrivetRequestApiId in privet_request.h.
type APIID int32

const (
	APIIDUnknown              APIID = -1
	APIIDInfo                 APIID = 0
	APIIDPairingStart         APIID = 2
	APIIDPairingConfirm       APIID = 3
	APIIDAuth                 APIID = 5
	APIIDState                APIID = 6
	APIIDExecute              APIID = 8
	APIIDSetup                APIID = 9
	APIIDAccessControlClaim   APIID = 24
	APIIDAccessControlConfirm APIID = 25
	APIIDDebug                APIID = 29
)

// Request is one parsed RPC call: the decoded envelope plus a reply buffer
// a Handler fills in via Reply/ReplyError. Grounded on UwPrivetRequest.
type Request struct {
	session *Session

	replyBuffer *wbuffer.Buffer

	version       int64
	apiID         APIID
	requestID     int64
	hasRequestID  bool
	paramBuffer   []byte
	parseCalled   bool
	hasReply      bool
}

// Session returns the connection state this request was issued under.
func (r *Request) Session() *Session { return r.session }

// APIID returns the call being dispatched.
func (r *Request) APIID() APIID { return r.apiID }

// Params returns the raw CBOR bytes of the call's params sub-map, or nil if
// none were sent.
func (r *Request) Params() []byte { return r.paramBuffer }

// HasReply reports whether Reply/ReplyError has already been called.
func (r *Request) HasReply() bool { return r.hasReply }

// RequireSecure fails the request with EncryptionRequired unless the
// session is under an established encrypted session. Grounded on
// uw_privet_request_is_secure used as a guard at the top of several
// handlers (auth_request.c, access_control_request.c).
func (r *Request) RequireSecure() status.Status {
	if !r.session.IsSecure() {
		return status.EncryptionRequired
	}
	return status.Success
}

// RequireRole fails the request (writing a Privet error reply) unless the
// session's role satisfies min. Grounded on
// uw_privet_request_has_required_role_or_reply_error_.
func (r *Request) RequireRole(min privet.Role) status.Status {
	st := r.session.RoleAtLeast(min)
	if !st.OK() {
		r.ReplyError(st, "")
	}
	return st
}

// parseEnvelope decodes the {version, api_id, request_id, params} request
// envelope out of raw. Grounded on uw_privet_request_parse_.
func parseEnvelope(r *Request, raw []byte) status.Status {
	if r.parseCalled {
		return status.PrivetParseError
	}
	r.parseCalled = true

	v, st := wcbor.Decode(raw)
	if !st.OK() {
		return st
	}
	entries, ok := v.Map()
	if !ok {
		return status.PrivetParseError
	}

	if version, ok := entries.Get(privet.RPCKeyVersion); ok && version.Kind == wcbor.KindInt {
		r.version = version.Int
	} else {
		r.version = privet.RPCValueVersion
	}

	if reqID, ok := entries.Get(privet.RPCKeyRequestID); ok && reqID.Kind == wcbor.KindInt {
		r.requestID = reqID.Int
		r.hasRequestID = true
	}

	apiID, ok := entries.Get(privet.RPCKeyAPIID)
	if !ok || apiID.Kind != wcbor.KindInt {
		return status.PrivetParseError
	}
	r.apiID = APIID(apiID.Int)

	if params, ok := entries.Get(privet.RPCKeyParams); ok && params.Kind == wcbor.KindMap {
		encoded, st := wcbor.Encode(params)
		if !st.OK() {
			return st
		}
		r.paramBuffer = encoded
	}

	return status.Success
}

// reply encodes {request_id, result|error} into the reply buffer. Grounded
// on uw_privet_request_reply_.
func (r *Request) reply(isSuccess bool, payload wcbor.Value) status.Status {
	if !r.parseCalled || !r.hasRequestID {
		return status.PrivetParseError
	}
	if r.hasReply {
		return status.PrivetParseError
	}

	key := int64(privet.RPCKeyResult)
	if !isSuccess {
		key = privet.RPCKeyError
	}
	envelope := wcbor.MapVal(
		wcbor.MapEntry{Key: privet.RPCKeyRequestID, Value: wcbor.Int(r.requestID)},
		wcbor.MapEntry{Key: key, Value: payload},
	)

	encoded, st := wcbor.Encode(envelope)
	if !st.OK() {
		return st
	}
	r.replyBuffer.Reset()
	if st := r.replyBuffer.Append(encoded); !st.OK() {
		return status.PrivetResponseTooLarge
	}
	r.hasReply = true
	return status.Success
}

// Reply sends a successful reply carrying result.
func (r *Request) Reply(result wcbor.Value) status.Status {
	return r.reply(true, result)
}

// ReplyError sends an error reply. An empty message omits the message
// field, matching uw_privet_request_reply_privet_error_'s optional message.
func (r *Request) ReplyError(code status.Status, message string) status.Status {
	var entries wcbor.MapEntries
	entries = append(entries, wcbor.MapEntry{Key: privet.RPCErrorKeyCode, Value: wcbor.Int(int64(code))})
	if message != "" {
		entries = append(entries, wcbor.MapEntry{Key: privet.RPCErrorKeyMessage, Value: wcbor.TextVal(message)})
	}
	return r.reply(false, wcbor.MapVal(entries...))
}

// ReplyBytes returns the encoded reply envelope.
func (r *Request) ReplyBytes() []byte {
	return r.replyBuffer.Bytes()
}
