package dispatch

import (
	"log/slog"

	"github.com/mahmed8003/esp8266-weave-test/pkg/status"
	"github.com/mahmed8003/esp8266-weave-test/pkg/wbuffer"
)

// Handler services one parsed Request, replying via Reply/ReplyError before
// returning. Returning a non-success Status without having already replied
// causes Dispatcher to synthesize an error reply from it.
type Handler func(req *Request) status.Status

// Dispatcher routes a decoded Privet envelope to the Handler registered for
// its api_id. Grounded on the routing table device.c builds over
// uw_*_request_handler_ functions, expressed here as a Go map instead of a
// switch so built-in and application-defined APIs share one registration
// path.
type Dispatcher struct {
	log      *slog.Logger
	handlers map[APIID]Handler
}

// New creates an empty Dispatcher.
func New(log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{log: log, handlers: make(map[APIID]Handler)}
}

// Handle registers handler for id, overwriting any previous registration.
func (d *Dispatcher) Handle(id APIID, handler Handler) {
	d.handlers[id] = handler
}

// Dispatch parses requestBytes as a Privet envelope, routes it to the
// registered handler, and writes the encoded reply into replyBuffer.
// Returns the envelope-parse status; a handler-level failure is instead
// folded into the encoded error reply so the caller always has wire bytes
// to send back (when a request id was present).
func (d *Dispatcher) Dispatch(requestBytes []byte, replyBuffer *wbuffer.Buffer, sess *Session) status.Status {
	req := &Request{session: sess, replyBuffer: replyBuffer}
	if st := parseEnvelope(req, requestBytes); !st.OK() {
		d.log.Warn("dispatch: envelope parse failed", "status", st)
		return st
	}

	handler, ok := d.handlers[req.apiID]
	if !ok {
		d.log.Warn("dispatch: no handler for api", "api_id", req.apiID)
		req.ReplyError(status.PrivetNotFound, "unknown api_id")
		return status.Success
	}

	st := handler(req)
	if !st.OK() && !req.hasReply {
		req.ReplyError(st, "")
	}
	return status.Success
}
