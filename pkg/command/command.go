// Package command implements the per-request execution slot dispatched
// commands run in: a fixed-size reply buffer, a small state machine
// (empty/done/error/cancelled/async-in-progress/...), and the helpers
// handlers use to read parameters and produce a Privet-shaped reply.
//
// Grounded on original_source/src/libuweave/include/uweave/command.h and
// src/command.h/.c.
package command

import (
	"errors"

	"github.com/mahmed8003/esp8266-weave-test/pkg/privet"
	"github.com/mahmed8003/esp8266-weave-test/pkg/status"
	"github.com/mahmed8003/esp8266-weave-test/pkg/wbuffer"
	"github.com/mahmed8003/esp8266-weave-test/pkg/wcbor"
)

// State is a command's lifecycle state, ordered by decreasing eviction
// preference: a CommandList prefers to recycle the most "finished" slot
// first. Not the same enumeration as the Privet wire state
// (privet.CommandObjState*); State additionally distinguishes in-flight
// async phases the wire format folds into "in progress"/"queued".
type State int

const (
	StateEmpty           State = iota // no status or results yet
	StateDone                         // completed synchronously
	StateAsyncQueried                 // completed asynchronously and result read
	StateError                        // completed in error
	StateCancelled                    // an asynchronous command was cancelled
	StateAsyncDone                    // completed asynchronously, result not yet read
	StateCancelRequested              // cancellation requested, may still be running
	StateAsyncInProgress              // executing asynchronously
)

// stateCompletedMarker is the boundary: states at or below it are
// "finished" and preferred for eviction/reuse. Declared outside the iota
// block above so it can't shift what the remaining states evaluate to.
const stateCompletedMarker = StateCancelled

// isComplete reports whether s is one of the terminal, already-observed
// states eviction should prefer.
func (s State) isComplete() bool { return s <= stateCompletedMarker }

// ExecuteRequest is the parsed incoming execute call a Command is
// currently bound to. It becomes nil once the command is deferred
// (running asynchronously), since the parser state it references does not
// outlive the request that produced it.
type ExecuteRequest struct {
	Trait       uint32
	Name        uint32
	ParamBuffer *wbuffer.Buffer
	// GrantedRole is the wire-level role of the session that issued this
	// request, used by HasRequiredRole.
	GrantedRole privet.Role
}

// Command is one slot in a CommandList: at most one execute request bound
// to it at a time, plus the reply payload it produces (synchronously or,
// once deferred, from an asynchronous completion).
type Command struct {
	traitID     uint32
	nameID      uint32
	commandID   uint32
	tickStamp   uint32
	request     *ExecuteRequest
	replyBuffer *wbuffer.Buffer
	state       State
}

// newCommand wraps backing as this command's reply buffer. Only called by
// CommandList, which owns the backing allocation.
func newCommand(backing []byte) *Command {
	return &Command{replyBuffer: wbuffer.New(backing)}
}

// IsInitialized reports whether a CommandList has ever assigned this slot
// a command id.
func (c *Command) IsInitialized() bool { return c.commandID > 0 }

// resetWithRequest binds req to this command, clearing any previous reply.
func (c *Command) resetWithRequest(req *ExecuteRequest) {
	c.traitID = req.Trait
	c.nameID = req.Name
	c.request = req
	c.replyBuffer.Reset()
}

func (c *Command) markError() { c.state = StateError }
func (c *Command) markDone()  { c.state = StateDone }

// MarkDone transitions the command to its terminal successful state, once
// its reply has been accepted by the caller. Grounded on
// uw_command_mark_done_, called from device.c's execute dispatch after a
// synchronous reply is written out successfully.
func (c *Command) MarkDone() { c.markDone() }

// MarkError transitions the command to its terminal error state. Grounded
// on uw_command_mark_error_, called from device.c's execute dispatch when
// either the handler or the subsequent reply write fails.
func (c *Command) MarkError() { c.markError() }

// MarkDeferred detaches the (about-to-expire) execute request and marks the
// command as running asynchronously.
func (c *Command) MarkDeferred() {
	c.request = nil
	c.state = StateAsyncInProgress
}

// ID returns the command's unique id, assigned when a CommandList hands it
// out.
func (c *Command) ID() uint32 { return c.commandID }

// State returns the command's current lifecycle state.
func (c *Command) State() State { return c.state }

// Trait returns the trait (namespace) id of the bound request.
func (c *Command) Trait() uint32 { return c.traitID }

// Name returns the command name id of the bound request.
func (c *Command) Name() uint32 { return c.nameID }

// ParamBuffer returns the raw request parameter bytes, or nil if this
// command has no live request (it was deferred, or never assigned one).
func (c *Command) ParamBuffer() *wbuffer.Buffer {
	if c.request == nil {
		return nil
	}
	return c.request.ParamBuffer
}

var errNoLiveRequest = errors.New("command: no live request bound to this command")

// GetParamInt reads an integer-valued parameter by its map key out of the
// bound request's parameters. Grounded on uw_command_get_param_int.
func (c *Command) GetParamInt(key int64) (int64, error) {
	if c.request == nil || c.request.ParamBuffer == nil {
		return 0, errNoLiveRequest
	}
	v, st := wcbor.Decode(c.request.ParamBuffer.Bytes())
	if !st.OK() {
		return 0, st
	}
	m, ok := v.Map()
	if !ok {
		return 0, errors.New("command: parameters are not a map")
	}
	val, found := m.Get(key)
	if !found {
		return 0, errors.New("command: parameter not found")
	}
	if val.Kind != wcbor.KindInt {
		return 0, errors.New("command: parameter is not an integer")
	}
	return val.Int, nil
}

// HasRequiredRole reports whether the session that issued the bound
// request carries at least the given role. Grounded on
// uw_command_has_required_role (which, on failure, is meant to be
// reported as a Privet-level error by the caller).
func (c *Command) HasRequiredRole(min privet.Role) status.Status {
	if c.request == nil {
		return status.InvalidArgument
	}
	if !c.request.GrantedRole.AtLeast(min) {
		return status.InsufficientRole
	}
	return status.Success
}

// setReplyBuffer encodes the Privet command-object shape for the given
// wire state into the reply buffer. Grounded on
// uw_commannd_set_reply_buffer_ (sic, origin's typo preserved only in this
// comment, not the name).
func (c *Command) setReplyBuffer(wireState int, result wcbor.Value, hasResult bool) status.Status {
	var entries wcbor.MapEntries
	switch wireState {
	case privet.CommandObjStateDone:
		entries = append(entries,
			wcbor.MapEntry{Key: privet.CommandObjKeyState, Value: wcbor.Int(int64(wireState))},
			wcbor.MapEntry{Key: privet.CommandObjKeyResult, Value: resultOrEmptyMap(result, hasResult)},
		)
	case privet.CommandObjStateInProgress, privet.CommandObjStateQueued:
		entries = append(entries,
			wcbor.MapEntry{Key: privet.CommandObjKeyState, Value: wcbor.Int(int64(wireState))},
			wcbor.MapEntry{Key: privet.CommandObjKeyCommandID, Value: wcbor.Int(int64(c.commandID))},
		)
	case privet.CommandObjStateError:
		entries = append(entries,
			wcbor.MapEntry{Key: privet.CommandObjKeyState, Value: wcbor.Int(int64(wireState))},
			wcbor.MapEntry{Key: privet.CommandObjKeyError, Value: resultOrEmptyMap(result, hasResult)},
		)
	case privet.CommandObjStateCancelled:
		entries = append(entries,
			wcbor.MapEntry{Key: privet.CommandObjKeyState, Value: wcbor.Int(int64(wireState))},
		)
	default:
		return status.InvalidArgument
	}

	encoded, st := wcbor.Encode(wcbor.MapVal(entries...))
	if !st.OK() {
		return st
	}
	c.replyBuffer.Reset()
	if st := c.replyBuffer.Append(encoded); !st.OK() {
		return status.PrivetResponseTooLarge
	}
	return status.Success
}

func resultOrEmptyMap(v wcbor.Value, has bool) wcbor.Value {
	if has {
		return v
	}
	return wcbor.MapVal()
}

// ReplyWithValue sends an immediate "done" reply carrying results.
func (c *Command) ReplyWithValue(results wcbor.Value) status.Status {
	return c.setReplyBuffer(privet.CommandObjStateDone, results, true)
}

// ReplyEmpty sends an immediate "done" reply with no result payload (an
// empty map).
func (c *Command) ReplyEmpty() status.Status {
	return c.setReplyBuffer(privet.CommandObjStateDone, wcbor.Value{}, false)
}

// ReplyWithError sends an application-level error of an arbitrary shape.
func (c *Command) ReplyWithError(errVal wcbor.Value) status.Status {
	return c.setReplyBuffer(privet.CommandObjStateError, errVal, true)
}

// ReplyWithErrorCode sends an application-level error with a specific
// code/message pair, matching the {code, message} shape of a Privet RPC
// error object.
func (c *Command) ReplyWithErrorCode(code int32, message string) status.Status {
	errVal := wcbor.MapVal(
		wcbor.MapEntry{Key: privet.RPCErrorKeyCode, Value: wcbor.Int(int64(code))},
		wcbor.MapEntry{Key: privet.RPCErrorKeyMessage, Value: wcbor.TextVal(message)},
	)
	return c.ReplyWithError(errVal)
}

// ReplyBytes returns the encoded reply payload written by one of the Reply*
// methods.
func (c *Command) ReplyBytes() []byte {
	return c.replyBuffer.Bytes()
}
