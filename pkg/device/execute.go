package device

import (
	"github.com/mahmed8003/esp8266-weave-test/pkg/command"
	"github.com/mahmed8003/esp8266-weave-test/pkg/dispatch"
	"github.com/mahmed8003/esp8266-weave-test/pkg/privet"
	"github.com/mahmed8003/esp8266-weave-test/pkg/status"
	"github.com/mahmed8003/esp8266-weave-test/pkg/wbuffer"
	"github.com/mahmed8003/esp8266-weave-test/pkg/wcbor"
)

// ExecuteHandler runs one application trait command bound to cmd, filling
// in its reply with one of Command's Reply* methods (or MarkDeferred, for
// an asynchronous command). Every trait command except the magic debug
// trait (handled internally) is routed here.
type ExecuteHandler func(cmd *command.Command) status.Status

// handleExecute services /execute. Grounded on the APIIDExecute case of
// uw_device_dispatch_request_: parse {trait, name, param}, require a secure
// connection, route the debug trait to the internal debug handler and every
// other trait to the application handler, then turn its reply into the
// Privet envelope and mark it done or error.
func (d *Device) handleExecute(req *dispatch.Request) status.Status {
	trait, name, paramBytes, st := parseExecuteParams(req.Params())
	if !st.OK() {
		return req.ReplyError(st, "malformed execute request")
	}

	cmd := d.commands.GetFreeOrEvict()
	if cmd == nil {
		return req.ReplyError(status.CommandNoAvailableBuffers, "no command slots available")
	}

	var paramBuffer *wbuffer.Buffer
	if len(paramBytes) > 0 {
		paramBuffer = wbuffer.NewWithUsed(paramBytes, len(paramBytes))
	}
	d.commands.Bind(cmd, &command.ExecuteRequest{
		Trait:       trait,
		Name:        name,
		ParamBuffer: paramBuffer,
		GrantedRole: req.Session().Role(),
	})

	isDebug := trait == privet.MagicDebugTrait
	if st := req.RequireSecure(); !st.OK() {
		return st
	}

	var handlerStatus status.Status
	if isDebug {
		handlerStatus = d.debug.HandleCommand(cmd)
	} else if d.config.ExecuteHandler != nil {
		handlerStatus = d.config.ExecuteHandler(cmd)
	} else {
		handlerStatus = status.CommandNotFound
	}

	if !handlerStatus.OK() {
		cmd.MarkError()
		return req.ReplyError(handlerStatus, "execute handler failed")
	}

	if cmd.State() != command.StateAsyncInProgress {
		replyValue, decodeSt := wcbor.Decode(cmd.ReplyBytes())
		if !decodeSt.OK() {
			cmd.MarkError()
			return req.ReplyError(decodeSt, "malformed command reply")
		}
		if st := req.Reply(replyValue); !st.OK() {
			cmd.MarkError()
			return st
		}
		cmd.MarkDone()
	}
	return status.Success
}

// parseExecuteParams decodes the {trait, name, param} map carried as
// /execute's request parameter. Grounded on uw_execute_request_init_.
func parseExecuteParams(raw []byte) (trait, name uint32, param []byte, st status.Status) {
	v, decodeSt := wcbor.Decode(raw)
	if !decodeSt.OK() {
		return 0, 0, nil, decodeSt
	}
	entries, ok := v.Map()
	if !ok {
		return 0, 0, nil, status.PrivetParseError
	}
	traitVal, ok := entries.Get(privet.ExecuteKeyTrait)
	if !ok || traitVal.Kind != wcbor.KindInt {
		return 0, 0, nil, status.PrivetInvalidParam
	}
	nameVal, ok := entries.Get(privet.ExecuteKeyName)
	if !ok || nameVal.Kind != wcbor.KindInt {
		return 0, 0, nil, status.PrivetInvalidParam
	}
	if paramVal, ok := entries.Get(privet.ExecuteKeyParam); ok && paramVal.Kind == wcbor.KindBytes {
		param = paramVal.Bytes
	}
	return uint32(traitVal.Int), uint32(nameVal.Int), param, status.Success
}
