// Package debugapi implements the three commands of the magic "_debug"
// trait: metrics (dump the counter set), traceQuery (report the id range
// currently held), and traceDump (render a slice of the trace log).
//
// These are not top-level Privet API calls; they are dispatched by name
// through /execute the same way an application's own trait commands are,
// distinguished only by arriving on privet.MagicDebugTrait.
//
// Grounded on original_source/src/libuweave/src/debug_request.c.
package debugapi

import (
	"log/slog"

	"github.com/mahmed8003/esp8266-weave-test/pkg/command"
	"github.com/mahmed8003/esp8266-weave-test/pkg/countersset"
	"github.com/mahmed8003/esp8266-weave-test/pkg/privet"
	"github.com/mahmed8003/esp8266-weave-test/pkg/status"
	"github.com/mahmed8003/esp8266-weave-test/pkg/tracelog"
	"github.com/mahmed8003/esp8266-weave-test/pkg/wcbor"
)

// Handler implements the _debug trait's commands.
type Handler struct {
	log      *slog.Logger
	counters *countersset.Set
	trace    *tracelog.Log
}

// New constructs a debugapi Handler.
func New(log *slog.Logger, counters *countersset.Set, trace *tracelog.Log) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, counters: counters, trace: trace}
}

func (h *Handler) metrics(cmd *command.Command) status.Status {
	result := wcbor.MapVal(
		wcbor.MapEntry{Key: privet.DebugResponseKeyMetrics, Value: h.counters.Encode()},
	)
	return cmd.ReplyWithValue(result)
}

func (h *Handler) traceQuery(cmd *command.Command) status.Status {
	min, max := h.trace.GetRange()
	bounds := wcbor.MapVal(
		wcbor.MapEntry{Key: privet.DebugQueryResultKeyFirst, Value: wcbor.Int(int64(min))},
		wcbor.MapEntry{Key: privet.DebugQueryResultKeyLast, Value: wcbor.Int(int64(max))},
	)
	result := wcbor.MapVal(
		wcbor.MapEntry{Key: privet.DebugResponseKeyTraceQueryResult, Value: bounds},
	)
	return cmd.ReplyWithValue(result)
}

// traceDump parameters nest a sub-map under DebugKeyTraceDumpParameters,
// so this reads directly off the command's param buffer rather than
// through Command.GetParamInt (which only looks up top-level keys).
// Grounded on encode_trace_dump_.
func (h *Handler) traceDump(cmd *command.Command) status.Status {
	buf := cmd.ParamBuffer()
	if buf == nil {
		return status.InvalidArgument
	}
	v, st := wcbor.Decode(buf.Bytes())
	if !st.OK() {
		return status.InvalidArgument
	}
	params, ok := v.Map()
	if !ok {
		return status.InvalidArgument
	}
	dumpParams, ok := params.Get(privet.DebugKeyTraceDumpParameters)
	if !ok {
		return status.InvalidArgument
	}
	dumpParamsMap, ok := dumpParams.Map()
	if !ok {
		return status.InvalidArgument
	}
	start, hasStart := dumpParamsMap.Get(privet.DebugTraceDumpKeyStart)
	end, hasEnd := dumpParamsMap.Get(privet.DebugTraceDumpKeyEnd)
	if !hasStart || !hasEnd || start.Kind != wcbor.KindInt || end.Kind != wcbor.KindInt {
		return status.InvalidArgument
	}

	dump := h.trace.Encode(uint32(start.Int), uint32(end.Int))
	dumpResult := wcbor.MapVal(
		wcbor.MapEntry{Key: privet.DebugTraceDumpResultKeyDump, Value: dump},
	)
	result := wcbor.MapVal(
		wcbor.MapEntry{Key: privet.DebugResponseKeyTraceDumpResult, Value: dumpResult},
	)
	return cmd.ReplyWithValue(result)
}

// HandleCommand dispatches by command name. Grounded on
// uw_debug_command_request_.
func (h *Handler) HandleCommand(cmd *command.Command) status.Status {
	switch cmd.Name() {
	case privet.DebugNameMetrics:
		return h.metrics(cmd)
	case privet.DebugNameTraceQuery:
		return h.traceQuery(cmd)
	case privet.DebugNameTraceDump:
		return h.traceDump(cmd)
	default:
		return status.InvalidArgument
	}
}
