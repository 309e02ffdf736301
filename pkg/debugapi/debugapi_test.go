package debugapi

import (
	"testing"
	"time"

	"github.com/mahmed8003/esp8266-weave-test/pkg/command"
	"github.com/mahmed8003/esp8266-weave-test/pkg/countersset"
	"github.com/mahmed8003/esp8266-weave-test/pkg/privet"
	"github.com/mahmed8003/esp8266-weave-test/pkg/status"
	"github.com/mahmed8003/esp8266-weave-test/pkg/tracelog"
	"github.com/mahmed8003/esp8266-weave-test/pkg/wbuffer"
	"github.com/mahmed8003/esp8266-weave-test/pkg/wcbor"
)

type memStore struct{ data map[string][]byte }

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }
func (m *memStore) Get(name string) ([]byte, bool, error) {
	v, ok := m.data[name]
	return v, ok, nil
}
func (m *memStore) Put(name string, data []byte) error {
	m.data[name] = append([]byte(nil), data...)
	return nil
}

func newFixtures(t *testing.T) (*Handler, *tracelog.Log) {
	t.Helper()
	counters := countersset.New(newMemStore(), 1, nil, func() time.Time { return time.Unix(1700000000, 0) })
	trace := tracelog.New(func() int64 { return 1700000000 })
	return New(nil, counters, trace), trace
}

func newCommand(t *testing.T, name uint32, paramsCBOR []byte) *command.Command {
	t.Helper()
	list := command.NewList(1, 512, nil)
	cmd := list.GetFreeOrEvict()
	if cmd == nil {
		t.Fatalf("expected a free command slot")
	}
	buf := wbuffer.NewWithUsed(paramsCBOR, len(paramsCBOR))
	list.Bind(cmd, &command.ExecuteRequest{
		Trait:       uint32(privet.MagicDebugTrait),
		Name:        name,
		ParamBuffer: buf,
	})
	return cmd
}

func decodeReply(t *testing.T, raw []byte) wcbor.MapEntries {
	t.Helper()
	v, st := wcbor.Decode(raw)
	if !st.OK() {
		t.Fatalf("decode: %v", st)
	}
	m, ok := v.Map()
	if !ok {
		t.Fatalf("reply is not a map")
	}
	return m
}

func TestMetricsReportsCounterSnapshot(t *testing.T) {
	h, _ := newFixtures(t)
	cmd := newCommand(t, privet.DebugNameMetrics, nil)

	if st := h.HandleCommand(cmd); !st.OK() {
		t.Fatalf("HandleCommand: %v", st)
	}

	reply := decodeReply(t, cmd.ReplyBytes())
	result, ok := reply.Get(privet.CommandObjKeyResult)
	if !ok {
		t.Fatalf("expected a result, got %+v", reply)
	}
	resultMap, _ := result.Map()
	if _, ok := resultMap.Get(privet.DebugResponseKeyMetrics); !ok {
		t.Fatalf("expected a metrics entry, got %+v", resultMap)
	}
}

func TestTraceQueryReportsRange(t *testing.T) {
	h, trace := newFixtures(t)
	trace.AppendCallBegin(1)
	trace.AppendCallBegin(2)
	cmd := newCommand(t, privet.DebugNameTraceQuery, nil)

	if st := h.HandleCommand(cmd); !st.OK() {
		t.Fatalf("HandleCommand: %v", st)
	}

	reply := decodeReply(t, cmd.ReplyBytes())
	result, _ := reply.Get(privet.CommandObjKeyResult)
	resultMap, _ := result.Map()
	queryResult, ok := resultMap.Get(privet.DebugResponseKeyTraceQueryResult)
	if !ok {
		t.Fatalf("expected a traceQuery result, got %+v", resultMap)
	}
	bounds, _ := queryResult.Map()
	first, _ := bounds.Get(privet.DebugQueryResultKeyFirst)
	last, _ := bounds.Get(privet.DebugQueryResultKeyLast)
	if first.Int != 0 || last.Int != 1 {
		t.Fatalf("expected range (0, 1), got (%d, %d)", first.Int, last.Int)
	}
}

func TestTraceDumpReturnsRequestedEntries(t *testing.T) {
	h, trace := newFixtures(t)
	trace.AppendCallBegin(1)
	trace.AppendCallBegin(2)

	dumpParams := wcbor.MapVal(
		wcbor.MapEntry{Key: privet.DebugKeyTraceDumpParameters, Value: wcbor.MapVal(
			wcbor.MapEntry{Key: privet.DebugTraceDumpKeyStart, Value: wcbor.Int(0)},
			wcbor.MapEntry{Key: privet.DebugTraceDumpKeyEnd, Value: wcbor.Int(1)},
		)},
	)
	encoded, st := wcbor.Encode(dumpParams)
	if !st.OK() {
		t.Fatalf("encode params: %v", st)
	}
	cmd := newCommand(t, privet.DebugNameTraceDump, encoded)

	if st := h.HandleCommand(cmd); !st.OK() {
		t.Fatalf("HandleCommand: %v", st)
	}

	reply := decodeReply(t, cmd.ReplyBytes())
	result, _ := reply.Get(privet.CommandObjKeyResult)
	resultMap, _ := result.Map()
	dumpResult, ok := resultMap.Get(privet.DebugResponseKeyTraceDumpResult)
	if !ok {
		t.Fatalf("expected a traceDump result, got %+v", resultMap)
	}
	dumpResultMap, _ := dumpResult.Map()
	dump, ok := dumpResultMap.Get(privet.DebugTraceDumpResultKeyDump)
	if !ok {
		t.Fatalf("expected a dump array, got %+v", dumpResultMap)
	}
	items, ok := dump.Array()
	if !ok || len(items) != 2 {
		t.Fatalf("expected 2 dumped entries, got %+v", dump)
	}
	_ = trace
}

func TestTraceDumpMissingParametersFails(t *testing.T) {
	h, _ := newFixtures(t)
	cmd := newCommand(t, privet.DebugNameTraceDump, nil)

	if st := h.HandleCommand(cmd); st != status.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", st)
	}
}
