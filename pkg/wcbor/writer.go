package wcbor

import (
	"math"

	"github.com/mahmed8003/esp8266-weave-test/pkg/status"
)

type major byte

const (
	majorUint  major = 0
	majorNint  major = 1
	majorBytes major = 2
	majorText  major = 3
	majorArray major = 4
	majorMap   major = 5
	majorSmpl  major = 7
)

const (
	simpleFalse = 20
	simpleTrue  = 21
	simpleNull  = 22
	simpleUndef = 23
	simpleF32   = 26
	simpleF64   = 27
)

// Writer serializes Values into the restricted CBOR profile. It grows its
// own backing slice; component code that needs a fixed-capacity encode
// target (e.g. writing straight into a packet buffer) copies Bytes() into
// its own wbuffer.Buffer afterward.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the encoded output so far.
func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) writeHead(m major, n uint64) {
	b := byte(m) << 5
	switch {
	case n < 24:
		w.buf = append(w.buf, b|byte(n))
	case n <= 0xff:
		w.buf = append(w.buf, b|24, byte(n))
	case n <= 0xffff:
		w.buf = append(w.buf, b|25, byte(n>>8), byte(n))
	case n <= 0xffffffff:
		w.buf = append(w.buf, b|26, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	default:
		w.buf = append(w.buf, b|27,
			byte(n>>56), byte(n>>48), byte(n>>40), byte(n>>32),
			byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	}
}

func (w *Writer) writeInt(n int64) {
	if n >= 0 {
		w.writeHead(majorUint, uint64(n))
		return
	}
	w.writeHead(majorNint, uint64(-1-n))
}

// WriteValue appends the CBOR encoding of v.
func (w *Writer) WriteValue(v Value) status.Status {
	switch v.Kind {
	case KindInt:
		w.writeInt(v.Int)
	case KindBytes:
		w.writeHead(majorBytes, uint64(len(v.Bytes)))
		w.buf = append(w.buf, v.Bytes...)
	case KindText:
		w.writeHead(majorText, uint64(len(v.Text)))
		w.buf = append(w.buf, v.Text...)
	case KindBool:
		if v.Bool {
			w.buf = append(w.buf, byte(majorSmpl)<<5|simpleTrue)
		} else {
			w.buf = append(w.buf, byte(majorSmpl)<<5|simpleFalse)
		}
	case KindNull:
		w.buf = append(w.buf, byte(majorSmpl)<<5|simpleNull)
	case KindUndefined:
		w.buf = append(w.buf, byte(majorSmpl)<<5|simpleUndef)
	case KindFloat32:
		bits := math.Float32bits(v.F32)
		w.buf = append(w.buf, byte(majorSmpl)<<5|simpleF32,
			byte(bits>>24), byte(bits>>16), byte(bits>>8), byte(bits))
	case KindFloat64:
		bits := math.Float64bits(v.F64)
		w.buf = append(w.buf, byte(majorSmpl)<<5|simpleF64,
			byte(bits>>56), byte(bits>>48), byte(bits>>40), byte(bits>>32),
			byte(bits>>24), byte(bits>>16), byte(bits>>8), byte(bits))
	case KindMap:
		if v.MapV == nil {
			return status.ValueInvalidInput
		}
		w.writeHead(majorMap, uint64(v.MapV.Len()))
		return v.MapV.Emit(&MapEncoder{w: w})
	case KindArray:
		if v.ArrV == nil {
			return status.ValueInvalidInput
		}
		w.writeHead(majorArray, uint64(v.ArrV.Len()))
		return v.ArrV.Emit(&ArrayEncoder{w: w})
	default:
		return status.ValueTypeUnsupported
	}
	return status.Success
}

// MapEncoder is handed to a MapEmitter.Emit implementation to write its
// entries one key/value pair at a time.
type MapEncoder struct{ w *Writer }

// Key writes a map key (always a small integer in this system).
func (m *MapEncoder) Key(k int64) status.Status {
	m.w.writeInt(k)
	return status.Success
}

// Value writes a map value.
func (m *MapEncoder) Value(v Value) status.Status {
	return m.w.WriteValue(v)
}

// ArrayEncoder is handed to an ArrayEmitter.Emit implementation.
type ArrayEncoder struct{ w *Writer }

// Value writes the next array item.
func (a *ArrayEncoder) Value(v Value) status.Status {
	return a.w.WriteValue(v)
}

// Encode is a convenience one-shot encode of a single Value.
func Encode(v Value) ([]byte, status.Status) {
	w := NewWriter()
	if st := w.WriteValue(v); !st.OK() {
		return nil, st
	}
	return w.Bytes(), status.Success
}
