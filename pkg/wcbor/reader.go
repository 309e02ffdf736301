package wcbor

import (
	"math"

	"github.com/mahmed8003/esp8266-weave-test/pkg/status"
)

// Reader parses the restricted CBOR profile into a fully-materialized
// Value tree.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for decoding from the start.
func NewReader(buf []byte) *Reader { return &Reader{buf: buf} }

// Pos returns the current read offset, useful once Decode has consumed a
// single top-level item out of a longer buffer.
func (r *Reader) Pos() int { return r.pos }

func (r *Reader) readByte() (byte, status.Status) {
	if r.pos >= len(r.buf) {
		return 0, status.ValueInvalidInput
	}
	b := r.buf[r.pos]
	r.pos++
	return b, status.Success
}

func (r *Reader) readN(n int) ([]byte, status.Status) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, status.ValueInvalidInput
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, status.Success
}

// readHead returns the major type, the additional-info-derived length/value
// field, and whether the item used one of the reserved (indefinite-length
// or unassigned) additional info values this profile does not support.
func (r *Reader) readHead() (major, uint64, status.Status) {
	b, st := r.readByte()
	if !st.OK() {
		return 0, 0, st
	}
	m := major(b >> 5)
	info := b & 0x1f
	switch {
	case info < 24:
		return m, uint64(info), status.Success
	case info == 24:
		v, st := r.readN(1)
		if !st.OK() {
			return 0, 0, st
		}
		return m, uint64(v[0]), status.Success
	case info == 25:
		v, st := r.readN(2)
		if !st.OK() {
			return 0, 0, st
		}
		return m, uint64(v[0])<<8 | uint64(v[1]), status.Success
	case info == 26:
		v, st := r.readN(4)
		if !st.OK() {
			return 0, 0, st
		}
		n := uint64(v[0])<<24 | uint64(v[1])<<16 | uint64(v[2])<<8 | uint64(v[3])
		return m, n, status.Success
	case info == 27:
		v, st := r.readN(8)
		if !st.OK() {
			return 0, 0, st
		}
		var n uint64
		for _, b := range v {
			n = n<<8 | uint64(b)
		}
		return m, n, status.Success
	default:
		// Indefinite length (31) and unassigned (28-30) are not part of
		// this profile.
		return 0, 0, status.ValueEncodingTypeUnsupported
	}
}

// Decode reads exactly one top-level Value from the front of the buffer.
func Decode(buf []byte) (Value, status.Status) {
	r := NewReader(buf)
	return r.ReadValue()
}

// ReadValue reads the next Value from the stream.
func (r *Reader) ReadValue() (Value, status.Status) {
	if r.pos >= len(r.buf) {
		return Value{}, status.ValueInvalidInput
	}
	lead := r.buf[r.pos]
	m := major(lead >> 5)
	info := lead & 0x1f

	switch m {
	case majorUint:
		_, n, st := r.readHead()
		if !st.OK() {
			return Value{}, st
		}
		if n > math.MaxInt64 {
			return Value{}, status.ValueTypeUnsupported
		}
		return Int(int64(n)), status.Success
	case majorNint:
		_, n, st := r.readHead()
		if !st.OK() {
			return Value{}, st
		}
		if n > math.MaxInt64 {
			return Value{}, status.ValueTypeUnsupported
		}
		return Int(-1 - int64(n)), status.Success
	case majorBytes:
		_, n, st := r.readHead()
		if !st.OK() {
			return Value{}, st
		}
		b, st := r.readN(int(n))
		if !st.OK() {
			return Value{}, st
		}
		cp := make([]byte, len(b))
		copy(cp, b)
		return BytesVal(cp), status.Success
	case majorText:
		_, n, st := r.readHead()
		if !st.OK() {
			return Value{}, st
		}
		b, st := r.readN(int(n))
		if !st.OK() {
			return Value{}, st
		}
		return TextVal(string(b)), status.Success
	case majorArray:
		_, n, st := r.readHead()
		if !st.OK() {
			return Value{}, st
		}
		items := make(ArrayItems, 0, n)
		for i := uint64(0); i < n; i++ {
			v, st := r.ReadValue()
			if !st.OK() {
				return Value{}, st
			}
			items = append(items, v)
		}
		return Value{Kind: KindArray, ArrV: items}, status.Success
	case majorMap:
		_, n, st := r.readHead()
		if !st.OK() {
			return Value{}, st
		}
		entries := make(MapEntries, 0, n)
		for i := uint64(0); i < n; i++ {
			keyV, st := r.ReadValue()
			if !st.OK() {
				return Value{}, st
			}
			if keyV.Kind != KindInt {
				return Value{}, status.ValueTypeUnsupported
			}
			if _, dup := entries.Get(keyV.Int); dup {
				return Value{}, status.ValueRepeatedMapKey
			}
			val, st := r.ReadValue()
			if !st.OK() {
				return Value{}, st
			}
			entries = append(entries, MapEntry{Key: keyV.Int, Value: val})
		}
		return Value{Kind: KindMap, MapV: entries}, status.Success
	case majorSmpl:
		r.pos++
		switch info {
		case simpleFalse:
			return BoolVal(false), status.Success
		case simpleTrue:
			return BoolVal(true), status.Success
		case simpleNull:
			return Null(), status.Success
		case simpleUndef:
			return Undefined(), status.Success
		case simpleF32:
			b, st := r.readN(4)
			if !st.OK() {
				return Value{}, st
			}
			bits := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
			return Float32Val(math.Float32frombits(bits)), status.Success
		case simpleF64:
			b, st := r.readN(8)
			if !st.OK() {
				return Value{}, st
			}
			var bits uint64
			for _, x := range b {
				bits = bits<<8 | uint64(x)
			}
			return Float64Val(math.Float64frombits(bits)), status.Success
		default:
			return Value{}, status.ValueEncodingTypeUnsupported
		}
	default:
		return Value{}, status.ValueTypeUnsupported
	}
}
