package protocol

// Encoder provides a growable buffer for encoding payloads.
//
// All multi-byte integers on the wire are varints, so payloads stay small
// for the common case of short keys and low sequence numbers. Strings and
// byte slices are length-prefixed with a uvarint.
type Encoder struct {
	buf []byte
}

// NewEncoder creates a new encoder with a default initial capacity.
func NewEncoder() *Encoder {
	return &Encoder{
		buf: make([]byte, 0, 256),
	}
}

// Reset clears the encoder buffer for reuse.
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

// Bytes returns the encoded bytes.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the current length of the encoded data.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// WriteByte writes a single byte.
func (e *Encoder) WriteByte(b byte) {
	e.buf = append(e.buf, b)
}

// WriteBytes writes raw bytes without a length prefix.
func (e *Encoder) WriteBytes(data []byte) {
	e.buf = append(e.buf, data...)
}

// WriteUvarint writes an unsigned varint.
func (e *Encoder) WriteUvarint(v uint64) {
	for v >= 0x80 {
		e.buf = append(e.buf, byte(v)|0x80)
		v >>= 7
	}
	e.buf = append(e.buf, byte(v))
}

// WriteSvarint writes a signed varint using zigzag encoding.
func (e *Encoder) WriteSvarint(v int64) {
	e.WriteUvarint(uint64(v<<1) ^ uint64(v>>63))
}

// WriteString writes a length-prefixed string.
func (e *Encoder) WriteString(s string) {
	e.WriteUvarint(uint64(len(s)))
	e.buf = append(e.buf, s...)
}

// WriteLenBytes writes length-prefixed bytes.
func (e *Encoder) WriteLenBytes(data []byte) {
	e.WriteUvarint(uint64(len(data)))
	e.buf = append(e.buf, data...)
}

// WriteBool writes a boolean as a single byte.
func (e *Encoder) WriteBool(b bool) {
	if b {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
}
