package protocol

import "errors"

// Decoder limits guard against hostile or corrupted payloads.
const (
	// DefaultMaxAllocation caps any single string or byte slice allocation.
	DefaultMaxAllocation = 4 * 1024 * 1024

	// MaxCollectionCount caps the number of elements in any decoded
	// collection (snapshot items, replayed ops).
	MaxCollectionCount = 100_000

	// MaxVarintLen is the maximum number of bytes in an encoded varint.
	MaxVarintLen = 10
)

// Decoder errors.
var (
	ErrBufferTooShort     = errors.New("protocol: buffer too short")
	ErrVarintOverflow     = errors.New("protocol: varint overflow")
	ErrAllocationTooLarge = errors.New("protocol: allocation exceeds limit")
	ErrCollectionTooLarge = errors.New("protocol: collection exceeds limit")
)

// Decoder reads encoded payloads from a byte slice.
//
// Decoding never trusts a length or count read off the wire: every
// allocation is checked against both the remaining buffer and the
// configured allocation limit before memory is reserved.
type Decoder struct {
	buf           []byte
	pos           int
	maxAllocation int
}

// NewDecoder creates a decoder for the given data with default limits.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{
		buf:           data,
		maxAllocation: DefaultMaxAllocation,
	}
}

// SetMaxAllocation overrides the per-allocation limit.
func (d *Decoder) SetMaxAllocation(limit int) {
	d.maxAllocation = limit
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.pos
}

// EOF returns true if all bytes have been consumed.
func (d *Decoder) EOF() bool {
	return d.pos >= len(d.buf)
}

// Position returns the current read position.
func (d *Decoder) Position() int {
	return d.pos
}

// Skip advances the read position by n bytes.
func (d *Decoder) Skip(n int) error {
	if d.Remaining() < n {
		return ErrBufferTooShort
	}
	d.pos += n
	return nil
}

// ReadByte reads a single byte.
func (d *Decoder) ReadByte() (byte, error) {
	if d.pos >= len(d.buf) {
		return 0, ErrBufferTooShort
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

// ReadBytes reads n raw bytes.
func (d *Decoder) ReadBytes(n int) ([]byte, error) {
	if n < 0 || d.Remaining() < n {
		return nil, ErrBufferTooShort
	}
	if n > d.maxAllocation {
		return nil, ErrAllocationTooLarge
	}
	out := make([]byte, n)
	copy(out, d.buf[d.pos:d.pos+n])
	d.pos += n
	return out, nil
}

// ReadUvarint reads an unsigned varint.
func (d *Decoder) ReadUvarint() (uint64, error) {
	var v uint64
	var shift uint
	for i := 0; i < MaxVarintLen; i++ {
		if d.pos >= len(d.buf) {
			return 0, ErrBufferTooShort
		}
		b := d.buf[d.pos]
		d.pos++
		if b < 0x80 {
			if i == MaxVarintLen-1 && b > 1 {
				return 0, ErrVarintOverflow
			}
			return v | uint64(b)<<shift, nil
		}
		v |= uint64(b&0x7f) << shift
		shift += 7
	}
	return 0, ErrVarintOverflow
}

// ReadSvarint reads a signed varint using zigzag encoding.
func (d *Decoder) ReadSvarint() (int64, error) {
	uv, err := d.ReadUvarint()
	if err != nil {
		return 0, err
	}
	return int64(uv>>1) ^ -int64(uv&1), nil
}

// ReadString reads a length-prefixed string.
func (d *Decoder) ReadString() (string, error) {
	length, err := d.ReadUvarint()
	if err != nil {
		return "", err
	}
	if length > uint64(d.Remaining()) {
		return "", ErrBufferTooShort
	}
	if length > uint64(d.maxAllocation) {
		return "", ErrAllocationTooLarge
	}
	s := string(d.buf[d.pos : d.pos+int(length)])
	d.pos += int(length)
	return s, nil
}

// ReadLenBytes reads length-prefixed bytes.
func (d *Decoder) ReadLenBytes() ([]byte, error) {
	length, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	if length > uint64(d.Remaining()) {
		return nil, ErrBufferTooShort
	}
	if length > uint64(d.maxAllocation) {
		return nil, ErrAllocationTooLarge
	}
	out := make([]byte, length)
	copy(out, d.buf[d.pos:d.pos+int(length)])
	d.pos += int(length)
	return out, nil
}

// ReadBool reads a boolean. Any non-zero byte is true.
func (d *Decoder) ReadBool() (bool, error) {
	b, err := d.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

// ReadCollectionCount reads a uvarint element count and validates it
// against MaxCollectionCount and the remaining buffer. Each element
// needs at least one byte, so a count larger than the remaining bytes
// is corrupt by construction.
func (d *Decoder) ReadCollectionCount() (int, error) {
	count, err := d.ReadUvarint()
	if err != nil {
		return 0, err
	}
	if count > MaxCollectionCount {
		return 0, ErrCollectionTooLarge
	}
	if count > uint64(d.Remaining()) {
		return 0, ErrBufferTooShort
	}
	return int(count), nil
}
