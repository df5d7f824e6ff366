package protocol

// OpStatus reports the outcome of applying an operation.
type OpStatus uint8

const (
	OpApplied       OpStatus = 0x00 // Operation applied to the store
	OpQuotaExceeded OpStatus = 0x01 // Store rejected the write for space
	OpUnavailable   OpStatus = 0x02 // Store not accessible in this context
	OpInvalid       OpStatus = 0x03 // Operation was malformed or unknown
)

// String returns the string representation of the op status.
func (os OpStatus) String() string {
	switch os {
	case OpApplied:
		return "Applied"
	case OpQuotaExceeded:
		return "QuotaExceeded"
	case OpUnavailable:
		return "Unavailable"
	case OpInvalid:
		return "Invalid"
	default:
		return "Unknown"
	}
}

// Failed returns true for any status other than OpApplied.
func (os OpStatus) Failed() bool {
	return os != OpApplied
}

// OpResult is sent by a client after attempting an operation. Results
// for applied ops let the server trim its replay buffer; failures mark
// the context degraded for the affected area.
type OpResult struct {
	ID     uint64
	Status OpStatus
	Detail string // Optional, for example the quota error text
}

// EncodeOpResult encodes an op result to bytes.
//
// Wire format:
//
//	[ID: uvarint][Status: byte][Detail: len-prefixed string]
func EncodeOpResult(r *OpResult) []byte {
	e := NewEncoder()
	EncodeOpResultTo(e, r)
	return e.Bytes()
}

// EncodeOpResultTo encodes an op result using the provided encoder.
func EncodeOpResultTo(e *Encoder, r *OpResult) {
	e.WriteUvarint(r.ID)
	e.WriteByte(byte(r.Status))
	e.WriteString(r.Detail)
}

// DecodeOpResult decodes an op result from bytes.
func DecodeOpResult(data []byte) (*OpResult, error) {
	d := NewDecoder(data)
	return DecodeOpResultFrom(d)
}

// DecodeOpResultFrom decodes an op result from a decoder.
func DecodeOpResultFrom(d *Decoder) (*OpResult, error) {
	id, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}

	statusByte, err := d.ReadByte()
	if err != nil {
		return nil, err
	}

	detail, err := d.ReadString()
	if err != nil {
		return nil, err
	}

	return &OpResult{
		ID:     id,
		Status: OpStatus(statusByte),
		Detail: detail,
	}, nil
}
