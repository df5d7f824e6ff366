package protocol

// Ack acknowledges received op frames. It serves three purposes:
//
//  1. Lets the server trim its replay buffer below LastSeq.
//  2. Carries the client's receive window for flow control.
//  3. Doubles as a liveness signal between pings.
type Ack struct {
	LastSeq uint64 // Highest contiguous sequence received
	Window  uint32 // Frames the client can buffer
}

// EncodeAck encodes an acknowledgment to bytes.
//
// Wire format:
//
//	[LastSeq: uvarint][Window: uvarint]
func EncodeAck(a *Ack) []byte {
	e := NewEncoder()
	EncodeAckTo(e, a)
	return e.Bytes()
}

// EncodeAckTo encodes an acknowledgment using the provided encoder.
func EncodeAckTo(e *Encoder, a *Ack) {
	e.WriteUvarint(a.LastSeq)
	e.WriteUvarint(uint64(a.Window))
}

// DecodeAck decodes an acknowledgment from bytes.
func DecodeAck(data []byte) (*Ack, error) {
	d := NewDecoder(data)
	return DecodeAckFrom(d)
}

// DecodeAckFrom decodes an acknowledgment from a decoder.
func DecodeAckFrom(d *Decoder) (*Ack, error) {
	lastSeq, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}

	window, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}

	return &Ack{LastSeq: lastSeq, Window: uint32(window)}, nil
}

// NewAck creates an acknowledgment with the default window.
func NewAck(lastSeq uint64) *Ack {
	return &Ack{LastSeq: lastSeq, Window: DefaultWindow}
}

// DefaultWindow is the default flow control window.
const DefaultWindow = 100
