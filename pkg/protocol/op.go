package protocol

import "errors"

// OpType identifies a storage operation sent from server to client.
type OpType uint8

const (
	OpSet    OpType = 0x01 // Write a key/value pair
	OpRemove OpType = 0x02 // Delete a single key
	OpClear  OpType = 0x03 // Delete every key in the area
)

// String returns the string representation of the op type.
func (ot OpType) String() string {
	switch ot {
	case OpSet:
		return "Set"
	case OpRemove:
		return "Remove"
	case OpClear:
		return "Clear"
	default:
		return "Unknown"
	}
}

// Op errors.
var (
	ErrInvalidOpType = errors.New("protocol: invalid op type")
)

// Op is a single storage operation. The ID is assigned by the server
// and echoed back in the matching OpResult; clients also report it as
// SourceOp on any storage event the op itself triggers, so the server
// can tell echoes from genuinely external changes.
type Op struct {
	ID    uint64
	Type  OpType
	Area  Area
	Key   string // Empty for Clear
	Value string // Set only
}

// OpFrame is a batch of operations delivered under one sequence number.
type OpFrame struct {
	Seq uint64
	Ops []Op
}

// EncodeOps encodes an op frame to bytes.
//
// Wire format:
//
//	[Seq: uvarint][Count: uvarint]
//	For each op:
//	  [ID: uvarint][Type: byte][Area: byte][op-specific data]
func EncodeOps(of *OpFrame) []byte {
	e := NewEncoder()
	EncodeOpsTo(e, of)
	return e.Bytes()
}

// EncodeOpsTo encodes an op frame using the provided encoder.
func EncodeOpsTo(e *Encoder, of *OpFrame) {
	e.WriteUvarint(of.Seq)
	e.WriteUvarint(uint64(len(of.Ops)))
	for i := range of.Ops {
		encodeOp(e, &of.Ops[i])
	}
}

func encodeOp(e *Encoder, op *Op) {
	e.WriteUvarint(op.ID)
	e.WriteByte(byte(op.Type))
	e.WriteByte(byte(op.Area))

	switch op.Type {
	case OpSet:
		e.WriteString(op.Key)
		e.WriteString(op.Value)
	case OpRemove:
		e.WriteString(op.Key)
	case OpClear:
		// No additional data.
	}
}

// DecodeOps decodes an op frame from bytes.
func DecodeOps(data []byte) (*OpFrame, error) {
	d := NewDecoder(data)
	return DecodeOpsFrom(d)
}

// DecodeOpsFrom decodes an op frame from a decoder.
func DecodeOpsFrom(d *Decoder) (*OpFrame, error) {
	seq, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}

	count, err := d.ReadCollectionCount()
	if err != nil {
		return nil, err
	}

	ops := make([]Op, count)
	for i := 0; i < count; i++ {
		if err := decodeOp(d, &ops[i]); err != nil {
			return nil, err
		}
	}

	return &OpFrame{Seq: seq, Ops: ops}, nil
}

func decodeOp(d *Decoder, op *Op) error {
	id, err := d.ReadUvarint()
	if err != nil {
		return err
	}
	op.ID = id

	typeByte, err := d.ReadByte()
	if err != nil {
		return err
	}
	op.Type = OpType(typeByte)

	areaByte, err := d.ReadByte()
	if err != nil {
		return err
	}
	op.Area = Area(areaByte)

	switch op.Type {
	case OpSet:
		if op.Key, err = d.ReadString(); err != nil {
			return err
		}
		if op.Value, err = d.ReadString(); err != nil {
			return err
		}
	case OpRemove:
		if op.Key, err = d.ReadString(); err != nil {
			return err
		}
	case OpClear:
		// No additional data.
	default:
		return ErrInvalidOpType
	}

	return nil
}

// NewSetOp creates a Set operation.
func NewSetOp(id uint64, area Area, key, value string) Op {
	return Op{ID: id, Type: OpSet, Area: area, Key: key, Value: value}
}

// NewRemoveOp creates a Remove operation.
func NewRemoveOp(id uint64, area Area, key string) Op {
	return Op{ID: id, Type: OpRemove, Area: area, Key: key}
}

// NewClearOp creates a Clear operation.
func NewClearOp(id uint64, area Area) Op {
	return Op{ID: id, Type: OpClear, Area: area}
}
