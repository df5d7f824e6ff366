package protocol

import "errors"

// Event errors.
var (
	ErrInvalidEvent = errors.New("protocol: invalid storage event")
)

// StorageEvent reports a change a client observed in one of its storage
// areas. It mirrors the shape of the native browser event: old and new
// values are optional, and a cleared area carries neither key nor values.
//
// SourceOp is non-zero when the change was caused by one of this
// context's own operations. The server uses it to suppress the echo
// instead of relaying the change back out as external.
type StorageEvent struct {
	Seq      uint64
	Area     Area
	Key      string
	OldValue string
	NewValue string
	HasOld   bool
	HasNew   bool
	Cleared  bool   // True when the whole area was cleared
	SourceOp uint64 // Non-zero when triggered by an op from this server
}

// Removed returns true if the event describes a key removal.
func (ev *StorageEvent) Removed() bool {
	return !ev.Cleared && ev.HasOld && !ev.HasNew
}

// EncodeStorageEvent encodes a storage event to bytes.
//
// Wire format:
//
//	[Seq: uvarint][Area: byte][Bits: byte][SourceOp: uvarint]
//	[Key: string unless cleared][Old: string if HasOld][New: string if HasNew]
func EncodeStorageEvent(ev *StorageEvent) []byte {
	e := NewEncoder()
	EncodeStorageEventTo(e, ev)
	return e.Bytes()
}

// EncodeStorageEventTo encodes a storage event using the provided encoder.
func EncodeStorageEventTo(e *Encoder, ev *StorageEvent) {
	e.WriteUvarint(ev.Seq)
	e.WriteByte(byte(ev.Area))

	var bits byte
	if ev.HasOld {
		bits |= 0x01
	}
	if ev.HasNew {
		bits |= 0x02
	}
	if ev.Cleared {
		bits |= 0x04
	}
	e.WriteByte(bits)
	e.WriteUvarint(ev.SourceOp)

	if !ev.Cleared {
		e.WriteString(ev.Key)
		if ev.HasOld {
			e.WriteString(ev.OldValue)
		}
		if ev.HasNew {
			e.WriteString(ev.NewValue)
		}
	}
}

// DecodeStorageEvent decodes a storage event from bytes.
func DecodeStorageEvent(data []byte) (*StorageEvent, error) {
	d := NewDecoder(data)
	return DecodeStorageEventFrom(d)
}

// DecodeStorageEventFrom decodes a storage event from a decoder.
func DecodeStorageEventFrom(d *Decoder) (*StorageEvent, error) {
	seq, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}

	areaByte, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	area := Area(areaByte)
	if !area.Valid() {
		return nil, ErrInvalidEvent
	}

	bits, err := d.ReadByte()
	if err != nil {
		return nil, err
	}

	ev := &StorageEvent{
		Seq:     seq,
		Area:    area,
		HasOld:  bits&0x01 != 0,
		HasNew:  bits&0x02 != 0,
		Cleared: bits&0x04 != 0,
	}

	if ev.SourceOp, err = d.ReadUvarint(); err != nil {
		return nil, err
	}

	if ev.Cleared {
		// A clear wipes the area; per-key fields do not apply.
		if ev.HasOld || ev.HasNew {
			return nil, ErrInvalidEvent
		}
		return ev, nil
	}

	if ev.Key, err = d.ReadString(); err != nil {
		return nil, err
	}
	if ev.HasOld {
		if ev.OldValue, err = d.ReadString(); err != nil {
			return nil, err
		}
	}
	if ev.HasNew {
		if ev.NewValue, err = d.ReadString(); err != nil {
			return nil, err
		}
	}

	return ev, nil
}

// NewSetEvent creates an event for a key that changed value.
func NewSetEvent(seq uint64, area Area, key, oldValue, newValue string, hadOld bool) *StorageEvent {
	return &StorageEvent{
		Seq:      seq,
		Area:     area,
		Key:      key,
		OldValue: oldValue,
		NewValue: newValue,
		HasOld:   hadOld,
		HasNew:   true,
	}
}

// NewRemoveEvent creates an event for a removed key.
func NewRemoveEvent(seq uint64, area Area, key, oldValue string) *StorageEvent {
	return &StorageEvent{
		Seq:      seq,
		Area:     area,
		Key:      key,
		OldValue: oldValue,
		HasOld:   true,
	}
}

// NewClearEvent creates an event for a cleared area.
func NewClearEvent(seq uint64, area Area) *StorageEvent {
	return &StorageEvent{Seq: seq, Area: area, Cleared: true}
}
