package protocol

// SnapshotItem is a single key/value pair in a snapshot.
type SnapshotItem struct {
	Key   string
	Value string
}

// Snapshot carries the full contents of one storage area. Clients send
// one per synchronized area right after the handshake, and again in
// response to a snapshot request. Items keep the store's insertion
// order so encoding is deterministic.
type Snapshot struct {
	Area  Area
	Items []SnapshotItem
}

// EncodeSnapshot encodes a snapshot to bytes.
//
// Wire format:
//
//	[Area: byte][Count: uvarint]
//	For each item:
//	  [Key: string][Value: string]
func EncodeSnapshot(s *Snapshot) []byte {
	e := NewEncoder()
	EncodeSnapshotTo(e, s)
	return e.Bytes()
}

// EncodeSnapshotTo encodes a snapshot using the provided encoder.
func EncodeSnapshotTo(e *Encoder, s *Snapshot) {
	e.WriteByte(byte(s.Area))
	e.WriteUvarint(uint64(len(s.Items)))
	for i := range s.Items {
		e.WriteString(s.Items[i].Key)
		e.WriteString(s.Items[i].Value)
	}
}

// DecodeSnapshot decodes a snapshot from bytes.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	d := NewDecoder(data)
	return DecodeSnapshotFrom(d)
}

// DecodeSnapshotFrom decodes a snapshot from a decoder.
func DecodeSnapshotFrom(d *Decoder) (*Snapshot, error) {
	areaByte, err := d.ReadByte()
	if err != nil {
		return nil, err
	}

	count, err := d.ReadCollectionCount()
	if err != nil {
		return nil, err
	}

	items := make([]SnapshotItem, count)
	for i := 0; i < count; i++ {
		if items[i].Key, err = d.ReadString(); err != nil {
			return nil, err
		}
		if items[i].Value, err = d.ReadString(); err != nil {
			return nil, err
		}
	}

	return &Snapshot{Area: Area(areaByte), Items: items}, nil
}

// SnapshotMap converts the items to a map, last write wins on
// duplicate keys.
func (s *Snapshot) SnapshotMap() map[string]string {
	m := make(map[string]string, len(s.Items))
	for i := range s.Items {
		m[s.Items[i].Key] = s.Items[i].Value
	}
	return m
}

// SnapshotFromMap builds a snapshot from a map. Item order follows map
// iteration; use SnapshotFromPairs when order matters.
func SnapshotFromMap(area Area, items map[string]string) *Snapshot {
	s := &Snapshot{Area: area, Items: make([]SnapshotItem, 0, len(items))}
	for k, v := range items {
		s.Items = append(s.Items, SnapshotItem{Key: k, Value: v})
	}
	return s
}

// SnapshotFromPairs builds a snapshot from ordered keys and a lookup.
func SnapshotFromPairs(area Area, keys []string, lookup func(string) (string, bool)) *Snapshot {
	s := &Snapshot{Area: area, Items: make([]SnapshotItem, 0, len(keys))}
	for _, k := range keys {
		if v, ok := lookup(k); ok {
			s.Items = append(s.Items, SnapshotItem{Key: k, Value: v})
		}
	}
	return s
}
