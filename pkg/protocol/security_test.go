package protocol

import (
	"bytes"
	"errors"
	"testing"
)

// Hostile input tests. A client speaks this protocol from an untrusted
// browser, so every decoder must hold limits against crafted payloads.

func TestHostileStringLength(t *testing.T) {
	// Declares a 1 GiB string backed by 3 bytes.
	e := NewEncoder()
	e.WriteUvarint(1 << 30)
	e.WriteBytes([]byte("abc"))

	d := NewDecoder(e.Bytes())
	if _, err := d.ReadString(); !errors.Is(err, ErrBufferTooShort) {
		t.Errorf("got %v, want ErrBufferTooShort", err)
	}
}

func TestHostileAllocationWithinBuffer(t *testing.T) {
	// The declared length fits the buffer but exceeds the configured
	// allocation cap.
	payload := make([]byte, 1024)
	e := NewEncoder()
	e.WriteLenBytes(payload)

	d := NewDecoder(e.Bytes())
	d.SetMaxAllocation(512)
	if _, err := d.ReadLenBytes(); !errors.Is(err, ErrAllocationTooLarge) {
		t.Errorf("got %v, want ErrAllocationTooLarge", err)
	}
}

func TestHostileOpCountBomb(t *testing.T) {
	// Claims close to the collection limit with almost no data behind it.
	e := NewEncoder()
	e.WriteUvarint(0)                  // seq
	e.WriteUvarint(MaxCollectionCount) // count
	e.WriteBytes([]byte{0x01})

	if _, err := DecodeOps(e.Bytes()); err == nil {
		t.Error("op count bomb decoded without error")
	}
}

func TestHostileSnapshotCountBomb(t *testing.T) {
	e := NewEncoder()
	e.WriteByte(byte(AreaLocal))
	e.WriteUvarint(MaxCollectionCount + 1)

	if _, err := DecodeSnapshot(e.Bytes()); !errors.Is(err, ErrCollectionTooLarge) {
		t.Errorf("got %v, want ErrCollectionTooLarge", err)
	}
}

func TestHostileResyncNesting(t *testing.T) {
	// A resync payload that declares many frames, each claiming more
	// ops than the buffer holds.
	e := NewEncoder()
	e.WriteByte(byte(ControlResyncOps))
	e.WriteUvarint(0)  // from seq
	e.WriteUvarint(16) // frame count
	for i := 0; i < 4; i++ {
		e.WriteUvarint(uint64(i)) // frame seq
		e.WriteUvarint(1 << 20)   // op count
	}

	if _, _, err := DecodeControl(e.Bytes()); err == nil {
		t.Error("nested resync bomb decoded without error")
	}
}

func TestHostileFrameLengthMismatch(t *testing.T) {
	// Frame header larger than the data that follows.
	data := []byte{byte(FrameOp), 0x00, 0xFF, 0xFF, 0x01}
	if _, err := DecodeFrame(data); err == nil {
		t.Error("mismatched frame length decoded without error")
	}
}

func TestHostileReadFrameOversized(t *testing.T) {
	// A header declaring the maximum payload with a short body makes
	// ReadFrame block on the reader, not allocate unbounded memory.
	header := []byte{byte(FrameOp), 0x00, 0xFF, 0xFF}
	if _, err := ReadFrame(bytes.NewReader(header)); err == nil {
		t.Error("oversized frame read without error")
	}
}

func TestDecoderStopsAtLimitNotCrash(t *testing.T) {
	// Every decoder entry point survives a pathological all-0xFF blob.
	blob := bytes.Repeat([]byte{0xFF}, 4096)

	if _, err := DecodeOps(blob); err == nil {
		t.Error("DecodeOps accepted garbage")
	}
	if _, err := DecodeStorageEvent(blob); err == nil {
		t.Error("DecodeStorageEvent accepted garbage")
	}
	if _, err := DecodeSnapshot(blob); err == nil {
		t.Error("DecodeSnapshot accepted garbage")
	}
	if _, err := DecodeClientHello(blob); err == nil {
		t.Error("DecodeClientHello accepted garbage")
	}
	if _, err := DecodeServerHello(blob); err == nil {
		t.Error("DecodeServerHello accepted garbage")
	}
	if _, err := DecodeOpResult(blob); err == nil {
		t.Error("DecodeOpResult accepted garbage")
	}
	if _, err := DecodeAck(blob); err == nil {
		t.Error("DecodeAck accepted garbage")
	}
	if _, err := DecodeError(blob); err == nil {
		t.Error("DecodeError accepted garbage")
	}
}
