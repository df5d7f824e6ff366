// Package protocol implements the binary wire protocol for tabsync.
//
// The protocol carries browser storage traffic between an execution
// context (a tab) and the server: the client reports storage events and
// operation results, the server pushes storage operations and restores
// mirrored state. It is optimized for the shape of that traffic, which
// is many small messages with short keys.
//
// # Design Goals
//
//   - Minimal size: Typical op < 30 bytes, typical event < 40 bytes
//   - Fast encoding/decoding: No reflection, direct byte manipulation
//   - Reliable delivery: Sequence numbers, acknowledgments, op replay
//   - Reconnection: Resume with op replay or fresh snapshots
//   - Extensible: Version negotiation, reserved frame types
//
// # Wire Format
//
// All messages are framed with a 4-byte header:
//
//	┌─────────────┬──────────────┬───────────────────────────────┐
//	│ Frame Type  │ Flags        │ Payload Length                │
//	│ (1 byte)    │ (1 byte)     │ (2 bytes, big-endian)         │
//	└─────────────┴──────────────┴───────────────────────────────┘
//
// Inside payloads every integer is a varint and strings are
// length-prefixed, so the frame header's length field is the only
// fixed-width number on the wire.
//
// # Frame Types
//
//   - FrameHandshake (0x00): Connection setup
//   - FrameEvent (0x01): Client → Server storage events
//   - FrameOp (0x02): Server → Client storage operations
//   - FrameControl (0x03): Control messages (ping, resync)
//   - FrameAck (0x04): Acknowledgment
//   - FrameError (0x05): Error message
//   - FrameSnapshot (0x06): Full contents of one storage area
//   - FrameResult (0x07): Client → Server operation results
//
// # Handshake
//
// Connection establishment uses ClientHello and ServerHello messages:
//
//	Client                          Server
//	  │                                │
//	  │──── ClientHello ─────────────>│
//	  │     (version, token, areas)   │
//	  │                                │
//	  │<──── ServerHello ─────────────│
//	  │     (status, context, seq)    │
//	  │                                │
//	  │──── Snapshot (per area) ─────>│
//	  │                                │
//
// A client that reconnects presents its previous context ID and last
// applied sequence; the server either replays the missed ops or, when
// the replay buffer no longer covers the gap, requests fresh snapshots.
//
// # Operations and Results
//
// Ops flow from server to client in batches under one sequence number.
// The client applies each op to the named storage area and reports an
// OpResult carrying the op's ID. A failed result (quota, unavailable)
// marks the context degraded for that area; the server keeps the
// authoritative value in its mirror either way.
//
// Example Set op encoding:
//
//	[ID: varint][Type: 0x01][Area: byte][Key: string][Value: string]
//	Total: ~15 bytes for "theme" = "dark"
//
// # Storage Events
//
// Events flow from client to server when the browser fires a storage
// change notification. An event caused by one of this context's own ops
// carries that op's ID as SourceOp, which the server uses to suppress
// the echo instead of relaying it back out.
//
// # Usage Example
//
//	// Encode an op batch
//	frame := &OpFrame{
//	    Seq: 7,
//	    Ops: []Op{
//	        NewSetOp(41, AreaLocal, "theme", "dark"),
//	        NewRemoveOp(42, AreaSession, "draft"),
//	    },
//	}
//	data := EncodeOps(frame)
//
//	// Decode a storage event
//	ev, err := DecodeStorageEvent(payload)
//	if err != nil {
//	    // Handle error
//	}
//
// # Security
//
// Decoding never trusts lengths or counts read off the wire. Every
// string allocation is bounded by DefaultMaxAllocation and every
// collection by MaxCollectionCount, both checked against the remaining
// buffer before memory is reserved.
//
// # File Structure
//
// The package is organized as follows:
//
//   - encoder.go: Binary encoder
//   - decoder.go: Binary decoder with allocation limits
//   - frame.go: Frame types and transport
//   - area.go: Storage area enum and bitmask
//   - op.go: Storage operations
//   - result.go: Operation results
//   - event.go: Storage events
//   - snapshot.go: Area snapshots
//   - handshake.go: Handshake protocol
//   - control.go: Control messages
//   - ack.go: Acknowledgment
//   - error.go: Error messages
package protocol
