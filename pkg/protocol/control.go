package protocol

// ControlType identifies the type of control message.
type ControlType uint8

const (
	ControlPing            ControlType = 0x01 // Client/server ping
	ControlPong            ControlType = 0x02 // Response to ping
	ControlResyncRequest   ControlType = 0x10 // Client requests missed ops
	ControlResyncOps       ControlType = 0x11 // Server sends missed ops
	ControlSnapshotRequest ControlType = 0x12 // Server asks for fresh area snapshots
	ControlClose           ControlType = 0x20 // Connection close
)

// String returns the string representation of the control type.
func (ct ControlType) String() string {
	switch ct {
	case ControlPing:
		return "Ping"
	case ControlPong:
		return "Pong"
	case ControlResyncRequest:
		return "ResyncRequest"
	case ControlResyncOps:
		return "ResyncOps"
	case ControlSnapshotRequest:
		return "SnapshotRequest"
	case ControlClose:
		return "Close"
	default:
		return "Unknown"
	}
}

// CloseReason indicates why a connection is being closed.
type CloseReason uint8

const (
	CloseNormal         CloseReason = 0x00 // Normal closure
	CloseGoingAway      CloseReason = 0x01 // Client/server going away
	CloseContextExpired CloseReason = 0x02 // Context expired
	CloseServerShutdown CloseReason = 0x03 // Server shutting down
	CloseError          CloseReason = 0x04 // Error occurred
)

// String returns the string representation of the close reason.
func (cr CloseReason) String() string {
	switch cr {
	case CloseNormal:
		return "Normal"
	case CloseGoingAway:
		return "GoingAway"
	case CloseContextExpired:
		return "ContextExpired"
	case CloseServerShutdown:
		return "ServerShutdown"
	case CloseError:
		return "Error"
	default:
		return "Unknown"
	}
}

// PingPong is the payload for Ping and Pong messages.
type PingPong struct {
	Timestamp uint64 // Unix milliseconds
}

// ResyncRequest is sent by a client to request ops missed while
// disconnected.
type ResyncRequest struct {
	LastSeq uint64 // Last applied sequence number
}

// ResyncOps is the server's replay of missed operations. When the
// requested range has fallen out of the replay buffer the server sends
// a SnapshotRequest instead and rebuilds from fresh snapshots.
type ResyncOps struct {
	FromSeq uint64
	Frames  []OpFrame
}

// SnapshotRequest asks the client to resend full snapshots for the
// given areas.
type SnapshotRequest struct {
	Areas AreaBits
}

// CloseMessage is sent when closing a connection.
type CloseMessage struct {
	Reason  CloseReason
	Message string
}

// EncodeControl encodes a control message to bytes.
func EncodeControl(ct ControlType, payload any) []byte {
	e := NewEncoder()
	EncodeControlTo(e, ct, payload)
	return e.Bytes()
}

// EncodeControlTo encodes a control message using the provided encoder.
func EncodeControlTo(e *Encoder, ct ControlType, payload any) {
	e.WriteByte(byte(ct))

	switch ct {
	case ControlPing, ControlPong:
		if pp, ok := payload.(*PingPong); ok {
			e.WriteUvarint(pp.Timestamp)
		} else {
			e.WriteUvarint(0)
		}

	case ControlResyncRequest:
		if rr, ok := payload.(*ResyncRequest); ok {
			e.WriteUvarint(rr.LastSeq)
		} else {
			e.WriteUvarint(0)
		}

	case ControlResyncOps:
		if ro, ok := payload.(*ResyncOps); ok {
			e.WriteUvarint(ro.FromSeq)
			e.WriteUvarint(uint64(len(ro.Frames)))
			for i := range ro.Frames {
				EncodeOpsTo(e, &ro.Frames[i])
			}
		} else {
			e.WriteUvarint(0)
			e.WriteUvarint(0)
		}

	case ControlSnapshotRequest:
		if sr, ok := payload.(*SnapshotRequest); ok {
			e.WriteByte(byte(sr.Areas))
		} else {
			e.WriteByte(0)
		}

	case ControlClose:
		if cm, ok := payload.(*CloseMessage); ok {
			e.WriteByte(byte(cm.Reason))
			e.WriteString(cm.Message)
		} else {
			e.WriteByte(byte(CloseNormal))
			e.WriteString("")
		}
	}
}

// DecodeControl decodes a control message from bytes.
// Returns the control type and the decoded payload.
func DecodeControl(data []byte) (ControlType, any, error) {
	d := NewDecoder(data)
	return DecodeControlFrom(d)
}

// DecodeControlFrom decodes a control message from a decoder.
func DecodeControlFrom(d *Decoder) (ControlType, any, error) {
	typeByte, err := d.ReadByte()
	if err != nil {
		return 0, nil, err
	}
	ct := ControlType(typeByte)

	switch ct {
	case ControlPing, ControlPong:
		ts, err := d.ReadUvarint()
		if err != nil {
			return ct, nil, err
		}
		return ct, &PingPong{Timestamp: ts}, nil

	case ControlResyncRequest:
		lastSeq, err := d.ReadUvarint()
		if err != nil {
			return ct, nil, err
		}
		return ct, &ResyncRequest{LastSeq: lastSeq}, nil

	case ControlResyncOps:
		fromSeq, err := d.ReadUvarint()
		if err != nil {
			return ct, nil, err
		}
		count, err := d.ReadCollectionCount()
		if err != nil {
			return ct, nil, err
		}
		frames := make([]OpFrame, count)
		for i := 0; i < count; i++ {
			of, err := DecodeOpsFrom(d)
			if err != nil {
				return ct, nil, err
			}
			frames[i] = *of
		}
		return ct, &ResyncOps{FromSeq: fromSeq, Frames: frames}, nil

	case ControlSnapshotRequest:
		areas, err := d.ReadByte()
		if err != nil {
			return ct, nil, err
		}
		return ct, &SnapshotRequest{Areas: AreaBits(areas)}, nil

	case ControlClose:
		reason, err := d.ReadByte()
		if err != nil {
			return ct, nil, err
		}
		message, err := d.ReadString()
		if err != nil {
			return ct, nil, err
		}
		return ct, &CloseMessage{
			Reason:  CloseReason(reason),
			Message: message,
		}, nil

	default:
		return ct, nil, nil
	}
}

// NewPing creates a new Ping message.
func NewPing(timestamp uint64) (ControlType, *PingPong) {
	return ControlPing, &PingPong{Timestamp: timestamp}
}

// NewPong creates a new Pong message.
func NewPong(timestamp uint64) (ControlType, *PingPong) {
	return ControlPong, &PingPong{Timestamp: timestamp}
}

// NewResyncRequest creates a new ResyncRequest message.
func NewResyncRequest(lastSeq uint64) (ControlType, *ResyncRequest) {
	return ControlResyncRequest, &ResyncRequest{LastSeq: lastSeq}
}

// NewResyncOps creates a new ResyncOps response.
func NewResyncOps(fromSeq uint64, frames []OpFrame) (ControlType, *ResyncOps) {
	return ControlResyncOps, &ResyncOps{FromSeq: fromSeq, Frames: frames}
}

// NewSnapshotRequest creates a new SnapshotRequest message.
func NewSnapshotRequest(areas AreaBits) (ControlType, *SnapshotRequest) {
	return ControlSnapshotRequest, &SnapshotRequest{Areas: areas}
}

// NewClose creates a new Close message.
func NewClose(reason CloseReason, message string) (ControlType, *CloseMessage) {
	return ControlClose, &CloseMessage{Reason: reason, Message: message}
}
