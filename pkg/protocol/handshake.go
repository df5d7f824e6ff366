package protocol

// HandshakeStatus indicates the result of a handshake attempt.
type HandshakeStatus uint8

const (
	HandshakeOK              HandshakeStatus = 0x00 // Success, new context
	HandshakeResumed         HandshakeStatus = 0x01 // Success, context resumed
	HandshakeVersionMismatch HandshakeStatus = 0x02 // Protocol version not supported
	HandshakeInvalidToken    HandshakeStatus = 0x03 // CSRF token invalid
	HandshakeContextExpired  HandshakeStatus = 0x04 // Context not found or expired
	HandshakeInvalidFormat   HandshakeStatus = 0x05 // Malformed handshake
	HandshakeOriginRejected  HandshakeStatus = 0x06 // Origin not allowed
	HandshakeServerBusy      HandshakeStatus = 0x07 // Server at capacity
	HandshakeInternalError   HandshakeStatus = 0x08 // Server error
)

// String returns the string representation of the handshake status.
func (hs HandshakeStatus) String() string {
	switch hs {
	case HandshakeOK:
		return "OK"
	case HandshakeResumed:
		return "Resumed"
	case HandshakeVersionMismatch:
		return "VersionMismatch"
	case HandshakeInvalidToken:
		return "InvalidToken"
	case HandshakeContextExpired:
		return "ContextExpired"
	case HandshakeInvalidFormat:
		return "InvalidFormat"
	case HandshakeOriginRejected:
		return "OriginRejected"
	case HandshakeServerBusy:
		return "ServerBusy"
	case HandshakeInternalError:
		return "InternalError"
	default:
		return "Unknown"
	}
}

// OK returns true for a status that establishes a usable connection.
func (hs HandshakeStatus) OK() bool {
	return hs == HandshakeOK || hs == HandshakeResumed
}

// ProtocolVersion represents the protocol version.
type ProtocolVersion struct {
	Major uint8
	Minor uint8
}

// CurrentVersion is the current protocol version.
var CurrentVersion = ProtocolVersion{Major: 1, Minor: 0}

// Compatible returns true if the versions can interoperate.
func (v ProtocolVersion) Compatible(other ProtocolVersion) bool {
	return v.Major == other.Major
}

// ClientHello is sent by the client to initiate a connection.
type ClientHello struct {
	Version   ProtocolVersion
	Token     string   // CSRF token from the page
	Origin    string   // Origin the storage areas belong to
	ContextID string   // Empty for a new context, previous ID to resume
	LastSeq   uint64   // Last op sequence applied, for resume
	Areas     AreaBits // Areas this context will synchronize
}

// ServerHello is the server's response to a ClientHello.
type ServerHello struct {
	Status     HandshakeStatus
	ContextID  string // Assigned or confirmed context ID
	NextSeq    uint64 // Next op sequence the server will send
	ServerTime uint64 // Unix milliseconds
	Flags      uint16
}

// Server capability flags.
const (
	ServerFlagSnapshotWanted uint16 = 0x0001 // Client should send area snapshots
	ServerFlagMirrored       uint16 = 0x0002 // Server persists a mirror of the areas
	ServerFlagRelay          uint16 = 0x0004 // Server relays changes between contexts
)

// EncodeClientHello encodes a ClientHello to bytes.
//
// Wire format:
//
//	[Major: byte][Minor: byte][Token: string][Origin: string]
//	[ContextID: string][LastSeq: uvarint][Areas: byte]
func EncodeClientHello(ch *ClientHello) []byte {
	e := NewEncoder()
	EncodeClientHelloTo(e, ch)
	return e.Bytes()
}

// EncodeClientHelloTo encodes a ClientHello using the provided encoder.
func EncodeClientHelloTo(e *Encoder, ch *ClientHello) {
	e.WriteByte(ch.Version.Major)
	e.WriteByte(ch.Version.Minor)
	e.WriteString(ch.Token)
	e.WriteString(ch.Origin)
	e.WriteString(ch.ContextID)
	e.WriteUvarint(ch.LastSeq)
	e.WriteByte(byte(ch.Areas))
}

// DecodeClientHello decodes a ClientHello from bytes.
func DecodeClientHello(data []byte) (*ClientHello, error) {
	d := NewDecoder(data)
	return DecodeClientHelloFrom(d)
}

// DecodeClientHelloFrom decodes a ClientHello from a decoder.
func DecodeClientHelloFrom(d *Decoder) (*ClientHello, error) {
	major, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	minor, err := d.ReadByte()
	if err != nil {
		return nil, err
	}

	ch := &ClientHello{Version: ProtocolVersion{Major: major, Minor: minor}}

	if ch.Token, err = d.ReadString(); err != nil {
		return nil, err
	}
	if ch.Origin, err = d.ReadString(); err != nil {
		return nil, err
	}
	if ch.ContextID, err = d.ReadString(); err != nil {
		return nil, err
	}
	if ch.LastSeq, err = d.ReadUvarint(); err != nil {
		return nil, err
	}

	areas, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	ch.Areas = AreaBits(areas)

	return ch, nil
}

// EncodeServerHello encodes a ServerHello to bytes.
//
// Wire format:
//
//	[Status: byte][ContextID: string][NextSeq: uvarint]
//	[ServerTime: uvarint][Flags: uvarint]
func EncodeServerHello(sh *ServerHello) []byte {
	e := NewEncoder()
	EncodeServerHelloTo(e, sh)
	return e.Bytes()
}

// EncodeServerHelloTo encodes a ServerHello using the provided encoder.
func EncodeServerHelloTo(e *Encoder, sh *ServerHello) {
	e.WriteByte(byte(sh.Status))
	e.WriteString(sh.ContextID)
	e.WriteUvarint(sh.NextSeq)
	e.WriteUvarint(sh.ServerTime)
	e.WriteUvarint(uint64(sh.Flags))
}

// DecodeServerHello decodes a ServerHello from bytes.
func DecodeServerHello(data []byte) (*ServerHello, error) {
	d := NewDecoder(data)
	return DecodeServerHelloFrom(d)
}

// DecodeServerHelloFrom decodes a ServerHello from a decoder.
func DecodeServerHelloFrom(d *Decoder) (*ServerHello, error) {
	statusByte, err := d.ReadByte()
	if err != nil {
		return nil, err
	}

	sh := &ServerHello{Status: HandshakeStatus(statusByte)}

	if sh.ContextID, err = d.ReadString(); err != nil {
		return nil, err
	}
	if sh.NextSeq, err = d.ReadUvarint(); err != nil {
		return nil, err
	}
	if sh.ServerTime, err = d.ReadUvarint(); err != nil {
		return nil, err
	}

	flags, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	sh.Flags = uint16(flags)

	return sh, nil
}

// NewClientHello creates a ClientHello with the current version.
func NewClientHello(token, origin string, areas AreaBits) *ClientHello {
	return &ClientHello{
		Version: CurrentVersion,
		Token:   token,
		Origin:  origin,
		Areas:   areas,
	}
}

// NewServerHello creates a ServerHello.
func NewServerHello(status HandshakeStatus, contextID string, nextSeq, serverTime uint64) *ServerHello {
	return &ServerHello{
		Status:     status,
		ContextID:  contextID,
		NextSeq:    nextSeq,
		ServerTime: serverTime,
	}
}
