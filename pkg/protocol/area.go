package protocol

// Area identifies which storage area a message refers to.
//
// The package is self-contained and does not import the storage
// package; bridges convert between the two enums at the boundary.
type Area uint8

const (
	AreaLocal   Area = 0x00 // Persistent, shared across contexts on the origin
	AreaSession Area = 0x01 // Scoped to a single execution context
)

// String returns the string representation of the area.
func (a Area) String() string {
	switch a {
	case AreaLocal:
		return "Local"
	case AreaSession:
		return "Session"
	default:
		return "Unknown"
	}
}

// Valid returns true for a known area value.
func (a Area) Valid() bool {
	return a == AreaLocal || a == AreaSession
}

// AreaBits is a bitmask of areas, used during handshake to declare
// which areas a context intends to synchronize.
type AreaBits uint8

const (
	AreaBitLocal   AreaBits = 0x01
	AreaBitSession AreaBits = 0x02
)

// Has returns true if the mask includes the given area.
func (b AreaBits) Has(a Area) bool {
	switch a {
	case AreaLocal:
		return b&AreaBitLocal != 0
	case AreaSession:
		return b&AreaBitSession != 0
	default:
		return false
	}
}

// WithArea returns the mask with the given area set.
func (b AreaBits) WithArea(a Area) AreaBits {
	switch a {
	case AreaLocal:
		return b | AreaBitLocal
	case AreaSession:
		return b | AreaBitSession
	default:
		return b
	}
}
