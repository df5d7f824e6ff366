package protocol

import "fmt"

// ErrorCode identifies the category of a protocol error.
type ErrorCode uint16

const (
	// General errors (0x0000 - 0x00FF).
	ErrCodeUnknown       ErrorCode = 0x0000
	ErrCodeInvalidFrame  ErrorCode = 0x0001
	ErrCodeInvalidOp     ErrorCode = 0x0002
	ErrCodeInvalidEvent  ErrorCode = 0x0003
	ErrCodeRateLimited   ErrorCode = 0x0004
	ErrCodeFrameTooLarge ErrorCode = 0x0005

	// Context errors (0x0100 - 0x01FF).
	ErrCodeContextExpired  ErrorCode = 0x0100
	ErrCodeContextNotFound ErrorCode = 0x0101
	ErrCodeNotAuthorized   ErrorCode = 0x0102

	// Server errors (0x0200 - 0x02FF).
	ErrCodeServerError ErrorCode = 0x0200
	ErrCodeShutdown    ErrorCode = 0x0201
)

// String returns the string representation of the error code.
func (ec ErrorCode) String() string {
	switch ec {
	case ErrCodeUnknown:
		return "Unknown"
	case ErrCodeInvalidFrame:
		return "InvalidFrame"
	case ErrCodeInvalidOp:
		return "InvalidOp"
	case ErrCodeInvalidEvent:
		return "InvalidEvent"
	case ErrCodeRateLimited:
		return "RateLimited"
	case ErrCodeFrameTooLarge:
		return "FrameTooLarge"
	case ErrCodeContextExpired:
		return "ContextExpired"
	case ErrCodeContextNotFound:
		return "ContextNotFound"
	case ErrCodeNotAuthorized:
		return "NotAuthorized"
	case ErrCodeServerError:
		return "ServerError"
	case ErrCodeShutdown:
		return "Shutdown"
	default:
		return fmt.Sprintf("ErrorCode(0x%04X)", uint16(ec))
	}
}

// ErrorMessage is sent when a protocol error occurs. Fatal errors mean
// the connection will be closed and the client must reconnect.
type ErrorMessage struct {
	Code    ErrorCode
	Message string
	Fatal   bool
}

// Error implements the error interface.
func (em *ErrorMessage) Error() string {
	if em.Fatal {
		return fmt.Sprintf("fatal: %s: %s", em.Code, em.Message)
	}
	return fmt.Sprintf("%s: %s", em.Code, em.Message)
}

// EncodeError encodes an error message to bytes.
//
// Wire format:
//
//	[Code: uvarint][Fatal: bool][Message: string]
func EncodeError(em *ErrorMessage) []byte {
	e := NewEncoder()
	EncodeErrorTo(e, em)
	return e.Bytes()
}

// EncodeErrorTo encodes an error message using the provided encoder.
func EncodeErrorTo(e *Encoder, em *ErrorMessage) {
	e.WriteUvarint(uint64(em.Code))
	e.WriteBool(em.Fatal)
	e.WriteString(em.Message)
}

// DecodeError decodes an error message from bytes.
func DecodeError(data []byte) (*ErrorMessage, error) {
	d := NewDecoder(data)
	return DecodeErrorFrom(d)
}

// DecodeErrorFrom decodes an error message from a decoder.
func DecodeErrorFrom(d *Decoder) (*ErrorMessage, error) {
	code, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}

	fatal, err := d.ReadBool()
	if err != nil {
		return nil, err
	}

	message, err := d.ReadString()
	if err != nil {
		return nil, err
	}

	return &ErrorMessage{
		Code:    ErrorCode(code),
		Message: message,
		Fatal:   fatal,
	}, nil
}

// NewError creates a non-fatal error message.
func NewError(code ErrorCode, message string) *ErrorMessage {
	return &ErrorMessage{Code: code, Message: message}
}

// NewFatalError creates a fatal error message.
func NewFatalError(code ErrorCode, message string) *ErrorMessage {
	return &ErrorMessage{Code: code, Message: message, Fatal: true}
}

// IsFatal returns true if the error is a fatal ErrorMessage.
func IsFatal(err error) bool {
	if em, ok := err.(*ErrorMessage); ok {
		return em.Fatal
	}
	return false
}
