package authsync

import (
	"encoding/binary"
	"fmt"
)

// Header represents an auth-sync frame header. The header is 6 bytes:
//   - Version (1 byte): protocol version, always 1
//   - Type (1 byte): message type
//   - Length (2 bytes): body length in bytes, excluding the header
//   - Reserved (2 bytes): reserved for protocol extension, zero on the wire
//
// All multi-byte fields are big-endian.
type Header struct {
	Version  uint8
	Type     uint8
	Length   uint16
	Reserved uint16
}

// NewHeader creates a new Header for the given message type with the
// current protocol version.
func NewHeader(msgType uint8) *Header {
	return &Header{
		Version: ProtocolVersion,
		Type:    msgType,
	}
}

// MarshalBinary encodes the header to binary format (big-endian).
func (h *Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderLength)
	buf[0] = h.Version
	buf[1] = h.Type
	binary.BigEndian.PutUint16(buf[2:4], h.Length)
	binary.BigEndian.PutUint16(buf[4:6], h.Reserved)
	return buf, nil
}

// UnmarshalBinary decodes the header from binary format.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderLength {
		return fmt.Errorf("%w: need %d bytes, got %d", ErrBufferTooShort, HeaderLength, len(data))
	}

	h.Version = data[0]
	h.Type = data[1]
	h.Length = binary.BigEndian.Uint16(data[2:4])
	h.Reserved = binary.BigEndian.Uint16(data[4:6])

	return nil
}

// Validate checks that the header describes a well-formed frame: current
// version, a type inside the closed enumeration and a non-empty body.
func (h *Header) Validate() error {
	if h.Version != ProtocolVersion {
		return fmt.Errorf("%w: version %d, expected %d", ErrInvalidVersion, h.Version, ProtocolVersion)
	}

	if h.Type == 0 || h.Type >= msgTypeCount {
		return fmt.Errorf("%w: %d", ErrInvalidType, h.Type)
	}

	if h.Length == 0 {
		return fmt.Errorf("%w: type %s", ErrEmptyBody, MessageTypeName(h.Type))
	}

	return nil
}
