package authsync

import (
	"encoding"
	"encoding/binary"
	"fmt"
	"time"
)

// Packet is the interface that all auth-sync message bodies implement.
type Packet interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// HandshakeRequest is the challenge the server sends immediately after
// accepting a connection.
type HandshakeRequest struct {
	// Nonce is the random challenge string, ChapNonceLength bytes.
	Nonce string
}

// MarshalBinary encodes the HandshakeRequest body.
func (p *HandshakeRequest) MarshalBinary() ([]byte, error) {
	if len(p.Nonce) != ChapNonceLength {
		return nil, fmt.Errorf("%w: nonce length %d, expected %d", ErrInvalidAttribute, len(p.Nonce), ChapNonceLength)
	}
	return EncodeAttributes(Attribute{Type: AttrChapNonce, Value: []byte(p.Nonce)})
}

// UnmarshalBinary decodes the HandshakeRequest body.
func (p *HandshakeRequest) UnmarshalBinary(data []byte) error {
	attrs, err := ParseAttributes(data)
	if err != nil {
		return err
	}

	nonce, ok := attrs.Get(AttrChapNonce)
	if !ok {
		return fmt.Errorf("%w: chap nonce", ErrMissingAttribute)
	}
	if len(nonce) != ChapNonceLength {
		return fmt.Errorf("%w: nonce length %d, expected %d", ErrInvalidAttribute, len(nonce), ChapNonceLength)
	}

	p.Nonce = string(nonce)
	return nil
}

// HandshakeResponse is the client's answer to the challenge: the CHAP digest
// plus the client identity declaring which group the connection joins.
type HandshakeResponse struct {
	// Digest is MD5(nonce || secret), ChapDigestLength bytes.
	Digest []byte

	// MAC identifies the connecting device.
	MAC string

	// Attr is the device attribute value.
	Attr uint16

	// GroupID is the authentication domain the client declares.
	GroupID uint32
}

// MarshalBinary encodes the HandshakeResponse body.
func (p *HandshakeResponse) MarshalBinary() ([]byte, error) {
	if len(p.Digest) != ChapDigestLength {
		return nil, fmt.Errorf("%w: digest length %d, expected %d", ErrInvalidAttribute, len(p.Digest), ChapDigestLength)
	}

	id, err := encodeClientID(p.MAC, p.Attr, p.GroupID)
	if err != nil {
		return nil, err
	}

	return EncodeAttributes(
		Attribute{Type: AttrChapDigest, Value: p.Digest},
		Attribute{Type: AttrClientID, Value: id},
	)
}

// UnmarshalBinary decodes the HandshakeResponse body.
func (p *HandshakeResponse) UnmarshalBinary(data []byte) error {
	attrs, err := ParseAttributes(data)
	if err != nil {
		return err
	}

	digest, ok := attrs.Get(AttrChapDigest)
	if !ok {
		return fmt.Errorf("%w: chap digest", ErrMissingAttribute)
	}
	if len(digest) != ChapDigestLength {
		return fmt.Errorf("%w: digest length %d, expected %d", ErrInvalidAttribute, len(digest), ChapDigestLength)
	}

	id, ok := attrs.Get(AttrClientID)
	if !ok {
		return fmt.Errorf("%w: client id", ErrMissingAttribute)
	}

	mac, attr, gid, err := parseClientID(id)
	if err != nil {
		return err
	}

	p.Digest = digest
	p.MAC = mac
	p.Attr = attr
	p.GroupID = gid
	return nil
}

// AuthQuery asks whether a MAC currently holds a live authorization in a
// group. A live record is answered with an AuthPublish frame; an absent or
// expired one with silence.
type AuthQuery struct {
	MAC     string
	Attr    uint16
	GroupID uint32
}

// MarshalBinary encodes the AuthQuery body.
func (p *AuthQuery) MarshalBinary() ([]byte, error) {
	id, err := encodeClientID(p.MAC, p.Attr, p.GroupID)
	if err != nil {
		return nil, err
	}
	return EncodeAttributes(Attribute{Type: AttrClientID, Value: id})
}

// UnmarshalBinary decodes the AuthQuery body.
func (p *AuthQuery) UnmarshalBinary(data []byte) error {
	attrs, err := ParseAttributes(data)
	if err != nil {
		return err
	}

	id, ok := attrs.Get(AttrClientID)
	if !ok {
		return fmt.Errorf("%w: client id", ErrMissingAttribute)
	}

	mac, attr, gid, err := parseClientID(id)
	if err != nil {
		return err
	}

	p.MAC = mac
	p.Attr = attr
	p.GroupID = gid
	return nil
}

// AuthPublish carries one authorization record. The Duration field holds the
// remaining lifetime in seconds at transmission time; the receiver stamps
// the record with its own clock.
type AuthPublish struct {
	MAC      string
	Attr     uint16
	GroupID  uint32
	Duration uint32
}

// NewAuthPublish builds the wire form of a record, recomputing the remaining
// lifetime at the given instant.
func NewAuthPublish(rec AuthRecord, now time.Time) *AuthPublish {
	return &AuthPublish{
		MAC:      rec.MAC,
		Attr:     rec.Attr,
		GroupID:  rec.GroupID,
		Duration: rec.Remaining(now),
	}
}

// Record converts the wire form back into an AuthRecord stamped at the
// given instant.
func (p *AuthPublish) Record(now time.Time) AuthRecord {
	return AuthRecord{
		MAC:      p.MAC,
		Attr:     p.Attr,
		GroupID:  p.GroupID,
		Duration: p.Duration,
		AuthTime: now.Unix(),
	}
}

// MarshalBinary encodes the AuthPublish body.
func (p *AuthPublish) MarshalBinary() ([]byte, error) {
	if len(p.MAC) != MACLength {
		return nil, fmt.Errorf("%w: mac length %d, expected %d", ErrInvalidRecord, len(p.MAC), MACLength)
	}

	buf := make([]byte, clientAuthLength)
	copy(buf[:MACLength], p.MAC)
	binary.BigEndian.PutUint16(buf[MACLength:], p.Attr)
	binary.BigEndian.PutUint32(buf[MACLength+2:], p.GroupID)
	binary.BigEndian.PutUint32(buf[MACLength+6:], p.Duration)

	return EncodeAttributes(Attribute{Type: AttrClientAuth, Value: buf})
}

// UnmarshalBinary decodes the AuthPublish body.
func (p *AuthPublish) UnmarshalBinary(data []byte) error {
	attrs, err := ParseAttributes(data)
	if err != nil {
		return err
	}

	blob, ok := attrs.Get(AttrClientAuth)
	if !ok {
		return fmt.Errorf("%w: client auth", ErrMissingAttribute)
	}
	if len(blob) != clientAuthLength {
		return fmt.Errorf("%w: blob length %d, expected %d", ErrInvalidRecord, len(blob), clientAuthLength)
	}

	p.MAC = string(blob[:MACLength])
	p.Attr = binary.BigEndian.Uint16(blob[MACLength:])
	p.GroupID = binary.BigEndian.Uint32(blob[MACLength+2:])
	p.Duration = binary.BigEndian.Uint32(blob[MACLength+6:])
	return nil
}

// ParseBody decodes a message body based on the header type.
func ParseBody(header *Header, data []byte) (Packet, error) {
	if header == nil {
		return nil, fmt.Errorf("%w: header is nil", ErrInvalidHeader)
	}

	var p Packet
	switch header.Type {
	case MsgTypeHandshakeRequest:
		p = &HandshakeRequest{}
	case MsgTypeHandshakeResponse:
		p = &HandshakeResponse{}
	case MsgTypeAuthQuery:
		p = &AuthQuery{}
	case MsgTypeAuthPublish:
		p = &AuthPublish{}
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidType, header.Type)
	}

	if err := p.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return p, nil
}

// MarshalFrame encodes a complete frame: header with the body length filled
// in, followed by the body.
func MarshalFrame(msgType uint8, p Packet) ([]byte, error) {
	body, err := p.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if len(body) > 65535 {
		return nil, fmt.Errorf("%w: body length %d", ErrBodyTooLarge, len(body))
	}

	header := NewHeader(msgType)
	header.Length = uint16(len(body))

	buf, err := header.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return append(buf, body...), nil
}

func encodeClientID(mac string, attr uint16, gid uint32) ([]byte, error) {
	if len(mac) != MACLength {
		return nil, fmt.Errorf("%w: mac length %d, expected %d", ErrInvalidRecord, len(mac), MACLength)
	}

	buf := make([]byte, clientIDLength)
	copy(buf[:MACLength], mac)
	binary.BigEndian.PutUint16(buf[MACLength:], attr)
	binary.BigEndian.PutUint32(buf[MACLength+2:], gid)
	return buf, nil
}

func parseClientID(blob []byte) (mac string, attr uint16, gid uint32, err error) {
	if len(blob) != clientIDLength {
		return "", 0, 0, fmt.Errorf("%w: blob length %d, expected %d", ErrInvalidRecord, len(blob), clientIDLength)
	}

	mac = string(blob[:MACLength])
	attr = binary.BigEndian.Uint16(blob[MACLength:])
	gid = binary.BigEndian.Uint32(blob[MACLength+2:])
	return mac, attr, gid, nil
}
