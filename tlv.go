package authsync

import (
	"encoding/binary"
	"fmt"
)

// Attribute is one TLV-encoded field of a message body:
// type:u16, length:u16 (value bytes only), value. Big-endian.
type Attribute struct {
	Type  uint16
	Value []byte
}

// Attributes holds the decoded attributes of one message body. A type may
// appear more than once; order within a type is preserved.
type Attributes map[uint16][][]byte

// Get returns the first value for the given attribute type.
func (a Attributes) Get(attrType uint16) ([]byte, bool) {
	values, ok := a[attrType]
	if !ok || len(values) == 0 {
		return nil, false
	}
	return values[0], true
}

// Has returns true if at least one attribute of the given type is present.
func (a Attributes) Has(attrType uint16) bool {
	_, ok := a.Get(attrType)
	return ok
}

// EncodeAttributes encodes the given attributes into a message body.
func EncodeAttributes(attrs ...Attribute) ([]byte, error) {
	size := 0
	for _, attr := range attrs {
		if len(attr.Value) > 65535 {
			return nil, fmt.Errorf("%w: value of type %d exceeds 65535 bytes", ErrInvalidAttribute, attr.Type)
		}
		size += 4 + len(attr.Value)
	}

	buf := make([]byte, 0, size)
	for _, attr := range attrs {
		var tl [4]byte
		binary.BigEndian.PutUint16(tl[0:2], attr.Type)
		binary.BigEndian.PutUint16(tl[2:4], uint16(len(attr.Value)))
		buf = append(buf, tl[:]...)
		buf = append(buf, attr.Value...)
	}

	return buf, nil
}

// ParseAttributes decodes a message body into its attributes. It rejects
// truncated attributes and types outside the closed enumeration.
func ParseAttributes(data []byte) (Attributes, error) {
	attrs := make(Attributes)

	for len(data) > 0 {
		if len(data) < 4 {
			return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidAttribute, len(data))
		}

		attrType := binary.BigEndian.Uint16(data[0:2])
		attrLen := int(binary.BigEndian.Uint16(data[2:4]))
		data = data[4:]

		if attrType == 0 || attrType >= attrTypeCount {
			return nil, fmt.Errorf("%w: type %d", ErrInvalidAttribute, attrType)
		}
		if attrLen > len(data) {
			return nil, fmt.Errorf("%w: type %d declares %d bytes, %d available", ErrInvalidAttribute, attrType, attrLen, len(data))
		}

		value := make([]byte, attrLen)
		copy(value, data[:attrLen])
		attrs[attrType] = append(attrs[attrType], value)
		data = data[attrLen:]
	}

	return attrs, nil
}
