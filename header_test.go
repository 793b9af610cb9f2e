package authsync

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHeader(t *testing.T) {
	t.Run("handshake request header", func(t *testing.T) {
		h := NewHeader(MsgTypeHandshakeRequest)
		assert.Equal(t, uint8(ProtocolVersion), h.Version)
		assert.Equal(t, uint8(MsgTypeHandshakeRequest), h.Type)
		assert.Equal(t, uint16(0), h.Length)
		assert.Equal(t, uint16(0), h.Reserved)
	})

	t.Run("publish header", func(t *testing.T) {
		h := NewHeader(MsgTypeAuthPublish)
		assert.Equal(t, uint8(MsgTypeAuthPublish), h.Type)
	})
}

func TestHeaderMarshalBinary(t *testing.T) {
	t.Run("basic encoding", func(t *testing.T) {
		h := &Header{
			Version: ProtocolVersion,
			Type:    MsgTypeAuthPublish,
			Length:  0x0123,
		}

		data, err := h.MarshalBinary()
		require.NoError(t, err)
		require.Len(t, data, HeaderLength)

		assert.Equal(t, uint8(0x01), data[0])
		assert.Equal(t, uint8(0x04), data[1])
		assert.Equal(t, []byte{0x01, 0x23}, data[2:4])
		assert.Equal(t, []byte{0x00, 0x00}, data[4:6])
	})

	t.Run("reserved round trip", func(t *testing.T) {
		h := &Header{
			Version:  ProtocolVersion,
			Type:     MsgTypeAuthQuery,
			Length:   27,
			Reserved: 0xBEEF,
		}

		data, err := h.MarshalBinary()
		require.NoError(t, err)

		decoded := &Header{}
		require.NoError(t, decoded.UnmarshalBinary(data))
		assert.Equal(t, h, decoded)
	})
}

func TestHeaderUnmarshalBinary(t *testing.T) {
	t.Run("valid header", func(t *testing.T) {
		data := []byte{0x01, 0x02, 0x00, 0x47, 0x00, 0x00}

		h := &Header{}
		require.NoError(t, h.UnmarshalBinary(data))

		assert.Equal(t, uint8(ProtocolVersion), h.Version)
		assert.Equal(t, uint8(MsgTypeHandshakeResponse), h.Type)
		assert.Equal(t, uint16(0x47), h.Length)
	})

	t.Run("short buffer", func(t *testing.T) {
		h := &Header{}
		err := h.UnmarshalBinary([]byte{0x01, 0x02, 0x00})
		assert.True(t, errors.Is(err, ErrBufferTooShort))
	})

	t.Run("empty buffer", func(t *testing.T) {
		h := &Header{}
		err := h.UnmarshalBinary(nil)
		assert.True(t, errors.Is(err, ErrBufferTooShort))
	})
}

func TestHeaderValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		h := &Header{Version: ProtocolVersion, Type: MsgTypeAuthPublish, Length: 31}
		assert.NoError(t, h.Validate())
	})

	t.Run("wrong version", func(t *testing.T) {
		h := &Header{Version: 0x02, Type: MsgTypeAuthPublish, Length: 31}
		assert.True(t, errors.Is(h.Validate(), ErrInvalidVersion))
	})

	t.Run("type zero", func(t *testing.T) {
		h := &Header{Version: ProtocolVersion, Type: 0, Length: 31}
		assert.True(t, errors.Is(h.Validate(), ErrInvalidType))
	})

	t.Run("type out of range", func(t *testing.T) {
		h := &Header{Version: ProtocolVersion, Type: msgTypeCount, Length: 31}
		assert.True(t, errors.Is(h.Validate(), ErrInvalidType))
	})

	t.Run("empty body", func(t *testing.T) {
		h := &Header{Version: ProtocolVersion, Type: MsgTypeAuthPublish, Length: 0}
		assert.True(t, errors.Is(h.Validate(), ErrEmptyBody))
	})

	t.Run("all zero header never validates", func(t *testing.T) {
		h := &Header{}
		require.NoError(t, h.UnmarshalBinary(make([]byte, HeaderLength)))
		assert.Error(t, h.Validate())
	})
}

func TestMessageTypeName(t *testing.T) {
	assert.Equal(t, "HANDSHAKE_REQUEST", MessageTypeName(MsgTypeHandshakeRequest))
	assert.Equal(t, "HANDSHAKE_RESPONSE", MessageTypeName(MsgTypeHandshakeResponse))
	assert.Equal(t, "AUTH_QUERY", MessageTypeName(MsgTypeAuthQuery))
	assert.Equal(t, "AUTH_PUBLISH", MessageTypeName(MsgTypeAuthPublish))
	assert.Equal(t, "INVALID", MessageTypeName(0))
	assert.Equal(t, "INVALID", MessageTypeName(0xFF))
}
