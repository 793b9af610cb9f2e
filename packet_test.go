package authsync

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMAC = "aa:bb:cc:dd:ee:ff"

func TestHandshakeRequest(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		nonce := strings.Repeat("x", ChapNonceLength)
		req := &HandshakeRequest{Nonce: nonce}

		data, err := req.MarshalBinary()
		require.NoError(t, err)

		decoded := &HandshakeRequest{}
		require.NoError(t, decoded.UnmarshalBinary(data))
		assert.Equal(t, nonce, decoded.Nonce)
	})

	t.Run("marshal rejects short nonce", func(t *testing.T) {
		req := &HandshakeRequest{Nonce: "short"}
		_, err := req.MarshalBinary()
		assert.True(t, errors.Is(err, ErrInvalidAttribute))
	})

	t.Run("unmarshal rejects missing nonce", func(t *testing.T) {
		body, err := EncodeAttributes(Attribute{Type: AttrChapDigest, Value: make([]byte, ChapDigestLength)})
		require.NoError(t, err)

		req := &HandshakeRequest{}
		assert.True(t, errors.Is(req.UnmarshalBinary(body), ErrMissingAttribute))
	})

	t.Run("unmarshal rejects wrong nonce length", func(t *testing.T) {
		body, err := EncodeAttributes(Attribute{Type: AttrChapNonce, Value: []byte("tiny")})
		require.NoError(t, err)

		req := &HandshakeRequest{}
		assert.True(t, errors.Is(req.UnmarshalBinary(body), ErrInvalidAttribute))
	})
}

func TestHandshakeResponse(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		resp := &HandshakeResponse{
			Digest:  ChapDigest(strings.Repeat("n", ChapNonceLength), "secret"),
			MAC:     testMAC,
			Attr:    0x0102,
			GroupID: 77,
		}

		data, err := resp.MarshalBinary()
		require.NoError(t, err)

		decoded := &HandshakeResponse{}
		require.NoError(t, decoded.UnmarshalBinary(data))
		assert.Equal(t, resp, decoded)
	})

	t.Run("marshal rejects bad digest length", func(t *testing.T) {
		resp := &HandshakeResponse{Digest: []byte{0x01}, MAC: testMAC}
		_, err := resp.MarshalBinary()
		assert.True(t, errors.Is(err, ErrInvalidAttribute))
	})

	t.Run("marshal rejects bad mac length", func(t *testing.T) {
		resp := &HandshakeResponse{Digest: make([]byte, ChapDigestLength), MAC: "aa:bb"}
		_, err := resp.MarshalBinary()
		assert.True(t, errors.Is(err, ErrInvalidRecord))
	})

	t.Run("unmarshal rejects missing digest", func(t *testing.T) {
		id, err := encodeClientID(testMAC, 0, 1)
		require.NoError(t, err)
		body, err := EncodeAttributes(Attribute{Type: AttrClientID, Value: id})
		require.NoError(t, err)

		resp := &HandshakeResponse{}
		assert.True(t, errors.Is(resp.UnmarshalBinary(body), ErrMissingAttribute))
	})

	t.Run("unmarshal rejects missing client id", func(t *testing.T) {
		body, err := EncodeAttributes(Attribute{Type: AttrChapDigest, Value: make([]byte, ChapDigestLength)})
		require.NoError(t, err)

		resp := &HandshakeResponse{}
		assert.True(t, errors.Is(resp.UnmarshalBinary(body), ErrMissingAttribute))
	})

	t.Run("unmarshal rejects truncated client id", func(t *testing.T) {
		body, err := EncodeAttributes(
			Attribute{Type: AttrChapDigest, Value: make([]byte, ChapDigestLength)},
			Attribute{Type: AttrClientID, Value: make([]byte, clientIDLength-1)},
		)
		require.NoError(t, err)

		resp := &HandshakeResponse{}
		assert.True(t, errors.Is(resp.UnmarshalBinary(body), ErrInvalidRecord))
	})
}

func TestAuthQuery(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		query := &AuthQuery{MAC: testMAC, Attr: 3, GroupID: 42}

		data, err := query.MarshalBinary()
		require.NoError(t, err)

		decoded := &AuthQuery{}
		require.NoError(t, decoded.UnmarshalBinary(data))
		assert.Equal(t, query, decoded)
	})
}

func TestAuthPublish(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		pub := &AuthPublish{MAC: testMAC, Attr: 9, GroupID: 5, Duration: 3600}

		data, err := pub.MarshalBinary()
		require.NoError(t, err)

		decoded := &AuthPublish{}
		require.NoError(t, decoded.UnmarshalBinary(data))
		assert.Equal(t, pub, decoded)
	})

	t.Run("wire encoding is big endian", func(t *testing.T) {
		pub := &AuthPublish{MAC: testMAC, Attr: 0x0102, GroupID: 0x03040506, Duration: 0x0708090A}

		data, err := pub.MarshalBinary()
		require.NoError(t, err)

		// 4-byte TLV envelope, then the fixed-size record blob.
		require.Len(t, data, 4+clientAuthLength)
		blob := data[4:]
		assert.Equal(t, testMAC, string(blob[:MACLength]))
		assert.Equal(t, []byte{0x01, 0x02}, blob[MACLength:MACLength+2])
		assert.Equal(t, []byte{0x03, 0x04, 0x05, 0x06}, blob[MACLength+2:MACLength+6])
		assert.Equal(t, []byte{0x07, 0x08, 0x09, 0x0A}, blob[MACLength+6:])
	})

	t.Run("remaining lifetime shrinks in transit", func(t *testing.T) {
		now := time.Now()
		rec := AuthRecord{
			MAC:      testMAC,
			GroupID:  1,
			Duration: 100,
			AuthTime: now.Unix() - 40,
		}

		pub := NewAuthPublish(rec, now)
		assert.Equal(t, uint32(60), pub.Duration)
	})

	t.Run("receiver stamps its own clock", func(t *testing.T) {
		now := time.Now()
		pub := &AuthPublish{MAC: testMAC, GroupID: 1, Duration: 60}

		rec := pub.Record(now)
		assert.Equal(t, now.Unix(), rec.AuthTime)
		assert.Equal(t, uint32(60), rec.Duration)
		assert.True(t, rec.Live(now))
	})

	t.Run("unmarshal rejects wrong blob length", func(t *testing.T) {
		body, err := EncodeAttributes(Attribute{Type: AttrClientAuth, Value: make([]byte, clientAuthLength+1)})
		require.NoError(t, err)

		pub := &AuthPublish{}
		assert.True(t, errors.Is(pub.UnmarshalBinary(body), ErrInvalidRecord))
	})
}

func TestParseBody(t *testing.T) {
	t.Run("dispatches by header type", func(t *testing.T) {
		pub := &AuthPublish{MAC: testMAC, GroupID: 2, Duration: 10}
		body, err := pub.MarshalBinary()
		require.NoError(t, err)

		header := NewHeader(MsgTypeAuthPublish)
		header.Length = uint16(len(body))

		p, err := ParseBody(header, body)
		require.NoError(t, err)
		assert.Equal(t, pub, p)
	})

	t.Run("nil header", func(t *testing.T) {
		_, err := ParseBody(nil, nil)
		assert.True(t, errors.Is(err, ErrInvalidHeader))
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := ParseBody(&Header{Type: 0x7F}, nil)
		assert.True(t, errors.Is(err, ErrInvalidType))
	})
}

func TestMarshalFrame(t *testing.T) {
	nonce := strings.Repeat("c", ChapNonceLength)

	frame, err := MarshalFrame(MsgTypeHandshakeRequest, &HandshakeRequest{Nonce: nonce})
	require.NoError(t, err)
	require.Greater(t, len(frame), HeaderLength)

	header := &Header{}
	require.NoError(t, header.UnmarshalBinary(frame[:HeaderLength]))
	require.NoError(t, header.Validate())
	assert.Equal(t, uint8(MsgTypeHandshakeRequest), header.Type)
	assert.Equal(t, len(frame)-HeaderLength, int(header.Length))

	p, err := ParseBody(header, frame[HeaderLength:])
	require.NoError(t, err)
	assert.Equal(t, nonce, p.(*HandshakeRequest).Nonce)
}
