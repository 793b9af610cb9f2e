package authsync

// ProtocolVersion is the only wire protocol version this package speaks.
const ProtocolVersion = 0x01

// Message type constants. The type byte of every frame must be one of these;
// type 0 is reserved as invalid so an all-zero header never validates.
const (
	// MsgTypeHandshakeRequest is sent by the server immediately after accept
	// and carries the challenge nonce.
	MsgTypeHandshakeRequest = 0x01

	// MsgTypeHandshakeResponse is sent by the client and carries the CHAP
	// digest together with the client identity and its declared group ID.
	MsgTypeHandshakeResponse = 0x02

	// MsgTypeAuthQuery asks whether a MAC currently holds a live
	// authorization in a group. Answered with an AuthPublish frame when it
	// does, with silence when it does not.
	MsgTypeAuthQuery = 0x03

	// MsgTypeAuthPublish carries one authorization record. It is used for
	// client publishes, server broadcasts, join-time replay and query
	// answers alike.
	MsgTypeAuthPublish = 0x04

	// msgTypeCount bounds the closed message type enumeration.
	msgTypeCount = 0x05
)

// Attribute type constants for the TLV-encoded message bodies.
const (
	// AttrChapNonce carries the 32-byte challenge nonce.
	AttrChapNonce = 0x01

	// AttrChapDigest carries the 16-byte MD5 challenge response.
	AttrChapDigest = 0x02

	// AttrClientID carries a client identity blob:
	// mac[17] + attr:u16 + gid:u32, all big-endian.
	AttrClientID = 0x03

	// AttrClientAuth carries one authorization record:
	// mac[17] + attr:u16 + gid:u32 + remaining:u32, all big-endian.
	AttrClientAuth = 0x04

	// attrTypeCount bounds the closed attribute type enumeration.
	attrTypeCount = 0x05
)

// HeaderLength is the fixed size of a frame header in bytes.
const HeaderLength = 6

// ChapNonceLength is the length of the challenge nonce in bytes.
const ChapNonceLength = 32

// ChapDigestLength is the length of the challenge response digest in bytes.
const ChapDigestLength = 16

// MACLength is the fixed length of a colon-separated MAC address string
// (aa:bb:cc:dd:ee:ff).
const MACLength = 17

// Fixed sizes of the identity and record blobs inside their attributes.
const (
	clientIDLength   = MACLength + 2 + 4
	clientAuthLength = MACLength + 2 + 4 + 4
)

// DefaultMaxBodyLength is the default maximum accepted frame body length.
// Well-formed bodies are tens of bytes; anything close to the u16 framing
// limit is hostile.
const DefaultMaxBodyLength = 4096

// DefaultStoreShards is the default shard count of the authentication store.
const DefaultStoreShards = 4

// MessageTypeName returns a human-readable name for a message type byte,
// for logging.
func MessageTypeName(t uint8) string {
	switch t {
	case MsgTypeHandshakeRequest:
		return "HANDSHAKE_REQUEST"
	case MsgTypeHandshakeResponse:
		return "HANDSHAKE_RESPONSE"
	case MsgTypeAuthQuery:
		return "AUTH_QUERY"
	case MsgTypeAuthPublish:
		return "AUTH_PUBLISH"
	default:
		return "INVALID"
	}
}
