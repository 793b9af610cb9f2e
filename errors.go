package authsync

import "errors"

// Protocol errors for auth-sync operations.
var (
	// ErrInvalidHeader indicates the frame header is malformed.
	ErrInvalidHeader = errors.New("invalid header")

	// ErrInvalidVersion indicates an unsupported protocol version.
	ErrInvalidVersion = errors.New("invalid version")

	// ErrInvalidType indicates a message type outside the closed enumeration.
	ErrInvalidType = errors.New("invalid message type")

	// ErrEmptyBody indicates a header declaring a zero-length body.
	// Every well-formed message carries at least one attribute.
	ErrEmptyBody = errors.New("empty body")

	// ErrBodyTooLarge indicates the declared body length exceeds the maximum.
	ErrBodyTooLarge = errors.New("body too large")

	// ErrBufferTooShort indicates the buffer is too short for the operation.
	ErrBufferTooShort = errors.New("buffer too short")

	// ErrInvalidAttribute indicates a structurally malformed TLV attribute.
	ErrInvalidAttribute = errors.New("invalid attribute")

	// ErrMissingAttribute indicates a body lacking a required attribute.
	ErrMissingAttribute = errors.New("missing attribute")

	// ErrInvalidRecord indicates a malformed authorization record blob.
	ErrInvalidRecord = errors.New("invalid auth record")

	// ErrAuthenticationFailed indicates the challenge handshake failed.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrNotAuthenticated indicates an operation requiring a completed
	// handshake was attempted before one.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrConnectionClosed indicates the connection was terminated.
	ErrConnectionClosed = errors.New("connection closed")
)
