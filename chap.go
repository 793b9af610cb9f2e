package authsync

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
)

const nonceCharset = "0123456789" +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
	"abcdefghijklmnopqrstuvwxyz"

// NewChallenge generates a random printable challenge nonce of
// ChapNonceLength bytes. Uniqueness is not guaranteed, only practical
// unpredictability.
func NewChallenge() (string, error) {
	buf := make([]byte, ChapNonceLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate challenge: %w", err)
	}
	for i, b := range buf {
		buf[i] = nonceCharset[int(b)%len(nonceCharset)]
	}
	return string(buf), nil
}

// ChapDigest computes the challenge response for a nonce and shared secret:
// MD5(nonce || secret), 16 raw bytes. MD5 keeps the digest wire compatible
// with deployed peers.
func ChapDigest(nonce, secret string) []byte {
	sum := md5.Sum([]byte(nonce + secret))
	return sum[:]
}

// VerifyChap checks a received challenge response against the issued nonce
// and shared secret. It fails closed: any length mismatch or digest mismatch
// returns false.
func VerifyChap(digest []byte, nonce, secret string) bool {
	if len(digest) != ChapDigestLength {
		return false
	}
	return subtle.ConstantTimeCompare(digest, ChapDigest(nonce, secret)) == 1
}
