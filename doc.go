// Package authsync implements the auth-sync gateway protocol: NAC devices
// connect over TCP, authenticate with a CHAP-style challenge handshake and
// publish MAC-address authorization records scoped to a numeric group ID,
// so that every gateway serving the same group observes the same live
// authentication state. It provides both the server and the client side.
package authsync
