package authsync

import "time"

// AuthRecord represents one client's authorization grant: the MAC address it
// was granted to, the group it is scoped to and its lifetime. A record is
// live while now - AuthTime < Duration; an expired record is treated as
// absent everywhere and evicted lazily the first time it is observed.
type AuthRecord struct {
	// MAC is the fixed-format colon-separated MAC address (17 characters).
	MAC string

	// Attr is an opaque 16-bit attribute/flag value attached to the grant.
	Attr uint16

	// GroupID scopes the record to one authentication domain.
	GroupID uint32

	// Duration is the grant lifetime in seconds.
	Duration uint32

	// AuthTime is the Unix timestamp at which the grant was issued.
	AuthTime int64
}

// Live reports whether the record is still valid at the given instant.
func (r AuthRecord) Live(now time.Time) bool {
	return now.Unix()-r.AuthTime < int64(r.Duration)
}

// Remaining returns the seconds of lifetime left at the given instant.
// It returns 0 for an expired record. The remaining lifetime is recomputed
// on every transmission and never stored.
func (r AuthRecord) Remaining(now time.Time) uint32 {
	elapsed := now.Unix() - r.AuthTime
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= int64(r.Duration) {
		return 0
	}
	return r.Duration - uint32(elapsed)
}
