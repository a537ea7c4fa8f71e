package bastionlib

import "strings"

// BucketKey is a composite identity a quota or score is tracked against.
// Any subset of the optional fields may be present: a key may scope a
// limit per-user, per-IP, per-user-agent or any combination of those.
type BucketKey struct {
	// Bucket is a logical name of the protected action, e.g.
	// "eventsPerIpPerMin".
	Bucket string

	// UserID is an authenticated user identifier, if known.
	UserID string

	// IPHash is a hashed client IP (see Hasher).
	IPHash string

	// UAHash is a hashed client User-Agent.
	UAHash string
}

// String serializes the key deterministically. Two keys are equal iff
// their serializations are equal.
//
// Порядок полей фиксированный: bucket|uid|ip|ua. Разделитель '|' не
// встречается ни в hex-хэшах, ни в именах bucket'ов, поэтому коллизий
// сериализации нет.
func (b BucketKey) String() string {
	var sb strings.Builder

	sb.Grow(len(b.Bucket) + len(b.UserID) + len(b.IPHash) + len(b.UAHash) + 3)
	sb.WriteString(b.Bucket)
	sb.WriteByte('|')
	sb.WriteString(b.UserID)
	sb.WriteByte('|')
	sb.WriteString(b.IPHash)
	sb.WriteByte('|')
	sb.WriteString(b.UAHash)

	return sb.String()
}
