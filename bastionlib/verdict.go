package bastionlib

import "time"

// RejectReason is a machine-readable cause carried by a rejecting
// Verdict. The HTTP layer maps it onto a status code and Retry-After
// header; that mapping is the collaborator's job, not this core's.
type RejectReason string

const (
	// ReasonTooManyRequests — the per-IP QPS guard tripped.
	ReasonTooManyRequests RejectReason = "too_many_requests"

	// ReasonEndpointRateLimit — a named bucket's fixed-window quota is
	// exhausted.
	ReasonEndpointRateLimit RejectReason = "endpoint_rate_limit_exceeded"

	// ReasonBurstDetected — too many identical events within a minute.
	ReasonBurstDetected RejectReason = "burst_detected"

	// ReasonBanned — the identity's circuit is open.
	ReasonBanned RejectReason = "banned"
)

// Verdict is what the protective layer returns to the calling request
// handler.
type Verdict struct {
	// Allowed tells whether the underlying action may execute.
	Allowed bool

	// Reason is set on rejection only.
	Reason RejectReason

	// Message is a human-readable explanation suitable for a response
	// body.
	Message string

	// RetryAfter is how long the client should back off. Zero for
	// allowed verdicts.
	RetryAfter time.Duration

	// Remaining is the budget left in the consumed bucket, when one was
	// consumed.
	Remaining int

	// ShadowBanned marks a soft signal: the action should appear to
	// succeed but its effects stay invisible to other users.
	ShadowBanned bool

	// ChallengeRequired marks a soft signal: the caller should be
	// presented a challenge before further writes. ChallengeProvider
	// names the configured challenge backend for the HTTP layer to
	// render.
	ChallengeRequired bool
	ChallengeProvider string

	// AnomalyHint is the key's last known composite anomaly score.
	AnomalyHint float64
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds for the
// Retry-After header. Округление вверх: заниженный интервал приведёт
// клиента к гарантированному повторному отказу.
func (v Verdict) RetryAfterSeconds() int {
	if v.RetryAfter <= 0 {
		return 0
	}

	secs := int(v.RetryAfter / time.Second)
	if v.RetryAfter%time.Second != 0 {
		secs++
	}

	return secs
}
