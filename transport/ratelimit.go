package transport

import "golang.org/x/time/rate"

// DefaultInboundRate and DefaultInboundBurst bound how many frames per
// second a single front-facing connection may push at the driver. Back-to-
// back connections are not limited: they are trusted fleet members, not
// arbitrary clients.
const (
	DefaultInboundRate  = 200
	DefaultInboundBurst = 400
)

// dropHardCap is how many consecutive over-limit frames a connection may
// have dropped before it is treated as abusive and closed outright, rather
// than quietly rate-limited forever.
const dropHardCap = 100

// NewInboundLimiter builds a token-bucket limiter sized for one front
// connection.
func NewInboundLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(DefaultInboundRate), DefaultInboundBurst)
}
