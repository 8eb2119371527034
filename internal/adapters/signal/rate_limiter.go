package signal

import (
	"golang.org/x/time/rate"
)

// maxStrikes is how many consecutive rejected messages a connection may send
// before it is dropped.
const maxStrikes = 20

// ConnRateLimiter throttles the messages of one connection.
type ConnRateLimiter struct {
	lim     *rate.Limiter
	strikes int
}

func NewConnRateLimiter(perSecond float64, burst int) *ConnRateLimiter {
	return &ConnRateLimiter{lim: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Allow reports whether the next message may be processed and whether the
// connection has exceeded the limit for too long. Only the read pump calls it.
func (rl *ConnRateLimiter) Allow() (ok, abusive bool) {
	if rl.lim.Allow() {
		rl.strikes = 0
		return true, false
	}
	rl.strikes++
	return false, rl.strikes >= maxStrikes
}
