package refresher

import "time"

// Backoff computes the retry gate for failed refreshes: exponential growth
// from Base by Factor, capped at Max. Connectors never retry on their own;
// this policy is the only source of retry timing.
type Backoff struct {
	Base   time.Duration
	Factor float64
	Max    time.Duration
}

// DefaultBackoff matches the recommended schedule: 1s base, doubling,
// capped at 60s.
var DefaultBackoff = Backoff{
	Base:   time.Second,
	Factor: 2,
	Max:    60 * time.Second,
}

// Delay returns the wait before the next attempt is eligible, where attempt
// is the number of failures so far (1 for the first failure).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(b.Base)
	for i := 1; i < attempt; i++ {
		d *= b.Factor
		if time.Duration(d) >= b.Max {
			return b.Max
		}
	}
	if time.Duration(d) > b.Max {
		return b.Max
	}
	return time.Duration(d)
}
