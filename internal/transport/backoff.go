package transport

import (
	"math"
	"time"
)

// Policy controls how a dropped connection is retried with exponential backoff.
// Attempts are unbounded; the loop stops only on an explicit Disconnect.
type Policy struct {
	Base   time.Duration
	Factor float64
	Cap    time.Duration
}

// DefaultPolicy returns a Policy with 1s base delay, 2x factor, 30s cap.
func DefaultPolicy() Policy {
	return Policy{
		Base:   1 * time.Second,
		Factor: 2.0,
		Cap:    30 * time.Second,
	}
}

// Delay returns the backoff delay for the given attempt number (1-indexed).
// The delay is Base * Factor^(attempt-1), capped at Cap.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(p.Base) * math.Pow(p.Factor, float64(attempt-1))
	if delay > float64(p.Cap) {
		return p.Cap
	}

	return time.Duration(delay)
}
