package retry

import "time"

const (
	DefaultBaseDelay  = 60 * time.Second
	DefaultMaxDelay   = 30 * time.Minute
	DefaultMaxRetries = 5
)

// Delay returns min(base * 2^n, max). Negative n is treated as zero.
func Delay(n int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if max <= 0 {
		max = DefaultMaxDelay
	}
	if n < 0 {
		n = 0
	}
	d := base
	for i := 0; i < n; i++ {
		if d >= max || d > max/2 {
			return max
		}
		d *= 2
	}
	if d > max {
		return max
	}
	return d
}
