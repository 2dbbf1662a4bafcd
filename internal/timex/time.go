package timex

import "time"

// Now returns the current UTC time truncated to millisecond precision,
// which is what MongoDB stores. Timestamps used as compare-and-swap tokens
// must come from here so they survive a round trip unchanged.
func Now() time.Time {
	return Truncate(time.Now())
}

// Truncate normalizes t the same way Now does.
func Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
