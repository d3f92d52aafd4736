package util

import "time"

// Backoff produces exponentially growing retry delays, doubling from the
// first delay up to a cap. Each retry loop owns its own Backoff; it is not
// meant to be shared across goroutines.
type Backoff struct {
	next time.Duration
	max  time.Duration
}

// NewBackoff returns a Backoff starting at first and capped at max.
func NewBackoff(first, max time.Duration) *Backoff {
	return &Backoff{next: first, max: max}
}

// Next returns the delay to wait before the upcoming attempt and doubles
// the delay for the one after.
func (b *Backoff) Next() time.Duration {
	d := b.next
	b.next = min(b.next*2, b.max)
	return d
}
