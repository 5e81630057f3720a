// pkg/upstream/backoff.go
package upstream

import (
	"math/rand"
	"time"
)

// Policy bounds the retry loop: base delay doubling per attempt, capped,
// with ±20% jitter. MaxAttempts bounds each attempt class separately
// (throttle and transient failures keep their own counters).
type Policy struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

func (p Policy) withDefaults() Policy {
	if p.Base <= 0 {
		p.Base = 500 * time.Millisecond
	}
	if p.Cap <= 0 {
		p.Cap = 30 * time.Second
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 5
	}
	return p
}

// Delay computes the backoff for the n-th retry of a class (n starts at
// 1). Hint-driven waits bypass this entirely.
func (p Policy) Delay(n int) time.Duration {
	d := p.Base
	for i := 1; i < n; i++ {
		d *= 2
		if d >= p.Cap {
			d = p.Cap
			break
		}
	}
	// ±20% jitter keeps synchronized tenants from thundering together.
	jitter := 0.8 + 0.4*rand.Float64()
	d = time.Duration(float64(d) * jitter)
	if d > p.Cap {
		d = p.Cap
	}
	return d
}

// schedule is the explicit state of one call's retry loop: how many
// attempts each class has consumed and what the loop decided to do
// next. It composes with cancellation because the client, not the
// schedule, owns the waiting.
type schedule struct {
	policy    Policy
	attempts  int // total calls made
	throttled int // throttle-class attempts consumed
	transient int // transient-class attempts consumed
}

func newSchedule(p Policy) *schedule {
	return &schedule{policy: p.withDefaults()}
}

// started records that a call attempt is being made.
func (s *schedule) started() int {
	s.attempts++
	return s.attempts
}

// nextThrottle decides whether another attempt is allowed after a
// throttling signal; hint overrides the computed backoff when positive.
func (s *schedule) nextThrottle(hint time.Duration) (time.Duration, bool) {
	s.throttled++
	if s.attempts >= s.policy.MaxAttempts {
		return 0, false
	}
	if hint > 0 {
		return hint, true
	}
	return s.policy.Delay(s.throttled), true
}

// nextTransient is the same decision for transient network/server
// failures, on its own counter.
func (s *schedule) nextTransient() (time.Duration, bool) {
	s.transient++
	if s.attempts >= s.policy.MaxAttempts {
		return 0, false
	}
	return s.policy.Delay(s.transient), true
}
