package session

import (
	"math"
	"math/rand"
	"time"

	"github.com/jpillora/backoff"
)

// Policy describes the reconnect delays: Base, Base*Factor, Base*Factor², ...
// capped at Max, each spread by ±Jitter (a fraction of the delay).
type Policy struct {
	Base   time.Duration
	Factor float64
	Max    time.Duration
	Jitter float64
}

// DefaultPolicy is 1s, 2s, 4s ... up to 30s with ±20% jitter.
func DefaultPolicy() Policy {
	return Policy{Base: time.Second, Factor: 2, Max: 30 * time.Second, Jitter: 0.2}
}

type reconnectBackoff struct {
	b      *backoff.Backoff
	jitter float64
	rand   func() float64
}

func newReconnectBackoff(p Policy, rnd func() float64) *reconnectBackoff {
	def := DefaultPolicy()
	if p.Base <= 0 {
		p.Base = def.Base
	}
	if p.Factor < 1 {
		p.Factor = def.Factor
	}
	if p.Max <= 0 {
		p.Max = def.Max
	}
	if p.Max < p.Base {
		p.Max = p.Base
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		p.Jitter = 0
	}
	if rnd == nil {
		rnd = rand.Float64
	}
	return &reconnectBackoff{
		// Jitter is applied symmetrically below; backoff's own jitter only adds.
		b:      &backoff.Backoff{Min: p.Base, Max: p.Max, Factor: p.Factor, Jitter: false},
		jitter: p.Jitter,
		rand:   rnd,
	}
}

// Next returns the delay before the next attempt and advances the attempt counter.
func (r *reconnectBackoff) Next() time.Duration {
	d := r.b.Duration()
	if r.jitter == 0 {
		return d
	}
	spread := r.jitter * (2*r.rand() - 1)
	d = time.Duration(math.Round(float64(d) * (1 + spread)))
	if d > r.b.Max {
		d = r.b.Max
	}
	return d
}

// Reset starts the sequence over after a successful connect.
func (r *reconnectBackoff) Reset() { r.b.Reset() }

// Attempt is the number of delays handed out since the last reset.
func (r *reconnectBackoff) Attempt() int { return int(r.b.Attempt()) }
