// Package pacing provides the jittered blocking waits the trading loop
// runs on. Every pause between interface actions is drawn from a band and
// scaled by a global speed factor so the interaction pattern never looks
// mechanically uniform.
package pacing

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Band is a half-open duration range a pause is drawn from.
type Band struct {
	Min time.Duration
	Max time.Duration
}

// Scaled returns the band with both bounds multiplied by factor.
func (b Band) Scaled(factor float64) Band {
	if factor <= 0 {
		return b
	}
	return Band{
		Min: time.Duration(float64(b.Min) * factor),
		Max: time.Duration(float64(b.Max) * factor),
	}
}

// Sleeper blocks the single logical thread of control for a jittered
// interval. Tests substitute an instant implementation.
type Sleeper interface {
	Pause(ctx context.Context, band Band) error
}

type jitterSleeper struct {
	factor float64
	mu     sync.Mutex
	rng    *rand.Rand
}

// NewSleeper returns a Sleeper that draws uniformly from the scaled band.
// A non-positive factor falls back to 1.
func NewSleeper(factor float64, rng *rand.Rand) Sleeper {
	if factor <= 0 {
		factor = 1
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &jitterSleeper{factor: factor, rng: rng}
}

func (s *jitterSleeper) Pause(ctx context.Context, band Band) error {
	d := s.draw(band.Scaled(s.factor))
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		if !timer.Stop() {
			<-timer.C
		}
		return ctx.Err()
	}
}

func (s *jitterSleeper) draw(band Band) time.Duration {
	if band.Max <= band.Min {
		return band.Min
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return band.Min + time.Duration(s.rng.Int63n(int64(band.Max-band.Min)))
}

// Instant is a Sleeper that only observes context cancellation. Used in
// tests and anywhere a wait must be suppressed.
type Instant struct{}

func (Instant) Pause(ctx context.Context, _ Band) error {
	return ctx.Err()
}

// Gate enforces a minimum spacing between venue interactions, with an
// optional cooldown when the venue pushes back. Safe for concurrent use.
type Gate struct {
	mu         sync.Mutex
	minSpacing time.Duration
	next       time.Time
}

const defaultGateSpacing = 300 * time.Millisecond

// NewGate returns a Gate spacing actions by at least minSpacing. A
// non-positive spacing falls back to a sensible default.
func NewGate(minSpacing time.Duration) *Gate {
	if minSpacing <= 0 {
		minSpacing = defaultGateSpacing
	}
	return &Gate{minSpacing: minSpacing, next: time.Now()}
}

// Wait blocks until the gate's next slot, then reserves a new one.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		wait := time.Until(g.next)
		if wait <= 0 {
			g.next = time.Now().Add(g.minSpacing)
			g.mu.Unlock()
			return nil
		}
		g.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return ctx.Err()
		}
	}
}

// Cooldown pushes the next slot out by d if that is later than the
// currently reserved slot.
func (g *Gate) Cooldown(d time.Duration) {
	if d <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	next := time.Now().Add(d)
	if next.After(g.next) {
		g.next = next
	}
}
