// Package supervisor alternates buy and sell phases, handing each phase
// to the order controller and advancing only on a confirmed fill. It
// also watches for orders that linger across iterations and clears them
// with a forced cancel once they are judged stuck.
package supervisor

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/arkflip/arkflip/arkflip"
	alog "github.com/arkflip/arkflip/log"
	"github.com/arkflip/arkflip/pacing"
)

// stuckThreshold is the number of consecutive iterations an order may
// survive before it is forcibly cleared.
const stuckThreshold = 3

// Runner is the slice of the controller the supervisor drives.
type Runner interface {
	Run(ctx context.Context, side arkflip.Side) (arkflip.Outcome, error)
	CancelActive(ctx context.Context) error
}

// Supervisor owns the phase state machine. It is single-threaded; one
// Run loop serializes every venue interaction.
type Supervisor struct {
	runner Runner
	market arkflip.MarketData
	logger *slog.Logger
	sleep  pacing.Sleeper
	rng    *rand.Rand

	poll  pacing.Band
	pause pacing.Band

	phase arkflip.Side
	stuck int
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger overrides the logger used for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logger.WithGroup("supervisor")
	}
}

// WithSleeper replaces the jittered waits; tests pass pacing.Instant.
func WithSleeper(sl pacing.Sleeper) Option {
	return func(s *Supervisor) {
		s.sleep = sl
	}
}

// WithRand fixes the randomness source for the jittered pauses.
func WithRand(rng *rand.Rand) Option {
	return func(s *Supervisor) {
		s.rng = rng
	}
}

// WithPollInterval sets the wait applied when an order is still open and
// the phase cannot proceed.
func WithPollInterval(band pacing.Band) Option {
	return func(s *Supervisor) {
		s.poll = band
	}
}

// WithIterationPause sets the short delay between loop iterations.
func WithIterationPause(band pacing.Band) Option {
	return func(s *Supervisor) {
		s.pause = band
	}
}

// New builds a Supervisor starting in the buy phase.
func New(runner Runner, market arkflip.MarketData, opts ...Option) *Supervisor {
	s := &Supervisor{
		runner: runner,
		market: market,
		sleep:  pacing.NewSleeper(1, nil),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		poll:   pacing.Band{Min: 10 * time.Second, Max: 15 * time.Second},
		pause:  pacing.Band{Min: 100 * time.Millisecond, Max: 300 * time.Millisecond},
		phase:  arkflip.Buy,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// log resolves the diagnostics logger, falling back to the one the
// caller's context carries.
func (s *Supervisor) log(ctx context.Context) *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return alog.LoggerFromContext(ctx).WithGroup("supervisor")
}

// Phase reports the side the next attempt will trade.
func (s *Supervisor) Phase() arkflip.Side {
	return s.phase
}

// Run loops phases until the context is cancelled or the runner reports
// an error that requires a session restart. The returned error is never
// swallowed; expected aborts inside a phase do not surface here.
func (s *Supervisor) Run(ctx context.Context) error {
	s.log(ctx).Info("supervisor starting", slog.String("phase", s.phase.String()))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.step(ctx); err != nil {
			return err
		}
		if err := s.sleep.Pause(ctx, s.pause); err != nil {
			return err
		}
	}
}

// step performs one supervisor iteration: check for a leftover order,
// clear it if it is stuck, otherwise run the current phase.
func (s *Supervisor) step(ctx context.Context) error {
	presence, err := s.market.ActiveOrder(ctx)
	if err != nil {
		return err
	}

	switch presence {
	case arkflip.OrderPresent:
		s.stuck++
		s.log(ctx).Info("active order still open",
			slog.String("phase", s.phase.String()),
			slog.Int("stuck", s.stuck))
		if s.stuck >= stuckThreshold {
			s.log(ctx).Warn("order judged stuck, forcing cancellation", slog.Int("iterations", s.stuck))
			if err := s.runner.CancelActive(ctx); err != nil {
				return err
			}
			s.stuck = 0
		}
		return s.sleep.Pause(ctx, s.poll)

	case arkflip.OrderUnknown:
		// a loading page looks the same as a stuck order; wait without
		// charging the counter
		s.log(ctx).Warn("order presence unknown, waiting")
		return s.sleep.Pause(ctx, s.poll)
	}

	s.stuck = 0

	outcome, err := s.runner.Run(ctx, s.phase)
	if err != nil {
		return err
	}
	s.log(ctx).Info("phase attempt finished",
		slog.String("phase", s.phase.String()),
		slog.String("outcome", outcome.String()))

	if outcome == arkflip.OutcomeFilled {
		s.advance(ctx)
	}
	return nil
}

// advance flips the phase after a fill, but only once the book confirms
// no order remains; a fill report with a lingering order keeps the phase
// so the next iteration re-examines it.
func (s *Supervisor) advance(ctx context.Context) {
	presence, err := s.market.ActiveOrder(ctx)
	if err != nil || presence != arkflip.OrderAbsent {
		s.log(ctx).Warn("fill reported but order state unconfirmed, keeping phase",
			slog.String("phase", s.phase.String()))
		return
	}
	next := s.phase.Opposite()
	s.log(ctx).Info("phase complete, switching",
		slog.String("from", s.phase.String()),
		slog.String("to", next.String()))
	s.phase = next
}
