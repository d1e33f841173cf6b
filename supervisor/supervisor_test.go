package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arkflip/arkflip/arkflip"
	alog "github.com/arkflip/arkflip/log"
	"github.com/arkflip/arkflip/pacing"
)

type fakeRunner struct {
	runs    []arkflip.Side
	cancels int

	runFn func(ctx context.Context, side arkflip.Side) (arkflip.Outcome, error)
}

func (f *fakeRunner) Run(ctx context.Context, side arkflip.Side) (arkflip.Outcome, error) {
	f.runs = append(f.runs, side)
	if f.runFn != nil {
		return f.runFn(ctx, side)
	}
	return arkflip.OutcomeFilled, nil
}

func (f *fakeRunner) CancelActive(ctx context.Context) error {
	f.cancels++
	return nil
}

type fakeMarket struct {
	activeFn func(ctx context.Context) (arkflip.Presence, error)
}

func (f *fakeMarket) BuyPrice(ctx context.Context) (arkflip.Quote, error) {
	return arkflip.Quote{Value: 100, ObservedAt: time.Now()}, nil
}

func (f *fakeMarket) SellPrice(ctx context.Context) (arkflip.Quote, error) {
	return arkflip.Quote{Value: 100, ObservedAt: time.Now()}, nil
}

func (f *fakeMarket) Balances(ctx context.Context, pair arkflip.Pair) (arkflip.Balances, error) {
	return arkflip.Balances{}, nil
}

func (f *fakeMarket) ActiveOrder(ctx context.Context) (arkflip.Presence, error) {
	return f.activeFn(ctx)
}

func newTestSupervisor(runner *fakeRunner, market *fakeMarket) *Supervisor {
	return New(runner, market, WithSleeper(pacing.Instant{}))
}

func TestStepAlternatesPhaseOnFill(t *testing.T) {
	market := &fakeMarket{activeFn: func(ctx context.Context) (arkflip.Presence, error) {
		return arkflip.OrderAbsent, nil
	}}
	runner := &fakeRunner{}
	s := newTestSupervisor(runner, market)

	require.Equal(t, arkflip.Buy, s.Phase())
	require.NoError(t, s.step(context.Background()))
	require.Equal(t, arkflip.Sell, s.Phase())
	require.NoError(t, s.step(context.Background()))
	require.Equal(t, arkflip.Buy, s.Phase())
	require.Equal(t, []arkflip.Side{arkflip.Buy, arkflip.Sell}, runner.runs)
}

func TestStepKeepsPhaseWhenNotFilled(t *testing.T) {
	for _, outcome := range []arkflip.Outcome{
		arkflip.OutcomeCancelledDrift,
		arkflip.OutcomeCancelledTimeout,
		arkflip.OutcomeAborted,
	} {
		t.Run(outcome.String(), func(t *testing.T) {
			market := &fakeMarket{activeFn: func(ctx context.Context) (arkflip.Presence, error) {
				return arkflip.OrderAbsent, nil
			}}
			runner := &fakeRunner{runFn: func(ctx context.Context, side arkflip.Side) (arkflip.Outcome, error) {
				return outcome, nil
			}}
			s := newTestSupervisor(runner, market)

			require.NoError(t, s.step(context.Background()))
			require.Equal(t, arkflip.Buy, s.Phase())
		})
	}
}

func TestStepKeepsPhaseWhenFillUnconfirmed(t *testing.T) {
	probes := 0
	market := &fakeMarket{activeFn: func(ctx context.Context) (arkflip.Presence, error) {
		probes++
		if probes == 1 {
			return arkflip.OrderAbsent, nil // pre-run probe
		}
		return arkflip.OrderPresent, nil // post-fill confirmation fails
	}}
	runner := &fakeRunner{}
	s := newTestSupervisor(runner, market)

	require.NoError(t, s.step(context.Background()))
	require.Equal(t, arkflip.Buy, s.Phase())
}

func TestStuckOrderForcesCancelAtThreshold(t *testing.T) {
	market := &fakeMarket{activeFn: func(ctx context.Context) (arkflip.Presence, error) {
		return arkflip.OrderPresent, nil
	}}
	runner := &fakeRunner{}
	s := newTestSupervisor(runner, market)

	ctx := context.Background()
	require.NoError(t, s.step(ctx))
	require.NoError(t, s.step(ctx))
	require.Zero(t, runner.cancels)

	require.NoError(t, s.step(ctx))
	require.Equal(t, 1, runner.cancels)
	require.Zero(t, s.stuck)
	require.Empty(t, runner.runs)
}

func TestStuckCounterResetsOnAbsence(t *testing.T) {
	presences := []arkflip.Presence{
		arkflip.OrderPresent,
		arkflip.OrderPresent,
		arkflip.OrderAbsent,
		arkflip.OrderPresent,
		arkflip.OrderPresent,
	}
	idx := 0
	market := &fakeMarket{activeFn: func(ctx context.Context) (arkflip.Presence, error) {
		p := presences[idx%len(presences)]
		idx++
		return p, nil
	}}
	runner := &fakeRunner{runFn: func(ctx context.Context, side arkflip.Side) (arkflip.Outcome, error) {
		return arkflip.OutcomeAborted, nil
	}}
	s := newTestSupervisor(runner, market)

	ctx := context.Background()
	require.NoError(t, s.step(ctx)) // present, stuck=1
	require.NoError(t, s.step(ctx)) // present, stuck=2
	require.NoError(t, s.step(ctx)) // absent, counter resets, phase runs
	require.NoError(t, s.step(ctx)) // present, stuck=1
	require.NoError(t, s.step(ctx)) // present, stuck=2

	require.Zero(t, runner.cancels)
	require.Len(t, runner.runs, 1)
}

func TestUnknownPresenceDoesNotChargeStuckCounter(t *testing.T) {
	market := &fakeMarket{activeFn: func(ctx context.Context) (arkflip.Presence, error) {
		return arkflip.OrderUnknown, nil
	}}
	runner := &fakeRunner{}
	s := newTestSupervisor(runner, market)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.step(ctx))
	}
	require.Zero(t, s.stuck)
	require.Zero(t, runner.cancels)
	require.Empty(t, runner.runs)
}

func TestRunPropagatesRunnerError(t *testing.T) {
	market := &fakeMarket{activeFn: func(ctx context.Context) (arkflip.Presence, error) {
		return arkflip.OrderAbsent, nil
	}}
	boom := errors.New("page gone")
	runner := &fakeRunner{runFn: func(ctx context.Context, side arkflip.Side) (arkflip.Outcome, error) {
		return arkflip.OutcomeAborted, boom
	}}
	s := newTestSupervisor(runner, market)

	err := s.Run(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	market := &fakeMarket{activeFn: func(ctx context.Context) (arkflip.Presence, error) {
		return arkflip.OrderAbsent, nil
	}}
	runner := &fakeRunner{runFn: func(ctx context.Context, side arkflip.Side) (arkflip.Outcome, error) {
		return arkflip.OutcomeAborted, nil
	}}
	s := newTestSupervisor(runner, market)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

type captureHandler struct {
	mu       sync.Mutex
	messages []string
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, r.Message)
	return nil
}
func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func TestStepLogsThroughContextLogger(t *testing.T) {
	market := &fakeMarket{activeFn: func(ctx context.Context) (arkflip.Presence, error) {
		return arkflip.OrderAbsent, nil
	}}
	sup := newTestSupervisor(&fakeRunner{}, market)

	captured := &captureHandler{}
	ctx := alog.ContextWithLogger(context.Background(), slog.New(captured))

	require.NoError(t, sup.step(ctx))
	require.Contains(t, captured.messages, "phase attempt finished")
}
