// Package controller drives a single limit order from intent to a
// terminal outcome: it selects the side, discovers a price, sizes the
// order from the fresh wallet snapshot, submits, and then watches the
// order against the moving reference price until it fills, drifts, or
// times out. One invocation owns exactly one order; the interface is
// always left fully resolved (filled, cancelled, or reloaded) before
// control returns.
package controller

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/arkflip/arkflip/arkflip"
	alog "github.com/arkflip/arkflip/log"
	"github.com/arkflip/arkflip/pacing"
)

// Config carries the tunable parameters of the order lifecycle. The
// three flavours of the original deployment differ only in these values.
type Config struct {
	Pair arkflip.Pair

	// SizingBand is the share of the available balance an order spends.
	SizingBand Range
	// DeductionBand is held back from the quote balance on BUY so the
	// quote leg is never fully depleted.
	DeductionBand Range
	// IncrementBand is added to the sell-side reference to form the
	// SELL target price.
	IncrementBand Range

	// Checks bounds the observation loop after submission.
	Checks int

	// BuyCheckWait and SellCheckWait separate observation ticks. SELL
	// rides longer between checks than BUY.
	BuyCheckWait  pacing.Band
	SellCheckWait pacing.Band
	// CancelRecheckWait is the pause before the post-cancel probe that
	// resolves the SELL cancel/fill race.
	CancelRecheckWait pacing.Band
}

// DefaultConfig mirrors the production deployment: ETH/USDT, the
// aggressive sizing profile, three checks.
func DefaultConfig() Config {
	return Config{
		Pair:              arkflip.Pair{Base: "ETH", Quote: "USDT"},
		SizingBand:        Range{Low: 0.80, High: 0.95},
		DeductionBand:     Range{Low: 1, High: 2},
		IncrementBand:     Range{Low: 0.01, High: 0.04},
		Checks:            3,
		BuyCheckWait:      pacing.Band{Min: 3 * time.Second, Max: 3 * time.Second},
		SellCheckWait:     pacing.Band{Min: 5 * time.Second, Max: 8 * time.Second},
		CancelRecheckWait: pacing.Band{Min: 2 * time.Second, Max: 3 * time.Second},
	}
}

// Controller runs the order lifecycle against the venue interface.
type Controller struct {
	market   arkflip.MarketData
	panel    arkflip.OrderPanel
	cfg      Config
	rng      *rand.Rand
	sleep    pacing.Sleeper
	recorder arkflip.DecisionRecorder
	logger   *slog.Logger

	buyPrice  PriceFunc
	sellPrice PriceFunc
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger overrides the logger used for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger.WithGroup("controller")
	}
}

// WithSleeper replaces the jittered waits; tests pass pacing.Instant.
func WithSleeper(s pacing.Sleeper) Option {
	return func(c *Controller) {
		c.sleep = s
	}
}

// WithRand fixes the randomness source for sizing and pricing draws.
func WithRand(rng *rand.Rand) Option {
	return func(c *Controller) {
		c.rng = rng
	}
}

// WithRecorder attaches the decision audit recorder.
func WithRecorder(r arkflip.DecisionRecorder) Option {
	return func(c *Controller) {
		c.recorder = r
	}
}

// WithBuyPricing overrides the BUY price strategy.
func WithBuyPricing(fn PriceFunc) Option {
	return func(c *Controller) {
		c.buyPrice = fn
	}
}

// WithSellPricing overrides the SELL price strategy.
func WithSellPricing(fn PriceFunc) Option {
	return func(c *Controller) {
		c.sellPrice = fn
	}
}

// New builds a Controller. By default BUY prices come straight from the
// live reference and SELL targets are derived from the sell-side
// reference plus the configured increment.
func New(market arkflip.MarketData, panel arkflip.OrderPanel, cfg Config, opts ...Option) *Controller {
	if cfg.Checks <= 0 {
		cfg.Checks = 3
	}
	c := &Controller{
		market: market,
		panel:  panel,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  pacing.NewSleeper(1, nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.buyPrice == nil {
		c.buyPrice = LivePrice(market)
	}
	if c.sellPrice == nil {
		c.sellPrice = DerivedPrice(market, cfg.IncrementBand, c.rng)
	}
	return c
}

// Run places one limit order for side and drives it to a terminal
// outcome. A nil error with OutcomeAborted means the attempt was skipped
// for an expected reason (no quote, insufficient funds); a non-nil error
// means the interface is in an indeterminate state and the session must
// restart.
func (c *Controller) Run(ctx context.Context, side arkflip.Side) (arkflip.Outcome, error) {
	logger := c.log(ctx).With(slog.String("side", side.String()), slog.String("pair", c.cfg.Pair.String()))
	logger.Info("starting limit order attempt")

	if err := c.panel.SelectSide(ctx, side); err != nil {
		return arkflip.OutcomeAborted, err
	}
	if err := c.panel.SelectLimitMode(ctx); err != nil {
		return arkflip.OutcomeAborted, err
	}
	if side == arkflip.Sell {
		// switching to limit mode can flip the active tab back; the
		// sell tab must be reasserted before touching the form
		if err := c.panel.SelectSide(ctx, side); err != nil {
			return arkflip.OutcomeAborted, err
		}
	}

	priceFn := c.priceFor(side)
	quote, err := priceFn(ctx)
	if err != nil {
		if errors.Is(err, arkflip.ErrUnavailable) {
			logger.Warn("price discovery failed, aborting attempt", slog.String("error", err.Error()))
			c.record(ctx, arkflip.Decision{Side: side, Stage: "discovery", Outcome: arkflip.OutcomeAborted.String(), Note: "no reference price"})
			return arkflip.OutcomeAborted, nil
		}
		return arkflip.OutcomeAborted, err
	}
	working := quote.Text()
	logger.Info("discovered working price", slog.String("price", working))

	bal, err := c.market.Balances(ctx, c.cfg.Pair)
	if err != nil {
		if errors.Is(err, arkflip.ErrUnavailable) {
			logger.Warn("balances unavailable, aborting attempt", slog.String("error", err.Error()))
			c.record(ctx, arkflip.Decision{Side: side, Stage: "sizing", Outcome: arkflip.OutcomeAborted.String(), Note: "balances unavailable"})
			return arkflip.OutcomeAborted, nil
		}
		return arkflip.OutcomeAborted, err
	}

	size, ok := c.size(side, bal)
	if !ok {
		logger.Warn("insufficient funds, aborting attempt",
			slog.Float64("asset_free", bal.AssetFree),
			slog.Float64("quote_free", bal.QuoteFree),
			slog.Float64("deduction", size.deduction))
		c.record(ctx, arkflip.Decision{Side: side, Stage: "sizing", Outcome: arkflip.OutcomeAborted.String(), Note: "insufficient funds"})
		return arkflip.OutcomeAborted, nil
	}
	sizeText := arkflip.FormatSize(size.amount)
	logger.Info("sized order",
		slog.String("size", sizeText),
		slog.Float64("pct", size.pct),
		slog.Float64("deduction", size.deduction))

	if err := c.panel.SetPrice(ctx, working); err != nil {
		return arkflip.OutcomeAborted, err
	}
	if err := c.panel.SetSize(ctx, sizeText); err != nil {
		return arkflip.OutcomeAborted, err
	}

	// close the race between discovery and placement: one more look at
	// the reference right before the order hits the book
	if fresh, err := priceFn(ctx); err == nil && fresh.Text() != working {
		logger.Info("price moved before submission, updating",
			slog.String("from", working), slog.String("to", fresh.Text()))
		if err := c.panel.SetPrice(ctx, fresh.Text()); err != nil {
			return arkflip.OutcomeAborted, err
		}
		working = fresh.Text()
	}

	if err := c.panel.Submit(ctx); err != nil {
		return arkflip.OutcomeAborted, err
	}
	submitted := working
	c.record(ctx, arkflip.Decision{Side: side, Stage: "submit", Reference: quote.Text(), Submitted: submitted, Size: sizeText})
	logger.Info("order submitted", slog.String("price", submitted), slog.String("size", sizeText))

	outcome, err := c.observe(ctx, side, priceFn, submitted, logger)
	if err != nil {
		return outcome, err
	}

	// leave the interface on the side's own tab for the next attempt
	if err := c.panel.SelectSide(ctx, side); err != nil {
		return outcome, err
	}
	c.record(ctx, arkflip.Decision{Side: side, Stage: "outcome", Submitted: submitted, Size: sizeText, Outcome: outcome.String()})
	return outcome, nil
}

// observe watches the submitted order for up to cfg.Checks ticks,
// resolving it to filled, cancelled for drift, or cancelled on timeout.
func (c *Controller) observe(ctx context.Context, side arkflip.Side, priceFn PriceFunc, submitted string, logger *slog.Logger) (arkflip.Outcome, error) {
	wait := c.cfg.BuyCheckWait
	if side == arkflip.Sell {
		wait = c.cfg.SellCheckWait
	}

	for check := 1; check <= c.cfg.Checks; check++ {
		if err := c.sleep.Pause(ctx, wait); err != nil {
			return arkflip.OutcomeAborted, err
		}

		presence, err := c.market.ActiveOrder(ctx)
		if err != nil {
			return arkflip.OutcomeAborted, err
		}
		switch presence {
		case arkflip.OrderAbsent:
			logger.Info("no active order found, treating as filled", slog.Int("check", check))
			return arkflip.OutcomeFilled, nil
		case arkflip.OrderUnknown:
			// an unreadable page is not evidence of a fill; spend the
			// tick and look again
			logger.Warn("order presence unknown, skipping check", slog.Int("check", check))
			continue
		}

		current, err := priceFn(ctx)
		if err != nil {
			if errors.Is(err, arkflip.ErrUnavailable) {
				logger.Warn("reference price unavailable during check", slog.Int("check", check))
				continue
			}
			return arkflip.OutcomeAborted, err
		}

		if current.Text() != submitted {
			logger.Info("price drifted from submitted order, cancelling",
				slog.Int("check", check),
				slog.String("submitted", submitted),
				slog.String("current", current.Text()))
			c.record(ctx, arkflip.Decision{Side: side, Stage: "check", Reference: current.Text(), Submitted: submitted, Note: "drift detected"})
			return c.cancelAfterDrift(ctx, side, logger)
		}
		logger.Debug("price unchanged", slog.Int("check", check), slog.String("price", submitted))
	}

	logger.Info("order still open after all checks, cancelling for retry")
	if err := c.CancelActive(ctx); err != nil {
		return arkflip.OutcomeAborted, err
	}
	return arkflip.OutcomeCancelledTimeout, nil
}

// cancelAfterDrift runs the cancellation primitive for a drifted order.
// On SELL, a cancel that failed outright but is followed by an empty
// order slot means the cancel raced a fill, and the attempt resolves as
// filled; BUY has no such fallback.
func (c *Controller) cancelAfterDrift(ctx context.Context, side arkflip.Side, logger *slog.Logger) (arkflip.Outcome, error) {
	result, err := c.panel.Cancel(ctx)
	if err != nil {
		return arkflip.OutcomeAborted, err
	}
	logger.Info("cancel attempted", slog.String("result", result.String()))

	if side == arkflip.Sell {
		if err := c.sleep.Pause(ctx, c.cfg.CancelRecheckWait); err != nil {
			return arkflip.OutcomeAborted, err
		}
	}

	presence, err := c.market.ActiveOrder(ctx)
	if err != nil {
		return arkflip.OutcomeAborted, err
	}

	if presence == arkflip.OrderAbsent {
		if side == arkflip.Sell && result == arkflip.CancelFailed {
			logger.Info("cancel failed but order is gone, treating as filled")
			c.record(ctx, arkflip.Decision{Side: side, Stage: "cancel", Outcome: arkflip.OutcomeFilled.String(), Note: "cancel raced a fill"})
			return arkflip.OutcomeFilled, nil
		}
		return arkflip.OutcomeCancelledDrift, nil
	}

	// order survived both cancel paths; a reload is the unconditional
	// fallback that leaves no order unaccounted for
	logger.Warn("order still present after cancel, reloading interface", slog.String("presence", presence.String()))
	if err := c.panel.Reload(ctx); err != nil {
		return arkflip.OutcomeAborted, err
	}
	return arkflip.OutcomeCancelledDrift, nil
}

// CancelActive is the shared cancellation primitive: normal cancel, then
// forced, then a presence probe, with a full interface reload as the
// last resort. Invoking it with no active order is a harmless no-op. The
// supervisor uses it to clear stuck orders.
func (c *Controller) CancelActive(ctx context.Context) error {
	result, err := c.panel.Cancel(ctx)
	if err != nil {
		return err
	}

	presence, err := c.market.ActiveOrder(ctx)
	if err != nil {
		return err
	}
	if presence == arkflip.OrderAbsent {
		c.log(ctx).Info("cancellation complete", slog.String("result", result.String()))
		return nil
	}

	c.log(ctx).Warn("cancellation did not clear the order, reloading",
		slog.String("result", result.String()),
		slog.String("presence", presence.String()))
	c.record(ctx, arkflip.Decision{Stage: "cancel", Note: "reload fallback"})
	return c.panel.Reload(ctx)
}

func (c *Controller) priceFor(side arkflip.Side) PriceFunc {
	if side == arkflip.Sell {
		return c.sellPrice
	}
	return c.buyPrice
}

func (c *Controller) size(side arkflip.Side, bal arkflip.Balances) (sizing, bool) {
	pct := c.cfg.SizingBand.draw(c.rng)
	if side == arkflip.Sell {
		return sellSizing(bal, pct)
	}
	return buySizing(bal, pct, c.cfg.DeductionBand.draw(c.rng))
}

// log resolves the diagnostics logger, falling back to the one the
// caller's context carries.
func (c *Controller) log(ctx context.Context) *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return alog.LoggerFromContext(ctx).WithGroup("controller")
}

// record writes a decision to the audit journal; recording failures are
// logged and otherwise ignored.
func (c *Controller) record(ctx context.Context, d arkflip.Decision) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.RecordDecision(ctx, d); err != nil {
		c.log(ctx).Debug("decision record failed", slog.String("error", err.Error()))
	}
}
