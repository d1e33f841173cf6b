package browser

import (
	"context"
	"log/slog"

	"github.com/arkflip/arkflip/arkflip"
	"github.com/arkflip/arkflip/pacing"
)

// Panel operates the order form. It implements arkflip.OrderPanel. The
// form exposes a notional (quote amount) input on the buy tab and a size
// (asset amount) input on the sell tab, so the panel tracks which tab it
// last selected.
type Panel struct {
	page   dom
	sleep  pacing.Sleeper
	logger *slog.Logger

	side arkflip.Side
}

// PanelOption configures a Panel.
type PanelOption func(*Panel)

// WithPanelSleeper replaces the post-cancel settle pacing.
func WithPanelSleeper(s pacing.Sleeper) PanelOption {
	return func(p *Panel) { p.sleep = s }
}

// WithPanelLogger overrides the logger.
func WithPanelLogger(logger *slog.Logger) PanelOption {
	return func(p *Panel) { p.logger = logger.WithGroup("panel") }
}

// NewPanel builds a Panel starting on the buy tab.
func NewPanel(page dom, opts ...PanelOption) *Panel {
	p := &Panel{
		page:   page,
		sleep:  pacing.NewSleeper(1, nil),
		logger: slog.Default().WithGroup("panel"),
		side:   arkflip.Buy,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SelectSide clicks the buy or sell tab.
func (p *Panel) SelectSide(ctx context.Context, side arkflip.Side) error {
	selector := buyTabSelector
	if side == arkflip.Sell {
		selector = sellTabSelector
	}
	if err := p.page.ClickSelector(ctx, selector); err != nil {
		return err
	}
	p.side = side
	return nil
}

// SelectLimitMode clicks the limit order tab.
func (p *Panel) SelectLimitMode(ctx context.Context) error {
	return p.page.ClickSelector(ctx, limitTabSelector)
}

// SetPrice fills the limit price input.
func (p *Panel) SetPrice(ctx context.Context, price string) error {
	return p.page.Fill(ctx, priceInputSelector, price)
}

// SetSize fills the amount input for the currently selected side: the
// notional field spends quote on buys, the size field sells the asset.
func (p *Panel) SetSize(ctx context.Context, size string) error {
	selector := notionalSelector
	if p.side == arkflip.Sell {
		selector = sizeInputSelector
	}
	return p.page.Fill(ctx, selector, size)
}

// Submit clicks the order submit button.
func (p *Panel) Submit(ctx context.Context) error {
	return p.page.ClickSelector(ctx, submitSelector)
}

// Cancel tries a normal click on the cancel button, then a scripted
// click when the button is present but unclickable. Neither failing is
// itself an error; the caller decides what a failed cancel means from
// the order presence that follows.
func (p *Panel) Cancel(ctx context.Context) (arkflip.CancelResult, error) {
	if err := p.page.ClickSelector(ctx, cancelSelector); err == nil {
		p.logger.Info("order cancelled normally")
		return arkflip.CancelNormal, p.sleep.Pause(ctx, settleDelay)
	} else if ctx.Err() != nil {
		return arkflip.CancelFailed, ctx.Err()
	} else {
		p.logger.Warn("normal cancellation failed, forcing", slog.String("error", err.Error()))
	}

	if err := p.page.ForceClick(ctx, cancelSelector); err == nil {
		p.logger.Info("order cancelled via forced click")
		return arkflip.CancelForced, p.sleep.Pause(ctx, settleDelay)
	} else if ctx.Err() != nil {
		return arkflip.CancelFailed, ctx.Err()
	} else {
		p.logger.Warn("forced cancellation failed", slog.String("error", err.Error()))
	}
	return arkflip.CancelFailed, nil
}

// Reload reloads the whole page, discarding any wedged form state.
func (p *Panel) Reload(ctx context.Context) error {
	p.logger.Warn("reloading trading interface")
	return p.page.Reload(ctx)
}
