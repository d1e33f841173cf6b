package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/arkflip/arkflip/arkflip"
)

// Selectors for the venue's trading page. The cancel button carries no
// testid; its hashed class list is pinned to the deployed frontend
// build and breaks when the venue ships new styles.
const (
	orderSelector     = `[data-testid="trade-tradeinfo-order-id-0"]`
	buyPriceSelector  = "div.text-green-900 button, button.text-green-900"
	sellPriceSelector = "div.text-red-900 button, button.text-red-900"

	walletName0Selector = `[data-testid="trade-wallet-asset-name-0"]`
	walletName1Selector = `[data-testid="trade-wallet-asset-name-1"]`
	walletFree0Selector = `[data-testid="trade-wallet-asset-free-0"]`
	walletFree1Selector = `[data-testid="trade-wallet-asset-free-1"]`

	buyTabSelector     = `[data-testid="trade-orderform-buy-tab"]`
	sellTabSelector    = `[data-testid="trade-orderform-sell-tab"]`
	limitTabSelector   = `[data-testid="trade-orderform-limit-tab"]`
	priceInputSelector = `[data-testid="trade-orderform-limit-price-input"]`
	notionalSelector   = `[data-testid="trade-orderform-notional-input"]`
	sizeInputSelector  = `[data-testid="trade-orderform-size-input"]`
	submitSelector     = `[data-testid="trade-orderform-submit-button"]`
	cancelSelector     = ".a480080.a99729a.ac07bd5.af77d85"
)

// dom is the slice of Page the adapters need. Tests substitute a fake.
type dom interface {
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	TextContent(ctx context.Context, selector string) (string, error)
	Present(ctx context.Context, selector string) (bool, error)
	ClickSelector(ctx context.Context, selector string) error
	ForceClick(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	Reload(ctx context.Context) error
}

var nonNumeric = regexp.MustCompile(`[^0-9.]`)

// parseBalance strips the thousands separators and currency decorations
// the wallet widget renders around the number.
func parseBalance(text string) (float64, error) {
	clean := nonNumeric.ReplaceAllString(text, "")
	if clean == "" {
		return 0, fmt.Errorf("no digits in balance text %q", text)
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, fmt.Errorf("parse balance %q: %w", text, err)
	}
	return v, nil
}

// Market reads prices, balances, and order presence off the trading
// page. It implements arkflip.MarketData.
type Market struct {
	page dom
	pair arkflip.Pair
	// quoteReserve is subtracted from the quote balance when the wallet
	// lists the quote asset in the first row; that row includes funds
	// the order form cannot actually spend.
	quoteReserve float64
	logger       *slog.Logger
}

// MarketOption configures a Market.
type MarketOption func(*Market)

// WithQuoteReserve overrides the flipped-row quote adjustment.
func WithQuoteReserve(reserve float64) MarketOption {
	return func(m *Market) { m.quoteReserve = reserve }
}

// WithMarketLogger overrides the logger.
func WithMarketLogger(logger *slog.Logger) MarketOption {
	return func(m *Market) { m.logger = logger.WithGroup("market") }
}

// NewMarket builds a Market for pair.
func NewMarket(page dom, pair arkflip.Pair, opts ...MarketOption) *Market {
	m := &Market{
		page:         page,
		pair:         pair,
		quoteReserve: 1,
		logger:       slog.Default().WithGroup("market"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Market) price(ctx context.Context, selector, side string) (arkflip.Quote, error) {
	if err := m.page.WaitForSelector(ctx, selector, defaultSelectorTimeout); err != nil {
		if errors.Is(err, ErrNoElement) {
			return arkflip.Quote{}, arkflip.Unavailablef("%s price element not found", side)
		}
		return arkflip.Quote{}, err
	}
	text, err := m.page.TextContent(ctx, selector)
	if err != nil {
		if errors.Is(err, ErrNoElement) {
			return arkflip.Quote{}, arkflip.Unavailablef("%s price element vanished", side)
		}
		return arkflip.Quote{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return arkflip.Quote{}, arkflip.Unavailablef("%s price element empty", side)
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return arkflip.Quote{}, arkflip.Unavailablef("%s price %q not numeric", side, text)
	}
	return arkflip.Quote{Value: value, ObservedAt: time.Now()}, nil
}

// BuyPrice reads the displayed buy-side reference.
func (m *Market) BuyPrice(ctx context.Context) (arkflip.Quote, error) {
	return m.price(ctx, buyPriceSelector, "buy")
}

// SellPrice reads the displayed sell-side reference.
func (m *Market) SellPrice(ctx context.Context) (arkflip.Quote, error) {
	return m.price(ctx, sellPriceSelector, "sell")
}

// Balances reads the two wallet rows and maps them onto the pair. The
// wallet may list the assets in either order; when the quote asset comes
// first the reserve adjustment applies.
func (m *Market) Balances(ctx context.Context, pair arkflip.Pair) (arkflip.Balances, error) {
	for _, sel := range []string{walletName0Selector, walletName1Selector} {
		if err := m.page.WaitForSelector(ctx, sel, defaultSelectorTimeout); err != nil {
			if errors.Is(err, ErrNoElement) {
				return arkflip.Balances{}, arkflip.Unavailablef("wallet rows not rendered")
			}
			return arkflip.Balances{}, err
		}
	}

	read := func(sel string) (string, error) {
		text, err := m.page.TextContent(ctx, sel)
		if err != nil {
			if errors.Is(err, ErrNoElement) {
				return "", arkflip.Unavailablef("wallet cell %s missing", sel)
			}
			return "", err
		}
		return strings.TrimSpace(text), nil
	}

	name0, err := read(walletName0Selector)
	if err != nil {
		return arkflip.Balances{}, err
	}
	free0Text, err := read(walletFree0Selector)
	if err != nil {
		return arkflip.Balances{}, err
	}
	free1Text, err := read(walletFree1Selector)
	if err != nil {
		return arkflip.Balances{}, err
	}

	free0, err := parseBalance(free0Text)
	if err != nil {
		return arkflip.Balances{}, arkflip.Unavailablef("first wallet row: %v", err)
	}
	free1, err := parseBalance(free1Text)
	if err != nil {
		return arkflip.Balances{}, arkflip.Unavailablef("second wallet row: %v", err)
	}

	var bal arkflip.Balances
	if strings.Contains(strings.ToUpper(name0), strings.ToUpper(pair.Base)) {
		bal = arkflip.Balances{AssetFree: free0, QuoteFree: free1}
	} else {
		bal = arkflip.Balances{AssetFree: free1, QuoteFree: free0 - m.quoteReserve}
	}
	m.logger.Debug("wallet read",
		slog.Float64("asset_free", bal.AssetFree),
		slog.Float64("quote_free", bal.QuoteFree))
	return bal, nil
}

// ActiveOrder probes the open-order slot. Probe failures map to
// OrderUnknown rather than an error: a page mid-navigation cannot answer
// and the caller must not mistake that for an empty book.
func (m *Market) ActiveOrder(ctx context.Context) (arkflip.Presence, error) {
	found, err := m.page.Present(ctx, orderSelector)
	if err != nil {
		if ctx.Err() != nil {
			return arkflip.OrderUnknown, ctx.Err()
		}
		m.logger.Warn("order probe failed", slog.String("error", err.Error()))
		return arkflip.OrderUnknown, nil
	}
	if found {
		return arkflip.OrderPresent, nil
	}
	return arkflip.OrderAbsent, nil
}
