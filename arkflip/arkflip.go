package arkflip

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Side is the direction of a limit order.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Sell {
		return "sell"
	}
	return "buy"
}

// Opposite returns the other side. A confirmed fill flips the trading
// phase to the opposite side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Pair is the trading pair for a run. It is fixed at startup and decides
// which wallet row is the asset leg and which the quote leg.
type Pair struct {
	Base  string
	Quote string
}

func (p Pair) String() string {
	return p.Base + "_" + p.Quote
}

// Quote is a reference price as the venue displays it.
//
// The venue renders prices with two decimals, so the canonical comparison
// form is the formatted string, not the float: two quotes are "the same
// price" iff they render identically.
type Quote struct {
	Value      float64
	ObservedAt time.Time
}

// Text returns the quote in venue display form.
func (q Quote) Text() string {
	return FormatPrice(q.Value)
}

// FormatPrice renders a price with the venue's two-decimal granularity.
func FormatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// FormatSize renders an order size with the venue's three-decimal
// granularity.
func FormatSize(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// Balances is a snapshot of the free balances for the two legs of the
// pair. It is read fresh before every sizing decision and never cached
// across phases.
type Balances struct {
	AssetFree float64
	QuoteFree float64
}

// Presence reports whether the venue shows an active order. Unknown means
// the page could not be read (mid-navigation, context destroyed) and is
// deliberately distinct from Absent: an unreadable page is never evidence
// of a fill.
type Presence int

const (
	OrderUnknown Presence = iota
	OrderAbsent
	OrderPresent
)

func (p Presence) String() string {
	switch p {
	case OrderAbsent:
		return "absent"
	case OrderPresent:
		return "present"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of one controller invocation.
type Outcome int

const (
	OutcomeAborted Outcome = iota
	OutcomeFilled
	OutcomeCancelledDrift
	OutcomeCancelledTimeout
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFilled:
		return "filled"
	case OutcomeCancelledDrift:
		return "cancelled-drift"
	case OutcomeCancelledTimeout:
		return "cancelled-timeout"
	default:
		return "aborted"
	}
}

// CancelResult reports which cancellation path succeeded, if any. The
// panel tries the normal interactive cancel first and falls back to a
// forced click; the reload fallback is owned by the controller.
type CancelResult int

const (
	CancelFailed CancelResult = iota
	CancelNormal
	CancelForced
)

func (r CancelResult) String() string {
	switch r {
	case CancelNormal:
		return "normal"
	case CancelForced:
		return "forced"
	default:
		return "failed"
	}
}

// ErrUnavailable marks data the interface could not produce right now: a
// price that is not rendered, a balance row that is missing, a page that
// is mid-navigation. Callers abort the current attempt; they never treat
// it as fatal.
var ErrUnavailable = errors.New("arkflip: interface data unavailable")

// Unavailablef wraps ErrUnavailable with context about what was wanted.
func Unavailablef(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrUnavailable)...)
}

// MarketData is the read-only half of the venue interface. All queries
// are side-effect free; latency and staleness are part of the contract.
type MarketData interface {
	// BuyPrice returns the live buy-side reference price.
	BuyPrice(ctx context.Context) (Quote, error)
	// SellPrice returns the live sell-side reference price. Sell targets
	// are derived from it by the pricing strategy, not here.
	SellPrice(ctx context.Context) (Quote, error)
	// Balances reads the wallet snapshot for the pair.
	Balances(ctx context.Context, pair Pair) (Balances, error)
	// ActiveOrder probes the single active-order slot.
	ActiveOrder(ctx context.Context) (Presence, error)
}

// OrderPanel is the command half of the venue interface: the order form
// and its affordances.
type OrderPanel interface {
	SelectSide(ctx context.Context, side Side) error
	SelectLimitMode(ctx context.Context) error
	SetPrice(ctx context.Context, price string) error
	SetSize(ctx context.Context, size string) error
	Submit(ctx context.Context) error
	// Cancel attempts the normal interactive cancel, then the forced
	// path. CancelFailed with a nil error means both paths were tried
	// and neither removed the affordance.
	Cancel(ctx context.Context) (CancelResult, error)
	// Reload performs a full interface reset. Last-resort cancellation
	// fallback: after a reload no order submission survives unaccounted.
	Reload(ctx context.Context) error
}
