package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arkflip/arkflip/arkflip"
)

// fakeDOM answers selector queries from a map and records interactions.
type fakeDOM struct {
	texts   map[string]string
	present map[string]bool

	clicks      []string
	forceClicks []string
	fills       map[string]string
	reloads     int

	clickErr      error
	forceClickErr error
	presentErr    error
}

func newFakeDOM() *fakeDOM {
	return &fakeDOM{
		texts:   map[string]string{},
		present: map[string]bool{},
		fills:   map[string]string{},
	}
}

func (f *fakeDOM) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	if _, ok := f.texts[selector]; ok {
		return nil
	}
	if f.present[selector] {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNoElement, selector)
}

func (f *fakeDOM) TextContent(ctx context.Context, selector string) (string, error) {
	text, ok := f.texts[selector]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoElement, selector)
	}
	return text, nil
}

func (f *fakeDOM) Present(ctx context.Context, selector string) (bool, error) {
	if f.presentErr != nil {
		return false, f.presentErr
	}
	return f.present[selector], nil
}

func (f *fakeDOM) ClickSelector(ctx context.Context, selector string) error {
	if f.clickErr != nil {
		return f.clickErr
	}
	f.clicks = append(f.clicks, selector)
	return nil
}

func (f *fakeDOM) ForceClick(ctx context.Context, selector string) error {
	if f.forceClickErr != nil {
		return f.forceClickErr
	}
	f.forceClicks = append(f.forceClicks, selector)
	return nil
}

func (f *fakeDOM) Fill(ctx context.Context, selector, value string) error {
	f.fills[selector] = value
	return nil
}

func (f *fakeDOM) Reload(ctx context.Context) error {
	f.reloads++
	return nil
}

func TestParseBalance(t *testing.T) {
	cases := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{in: "1,234.56", want: 1234.56},
		{in: "$987.10 USDT", want: 987.1},
		{in: "0.003", want: 0.003},
		{in: "", wantErr: true},
		{in: "--", wantErr: true},
	}
	for _, tc := range cases {
		got, err := parseBalance(tc.in)
		if tc.wantErr {
			require.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		require.InDelta(t, tc.want, got, 1e-9, tc.in)
	}
}

func TestMarketBuyPrice(t *testing.T) {
	dom := newFakeDOM()
	dom.texts[buyPriceSelector] = "2501.35"
	m := NewMarket(dom, arkflip.Pair{Base: "ETH", Quote: "USDT"})

	q, err := m.BuyPrice(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 2501.35, q.Value, 1e-9)
	require.Equal(t, "2501.35", q.Text())
}

func TestMarketPriceUnavailable(t *testing.T) {
	dom := newFakeDOM()
	m := NewMarket(dom, arkflip.Pair{Base: "ETH", Quote: "USDT"})

	_, err := m.BuyPrice(context.Background())
	require.ErrorIs(t, err, arkflip.ErrUnavailable)

	dom.texts[sellPriceSelector] = "n/a"
	_, err = m.SellPrice(context.Background())
	require.ErrorIs(t, err, arkflip.ErrUnavailable)
}

func TestMarketBalancesAssetListedFirst(t *testing.T) {
	dom := newFakeDOM()
	dom.texts[walletName0Selector] = "ETH"
	dom.texts[walletName1Selector] = "USDT"
	dom.texts[walletFree0Selector] = "1.250"
	dom.texts[walletFree1Selector] = "3,000.50"
	m := NewMarket(dom, arkflip.Pair{Base: "ETH", Quote: "USDT"})

	bal, err := m.Balances(context.Background(), arkflip.Pair{Base: "ETH", Quote: "USDT"})
	require.NoError(t, err)
	require.InDelta(t, 1.25, bal.AssetFree, 1e-9)
	require.InDelta(t, 3000.50, bal.QuoteFree, 1e-9)
}

func TestMarketBalancesQuoteListedFirstAppliesReserve(t *testing.T) {
	dom := newFakeDOM()
	dom.texts[walletName0Selector] = "USDT"
	dom.texts[walletName1Selector] = "ETH"
	dom.texts[walletFree0Selector] = "500.00"
	dom.texts[walletFree1Selector] = "0.750"
	m := NewMarket(dom, arkflip.Pair{Base: "ETH", Quote: "USDT"})

	bal, err := m.Balances(context.Background(), arkflip.Pair{Base: "ETH", Quote: "USDT"})
	require.NoError(t, err)
	require.InDelta(t, 0.75, bal.AssetFree, 1e-9)
	require.InDelta(t, 499.00, bal.QuoteFree, 1e-9)
}

func TestMarketBalancesUnreadable(t *testing.T) {
	dom := newFakeDOM()
	dom.texts[walletName0Selector] = "ETH"
	dom.texts[walletName1Selector] = "USDT"
	dom.texts[walletFree0Selector] = "loading"
	dom.texts[walletFree1Selector] = "3000"
	m := NewMarket(dom, arkflip.Pair{Base: "ETH", Quote: "USDT"})

	_, err := m.Balances(context.Background(), arkflip.Pair{Base: "ETH", Quote: "USDT"})
	require.ErrorIs(t, err, arkflip.ErrUnavailable)
}

func TestMarketActiveOrder(t *testing.T) {
	dom := newFakeDOM()
	m := NewMarket(dom, arkflip.Pair{Base: "ETH", Quote: "USDT"})

	presence, err := m.ActiveOrder(context.Background())
	require.NoError(t, err)
	require.Equal(t, arkflip.OrderAbsent, presence)

	dom.present[orderSelector] = true
	presence, err = m.ActiveOrder(context.Background())
	require.NoError(t, err)
	require.Equal(t, arkflip.OrderPresent, presence)

	dom.presentErr = errors.New("execution context destroyed")
	presence, err = m.ActiveOrder(context.Background())
	require.NoError(t, err)
	require.Equal(t, arkflip.OrderUnknown, presence)
}

func TestMarketActiveOrderContextCancelled(t *testing.T) {
	dom := newFakeDOM()
	dom.presentErr = errors.New("connection reset")
	m := NewMarket(dom, arkflip.Pair{Base: "ETH", Quote: "USDT"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.ActiveOrder(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
