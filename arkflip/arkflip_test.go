package arkflip

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSideOpposite(t *testing.T) {
	require.Equal(t, Sell, Buy.Opposite())
	require.Equal(t, Buy, Sell.Opposite())
}

func TestFormatPrice(t *testing.T) {
	require.Equal(t, "100.00", FormatPrice(100))
	require.Equal(t, "100.05", FormatPrice(100.05))
	// display granularity rounds, it does not truncate
	require.Equal(t, "99.10", FormatPrice(99.099))
}

func TestFormatSize(t *testing.T) {
	require.Equal(t, "898.650", FormatSize(898.65))
	require.Equal(t, "0.125", FormatSize(0.125))
}

func TestQuoteText(t *testing.T) {
	q := Quote{Value: 1834.5}
	require.Equal(t, "1834.50", q.Text())
}

func TestUnavailablef(t *testing.T) {
	err := Unavailablef("buy price for %s", "ETH_USDT")
	require.True(t, errors.Is(err, ErrUnavailable))
	require.Contains(t, err.Error(), "ETH_USDT")
}

func TestPairString(t *testing.T) {
	require.Equal(t, "ETH_USDT", Pair{Base: "ETH", Quote: "USDT"}.String())
}
