package browser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arkflip/arkflip/arkflip"
	"github.com/arkflip/arkflip/pacing"
)

func newTestPanel(dom *fakeDOM) *Panel {
	return NewPanel(dom, WithPanelSleeper(pacing.Instant{}))
}

func TestPanelSelectSide(t *testing.T) {
	dom := newFakeDOM()
	p := newTestPanel(dom)

	require.NoError(t, p.SelectSide(context.Background(), arkflip.Buy))
	require.NoError(t, p.SelectSide(context.Background(), arkflip.Sell))
	require.Equal(t, []string{buyTabSelector, sellTabSelector}, dom.clicks)
}

func TestPanelSetSizeFollowsSelectedSide(t *testing.T) {
	dom := newFakeDOM()
	p := newTestPanel(dom)

	require.NoError(t, p.SelectSide(context.Background(), arkflip.Buy))
	require.NoError(t, p.SetSize(context.Background(), "898.650"))
	require.Equal(t, "898.650", dom.fills[notionalSelector])

	require.NoError(t, p.SelectSide(context.Background(), arkflip.Sell))
	require.NoError(t, p.SetSize(context.Background(), "0.750"))
	require.Equal(t, "0.750", dom.fills[sizeInputSelector])
}

func TestPanelSetPrice(t *testing.T) {
	dom := newFakeDOM()
	p := newTestPanel(dom)

	require.NoError(t, p.SetPrice(context.Background(), "2501.35"))
	require.Equal(t, "2501.35", dom.fills[priceInputSelector])
}

func TestPanelCancelNormal(t *testing.T) {
	dom := newFakeDOM()
	p := newTestPanel(dom)

	result, err := p.Cancel(context.Background())
	require.NoError(t, err)
	require.Equal(t, arkflip.CancelNormal, result)
	require.Equal(t, []string{cancelSelector}, dom.clicks)
	require.Empty(t, dom.forceClicks)
}

func TestPanelCancelFallsBackToForce(t *testing.T) {
	dom := newFakeDOM()
	dom.clickErr = errors.New("element not visible")
	p := newTestPanel(dom)

	result, err := p.Cancel(context.Background())
	require.NoError(t, err)
	require.Equal(t, arkflip.CancelForced, result)
	require.Equal(t, []string{cancelSelector}, dom.forceClicks)
}

func TestPanelCancelBothTiersFail(t *testing.T) {
	dom := newFakeDOM()
	dom.clickErr = errors.New("element not visible")
	dom.forceClickErr = errors.New("no such element")
	p := newTestPanel(dom)

	result, err := p.Cancel(context.Background())
	require.NoError(t, err)
	require.Equal(t, arkflip.CancelFailed, result)
}

func TestPanelCancelHonoursContext(t *testing.T) {
	dom := newFakeDOM()
	dom.clickErr = errors.New("interrupted")
	p := newTestPanel(dom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := p.Cancel(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, arkflip.CancelFailed, result)
}

func TestPanelReload(t *testing.T) {
	dom := newFakeDOM()
	p := newTestPanel(dom)

	require.NoError(t, p.Reload(context.Background()))
	require.Equal(t, 1, dom.reloads)
}
