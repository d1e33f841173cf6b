package controller

import (
	"context"
	"math"
	"math/rand"

	"github.com/arkflip/arkflip/arkflip"
)

// Range is a closed interval a random parameter is drawn from.
type Range struct {
	Low  float64
	High float64
}

func (r Range) draw(rng *rand.Rand) float64 {
	if r.High <= r.Low {
		return r.Low
	}
	return r.Low + rng.Float64()*(r.High-r.Low)
}

// PriceFunc produces the working price for one side. It is recomputed at
// every decision point: discovery, pre-submit re-validation, and each
// observation tick, so drift is always judged against a fresh value.
type PriceFunc func(ctx context.Context) (arkflip.Quote, error)

// LivePrice reads the venue's buy-side reference directly. The BUY flow
// places orders at the displayed executable price.
func LivePrice(market arkflip.MarketData) PriceFunc {
	return func(ctx context.Context) (arkflip.Quote, error) {
		return market.BuyPrice(ctx)
	}
}

// DerivedPrice computes the SELL target: the live sell-side reference
// plus a random increment drawn from band, rounded to display precision.
// The increment band's lower bound is strictly positive, so the target
// always clears the reference by at least band.Low.
func DerivedPrice(market arkflip.MarketData, band Range, rng *rand.Rand) PriceFunc {
	return func(ctx context.Context) (arkflip.Quote, error) {
		ref, err := market.SellPrice(ctx)
		if err != nil {
			return arkflip.Quote{}, err
		}
		increment := band.draw(rng)
		target := math.Round((ref.Value+increment)*100) / 100
		return arkflip.Quote{Value: target, ObservedAt: ref.ObservedAt}, nil
	}
}
