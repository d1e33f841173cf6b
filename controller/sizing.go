package controller

import (
	"math"

	"github.com/arkflip/arkflip/arkflip"
)

// sizing is the resolved order size for one attempt, together with the
// drawn parameters, kept for the audit record.
type sizing struct {
	amount    float64
	pct       float64
	deduction float64
}

// buySizing spends a random share of the free quote balance, after
// holding back a small random deduction so the quote balance is never
// fully depleted. ok is false when nothing is left to spend.
func buySizing(bal arkflip.Balances, pct, deduction float64) (sizing, bool) {
	available := bal.QuoteFree - deduction
	if available <= 0 {
		return sizing{pct: pct, deduction: deduction}, false
	}
	return sizing{
		amount:    roundSize(available * pct),
		pct:       pct,
		deduction: deduction,
	}, true
}

// sellSizing sells a random share of the free asset balance. Selling the
// asset itself needs no reserve.
func sellSizing(bal arkflip.Balances, pct float64) (sizing, bool) {
	amount := roundSize(bal.AssetFree * pct)
	if amount <= 0 {
		return sizing{pct: pct}, false
	}
	return sizing{amount: amount, pct: pct}, true
}

// roundSize clamps a computed amount to the venue's size granularity.
func roundSize(v float64) float64 {
	return math.Round(v*1000) / 1000
}
