package arkflip

import (
	"context"
	"time"
)

// Decision is one audited step of the trading loop: what was seen, what
// was done, and why. The process runs unattended, so every decision point
// leaves a record the operator can replay afterwards.
type Decision struct {
	At        time.Time
	Side      Side
	Stage     string // discovery, sizing, submit, check, cancel, outcome, supervisor
	Reference string // reference/target price seen, display form
	Submitted string // price on the book, display form
	Size      string // order size, display form
	Outcome   string
	Note      string
}

// DecisionRecorder persists decisions. Recording is best-effort: a
// recorder failure must never stall or abort the trading loop.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, d Decision) error
}
