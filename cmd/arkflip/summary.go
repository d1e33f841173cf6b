package main

import (
	"context"
	"log/slog"

	"github.com/arkflip/arkflip/arkflip"
)

// journalReader is the slice of the journal the startup summary reads.
type journalReader interface {
	RecentDecisions(ctx context.Context, limit int) ([]arkflip.Decision, error)
	CountLogEntries(ctx context.Context) (int, error)
}

// logJournalSummary reports where the previous run left off so the
// operator sees the decision trail before trading resumes. Summary
// failures are logged and otherwise ignored; they never block startup.
func logJournalSummary(ctx context.Context, logger *slog.Logger, j journalReader) {
	entries, err := j.CountLogEntries(ctx)
	if err != nil {
		logger.Warn("journal summary unavailable", slog.String("error", err.Error()))
		return
	}
	decisions, err := j.RecentDecisions(ctx, 1)
	if err != nil {
		logger.Warn("journal summary unavailable", slog.String("error", err.Error()))
		return
	}
	if len(decisions) == 0 {
		logger.Info("journal empty, starting fresh", slog.Int("log_entries", entries))
		return
	}
	last := decisions[0]
	logger.Info("resuming after earlier run",
		slog.Time("last_decision_at", last.At),
		slog.String("side", last.Side.String()),
		slog.String("stage", last.Stage),
		slog.String("outcome", last.Outcome),
		slog.Int("log_entries", entries))
}
