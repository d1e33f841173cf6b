package journal

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arkflip/arkflip/arkflip"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndReadDecisions(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	first := arkflip.Decision{
		At:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Side:      arkflip.Buy,
		Stage:     "submit",
		Reference: "100.00",
		Submitted: "100.00",
		Size:      "898.650",
		Note:      "limit buy placed",
	}
	second := arkflip.Decision{
		At:      time.Date(2026, 3, 1, 12, 0, 9, 0, time.UTC),
		Side:    arkflip.Buy,
		Stage:   "outcome",
		Outcome: "filled",
	}

	require.NoError(t, j.RecordDecision(ctx, first))
	require.NoError(t, j.RecordDecision(ctx, second))

	got, err := j.RecentDecisions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// newest first
	require.Equal(t, "outcome", got[0].Stage)
	require.Equal(t, "filled", got[0].Outcome)
	require.Equal(t, "submit", got[1].Stage)
	require.Equal(t, "898.650", got[1].Size)
	require.Equal(t, first.At, got[1].At)
}

func TestRecordDecisionStampsZeroTime(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.RecordDecision(ctx, arkflip.Decision{Side: arkflip.Sell, Stage: "cancel"}))

	got, err := j.RecentDecisions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, arkflip.Sell, got[0].Side)
	require.False(t, got[0].At.IsZero())
}

func TestHandlerPersistsRecords(t *testing.T) {
	j := openTestJournal(t)

	h := NewHandler(j, WithMinLevel(slog.LevelDebug))
	logger := slog.New(h).WithGroup("controller").With(slog.String("pair", "ETH_USDT"))

	logger.Info("order submitted", slog.String("price", "100.00"))
	logger.Debug("check tick", slog.Int("check", 1))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.Close(ctx))

	n, err := j.CountLogEntries(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestHandlerLevelGate(t *testing.T) {
	j := openTestJournal(t)

	h := NewHandler(j, WithMinLevel(slog.LevelWarn))
	logger := slog.New(h)

	logger.Info("below threshold")
	logger.Warn("kept")

	require.NoError(t, h.Close(context.Background()))

	n, err := j.CountLogEntries(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestHandlerClosedRejectsRecords(t *testing.T) {
	j := openTestJournal(t)

	h := NewHandler(j)
	require.NoError(t, h.Close(context.Background()))

	err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "late", 0))
	require.ErrorIs(t, err, ErrHandlerClosed)
}
