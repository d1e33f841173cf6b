// Package journal persists the audit trail of an unattended run: every
// pricing, sizing, and cancellation decision, plus the application log,
// in a single SQLite database.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/arkflip/arkflip/arkflip"
)

//go:embed schema.sql
var schemaDDL string

// Journal is a SQLite-backed decision and log store. It implements
// arkflip.DecisionRecorder.
type Journal struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal db: %w", err)
	}

	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.db.Close()
}

// RecordDecision appends one decision row. A zero At is stamped with the
// current time.
func (j *Journal) RecordDecision(ctx context.Context, d arkflip.Decision) error {
	at := d.At
	if at.IsZero() {
		at = time.Now()
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO decisions (at_utc, side, stage, reference_price, submitted_price, order_size, outcome, note)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		at.UTC().UnixMilli(), d.Side.String(), d.Stage, d.Reference, d.Submitted, d.Size, d.Outcome, d.Note,
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// RecentDecisions returns up to limit decisions, newest first.
func (j *Journal) RecentDecisions(ctx context.Context, limit int) ([]arkflip.Decision, error) {
	if limit <= 0 {
		limit = 50
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx,
		`SELECT at_utc, side, stage, reference_price, submitted_price, order_size, outcome, note
		 FROM decisions ORDER BY at_utc DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []arkflip.Decision
	for rows.Next() {
		var (
			atMillis int64
			side     string
			d        arkflip.Decision
		)
		if err := rows.Scan(&atMillis, &side, &d.Stage, &d.Reference, &d.Submitted, &d.Size, &d.Outcome, &d.Note); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.At = time.UnixMilli(atMillis).UTC()
		if side == arkflip.Sell.String() {
			d.Side = arkflip.Sell
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// insertLog appends one application log row. Used by Handler.
func (j *Journal) insertLog(ctx context.Context, e logEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO app_log (ts_millis, level, scope, message, attrs_json) VALUES (?, ?, ?, ?, ?)`,
		e.tsMillis, e.level, e.scope, e.message, e.attrsJSON,
	)
	if err != nil {
		return fmt.Errorf("insert log entry: %w", err)
	}
	return nil
}

// CountLogEntries reports the number of persisted log rows.
func (j *Journal) CountLogEntries(ctx context.Context) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var n int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM app_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count log entries: %w", err)
	}
	return n, nil
}
