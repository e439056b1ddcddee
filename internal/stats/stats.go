// Package stats implements a small SQL-backed access ledger: a record of
// crate and index fetch outcomes, kept purely for observability. Nothing in
// the dispatcher or worker ever consults the ledger to make a caching
// decision; it is write-mostly and read only by the dashboard.
package stats

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Outcome classifies a recorded event.
type Outcome string

const (
	OutcomeCacheHit  Outcome = "cache_hit"
	OutcomeRefreshed Outcome = "refreshed"
	OutcomeNotModif  Outcome = "not_modified"
	OutcomeStale     Outcome = "stale_served"
	OutcomeError     Outcome = "error"
)

// Event is a single recorded access.
type Event struct {
	Kind    string // "crate" or "index"
	Name    string
	Version string // empty for index events
	Outcome Outcome
	Bytes   int64
	Digest  string // blake3 hex digest of the body, when known
	At      time.Time
}

// Ledger is a handle to the access-event table. The zero value is not
// usable; construct with Open.
type Ledger struct {
	db     *sql.DB
	driver string
}

// Open opens (and if necessary creates) a ledger database using driver,
// which must be "sqlite" or "postgres". dsn is the sqlite file path or the
// postgres connection string.
func Open(driver, dsn string) (*Ledger, error) {
	switch driver {
	case "sqlite", "":
		if dir := filepath.Dir(dsn); dir != "." && dir != "/" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating stats directory: %w", err)
			}
		}
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("opening stats database: %w", err)
		}
		if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA synchronous = NORMAL;`); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("tuning stats database: %w", err)
		}
		return newLedger(db, "sqlite")
	case "postgres":
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("opening stats database: %w", err)
		}
		return newLedger(db, "postgres")
	default:
		return nil, fmt.Errorf("unsupported stats database driver %q", driver)
	}
}

func newLedger(db *sql.DB, driver string) (*Ledger, error) {
	l := &Ledger{db: db, driver: driver}
	if err := l.createSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating stats schema: %w", err)
	}
	return l, nil
}

// bindvar returns the driver-appropriate positional placeholder: "?" for
// sqlite, "$n" for postgres (lib/pq does not accept "?").
func (l *Ledger) bindvar(n int) string {
	if l.driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (l *Ledger) createSchema() error {
	idColumn := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if l.driver == "postgres" {
		idColumn = "BIGSERIAL PRIMARY KEY"
	}
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS access_events (
			id       ` + idColumn + `,
			kind     TEXT NOT NULL,
			name     TEXT NOT NULL,
			version  TEXT NOT NULL DEFAULT '',
			outcome  TEXT NOT NULL,
			bytes    INTEGER NOT NULL DEFAULT 0,
			digest   TEXT NOT NULL DEFAULT '',
			at       TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS access_events_name_idx ON access_events (name);
	`)
	return err
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record inserts one access event. Errors are the caller's responsibility to
// log; a failure to record never affects the response sent to the client.
func (l *Ledger) Record(ctx context.Context, ev Event) error {
	query := fmt.Sprintf(
		`INSERT INTO access_events (kind, name, version, outcome, bytes, digest, at)
		 VALUES (%s, %s, %s, %s, %s, %s, %s)`,
		l.bindvar(1), l.bindvar(2), l.bindvar(3), l.bindvar(4), l.bindvar(5), l.bindvar(6), l.bindvar(7),
	)
	_, err := l.db.ExecContext(ctx, query,
		ev.Kind, ev.Name, ev.Version, string(ev.Outcome), ev.Bytes, ev.Digest, ev.At.UTC(),
	)
	return err
}

// Totals summarizes ledger-wide counts, for the dashboard.
type Totals struct {
	TotalEvents    int64
	DistinctCrates int64
	TotalBytesSent int64
}

// Totals computes summary counts across the whole ledger.
func (l *Ledger) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	row := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT name), COALESCE(SUM(bytes), 0) FROM access_events`)
	if err := row.Scan(&t.TotalEvents, &t.DistinctCrates, &t.TotalBytesSent); err != nil {
		return Totals{}, fmt.Errorf("querying stats totals: %w", err)
	}
	return t, nil
}

// Recent returns the most recent n access events, newest first.
func (l *Ledger) Recent(ctx context.Context, n int) ([]Event, error) {
	query := fmt.Sprintf(
		`SELECT kind, name, version, outcome, bytes, digest, at
		 FROM access_events ORDER BY id DESC LIMIT %s`, l.bindvar(1))
	rows, err := l.db.QueryContext(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("querying recent stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		var ev Event
		var outcome string
		if err := rows.Scan(&ev.Kind, &ev.Name, &ev.Version, &outcome, &ev.Bytes, &ev.Digest, &ev.At); err != nil {
			return nil, fmt.Errorf("scanning recent stats row: %w", err)
		}
		ev.Outcome = Outcome(outcome)
		events = append(events, ev)
	}
	return events, rows.Err()
}
