package core

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA busy_timeout=5000;")
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s, err := NewStoreFromDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStoreFromDB wraps an open handle and makes sure the schema exists.
func NewStoreFromDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS iface_stats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT,
		mac TEXT,
		rx_bytes INTEGER,
		tx_bytes INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_iface_stats_mac ON iface_stats(mac);

	CREATE TABLE IF NOT EXISTS poll_runs (
		id TEXT PRIMARY KEY,
		ts TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		error TEXT
	);
	`
	_, err := s.db.Exec(query)
	return err
}

func (s *Store) Name() string { return "sqlite" }

func (s *Store) Append(ctx context.Context, smp Sample) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO iface_stats (timestamp, mac, rx_bytes, tx_bytes) VALUES (?, ?, ?, ?)",
		FormatTimestamp(smp.Timestamp), smp.MAC, nullInt(smp.RxBytes), nullInt(smp.TxBytes))
	return err
}

// Samples returns rows for mac in insertion order.
func (s *Store) Samples(ctx context.Context, mac string) ([]Sample, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT timestamp, mac, rx_bytes, tx_bytes FROM iface_stats WHERE mac = ? ORDER BY id ASC",
		NormalizeMAC(mac))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Sample{}
	for rows.Next() {
		var (
			ts, m  string
			rx, tx any
		)
		if err := rows.Scan(&ts, &m, &rx, &tx); err != nil {
			return nil, err
		}
		t, err := ParseTimestamp(ts)
		if err != nil {
			return nil, fmt.Errorf("iface_stats timestamp %q: %w", ts, err)
		}
		out = append(out, Sample{
			Timestamp: t,
			MAC:       m,
			RxBytes:   storedCounter(rx),
			TxBytes:   storedCounter(tx),
		})
	}
	return out, rows.Err()
}

func (s *Store) CountSamples(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM iface_stats").Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

type PollRun struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error"`
}

func (s *Store) LogPollRun(ctx context.Context, run PollRun) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO poll_runs (id, ts, duration_ms, outcome, error) VALUES (?, ?, ?, ?, ?)",
		run.ID, FormatTimestamp(run.Timestamp), run.DurationMs, run.Outcome, run.Error)
	return err
}

func (s *Store) GetPollRuns(ctx context.Context, limit int) ([]PollRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, ts, duration_ms, outcome, COALESCE(error,'') FROM poll_runs ORDER BY ts DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []PollRun{}
	for rows.Next() {
		var (
			r  PollRun
			ts string
		)
		if err := rows.Scan(&r.ID, &ts, &r.DurationMs, &r.Outcome, &r.Error); err != nil {
			return nil, err
		}
		if r.Timestamp, err = ParseTimestamp(ts); err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// storedCounter reads a counter column. Older databases hold '' for zero or
// missing counters, so text values go through the same parsing as CSV.
func storedCounter(v any) *int64 {
	switch x := v.(type) {
	case int64:
		return nonNegative(x)
	case float64:
		if x < 0 || x >= math.MaxInt64 {
			return nil
		}
		return nonNegative(int64(x))
	case string:
		return parseStoredCounter(strings.TrimSpace(x))
	case []byte:
		return parseStoredCounter(strings.TrimSpace(string(x)))
	}
	return nil
}
