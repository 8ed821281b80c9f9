// Package db persists engine runs, per-cycle results, brake events and
// track points to sqlite, and serves the admin debugging routes.
package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// NewDB opens (or creates) the sqlite database at path and applies pending
// migrations.
func NewDB(path string) (*DB, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer; the recorder is the only one.
	sqldb.SetMaxOpenConns(1)

	db := &DB{sqldb}
	if err := db.MigrateUp(); err != nil {
		sqldb.Close()
		return nil, err
	}
	return db, nil
}

// StartRun records a new engine run and returns nothing; runID comes from
// the caller so log lines and rows share the same identifier.
func (db *DB) StartRun(runID, configJSON string, startedAt time.Time) error {
	_, err := db.Exec(
		`INSERT INTO runs (run_id, started_at, config_json) VALUES (?, ?, ?)`,
		runID, startedAt, configJSON,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", runID, err)
	}
	return nil
}

// CycleRow is one persisted perception cycle.
type CycleRow struct {
	RunID       string
	ObjectCount int
	RiskLevel   string
	RiskScore   float64
	ShouldBrake bool
	Dropped     bool
	DropReason  string
	Timestamp   time.Time
}

func (db *DB) RecordCycleRow(row CycleRow) error {
	_, err := db.Exec(
		`INSERT INTO cycles (run_id, object_count, risk_level, risk_score, should_brake, dropped, drop_reason, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.RunID, row.ObjectCount, row.RiskLevel, row.RiskScore,
		row.ShouldBrake, row.Dropped, row.DropReason, row.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("record cycle: %w", err)
	}
	return nil
}

// BrakeEventRow is one persisted brake transition.
type BrakeEventRow struct {
	RunID     string
	Engaged   bool
	Level     float64
	Reason    string
	Timestamp time.Time
}

func (db *DB) RecordBrakeEvent(row BrakeEventRow) error {
	_, err := db.Exec(
		`INSERT INTO brake_events (run_id, engaged, level, reason, timestamp) VALUES (?, ?, ?, ?, ?)`,
		row.RunID, row.Engaged, row.Level, row.Reason, row.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("record brake event: %w", err)
	}
	return nil
}

// TrackPointRow is one persisted per-object observation.
type TrackPointRow struct {
	RunID      string
	TrackID    int64
	Class      string
	Depth      float64
	TTC        float64
	TTCValid   bool
	RadarFused bool
	Timestamp  time.Time
}

func (db *DB) RecordTrackPoint(row TrackPointRow) error {
	_, err := db.Exec(
		`INSERT INTO track_points (run_id, track_id, class, depth, ttc, ttc_valid, radar_fused, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.RunID, row.TrackID, row.Class, row.Depth, row.TTC, row.TTCValid, row.RadarFused, row.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("record track point: %w", err)
	}
	return nil
}

// BrakeEvents returns the run's brake transitions in time order.
func (db *DB) BrakeEvents(runID string) ([]BrakeEventRow, error) {
	rows, err := db.Query(
		`SELECT run_id, engaged, level, reason, timestamp FROM brake_events WHERE run_id = ? ORDER BY event_id`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []BrakeEventRow
	for rows.Next() {
		var e BrakeEventRow
		if err := rows.Scan(&e.RunID, &e.Engaged, &e.Level, &e.Reason, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// RiskHistory returns (timestamp, risk_score) pairs for a run, oldest first.
func (db *DB) RiskHistory(runID string) ([]RiskSample, error) {
	rows, err := db.Query(
		`SELECT timestamp, risk_score FROM cycles WHERE run_id = ? AND dropped = 0 ORDER BY cycle_id`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []RiskSample
	for rows.Next() {
		var s RiskSample
		if err := rows.Scan(&s.Timestamp, &s.Score); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// RiskSample is one point on the risk timeline.
type RiskSample struct {
	Timestamp time.Time
	Score     float64
}

// CycleCounts returns total and dropped cycle counts for a run.
func (db *DB) CycleCounts(runID string) (total, dropped int64, err error) {
	err = db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(dropped), 0) FROM cycles WHERE run_id = ?`,
		runID,
	).Scan(&total, &dropped)
	return total, dropped, err
}
