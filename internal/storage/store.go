// Package storage persists processing sessions and per-train summaries
// to sqlite. Full image data stays in memory; the database keeps the
// scalar results an operator wants to query after a run.
package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/beamline-data/trainproc/internal/train/model"
)

// Store wraps the sqlite handle.
type Store struct {
	*sql.DB
}

// Session is one continuous processing run.
type Session struct {
	ID        string
	Detector  string
	StartedAt time.Time
	EndedAt   *time.Time
}

// TrainSummary is the scalar slice of a processed train that gets
// persisted.
type TrainSummary struct {
	TrainID       uint64
	SessionID     string
	BeamIntensity *float64
	ROISum        [model.MaxROIs]*float64
	PumpProbeFOM  *float64
	AzimuthalFOM  *float64
	RecordedAt    time.Time
}

// Open opens (or creates) the database at path. Run MigrateUp before
// first use.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}
	return &Store{db}, nil
}

// StartSession inserts a new session row and returns it.
func (s *Store) StartSession(detector string) (*Session, error) {
	sess := &Session{
		ID:        uuid.NewString(),
		Detector:  detector,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.Exec(
		`INSERT INTO sessions (id, detector, started_at) VALUES (?, ?, ?)`,
		sess.ID, sess.Detector, sess.StartedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return sess, nil
}

// EndSession stamps the session's end time.
func (s *Store) EndSession(sessionID string) error {
	res, err := s.Exec(
		`UPDATE sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL`,
		time.Now().UTC().Format(time.RFC3339Nano), sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s not found or already ended", sessionID)
	}
	return nil
}

// GetSession loads one session row.
func (s *Store) GetSession(sessionID string) (*Session, error) {
	var (
		sess    Session
		started string
		ended   sql.NullString
	)
	err := s.QueryRow(
		`SELECT id, detector, started_at, ended_at FROM sessions WHERE id = ?`,
		sessionID,
	).Scan(&sess.ID, &sess.Detector, &started, &ended)
	if err != nil {
		return nil, err
	}
	sess.StartedAt, err = time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at: %w", err)
	}
	if ended.Valid {
		t, err := time.Parse(time.RFC3339Nano, ended.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ended_at: %w", err)
		}
		sess.EndedAt = &t
	}
	return &sess, nil
}

// InsertTrain persists the scalar summary of one processed train.
func (s *Store) InsertTrain(sessionID string, pt *model.ProcessedTrain) error {
	var beam, ppFOM, aiFOM *float64
	if pt.Beam.Valid {
		v := pt.Beam.Intensity
		beam = &v
	}
	if pt.PumpProbe.FOMValid {
		v := pt.PumpProbe.FOM
		ppFOM = &v
	}
	if pt.AI.FOMValid {
		v := pt.AI.FOM
		aiFOM = &v
	}
	rois := make([]any, model.MaxROIs)
	for i := 0; i < model.MaxROIs; i++ {
		if pt.ROI.Valid[i] {
			rois[i] = pt.ROI.Sum[i]
		}
	}

	_, err := s.Exec(
		`INSERT INTO train_summaries
			(session_id, train_id, beam_intensity, roi1_sum, roi2_sum, roi3_sum, roi4_sum,
			 pump_probe_fom, azimuthal_fom, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, pt.TrainID, beam, rois[0], rois[1], rois[2], rois[3],
		ppFOM, aiFOM, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert train %d: %w", pt.TrainID, err)
	}
	return nil
}

// RecentTrains returns the latest summaries for a session, newest first.
func (s *Store) RecentTrains(sessionID string, limit int) ([]TrainSummary, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.Query(
		`SELECT train_id, beam_intensity, roi1_sum, roi2_sum, roi3_sum, roi4_sum,
			pump_probe_fom, azimuthal_fom, recorded_at
		 FROM train_summaries WHERE session_id = ?
		 ORDER BY train_id DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrainSummary
	for rows.Next() {
		ts := TrainSummary{SessionID: sessionID}
		var recorded string
		err := rows.Scan(&ts.TrainID, &ts.BeamIntensity,
			&ts.ROISum[0], &ts.ROISum[1], &ts.ROISum[2], &ts.ROISum[3],
			&ts.PumpProbeFOM, &ts.AzimuthalFOM, &recorded)
		if err != nil {
			return nil, err
		}
		ts.RecordedAt, err = time.Parse(time.RFC3339Nano, recorded)
		if err != nil {
			return nil, fmt.Errorf("failed to parse recorded_at: %w", err)
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// TrainCount returns how many trains a session has recorded.
func (s *Store) TrainCount(sessionID string) (int64, error) {
	var n int64
	err := s.QueryRow(
		`SELECT COUNT(*) FROM train_summaries WHERE session_id = ?`, sessionID,
	).Scan(&n)
	return n, err
}
