package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/ayusman/handsignal/internal/movement"
)

// SessionRecord is one tracking session in the audit log.
type SessionRecord struct {
	ID          string     `json:"id"`
	StartedAt   time.Time  `json:"started_at"`
	StoppedAt   *time.Time `json:"stopped_at,omitempty"`
	Threshold   float64    `json:"threshold"`
	HistorySize int        `json:"history_size"`
	VoteWindow  int        `json:"vote_window"`
	Frames      uint64     `json:"frames"`
	LastError   string     `json:"last_error,omitempty"`
}

// SessionRepository records tracking sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

const sessionColumns = `id, started_at, stopped_at, threshold, history_size, vote_window, frames, last_error`

func scanSession(row scanner) (*SessionRecord, error) {
	rec := &SessionRecord{}
	var stopped sql.NullTime
	var frames int64

	if err := row.Scan(&rec.ID, &rec.StartedAt, &stopped, &rec.Threshold,
		&rec.HistorySize, &rec.VoteWindow, &frames, &rec.LastError); err != nil {
		return nil, err
	}

	if stopped.Valid {
		t := stopped.Time
		rec.StoppedAt = &t
	}
	rec.Frames = uint64(frames)
	return rec, nil
}

// RecordStart inserts a row for a session that just started.
func (r *SessionRepository) RecordStart(id string, startedAt time.Time, cfg movement.Config) error {
	_, err := r.db.Exec(
		`INSERT INTO sessions (id, started_at, threshold, history_size, vote_window) VALUES (?, ?, ?, ?, ?)`,
		id, startedAt, cfg.Threshold, cfg.HistorySize, cfg.VoteWindow,
	)
	return err
}

// RecordStop completes the row of a stopped session.
func (r *SessionRepository) RecordStop(id string, stoppedAt time.Time, frames uint64, lastErr string) error {
	result, err := r.db.Exec(
		`UPDATE sessions SET stopped_at = ?, frames = ?, last_error = ? WHERE id = ?`,
		stoppedAt, int64(frames), lastErr, id,
	)
	if err != nil {
		return err
	}
	return expectRow(result)
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*SessionRecord, error) {
	rec, err := scanSession(r.db.QueryRow(
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// List returns the most recent sessions first, at most limit of them.
func (r *SessionRepository) List(limit int) ([]*SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(
		`SELECT `+sessionColumns+` FROM sessions ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}
