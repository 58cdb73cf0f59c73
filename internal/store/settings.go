package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ayusman/handsignal/internal/movement"
)

// Setting keys for the movement algorithm.
const (
	KeyThreshold   = "movement.threshold"
	KeyHistorySize = "movement.history_size"
	KeyVoteWindow  = "movement.vote_window"
)

// SettingsRepository stores key-value application settings.
type SettingsRepository struct {
	db *sql.DB
}

// Settings returns the settings repository for this store.
func (s *Store) Settings() *SettingsRepository {
	return &SettingsRepository{db: s.db}
}

// Get returns the value stored under key.
func (r *SettingsRepository) Get(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (r *SettingsRepository) Set(key, value string) error {
	_, err := r.db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now(),
	)
	return err
}

// Delete removes key. Deleting a missing key is not an error.
func (r *SettingsRepository) Delete(key string) error {
	_, err := r.db.Exec(`DELETE FROM settings WHERE key = ?`, key)
	return err
}

// All returns every stored setting.
func (r *SettingsRepository) All() (map[string]string, error) {
	rows, err := r.db.Query(`SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

// MovementConfig overlays the stored movement settings on base. Keys that
// are not stored keep base's value.
func (r *SettingsRepository) MovementConfig(base movement.Config) (movement.Config, error) {
	cfg := base

	if v, err := r.Get(KeyThreshold); err == nil {
		f, perr := strconv.ParseFloat(v, 64)
		if perr != nil {
			return base, fmt.Errorf("setting %s: %w", KeyThreshold, perr)
		}
		cfg.Threshold = f
	} else if !errors.Is(err, ErrNotFound) {
		return base, err
	}

	for key, dst := range map[string]*int{
		KeyHistorySize: &cfg.HistorySize,
		KeyVoteWindow:  &cfg.VoteWindow,
	} {
		v, err := r.Get(key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return base, err
		}
		n, perr := strconv.Atoi(v)
		if perr != nil {
			return base, fmt.Errorf("setting %s: %w", key, perr)
		}
		*dst = n
	}

	if err := cfg.Validate(); err != nil {
		return base, fmt.Errorf("stored movement settings: %w", err)
	}
	return cfg, nil
}

// SaveMovementConfig validates and stores cfg in one transaction.
func (r *SettingsRepository) SaveMovementConfig(cfg movement.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	for key, value := range map[string]string{
		KeyThreshold:   strconv.FormatFloat(cfg.Threshold, 'g', -1, 64),
		KeyHistorySize: strconv.Itoa(cfg.HistorySize),
		KeyVoteWindow:  strconv.Itoa(cfg.VoteWindow),
	} {
		if _, err := tx.Exec(
			`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, now,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}
