package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/klauern/padsync/internal/logging"
)

type syncState struct {
	lastSync     time.Time
	remoteFileID string
	resumeAfter  time.Time
}

func readSyncState(ctx context.Context, q querier, profileID string) (syncState, error) {
	var (
		st                syncState
		last, resume, rid string
	)
	err := q.QueryRowContext(ctx,
		`SELECT last_sync, remote_file_id, resume_after FROM sync_state WHERE profile_id = ?`,
		profileID).Scan(&last, &rid, &resume)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("failed to read sync state: %w", err)
	}
	st.remoteFileID = rid
	if st.lastSync, err = parseTime(last); err != nil {
		return st, fmt.Errorf("failed to parse last_sync: %w", err)
	}
	if st.resumeAfter, err = parseTime(resume); err != nil {
		return st, fmt.Errorf("failed to parse resume_after: %w", err)
	}
	return st, nil
}

func ensureSyncState(ctx context.Context, q querier, profileID string) error {
	if _, err := q.ExecContext(ctx,
		`INSERT INTO sync_state (profile_id) VALUES (?) ON CONFLICT(profile_id) DO NOTHING`,
		profileID); err != nil {
		return fmt.Errorf("failed to initialize sync state: %w", err)
	}
	return nil
}

func (s *Store) setSyncColumn(ctx context.Context, profileID, column, value string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := readProfile(ctx, tx, profileID); err != nil {
			return err
		}
		if err := ensureSyncState(ctx, tx, profileID); err != nil {
			return err
		}
		// column is one of a fixed set of names chosen by the callers below
		// #nosec G201
		query := fmt.Sprintf(`UPDATE sync_state SET %s = ? WHERE profile_id = ?`, column)
		if _, err := tx.ExecContext(ctx, query, value, profileID); err != nil {
			return fmt.Errorf("failed to update %s: %w", column, err)
		}
		return nil
	})
}

// ReadLastSyncTimestamp returns the profile's last successful sync time, or
// the zero time if it has never synced.
func (s *Store) ReadLastSyncTimestamp(ctx context.Context, profileID string) (time.Time, error) {
	st, err := readSyncState(ctx, s.db, profileID)
	return st.lastSync, err
}

// WriteLastSyncTimestamp records a successful sync.
func (s *Store) WriteLastSyncTimestamp(ctx context.Context, profileID string, ts time.Time) error {
	if err := s.setSyncColumn(ctx, profileID, "last_sync", formatTime(ts)); err != nil {
		return err
	}
	logging.Debug("recorded last sync", logging.Profile(profileID))
	return nil
}

// RemoteLink returns the stored remote file id, or "" if none.
func (s *Store) RemoteLink(ctx context.Context, profileID string) (string, error) {
	st, err := readSyncState(ctx, s.db, profileID)
	return st.remoteFileID, err
}

// SetRemoteLink stores the remote file id for the profile.
func (s *Store) SetRemoteLink(ctx context.Context, profileID, fileID string) error {
	return s.setSyncColumn(ctx, profileID, "remote_file_id", fileID)
}

// SetResumeAfter pauses syncing until the given time. A nil time clears it.
func (s *Store) SetResumeAfter(ctx context.Context, profileID string, until *time.Time) error {
	value := ""
	if until != nil {
		value = formatTime(*until)
	}
	return s.setSyncColumn(ctx, profileID, "resume_after", value)
}
