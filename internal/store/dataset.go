package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/klauern/padsync/internal/logging"
	"github.com/klauern/padsync/internal/model"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ReadDataset returns a fresh snapshot of a profile's dataset. Only audio
// files referenced by a pad are embedded.
func (s *Store) ReadDataset(ctx context.Context, profileID string) (*model.Dataset, error) {
	var ds *model.Dataset
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		ds, err = readDataset(ctx, tx, profileID)
		return err
	})
	return ds, err
}

func readDataset(ctx context.Context, q querier, profileID string) (*model.Dataset, error) {
	profile, err := readProfile(ctx, q, profileID)
	if err != nil {
		return nil, err
	}

	ds := &model.Dataset{
		FormatVersion: model.FormatVersion,
		Profile:       *profile,
	}
	if ds.PadConfigurations, err = readPads(ctx, q, profileID); err != nil {
		return nil, err
	}
	if ds.PageMetadata, err = readPages(ctx, q, profileID); err != nil {
		return nil, err
	}
	if ds.AudioFiles, err = readAudio(ctx, q, profileID); err != nil {
		return nil, err
	}
	ds.StoredAssets = make([]model.AssetRef, len(ds.AudioFiles))
	for i, a := range ds.AudioFiles {
		ds.StoredAssets[i] = model.AssetRef{ID: a.ID, SHA256: a.Hash()}
	}
	ds.PruneAssets()

	state, err := readSyncState(ctx, q, profileID)
	if err != nil {
		return nil, err
	}
	if !state.lastSync.IsZero() {
		ts := state.lastSync
		ds.LastSyncTimestamp = &ts
	}
	if !state.resumeAfter.IsZero() {
		ts := state.resumeAfter
		ds.ResumeAfter = &ts
	}
	return ds, nil
}

// ApplyDataset replaces a profile's records with ds in one transaction.
// Items absent from ds are deleted, embedded audio files are written under
// their dataset ids, and audio rows that are no longer referenced are kept
// for PruneAudio. The profile is created if it does not exist.
func (s *Store) ApplyDataset(ctx context.Context, profileID string, ds *model.Dataset) error {
	defer logging.Timer("apply dataset")()

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		profile := ds.Profile
		profile.ID = profileID
		if err := upsertProfile(ctx, tx, &profile); err != nil {
			return err
		}
		if err := ensureSyncState(ctx, tx, profileID); err != nil {
			return err
		}

		keep := make(map[[2]int]bool, len(ds.PadConfigurations))
		for i := range ds.PadConfigurations {
			pad := &ds.PadConfigurations[i]
			if err := upsertPad(ctx, tx, profileID, i, pad); err != nil {
				return err
			}
			keep[[2]int{pad.PageIndex, pad.PadIndex}] = true
		}
		if err := prunePads(ctx, tx, profileID, keep); err != nil {
			return err
		}

		keepPages := make(map[int]bool, len(ds.PageMetadata))
		for i := range ds.PageMetadata {
			page := &ds.PageMetadata[i]
			if err := upsertPage(ctx, tx, profileID, i, page); err != nil {
				return err
			}
			keepPages[page.PageIndex] = true
		}
		if err := prunePages(ctx, tx, profileID, keepPages); err != nil {
			return err
		}

		for _, asset := range ds.AudioFiles {
			if err := upsertAudio(ctx, tx, profileID, asset); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to apply dataset: %w", err)
	}

	logging.Debug("applied dataset",
		logging.Profile(profileID),
		slog.Int("pads", len(ds.PadConfigurations)),
		slog.Int("pages", len(ds.PageMetadata)),
		slog.Int("audio_files", len(ds.AudioFiles)),
	)
	return nil
}

func readProfile(ctx context.Context, q querier, profileID string) (*model.Profile, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, name, description, grid_rows, grid_columns, master_volume, tags,
		       created_at, modified_at, field_modified_at
		FROM profiles WHERE id = ?`, profileID)

	var (
		p                      model.Profile
		tags, created, mod, fm string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.GridRows, &p.GridColumns, &p.MasterVolume,
		&tags, &created, &mod, &fm)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, profileID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode profile tags: %w", err)
	}
	if err := scanRecord(&p.Record, created, mod, fm); err != nil {
		return nil, err
	}
	return &p, nil
}

func upsertProfile(ctx context.Context, q querier, p *model.Profile) error {
	tags, fm, err := encodeColumns(p.Tags, p.FieldModifiedAt)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO profiles (id, name, description, grid_rows, grid_columns, master_volume, tags,
		                      created_at, modified_at, field_modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			grid_rows = excluded.grid_rows,
			grid_columns = excluded.grid_columns,
			master_volume = excluded.master_volume,
			tags = excluded.tags,
			created_at = excluded.created_at,
			modified_at = excluded.modified_at,
			field_modified_at = excluded.field_modified_at`,
		p.ID, p.Name, p.Description, p.GridRows, p.GridColumns, p.MasterVolume, tags,
		formatTime(p.CreatedAt), formatTime(p.ModifiedAt), fm)
	if err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	return nil
}

func readPads(ctx context.Context, q querier, profileID string) ([]model.PadConfiguration, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT page_index, pad_index, name, color, audio_file_ids, volume, fade_in_ms, fade_out_ms,
		       playback_mode, shortcut, created_at, modified_at, field_modified_at
		FROM pad_configurations WHERE profile_id = ?
		ORDER BY position, page_index, pad_index`, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to read pads: %w", err)
	}
	defer rows.Close()

	pads := []model.PadConfiguration{}
	for rows.Next() {
		var (
			p                     model.PadConfiguration
			ids, created, mod, fm string
		)
		if err := rows.Scan(&p.PageIndex, &p.PadIndex, &p.Name, &p.Color, &ids, &p.Volume,
			&p.FadeInMs, &p.FadeOutMs, &p.PlaybackMode, &p.Shortcut, &created, &mod, &fm); err != nil {
			return nil, fmt.Errorf("failed to scan pad: %w", err)
		}
		if err := json.Unmarshal([]byte(ids), &p.AudioFileIDs); err != nil {
			return nil, fmt.Errorf("failed to decode pad audio ids: %w", err)
		}
		if err := scanRecord(&p.Record, created, mod, fm); err != nil {
			return nil, err
		}
		pads = append(pads, p)
	}
	return pads, rows.Err()
}

func upsertPad(ctx context.Context, q querier, profileID string, position int, p *model.PadConfiguration) error {
	ids, fm, err := encodeColumns(p.AudioFileIDs, p.FieldModifiedAt)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO pad_configurations (profile_id, page_index, pad_index, position, name, color,
		    audio_file_ids, volume, fade_in_ms, fade_out_ms, playback_mode, shortcut,
		    created_at, modified_at, field_modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(profile_id, page_index, pad_index) DO UPDATE SET
			position = excluded.position,
			name = excluded.name,
			color = excluded.color,
			audio_file_ids = excluded.audio_file_ids,
			volume = excluded.volume,
			fade_in_ms = excluded.fade_in_ms,
			fade_out_ms = excluded.fade_out_ms,
			playback_mode = excluded.playback_mode,
			shortcut = excluded.shortcut,
			created_at = excluded.created_at,
			modified_at = excluded.modified_at,
			field_modified_at = excluded.field_modified_at`,
		profileID, p.PageIndex, p.PadIndex, position, p.Name, p.Color, ids, p.Volume,
		p.FadeInMs, p.FadeOutMs, p.PlaybackMode, p.Shortcut,
		formatTime(p.CreatedAt), formatTime(p.ModifiedAt), fm)
	if err != nil {
		return fmt.Errorf("failed to write pad %s: %w", model.PadKey(p.PageIndex, p.PadIndex), err)
	}
	return nil
}

func prunePads(ctx context.Context, q querier, profileID string, keep map[[2]int]bool) error {
	rows, err := q.QueryContext(ctx, `SELECT page_index, pad_index FROM pad_configurations WHERE profile_id = ?`, profileID)
	if err != nil {
		return fmt.Errorf("failed to list pads: %w", err)
	}
	var stale [][2]int
	for rows.Next() {
		var key [2]int
		if err := rows.Scan(&key[0], &key[1]); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan pad key: %w", err)
		}
		if !keep[key] {
			stale = append(stale, key)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, key := range stale {
		if _, err := q.ExecContext(ctx, `DELETE FROM pad_configurations WHERE profile_id = ? AND page_index = ? AND pad_index = ?`,
			profileID, key[0], key[1]); err != nil {
			return fmt.Errorf("failed to delete pad %s: %w", model.PadKey(key[0], key[1]), err)
		}
	}
	return nil
}

func readPages(ctx context.Context, q querier, profileID string) ([]model.PageMetadata, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT page_index, name, color, hidden, created_at, modified_at, field_modified_at
		FROM page_metadata WHERE profile_id = ?
		ORDER BY position, page_index`, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to read pages: %w", err)
	}
	defer rows.Close()

	pages := []model.PageMetadata{}
	for rows.Next() {
		var (
			p                model.PageMetadata
			created, mod, fm string
		)
		if err := rows.Scan(&p.PageIndex, &p.Name, &p.Color, &p.Hidden, &created, &mod, &fm); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		if err := scanRecord(&p.Record, created, mod, fm); err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

func upsertPage(ctx context.Context, q querier, profileID string, position int, p *model.PageMetadata) error {
	_, fm, err := encodeColumns(nil, p.FieldModifiedAt)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO page_metadata (profile_id, page_index, position, name, color, hidden,
		    created_at, modified_at, field_modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(profile_id, page_index) DO UPDATE SET
			position = excluded.position,
			name = excluded.name,
			color = excluded.color,
			hidden = excluded.hidden,
			created_at = excluded.created_at,
			modified_at = excluded.modified_at,
			field_modified_at = excluded.field_modified_at`,
		profileID, p.PageIndex, position, p.Name, p.Color, p.Hidden,
		formatTime(p.CreatedAt), formatTime(p.ModifiedAt), fm)
	if err != nil {
		return fmt.Errorf("failed to write page %d: %w", p.PageIndex, err)
	}
	return nil
}

func prunePages(ctx context.Context, q querier, profileID string, keep map[int]bool) error {
	rows, err := q.QueryContext(ctx, `SELECT page_index FROM page_metadata WHERE profile_id = ?`, profileID)
	if err != nil {
		return fmt.Errorf("failed to list pages: %w", err)
	}
	var stale []int
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan page key: %w", err)
		}
		if !keep[idx] {
			stale = append(stale, idx)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, idx := range stale {
		if _, err := q.ExecContext(ctx, `DELETE FROM page_metadata WHERE profile_id = ? AND page_index = ?`, profileID, idx); err != nil {
			return fmt.Errorf("failed to delete page %d: %w", idx, err)
		}
	}
	return nil
}

func readAudio(ctx context.Context, q querier, profileID string) ([]model.Asset, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, mime_type, sha256, data FROM audio_files
		WHERE profile_id = ? ORDER BY id`, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio files: %w", err)
	}
	defer rows.Close()

	assets := []model.Asset{}
	for rows.Next() {
		var a model.Asset
		if err := rows.Scan(&a.ID, &a.Name, &a.MimeType, &a.SHA256, &a.Data); err != nil {
			return nil, fmt.Errorf("failed to scan audio file: %w", err)
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

func upsertAudio(ctx context.Context, q querier, profileID string, a model.Asset) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO audio_files (profile_id, id, name, mime_type, sha256, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(profile_id, id) DO UPDATE SET
			name = excluded.name,
			mime_type = excluded.mime_type,
			sha256 = excluded.sha256,
			data = excluded.data`,
		profileID, a.ID, a.Name, a.MimeType, a.Hash(), a.Data)
	if err != nil {
		return fmt.Errorf("failed to write audio file %d: %w", a.ID, err)
	}
	return nil
}

func scanRecord(r *model.Record, created, modified, fieldTimes string) error {
	var err error
	if r.CreatedAt, err = parseTime(created); err != nil {
		return fmt.Errorf("failed to parse created_at: %w", err)
	}
	if r.ModifiedAt, err = parseTime(modified); err != nil {
		return fmt.Errorf("failed to parse modified_at: %w", err)
	}
	if err := json.Unmarshal([]byte(fieldTimes), &r.FieldModifiedAt); err != nil {
		return fmt.Errorf("failed to decode field_modified_at: %w", err)
	}
	return nil
}

func encodeColumns(values any, fieldTimes map[string]time.Time) (string, string, error) {
	if fieldTimes == nil {
		fieldTimes = map[string]time.Time{}
	}
	fm, err := json.Marshal(fieldTimes)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode field timestamps: %w", err)
	}
	v := []byte("[]")
	if values != nil {
		if v, err = json.Marshal(values); err != nil {
			return "", "", fmt.Errorf("failed to encode column: %w", err)
		}
		if string(v) == "null" {
			v = []byte("[]")
		}
	}
	return string(v), string(fm), nil
}
