package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/klauern/padsync/internal/logging"
	"github.com/klauern/padsync/internal/model"
)

// Default grid for new profiles.
const (
	DefaultGridRows    = 4
	DefaultGridColumns = 4
)

// ProfileSummary is a row in the profile list.
type ProfileSummary struct {
	ID         string
	Name       string
	Pads       int
	Pages      int
	ModifiedAt string
	LastSync   string
}

// CreateProfile creates an empty profile with a fresh id.
func (s *Store) CreateProfile(ctx context.Context, name string) (*model.Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("profile name cannot be empty")
	}

	p := &model.Profile{
		ID:           uuid.NewString(),
		Name:         name,
		GridRows:     DefaultGridRows,
		GridColumns:  DefaultGridColumns,
		MasterVolume: 1,
		Tags:         []string{},
	}
	p.Stamp(model.ProfileKind.FieldNames(), s.stamp())

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := upsertProfile(ctx, tx, p); err != nil {
			return err
		}
		return ensureSyncState(ctx, tx, p.ID)
	})
	if err != nil {
		return nil, err
	}
	logging.Info("created profile", logging.Profile(p.ID), logging.Key(p.Name))
	return p, nil
}

// ListProfiles returns every profile ordered by name.
func (s *Store) ListProfiles(ctx context.Context) ([]ProfileSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.modified_at,
		       (SELECT COUNT(*) FROM pad_configurations c WHERE c.profile_id = p.id),
		       (SELECT COUNT(*) FROM page_metadata m WHERE m.profile_id = p.id),
		       COALESCE(s.last_sync, '')
		FROM profiles p LEFT JOIN sync_state s ON s.profile_id = p.id
		ORDER BY p.name, p.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var out []ProfileSummary
	for rows.Next() {
		var ps ProfileSummary
		if err := rows.Scan(&ps.ID, &ps.Name, &ps.ModifiedAt, &ps.Pads, &ps.Pages, &ps.LastSync); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

// FindProfile resolves a profile by id, or by name when no id matches.
// A name shared by several profiles is an error.
func (s *Store) FindProfile(ctx context.Context, ref string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM profiles WHERE id = ?`, ref).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to look up profile: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM profiles WHERE name = ?`, ref)
	if err != nil {
		return "", fmt.Errorf("failed to look up profile: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("profile name %q is ambiguous, use one of: %s", ref, strings.Join(ids, ", "))
	}
}

// HasProfile reports whether a profile with this id exists.
func (s *Store) HasProfile(ctx context.Context, profileID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles WHERE id = ?`, profileID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to look up profile: %w", err)
	}
	return n > 0, nil
}

// DeleteProfile removes a profile and everything it owns.
func (s *Store) DeleteProfile(ctx context.Context, profileID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, profileID)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, profileID)
	}
	return nil
}

// UpdateProfile applies edit to the profile and records which fields changed.
func (s *Store) UpdateProfile(ctx context.Context, profileID string, edit func(*model.Profile)) (int, error) {
	var changed int
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		before, err := readProfile(ctx, tx, profileID)
		if err != nil {
			return err
		}
		after := model.ProfileKind.Clone(before)
		edit(&after)
		after.ID = profileID
		changed = model.ProfileKind.TouchChanged(before, &after, s.stamp())
		if changed == 0 {
			return nil
		}
		return upsertProfile(ctx, tx, &after)
	})
	return changed, err
}

// UpdatePad applies edit to the pad at (page, pad), creating it when absent.
// It returns the number of fields that changed.
func (s *Store) UpdatePad(ctx context.Context, profileID string, page, pad int, edit func(*model.PadConfiguration)) (int, error) {
	var changed int
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := readProfile(ctx, tx, profileID); err != nil {
			return err
		}
		pads, err := readPads(ctx, tx, profileID)
		if err != nil {
			return err
		}

		now := s.stamp()
		position := len(pads)
		var before *model.PadConfiguration
		for i := range pads {
			if pads[i].PageIndex == page && pads[i].PadIndex == pad {
				before = &pads[i]
				position = i
				break
			}
		}

		if before == nil {
			created := model.PadConfiguration{PageIndex: page, PadIndex: pad, Volume: 1, AudioFileIDs: []int64{}}
			edit(&created)
			created.PageIndex, created.PadIndex = page, pad
			created.Stamp(model.PadKind.FieldNames(), now)
			changed = len(model.PadKind.Fields)
			return upsertPad(ctx, tx, profileID, position, &created)
		}

		after := model.PadKind.Clone(before)
		edit(&after)
		after.PageIndex, after.PadIndex = page, pad
		changed = model.PadKind.TouchChanged(before, &after, now)
		if changed == 0 {
			return nil
		}
		return upsertPad(ctx, tx, profileID, position, &after)
	})
	return changed, err
}

// UpdatePage applies edit to the page at index, creating it when absent.
func (s *Store) UpdatePage(ctx context.Context, profileID string, index int, edit func(*model.PageMetadata)) (int, error) {
	var changed int
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := readProfile(ctx, tx, profileID); err != nil {
			return err
		}
		pages, err := readPages(ctx, tx, profileID)
		if err != nil {
			return err
		}

		now := s.stamp()
		position := len(pages)
		var before *model.PageMetadata
		for i := range pages {
			if pages[i].PageIndex == index {
				before = &pages[i]
				position = i
				break
			}
		}

		if before == nil {
			created := model.PageMetadata{PageIndex: index}
			edit(&created)
			created.PageIndex = index
			created.Stamp(model.PageKind.FieldNames(), now)
			changed = len(model.PageKind.Fields)
			return upsertPage(ctx, tx, profileID, position, &created)
		}

		after := model.PageKind.Clone(before)
		edit(&after)
		after.PageIndex = index
		changed = model.PageKind.TouchChanged(before, &after, now)
		if changed == 0 {
			return nil
		}
		return upsertPage(ctx, tx, profileID, position, &after)
	})
	return changed, err
}

// DeletePad removes a pad. Deleting a missing pad is not an error.
func (s *Store) DeletePad(ctx context.Context, profileID string, page, pad int) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM pad_configurations WHERE profile_id = ? AND page_index = ? AND pad_index = ?`,
		profileID, page, pad); err != nil {
		return fmt.Errorf("failed to delete pad %s: %w", model.PadKey(page, pad), err)
	}
	return nil
}

// DeletePage removes a page's metadata. Its pads are left in place.
func (s *Store) DeletePage(ctx context.Context, profileID string, index int) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM page_metadata WHERE profile_id = ? AND page_index = ?`,
		profileID, index); err != nil {
		return fmt.Errorf("failed to delete page %d: %w", index, err)
	}
	return nil
}

// ImportAudio stores an audio payload for the profile and returns its id.
// A payload already stored under the same hash reuses the existing id.
func (s *Store) ImportAudio(ctx context.Context, profileID, name, mimeType string, data []byte) (int64, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	var id int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := readProfile(ctx, tx, profileID); err != nil {
			return err
		}
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM audio_files WHERE profile_id = ? AND sha256 = ? ORDER BY id LIMIT 1`,
			profileID, hash).Scan(&id)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to look up audio file: %w", err)
		}

		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(id), 0) + 1 FROM audio_files WHERE profile_id = ?`,
			profileID).Scan(&id); err != nil {
			return fmt.Errorf("failed to allocate audio id: %w", err)
		}
		return upsertAudio(ctx, tx, profileID, model.Asset{
			ID:       id,
			Name:     name,
			MimeType: mimeType,
			SHA256:   hash,
			Data:     data,
		})
	})
	if err != nil {
		return 0, err
	}
	logging.Debug("imported audio", logging.Profile(profileID), logging.Key(name), logging.Count(len(data)))
	return id, nil
}

// PruneAudio deletes audio rows that no pad of the profile references and
// returns the number removed.
func (s *Store) PruneAudio(ctx context.Context, profileID string) (int, error) {
	var removed int
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		pads, err := readPads(ctx, tx, profileID)
		if err != nil {
			return err
		}
		ds := &model.Dataset{PadConfigurations: pads}
		referenced := ds.ReferencedAssets()

		rows, err := tx.QueryContext(ctx, `SELECT id FROM audio_files WHERE profile_id = ?`, profileID)
		if err != nil {
			return fmt.Errorf("failed to list audio files: %w", err)
		}
		var stale []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			if !referenced[id] {
				stale = append(stale, id)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range stale {
			if _, err := tx.ExecContext(ctx, `DELETE FROM audio_files WHERE profile_id = ? AND id = ?`, profileID, id); err != nil {
				return fmt.Errorf("failed to delete audio file %d: %w", id, err)
			}
		}
		removed = len(stale)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		logging.Info("pruned audio files", logging.Profile(profileID), logging.Count(removed))
	}
	return removed, nil
}
