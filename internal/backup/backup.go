// Package backup keeps local snapshots of profile datasets so a sync that
// replaced local data can be undone.
package backup

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	stdsync "sync"
	"time"

	"github.com/klauern/padsync/internal/logging"
	"github.com/klauern/padsync/internal/model"
)

const (
	// BackupDirPerm is the permission for backup directories (rwxr-x---)
	BackupDirPerm = 0o750
	// BackupFilePerm is the permission for backup files (rw-r-----)
	BackupFilePerm = 0o640
)

// ErrNotFound is returned for an unknown backup id.
var ErrNotFound = errors.New("backup not found")

// Options configures a single backup.
type Options struct {
	Description string // Human-readable description

	// Force writes a snapshot even when it matches the newest one of the profile.
	Force bool
}

// Manager stores snapshots under one directory, grouped by profile id.
// It is safe for concurrent use.
type Manager struct {
	dir string
	now func() time.Time
	mu  stdsync.Mutex
}

// NewManager creates a manager rooted at dir, creating the directory.
func NewManager(dir string) (*Manager, error) {
	if dir == "" {
		return nil, errors.New("backup directory is required")
	}
	if err := os.MkdirAll(dir, BackupDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create backups directory: %w", err)
	}
	return &Manager{dir: dir, now: time.Now}, nil
}

// Dir returns the backup directory.
func (m *Manager) Dir() string {
	return m.dir
}

// SetClock replaces the time source.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Snapshot backs up ds before a sync replaces it. Its signature matches the
// orchestrator's BeforeApply hook. Unchanged datasets are not stored twice.
func (m *Manager) Snapshot(ctx context.Context, ds *model.Dataset) error {
	if ds == nil {
		return nil
	}
	meta, err := m.Create(ds, Options{Description: "before sync"})
	if err != nil {
		return err
	}
	if meta != nil {
		logging.WithContext(ctx).Debug("dataset snapshot written",
			logging.Profile(meta.ProfileID),
			logging.Path(meta.BackupPath),
		)
	}
	return nil
}

// Create writes a snapshot of ds. It returns nil metadata when the snapshot
// was skipped because the newest backup of the profile has the same content.
func (m *Manager) Create(ds *model.Dataset, opts Options) (*Metadata, error) {
	if ds == nil || ds.Profile.ID == "" {
		return nil, errors.New("cannot back up a dataset without a profile id")
	}

	// Last sync time is kept in the metadata so identical data hashes equal.
	snap := ds.Clone()
	snap.LastSyncTimestamp = nil
	var buf bytes.Buffer
	if err := model.Encode(&buf, snap); err != nil {
		return nil, err
	}
	content := buf.Bytes()
	hash := sha256.Sum256(content)
	hashStr := hex.EncodeToString(hash[:])

	m.mu.Lock()
	defer m.mu.Unlock()

	index, err := m.loadIndex()
	if err != nil {
		return nil, fmt.Errorf("failed to load backup index: %w", err)
	}
	if !opts.Force {
		if latest := newestFor(index, ds.Profile.ID); latest != nil && latest.Hash == hashStr {
			return nil, nil
		}
	}

	now := m.now().UTC()
	backupID := now.Format("20060102-150405-") + hashStr[:8]

	profileDir := filepath.Join(m.dir, safeName(ds.Profile.ID))
	if err := os.MkdirAll(profileDir, BackupDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create profile backup directory: %w", err)
	}
	backupPath := filepath.Join(profileDir, backupID+".json")
	if err := os.WriteFile(backupPath, content, BackupFilePerm); err != nil {
		return nil, fmt.Errorf("failed to write backup file: %w", err)
	}

	metadata := Metadata{
		ID:          backupID,
		ProfileID:   ds.Profile.ID,
		ProfileName: ds.Profile.Name,
		BackupPath:  backupPath,
		CreatedAt:   now,
		LastSync:    ds.LastSync(),
		Hash:        hashStr,
		Size:        int64(len(content)),
		Pads:        len(ds.PadConfigurations),
		Pages:       len(ds.PageMetadata),
		Assets:      len(ds.AudioFiles),
		Description: opts.Description,
	}
	index.Backups[backupID] = metadata
	if err := m.saveIndex(index); err != nil {
		return nil, fmt.Errorf("failed to add backup to index: %w", err)
	}
	return &metadata, nil
}

// Load reads and verifies a snapshot.
func (m *Manager) Load(backupID string) (*model.Dataset, *Metadata, error) {
	metadata, err := m.Get(backupID)
	if err != nil {
		return nil, nil, err
	}

	// #nosec G304 - backup path comes from the manager's own index
	content, err := os.ReadFile(metadata.BackupPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read backup file: %w", err)
	}
	hash := sha256.Sum256(content)
	if hex.EncodeToString(hash[:]) != metadata.Hash {
		return nil, nil, fmt.Errorf("backup file corrupted: hash mismatch")
	}

	ds, err := model.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode backup %q: %w", backupID, err)
	}
	return ds, metadata, nil
}

// Get returns the metadata of one backup. A unique id prefix is accepted.
func (m *Manager) Get(backupID string) (*Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	index, err := m.loadIndex()
	if err != nil {
		return nil, fmt.Errorf("failed to load backup index: %w", err)
	}
	if metadata, ok := index.Backups[backupID]; ok {
		return &metadata, nil
	}

	var match *Metadata
	for id, metadata := range index.Backups {
		if backupID == "" || !strings.HasPrefix(id, backupID) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("backup id %q is ambiguous", backupID)
		}
		match = &metadata
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, backupID)
	}
	return match, nil
}

// List returns all backups, optionally filtered by profile id, newest first.
func (m *Manager) List(profileID string) ([]Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	index, err := m.loadIndex()
	if err != nil {
		return nil, fmt.Errorf("failed to load backup index: %w", err)
	}

	backups := index.sorted()
	if profileID == "" {
		return backups, nil
	}
	filtered := make([]Metadata, 0, len(backups))
	for _, backup := range backups {
		if backup.ProfileID == profileID {
			filtered = append(filtered, backup)
		}
	}
	return filtered, nil
}

// Delete deletes a backup and removes it from the index.
func (m *Manager) Delete(backupID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	index, err := m.loadIndex()
	if err != nil {
		return fmt.Errorf("failed to load backup index: %w", err)
	}
	return m.deleteLocked(index, backupID)
}

func (m *Manager) deleteLocked(index *Index, backupID string) error {
	metadata, exists := index.Backups[backupID]
	if !exists {
		return fmt.Errorf("%w: %q", ErrNotFound, backupID)
	}

	if err := os.Remove(metadata.BackupPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete backup file: %w", err)
	}

	delete(index.Backups, backupID)
	if err := m.saveIndex(index); err != nil {
		return fmt.Errorf("failed to remove backup from index: %w", err)
	}
	return nil
}

// Verify checks that a backup file is intact and matches its hash.
func (m *Manager) Verify(backupID string) (err error) {
	metadata, err := m.Get(backupID)
	if err != nil {
		return err
	}

	// #nosec G304 - backup path comes from the manager's own index
	file, err := os.Open(metadata.BackupPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("backup file missing: %s", metadata.BackupPath)
	}
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close backup file: %w", closeErr)
		}
	}()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return fmt.Errorf("failed to read backup file: %w", err)
	}

	hashStr := hex.EncodeToString(hash.Sum(nil))
	if hashStr != metadata.Hash {
		return fmt.Errorf("backup file corrupted: hash mismatch (expected %s, got %s)", metadata.Hash, hashStr)
	}
	return nil
}

func newestFor(index *Index, profileID string) *Metadata {
	var newest *Metadata
	for _, backup := range index.Backups {
		if backup.ProfileID != profileID {
			continue
		}
		if newest == nil || backup.CreatedAt.After(newest.CreatedAt) {
			b := backup
			newest = &b
		}
	}
	return newest
}

// safeName maps a profile id to a single path element.
func safeName(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}
