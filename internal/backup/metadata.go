package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Metadata describes a single profile snapshot.
type Metadata struct {
	ID          string    `json:"id"`                    // Unique backup identifier (timestamp-based)
	ProfileID   string    `json:"profile_id"`            // Local profile id
	ProfileName string    `json:"profile_name"`          // Profile name at snapshot time
	BackupPath  string    `json:"backup_path"`           // Path to the snapshot file
	CreatedAt   time.Time `json:"created_at"`            // Backup creation timestamp
	LastSync    time.Time `json:"last_sync"`             // Profile last sync at snapshot time
	Hash        string    `json:"hash"`                  // SHA256 hash of the snapshot file
	Size        int64     `json:"size"`                  // File size in bytes
	Pads        int       `json:"pads"`                  // Pad configurations in the snapshot
	Pages       int       `json:"pages"`                 // Page records in the snapshot
	Assets      int       `json:"assets"`                // Audio files in the snapshot
	Description string    `json:"description,omitempty"` // Human-readable reason
}

// Index maintains an index of all backups in a directory.
type Index struct {
	Version string              `json:"version"`
	Updated time.Time           `json:"updated"`
	Backups map[string]Metadata `json:"backups"` // Key: backup ID
}

const (
	// IndexVersion is the current version of the backup index format
	IndexVersion = "1.0"
	// IndexFilename is the name of the index file
	IndexFilename = "index.json"
)

func (m *Manager) indexPath() string {
	return filepath.Join(m.dir, IndexFilename)
}

// loadIndex loads the backup index from disk, returning an empty index if
// none exists yet.
func (m *Manager) loadIndex() (*Index, error) {
	// #nosec G304 - index path is constructed from the manager directory
	data, err := os.ReadFile(m.indexPath())
	if os.IsNotExist(err) {
		return &Index{
			Version: IndexVersion,
			Updated: m.now(),
			Backups: make(map[string]Metadata),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index file: %w", err)
	}

	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("failed to parse index file: %w", err)
	}
	if index.Backups == nil {
		index.Backups = make(map[string]Metadata)
	}
	return &index, nil
}

// saveIndex writes the index atomically.
func (m *Manager) saveIndex(index *Index) error {
	index.Updated = m.now()

	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}

	tmp := m.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, BackupFilePerm); err != nil {
		return fmt.Errorf("failed to write index file: %w", err)
	}
	if err := os.Rename(tmp, m.indexPath()); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write index file: %w", err)
	}
	return nil
}

// sorted returns all backups sorted by creation time (newest first).
func (idx *Index) sorted() []Metadata {
	backups := make([]Metadata, 0, len(idx.Backups))
	for _, backup := range idx.Backups {
		backups = append(backups, backup)
	}
	sortNewestFirst(backups)
	return backups
}

func sortNewestFirst(backups []Metadata) {
	sort.Slice(backups, func(i, j int) bool {
		if !backups[i].CreatedAt.Equal(backups[j].CreatedAt) {
			return backups[i].CreatedAt.After(backups[j].CreatedAt)
		}
		return backups[i].ID > backups[j].ID
	})
}
