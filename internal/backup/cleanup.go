package backup

import (
	"fmt"
	"time"
)

// CleanupOptions configures backup cleanup behavior
type CleanupOptions struct {
	// MaxBackups limits the number of backups to keep per profile (0 = unlimited)
	MaxBackups int

	// MaxAge is the maximum age of backups to keep (0 = unlimited)
	MaxAge time.Duration

	// KeepAtLeastOne ensures at least one backup is kept per profile
	KeepAtLeastOne bool

	// ProfileID filters cleanup to a specific profile (empty = all profiles)
	ProfileID string

	// DryRun previews what would be deleted without actually deleting
	DryRun bool
}

// DefaultCleanupOptions returns sensible defaults for cleanup
func DefaultCleanupOptions() CleanupOptions {
	return CleanupOptions{
		MaxBackups:     10,                  // Keep last 10 backups per profile
		MaxAge:         30 * 24 * time.Hour, // Keep backups for 30 days
		KeepAtLeastOne: true,
	}
}

// Cleanup removes old backups based on the specified options and returns
// the ids it deleted, or would delete in dry-run mode.
func (m *Manager) Cleanup(opts CleanupOptions) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	index, err := m.loadIndex()
	if err != nil {
		return nil, fmt.Errorf("failed to load backup index: %w", err)
	}

	groups := make(map[string][]Metadata)
	for _, backup := range index.Backups {
		if opts.ProfileID != "" && backup.ProfileID != opts.ProfileID {
			continue
		}
		groups[backup.ProfileID] = append(groups[backup.ProfileID], backup)
	}

	var toDelete []string
	now := m.now()

	for _, group := range groups {
		sortNewestFirst(group)

		var expired []string
		for i, backup := range group {
			tooOld := opts.MaxAge > 0 && now.Sub(backup.CreatedAt) > opts.MaxAge
			overLimit := opts.MaxBackups > 0 && i >= opts.MaxBackups
			if tooOld || overLimit {
				expired = append(expired, backup.ID)
			}
		}

		// group is newest first, so the first expired entry is the newest one
		if opts.KeepAtLeastOne && len(expired) == len(group) && len(expired) > 0 {
			expired = expired[1:]
		}
		toDelete = append(toDelete, expired...)
	}

	if opts.DryRun {
		return toDelete, nil
	}

	var deleted []string
	for _, backupID := range toDelete {
		if err := m.deleteLocked(index, backupID); err != nil {
			return deleted, fmt.Errorf("failed to delete backup %q: %w", backupID, err)
		}
		deleted = append(deleted, backupID)
	}
	return deleted, nil
}

// Stats contains statistics about backups
type Stats struct {
	TotalBackups     int
	TotalSize        int64
	BackupsByProfile map[string]int
	OldestBackup     time.Time
	NewestBackup     time.Time
}

// Stats returns statistics about backups
func (m *Manager) Stats() (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	index, err := m.loadIndex()
	if err != nil {
		return nil, fmt.Errorf("failed to load backup index: %w", err)
	}

	stats := &Stats{
		TotalBackups:     len(index.Backups),
		BackupsByProfile: make(map[string]int),
	}

	for _, backup := range index.Backups {
		stats.TotalSize += backup.Size
		stats.BackupsByProfile[backup.ProfileID]++

		if stats.OldestBackup.IsZero() || backup.CreatedAt.Before(stats.OldestBackup) {
			stats.OldestBackup = backup.CreatedAt
		}
		if backup.CreatedAt.After(stats.NewestBackup) {
			stats.NewestBackup = backup.CreatedAt
		}
	}
	return stats, nil
}
