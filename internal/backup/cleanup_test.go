package backup

import (
	"slices"
	"strconv"
	"testing"
	"time"

	"github.com/klauern/padsync/internal/util"
)

func createN(t *testing.T, m *Manager, profileID string, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := range n {
		metadata, err := m.Create(sampleDataset(profileID, "pad-"+strconv.Itoa(i)), Options{})
		util.AssertNoError(t, err)
		ids = append(ids, metadata.ID)
	}
	return ids
}

func TestDefaultCleanupOptions(t *testing.T) {
	opts := DefaultCleanupOptions()
	util.AssertEqual(t, opts.MaxBackups, 10)
	util.AssertEqual(t, opts.MaxAge, 30*24*time.Hour)
	util.AssertEqual(t, opts.KeepAtLeastOne, true)
	util.AssertEqual(t, opts.ProfileID, "")
}

func TestCleanup(t *testing.T) {
	tests := []struct {
		name        string
		opts        CleanupOptions
		age         time.Duration // clock advance after creating the old batch
		wantDeleted func(old, recent []string) []string
	}{
		{
			name: "count limit keeps newest",
			opts: CleanupOptions{MaxBackups: 2},
			wantDeleted: func(old, recent []string) []string {
				return old
			},
		},
		{
			name: "unlimited keeps everything",
			opts: CleanupOptions{},
			wantDeleted: func(old, recent []string) []string {
				return nil
			},
		},
		{
			name: "age removes old batch",
			opts: CleanupOptions{MaxAge: 24 * time.Hour},
			age:  48 * time.Hour,
			wantDeleted: func(old, recent []string) []string {
				return old
			},
		},
		{
			name: "age and count combine",
			opts: CleanupOptions{MaxAge: 24 * time.Hour, MaxBackups: 1},
			age:  48 * time.Hour,
			wantDeleted: func(old, recent []string) []string {
				return append(slices.Clone(old), recent[0])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, clock := newTestManager(t)
			old := createN(t, m, "p1", 3)
			clock.advance(tt.age)
			recent := createN(t, m, "p1", 2)

			deleted, err := m.Cleanup(tt.opts)
			util.AssertNoError(t, err)

			want := tt.wantDeleted(old, recent)
			slices.Sort(deleted)
			slices.Sort(want)
			if !slices.Equal(deleted, want) {
				t.Errorf("Cleanup() deleted %v, want %v", deleted, want)
			}

			remaining, err := m.List("p1")
			util.AssertNoError(t, err)
			util.AssertEqual(t, len(remaining), 5-len(want))
		})
	}
}

func TestCleanupKeepAtLeastOne(t *testing.T) {
	for _, keep := range []bool{true, false} {
		t.Run(strconv.FormatBool(keep), func(t *testing.T) {
			m, clock := newTestManager(t)
			ids := createN(t, m, "p1", 3)
			clock.advance(90 * 24 * time.Hour)

			deleted, err := m.Cleanup(CleanupOptions{MaxAge: time.Hour, KeepAtLeastOne: keep})
			util.AssertNoError(t, err)

			remaining, err := m.List("p1")
			util.AssertNoError(t, err)
			if keep {
				util.AssertEqual(t, len(deleted), 2)
				if len(remaining) != 1 || remaining[0].ID != ids[2] {
					t.Errorf("expected newest backup %s to survive, got %v", ids[2], remaining)
				}
			} else {
				util.AssertEqual(t, len(deleted), 3)
				util.AssertEqual(t, len(remaining), 0)
			}
		})
	}
}

func TestCleanupProfileFilter(t *testing.T) {
	m, _ := newTestManager(t)
	createN(t, m, "p1", 3)
	createN(t, m, "p2", 3)

	deleted, err := m.Cleanup(CleanupOptions{MaxBackups: 1, ProfileID: "p2"})
	util.AssertNoError(t, err)
	util.AssertEqual(t, len(deleted), 2)

	p1, _ := m.List("p1")
	p2, _ := m.List("p2")
	util.AssertEqual(t, len(p1), 3)
	util.AssertEqual(t, len(p2), 1)

	// per-profile limits apply independently
	deleted, err = m.Cleanup(CleanupOptions{MaxBackups: 1})
	util.AssertNoError(t, err)
	util.AssertEqual(t, len(deleted), 2)
}

func TestCleanupDryRun(t *testing.T) {
	m, _ := newTestManager(t)
	createN(t, m, "p1", 4)

	deleted, err := m.Cleanup(CleanupOptions{MaxBackups: 1, DryRun: true})
	util.AssertNoError(t, err)
	util.AssertEqual(t, len(deleted), 3)

	remaining, _ := m.List("")
	util.AssertEqual(t, len(remaining), 4)
}

func TestCleanupEmptyIndex(t *testing.T) {
	m, _ := newTestManager(t)
	deleted, err := m.Cleanup(DefaultCleanupOptions())
	util.AssertNoError(t, err)
	util.AssertEqual(t, len(deleted), 0)
}

func TestStats(t *testing.T) {
	m, _ := newTestManager(t)

	empty, err := m.Stats()
	util.AssertNoError(t, err)
	util.AssertEqual(t, empty.TotalBackups, 0)
	if !empty.OldestBackup.IsZero() || !empty.NewestBackup.IsZero() {
		t.Errorf("empty stats should have zero times, got %v / %v", empty.OldestBackup, empty.NewestBackup)
	}

	createN(t, m, "p1", 2)
	createN(t, m, "p2", 1)
	all, _ := m.List("")

	stats, err := m.Stats()
	util.AssertNoError(t, err)
	util.AssertEqual(t, stats.TotalBackups, 3)
	util.AssertEqual(t, stats.BackupsByProfile["p1"], 2)
	util.AssertEqual(t, stats.BackupsByProfile["p2"], 1)

	var size int64
	for _, b := range all {
		size += b.Size
	}
	util.AssertEqual(t, stats.TotalSize, size)
	util.AssertEqual(t, stats.NewestBackup, all[0].CreatedAt)
	util.AssertEqual(t, stats.OldestBackup, all[len(all)-1].CreatedAt)
}
