package sync

import (
	"context"
	"time"

	"github.com/klauern/padsync/internal/model"
)

// FileHandle identifies a remote dataset file.
type FileHandle struct {
	// ID is the remote store's stable identifier for the file.
	ID         string
	Name       string
	ModifiedAt time.Time
}

// LocalStore persists datasets on this device.
type LocalStore interface {
	// ReadDataset returns a fresh snapshot of the profile's dataset, including
	// its last sync time and any resume-after marker.
	ReadDataset(ctx context.Context, profileID string) (*model.Dataset, error)

	// ApplyDataset replaces the profile's records with ds as one
	// all-or-nothing unit: surviving items are upserted, items absent from ds
	// are deleted, and embedded assets are materialized. It does not change
	// the last sync time.
	ApplyDataset(ctx context.Context, profileID string, ds *model.Dataset) error

	// HasProfile reports whether the store holds a profile with this id.
	HasProfile(ctx context.Context, profileID string) (bool, error)

	ReadLastSyncTimestamp(ctx context.Context, profileID string) (time.Time, error)
	WriteLastSyncTimestamp(ctx context.Context, profileID string, ts time.Time) error

	// RemoteLink returns the stored remote file id, or "" if none.
	RemoteLink(ctx context.Context, profileID string) (string, error)
	SetRemoteLink(ctx context.Context, profileID, fileID string) error

	// SetResumeAfter pauses syncing of the profile until the given time. A nil
	// time clears the pause.
	SetResumeAfter(ctx context.Context, profileID string, until *time.Time) error
}

// RemoteStore holds dataset files in a third-party object store. Failures
// should be reported as *Error values so the orchestrator can classify them.
type RemoteStore interface {
	// FindByStableID returns the file with id, or nil if it no longer exists.
	FindByStableID(ctx context.Context, id string) (*FileHandle, error)

	// FindByName returns the file with the given display name, or nil.
	FindByName(ctx context.Context, name string) (*FileHandle, error)

	// Download returns the dataset stored in the file, or nil if it is gone.
	Download(ctx context.Context, handle FileHandle) (*model.Dataset, error)

	// Upload writes ds under name. A nil existing handle creates a new file;
	// otherwise the existing file is updated in place.
	Upload(ctx context.Context, name string, ds *model.Dataset, existing *FileHandle) (*FileHandle, error)
}

// Refresher renews expired remote credentials.
type Refresher interface {
	Refresh(ctx context.Context) error
}
