package sync

import (
	"fmt"
	"strings"
	"time"

	"github.com/klauern/padsync/internal/model"
)

// Action represents what a commit did to one item of the local dataset.
type Action string

const (
	// ActionCreated indicates an item that did not exist locally was added.
	ActionCreated Action = "created"

	// ActionUpdated indicates an existing item changed.
	ActionUpdated Action = "updated"

	// ActionDeleted indicates a local item was removed.
	ActionDeleted Action = "deleted"
)

// Change records one item touched by a commit.
type Change struct {
	Store  model.StoreKind
	Key    string
	Action Action
}

// Outcome is the result of one sync attempt or commit.
type Outcome struct {
	ProfileID string
	Trigger   Trigger
	State     State

	// Skipped is true when the attempt did not run because another one was
	// in flight or a conflict is awaiting resolution.
	Skipped bool

	// Local and Remote are the snapshots the attempt compared. Remote is nil
	// when no remote file existed.
	Local  *model.Dataset
	Remote *model.Dataset

	// Handle is the remote file the attempt read or wrote.
	Handle *FileHandle

	// Detection is set once datasets were compared.
	Detection *Detection

	// Committed is the dataset written to both sides on success.
	Committed *model.Dataset
	SyncedAt  time.Time
	Changes   []Change

	// ResumeAfter is set when syncing is paused.
	ResumeAfter time.Time

	Err error
}

// Created returns items that were added locally.
func (o *Outcome) Created() []Change {
	return o.filterByAction(ActionCreated)
}

// Updated returns items that changed locally.
func (o *Outcome) Updated() []Change {
	return o.filterByAction(ActionUpdated)
}

// Deleted returns items that were removed locally.
func (o *Outcome) Deleted() []Change {
	return o.filterByAction(ActionDeleted)
}

func (o *Outcome) filterByAction(action Action) []Change {
	var filtered []Change
	for _, c := range o.Changes {
		if c.Action == action {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

// Conflicts returns the conflicts awaiting resolution, if any.
func (o *Outcome) Conflicts() []Conflict {
	if o.Detection == nil {
		return nil
	}
	return o.Detection.Conflicts
}

// Summary returns a human-readable summary of the outcome.
func (o *Outcome) Summary() string {
	var sb strings.Builder

	switch {
	case o.Skipped:
		sb.WriteString(fmt.Sprintf("Skipped %s: attempt already %s\n", o.ProfileID, o.State))
		return sb.String()
	case o.State == StatePaused:
		sb.WriteString(fmt.Sprintf("Paused %s until %s\n", o.ProfileID, o.ResumeAfter.Format(time.RFC3339)))
		return sb.String()
	case o.State == StateError:
		sb.WriteString(fmt.Sprintf("Sync of %s failed: %v\n", o.ProfileID, o.Err))
		return sb.String()
	case o.State == StateConflict:
		conflicts := o.Conflicts()
		sb.WriteString(fmt.Sprintf("Sync of %s needs resolution: %d conflict(s)\n", o.ProfileID, len(conflicts)))
		for _, c := range conflicts {
			sb.WriteString(fmt.Sprintf("  - %s\n", c.Summary()))
		}
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("Synced %s at %s\n", o.ProfileID, o.SyncedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("  Created: %d\n", len(o.Created())))
	sb.WriteString(fmt.Sprintf("  Updated: %d\n", len(o.Updated())))
	sb.WriteString(fmt.Sprintf("  Deleted: %d\n", len(o.Deleted())))
	return sb.String()
}

// DiffChanges lists the items that differ between two local snapshots.
func DiffChanges(before, after *model.Dataset) []Change {
	if before == nil {
		before = &model.Dataset{}
	}
	var changes []Change
	if !sameRecord(model.ProfileKind, &before.Profile, &after.Profile) {
		changes = append(changes, Change{Store: model.StoreProfile, Key: after.Profile.ID, Action: ActionUpdated})
	}
	changes = append(changes, diffItems(model.PadKind, before.PadConfigurations, after.PadConfigurations)...)
	changes = append(changes, diffItems(model.PageKind, before.PageMetadata, after.PageMetadata)...)
	return changes
}

func diffItems[T any](kind model.Kind[T], before, after []T) []Change {
	old := make(map[string]*T, len(before))
	for i := range before {
		old[kind.Key(&before[i])] = &before[i]
	}

	var changes []Change
	for i := range after {
		key := kind.Key(&after[i])
		prev, ok := old[key]
		switch {
		case !ok:
			changes = append(changes, Change{Store: kind.Store, Key: key, Action: ActionCreated})
		case !sameRecord(kind, prev, &after[i]):
			changes = append(changes, Change{Store: kind.Store, Key: key, Action: ActionUpdated})
		}
		delete(old, key)
	}
	for i := range before {
		key := kind.Key(&before[i])
		if _, gone := old[key]; gone {
			changes = append(changes, Change{Store: kind.Store, Key: key, Action: ActionDeleted})
		}
	}
	return changes
}

func sameRecord[T any](kind model.Kind[T], a, b *T) bool {
	for _, f := range kind.Fields {
		if !model.Equal(f.Get(a), f.Get(b)) {
			return false
		}
	}
	return true
}
