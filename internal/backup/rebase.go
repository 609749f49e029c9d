package backup

import (
	"time"

	"github.com/klauern/padsync/internal/model"
)

// Rebase prepares a snapshot for restoring over current. Values that differ
// from current are stamped at the given time so the next sync treats them as
// the newest edits instead of losing them to the remote copy. Items missing
// from current are stamped as created at that time. Embedded audio is
// renumbered so it never lands on an unrelated row current holds. current may
// be nil.
func Rebase(current, snapshot *model.Dataset, at time.Time) *model.Dataset {
	out := snapshot.Clone()
	if current != nil {
		out = model.RenumberAssets(current, snapshot)
	}
	out.ResumeAfter = nil
	if current == nil {
		current = &model.Dataset{}
		out.LastSyncTimestamp = nil
		model.ProfileKind.Meta(&out.Profile).Stamp(model.ProfileKind.FieldNames(), at)
	} else {
		out.Profile.ID = current.Profile.ID
		out.LastSyncTimestamp = current.LastSyncTimestamp
		model.ProfileKind.TouchChanged(&current.Profile, &out.Profile, at)
	}

	rebaseItems(model.PadKind, current.PadConfigurations, out.PadConfigurations, at)
	rebaseItems(model.PageKind, current.PageMetadata, out.PageMetadata, at)
	return out
}

func rebaseItems[T any](kind model.Kind[T], current, restored []T, at time.Time) {
	byKey := make(map[string]*T, len(current))
	for i := range current {
		byKey[kind.Key(&current[i])] = &current[i]
	}
	for i := range restored {
		item := &restored[i]
		if cur, ok := byKey[kind.Key(item)]; ok {
			kind.TouchChanged(cur, item, at)
			continue
		}
		kind.Meta(item).Stamp(kind.FieldNames(), at)
	}
}
