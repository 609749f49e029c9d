package sync

import (
	"log/slog"

	"github.com/klauern/padsync/internal/logging"
	"github.com/klauern/padsync/internal/model"
)

// Detection is the outcome of comparing a local and a remote dataset.
type Detection struct {
	// Conflicts lists every item that needs a human decision.
	Conflicts []Conflict

	// RequiresManualResolution is true iff Conflicts is non-empty.
	RequiresManualResolution bool

	// Merged carries everything that did not conflict. When the profile
	// record conflicts, Merged.Profile holds its partial merge. The last sync
	// timestamp is left as local's; it is stamped at commit.
	Merged *model.Dataset

	// Local is the local dataset the detection started from.
	Local *model.Dataset

	// Remote is the remote dataset with its assets renumbered into local's
	// id space, or nil when there was no remote dataset.
	Remote *model.Dataset
}

// Detect compares local against remote. A nil remote means no remote file
// exists yet and local is authoritative. Neither input is modified.
func Detect(local, remote *model.Dataset) *Detection {
	if remote == nil {
		return &Detection{
			Merged: local.Clone(),
			Local:  local.Clone(),
		}
	}

	remote = ReconcileAssets(local, remote)
	localLast, remoteLast := local.LastSync(), remote.LastSync()

	base := local.Clone()
	merged := &model.Dataset{
		FormatVersion:     model.FormatVersion,
		LastSyncTimestamp: base.LastSyncTimestamp,
		ResumeAfter:       base.ResumeAfter,
	}
	var conflicts []Conflict

	root := MergeRecord(model.ProfileKind, local.Profile, remote.Profile, localLast, remoteLast)
	merged.Profile = root.Merged
	if !root.OK() {
		conflicts = append(conflicts, Conflict{
			Kind:   ConflictField,
			Store:  model.StoreProfile,
			Key:    local.Profile.ID,
			Local:  model.ProfileKind.Clone(&local.Profile),
			Remote: model.ProfileKind.Clone(&remote.Profile),
			Merged: model.ProfileKind.Clone(&root.Merged),
			Fields: root.Conflicts,
		})
	}

	pads := DiffCollection(model.PadKind, local.PadConfigurations, remote.PadConfigurations, localLast, remoteLast)
	merged.PadConfigurations = nonNil(pads.Merged)
	conflicts = append(conflicts, pads.Conflicts...)

	pages := DiffCollection(model.PageKind, local.PageMetadata, remote.PageMetadata, localLast, remoteLast)
	merged.PageMetadata = nonNil(pages.Merged)
	conflicts = append(conflicts, pages.Conflicts...)

	merged.AudioFiles = model.UnionAssets(base.AudioFiles, remote.Clone().AudioFiles)
	merged.PruneAssets()

	logging.Debug("dataset comparison finished",
		logging.Profile(local.Profile.ID),
		logging.Count(len(conflicts)),
		slog.Int("pads", len(merged.PadConfigurations)),
		slog.Int("pages", len(merged.PageMetadata)),
	)

	return &Detection{
		Conflicts:                conflicts,
		RequiresManualResolution: len(conflicts) > 0,
		Merged:                   merged,
		Local:                    local.Clone(),
		Remote:                   remote,
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
