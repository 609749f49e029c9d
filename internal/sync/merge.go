package sync

import (
	"time"

	"github.com/klauern/padsync/internal/model"
)

// MergeResult is the outcome of merging two versions of one record.
type MergeResult[T any] struct {
	// Merged is the merged record. When Conflicts is non-empty it is partial:
	// every conflicting field holds the local value.
	Merged T

	// Conflicts lists the fields both sides changed to different values.
	Conflicts []FieldConflict
}

// OK reports whether the merge produced a record without conflicts.
func (r MergeResult[T]) OK() bool {
	return len(r.Conflicts) == 0
}

// MergeRecord merges local and remote versions of the same record.
// localLastSync and remoteLastSync are the last sync times of the datasets
// holding each version; the zero time means never synced. Neither input is
// modified.
func MergeRecord[T any](kind model.Kind[T], local, remote T, localLastSync, remoteLastSync time.Time) MergeResult[T] {
	l := kind.Clone(&local)
	r := kind.Clone(&remote)
	lm, rm := kind.Meta(&l), kind.Meta(&r)

	merged := kind.Clone(&l)
	mm := kind.Meta(&merged)
	mm.FieldModifiedAt = make(map[string]time.Time, len(kind.Fields))

	var conflicts []FieldConflict
	for _, f := range kind.Fields {
		lt, rt := lm.FieldTime(f.Name), rm.FieldTime(f.Name)
		lv, rv := f.Get(&l), f.Get(&r)

		localChanged := lt.After(remoteLastSync)
		remoteChanged := rt.After(localLastSync)
		differ := !model.Equal(lv, rv)

		var ts time.Time
		switch {
		case localChanged && remoteChanged && differ:
			conflicts = append(conflicts, FieldConflict{
				Field:            f.Name,
				LocalValue:       lv,
				RemoteValue:      rv,
				LocalModifiedAt:  lt,
				RemoteModifiedAt: rt,
			})
			ts = lt
		case remoteChanged && !localChanged && differ:
			f.Copy(&merged, &r)
			ts = rt
		case localChanged && !remoteChanged && differ:
			ts = lt
		default:
			if !preferLocal(lm, rm, lt, rt, lv, rv) {
				f.Copy(&merged, &r)
			}
			ts = model.MaxTime(lt, rt)
		}
		if !ts.IsZero() {
			mm.FieldModifiedAt[f.Name] = ts
		}
	}

	mm.CreatedAt = model.MinTime(lm.CreatedAt, rm.CreatedAt)
	mm.ModifiedAt = model.MaxTime(lm.ModifiedAt, rm.ModifiedAt)

	return MergeResult[T]{Merged: merged, Conflicts: conflicts}
}

// preferLocal decides which side's value survives when neither side made a
// meaningful change. The more recently modified record wins; ties fall back to
// the field timestamp and then to a canonical ordering of the values so the
// outcome does not depend on which side is called local.
func preferLocal(lm, rm *model.Record, lt, rt time.Time, lv, rv any) bool {
	if !lm.ModifiedAt.Equal(rm.ModifiedAt) {
		return lm.ModifiedAt.After(rm.ModifiedAt)
	}
	if !lt.Equal(rt) {
		return lt.After(rt)
	}
	return model.CanonicalKey(lv) >= model.CanonicalKey(rv)
}
