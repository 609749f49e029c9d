package sync

import (
	"fmt"
	"time"

	"github.com/klauern/padsync/internal/model"
)

// DiffResult is the outcome of diffing two collections.
type DiffResult[T any] struct {
	// Conflicts lists items that need a human decision.
	Conflicts []Conflict

	// Merged holds every item that resolved automatically, local order first
	// followed by remote-only items in remote order. Conflicting items are omitted.
	Merged []T
}

// DiffCollection matches local and remote items by logical key. Matched items
// are merged field by field. An unmatched item created after the other side's
// last sync is new and kept; an older one was deleted on the other side and
// becomes a conflict.
//
// Duplicate keys within one side violate the dataset contract and panic;
// callers validate datasets first.
func DiffCollection[T any](kind model.Kind[T], local, remote []T, localLastSync, remoteLastSync time.Time) DiffResult[T] {
	remoteByKey := indexByKey(kind, remote)
	localByKey := indexByKey(kind, local)

	var result DiffResult[T]
	for i := range local {
		item := &local[i]
		key := kind.Key(item)

		if j, ok := remoteByKey[key]; ok {
			mr := MergeRecord(kind, *item, remote[j], localLastSync, remoteLastSync)
			if mr.OK() {
				result.Merged = append(result.Merged, mr.Merged)
				continue
			}
			result.Conflicts = append(result.Conflicts, Conflict{
				Kind:   ConflictField,
				Store:  kind.Store,
				Key:    key,
				Local:  kind.Clone(item),
				Remote: kind.Clone(&remote[j]),
				Merged: mr.Merged,
				Fields: mr.Conflicts,
			})
			continue
		}

		if kind.Meta(item).CreatedAt.After(remoteLastSync) {
			result.Merged = append(result.Merged, kind.Clone(item))
			continue
		}
		result.Conflicts = append(result.Conflicts, Conflict{
			Kind:  ConflictLocalOnly,
			Store: kind.Store,
			Key:   key,
			Local: kind.Clone(item),
		})
	}

	for j := range remote {
		item := &remote[j]
		key := kind.Key(item)
		if _, ok := localByKey[key]; ok {
			continue
		}

		if kind.Meta(item).CreatedAt.After(localLastSync) {
			result.Merged = append(result.Merged, kind.Clone(item))
			continue
		}
		result.Conflicts = append(result.Conflicts, Conflict{
			Kind:   ConflictRemoteOnly,
			Store:  kind.Store,
			Key:    key,
			Remote: kind.Clone(item),
		})
	}

	return result
}

func indexByKey[T any](kind model.Kind[T], items []T) map[string]int {
	idx := make(map[string]int, len(items))
	for i := range items {
		key := kind.Key(&items[i])
		if _, dup := idx[key]; dup {
			panic(fmt.Sprintf("sync: duplicate %s key %q", kind.Store, key))
		}
		idx[key] = i
	}
	return idx
}
