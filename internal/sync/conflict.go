package sync

import (
	"fmt"
	"strings"
	"time"

	"github.com/klauern/padsync/internal/model"
)

// ConflictKind identifies the kind of conflict detected.
type ConflictKind string

const (
	// ConflictField indicates both sides changed one or more fields of the same item.
	ConflictField ConflictKind = "field"

	// ConflictLocalOnly indicates local still has an item the remote deleted.
	ConflictLocalOnly ConflictKind = "local_only"

	// ConflictRemoteOnly indicates the remote has an item local deleted.
	ConflictRemoteOnly ConflictKind = "remote_only"
)

// FieldConflict describes one field that both sides changed.
type FieldConflict struct {
	Field            string
	LocalValue       any
	RemoteValue      any
	LocalModifiedAt  time.Time
	RemoteModifiedAt time.Time
}

// Conflict represents one item that needs a human decision.
type Conflict struct {
	Kind  ConflictKind
	Store model.StoreKind
	Key   string

	// Local and Remote hold the entity value from each side. Only one is set
	// for local-only and remote-only conflicts.
	Local  any
	Remote any

	// Merged holds the item with every non-conflicting field already merged
	// and each conflicting field at its local value. Only set for field conflicts.
	Merged any

	// Fields lists the conflicting fields of a field conflict.
	Fields []FieldConflict
}

// ID identifies the conflict within one detection.
func (c Conflict) ID() string {
	return string(c.Store) + "/" + c.Key
}

// Summary returns a one-line description of the conflict.
func (c Conflict) Summary() string {
	switch c.Kind {
	case ConflictField:
		names := make([]string, len(c.Fields))
		for i, f := range c.Fields {
			names[i] = f.Field
		}
		return fmt.Sprintf("%s %s: changed on both sides (%s)", c.Store, c.Key, strings.Join(names, ", "))
	case ConflictLocalOnly:
		return fmt.Sprintf("%s %s: deleted remotely, still present locally", c.Store, c.Key)
	case ConflictRemoteOnly:
		return fmt.Sprintf("%s %s: deleted locally, still present remotely", c.Store, c.Key)
	default:
		return fmt.Sprintf("%s %s: %s", c.Store, c.Key, c.Kind)
	}
}

// LocalLabel describes what picking the local side means.
func (c Conflict) LocalLabel() string {
	if c.Kind == ConflictRemoteOnly {
		return "discard remote item"
	}
	return "keep local"
}

// RemoteLabel describes what picking the remote side means.
func (c Conflict) RemoteLabel() string {
	switch c.Kind {
	case ConflictLocalOnly:
		return "delete local item"
	case ConflictRemoteOnly:
		return "accept remote item"
	default:
		return "take remote"
	}
}
