// Package resolve turns a conflict list and human decisions into a resolved
// dataset ready to commit.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/klauern/padsync/internal/model"
	"github.com/klauern/padsync/internal/sync"
)

// ErrUndecided is returned when a conflict has no decision.
var ErrUndecided = errors.New("conflicts left undecided")

// Choice picks one side of a conflict.
type Choice string

const (
	// Local keeps the local value, keeps a local-only item or discards a
	// remote-only item.
	Local Choice = "local"

	// Remote takes the remote value, deletes a local-only item or accepts a
	// remote-only item.
	Remote Choice = "remote"
)

// ParseChoice accepts a side name or one of the per-kind action words.
func ParseChoice(s string) (Choice, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local", "l", "keep_local", "keep", "discard":
		return Local, nil
	case "remote", "r", "take_remote", "delete", "accept":
		return Remote, nil
	default:
		return "", fmt.Errorf("invalid choice %q (valid: local, remote)", s)
	}
}

// Decision resolves one conflict. Fields optionally overrides Choice for
// individual fields of a field conflict.
type Decision struct {
	Choice Choice
	Fields map[string]Choice
}

// For returns the choice for field.
func (d Decision) For(field string) Choice {
	if c, ok := d.Fields[field]; ok {
		return c
	}
	return d.Choice
}

// Resolver collects decisions for the conflicts of a detection.
type Resolver interface {
	Resolve(ctx context.Context, det *sync.Detection) (map[string]Decision, error)
}

// Prefer resolves every conflict towards one side.
type Prefer Choice

// Resolve implements Resolver.
func (p Prefer) Resolve(_ context.Context, det *sync.Detection) (map[string]Decision, error) {
	return All(det.Conflicts, Choice(p)), nil
}

// All returns the same decision for every conflict.
func All(conflicts []sync.Conflict, choice Choice) map[string]Decision {
	out := make(map[string]Decision, len(conflicts))
	for _, c := range conflicts {
		out[c.ID()] = Decision{Choice: choice}
	}
	return out
}

// Run asks r for decisions and builds the resolved dataset.
func Run(ctx context.Context, det *sync.Detection, r Resolver, at time.Time) (*model.Dataset, error) {
	decisions, err := r.Resolve(ctx, det)
	if err != nil {
		return nil, err
	}
	return Build(det, decisions, at)
}

// Build applies decisions over det.Merged. Fields settled by a decision are
// stamped with at so other devices take the decided value. A kept
// local-only item is re-stamped as created at at, so the device that deleted
// it sees it as new.
func Build(det *sync.Detection, decisions map[string]Decision, at time.Time) (*model.Dataset, error) {
	if det == nil || det.Merged == nil {
		return nil, errors.New("nothing to resolve")
	}

	byID := make(map[string]sync.Conflict, len(det.Conflicts))
	var missing []string
	for _, c := range det.Conflicts {
		byID[c.ID()] = c
		d, ok := decisions[c.ID()]
		if !ok || !valid(d.Choice) {
			missing = append(missing, c.ID())
			continue
		}
		for field, fc := range d.Fields {
			if !valid(fc) {
				return nil, fmt.Errorf("%s: invalid choice %q for field %s", c.ID(), fc, field)
			}
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: %s", ErrUndecided, strings.Join(missing, ", "))
	}

	at = at.UTC()
	out := det.Merged.Clone()

	if c, ok := byID[conflictID(model.StoreProfile, det.Merged.Profile.ID)]; ok {
		p, _, err := apply(model.ProfileKind, c, decisions[c.ID()], at)
		if err != nil {
			return nil, err
		}
		out.Profile = p
	}

	local, remote := det.Local, det.Remote
	if local == nil {
		local = &model.Dataset{}
	}
	if remote == nil {
		remote = &model.Dataset{}
	}

	var err error
	out.PadConfigurations, err = collection(model.PadKind, out.PadConfigurations,
		local.PadConfigurations, remote.PadConfigurations, byID, decisions, at)
	if err != nil {
		return nil, err
	}
	out.PageMetadata, err = collection(model.PageKind, out.PageMetadata,
		local.PageMetadata, remote.PageMetadata, byID, decisions, at)
	if err != nil {
		return nil, err
	}

	out.AudioFiles = model.UnionAssets(model.UnionAssets(out.AudioFiles, local.AudioFiles), remote.AudioFiles)
	out.PruneAssets()
	return out, nil
}

func valid(c Choice) bool {
	return c == Local || c == Remote
}

func conflictID(store model.StoreKind, key string) string {
	return sync.Conflict{Store: store, Key: key}.ID()
}

// collection rebuilds one collection in local order followed by remote-only
// order, taking merged items as they are and applying decisions to the rest.
func collection[T any](kind model.Kind[T], merged, local, remote []T, conflicts map[string]sync.Conflict, decisions map[string]Decision, at time.Time) ([]T, error) {
	mergedByKey := make(map[string]T, len(merged))
	for i := range merged {
		mergedByKey[kind.Key(&merged[i])] = merged[i]
	}

	var keys []string
	seen := make(map[string]bool, len(local)+len(remote))
	for _, list := range [][]T{local, remote, merged} {
		for i := range list {
			key := kind.Key(&list[i])
			if !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
		}
	}

	out := make([]T, 0, len(keys))
	for _, key := range keys {
		if item, ok := mergedByKey[key]; ok {
			out = append(out, item)
			continue
		}
		c, ok := conflicts[conflictID(kind.Store, key)]
		if !ok {
			continue
		}
		item, keep, err := apply(kind, c, decisions[c.ID()], at)
		if err != nil {
			return nil, err
		}
		if keep {
			out = append(out, item)
		}
	}
	return out, nil
}

// apply resolves one conflict. keep is false when the decision removes the item.
func apply[T any](kind model.Kind[T], c sync.Conflict, d Decision, at time.Time) (item T, keep bool, err error) {
	switch c.Kind {
	case sync.ConflictField:
		merged, ok1 := c.Merged.(T)
		remote, ok2 := c.Remote.(T)
		if !ok1 || !ok2 {
			return item, false, fmt.Errorf("%s: unexpected conflict payload", c.ID())
		}
		item = kind.Clone(&merged)
		meta := kind.Meta(&item)
		for _, fc := range c.Fields {
			if d.For(fc.Field) == Remote {
				f, ok := kind.Field(fc.Field)
				if !ok {
					return item, false, fmt.Errorf("%s: unknown field %s", c.ID(), fc.Field)
				}
				f.Copy(&item, &remote)
			}
			meta.Touch(fc.Field, at)
		}
		return item, true, nil

	case sync.ConflictLocalOnly:
		if d.Choice == Remote {
			return item, false, nil
		}
		local, ok := c.Local.(T)
		if !ok {
			return item, false, fmt.Errorf("%s: unexpected conflict payload", c.ID())
		}
		item = kind.Clone(&local)
		kind.Meta(&item).Stamp(kind.FieldNames(), at)
		return item, true, nil

	case sync.ConflictRemoteOnly:
		if d.Choice == Local {
			return item, false, nil
		}
		remote, ok := c.Remote.(T)
		if !ok {
			return item, false, fmt.Errorf("%s: unexpected conflict payload", c.ID())
		}
		return kind.Clone(&remote), true, nil

	default:
		return item, false, fmt.Errorf("%s: unknown conflict kind %q", c.ID(), c.Kind)
	}
}
