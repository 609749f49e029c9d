package sync

import (
	"math"
	"testing"
	"time"

	"github.com/klauern/padsync/internal/model"
)

func TestMergeRecord_BothChangedIsConflict(t *testing.T) {
	local := newPad(0, 1, "Siren", 1)
	local.Touch("name", at(10))
	remote := newPad(0, 1, "Horn", 1)
	remote.Touch("name", at(12))

	result := MergeRecord(model.PadKind, local, remote, at(5), at(5))

	if result.OK() {
		t.Fatal("expected a conflict when both sides changed name")
	}
	if len(result.Conflicts) != 1 {
		t.Fatalf("expected 1 field conflict, got %d", len(result.Conflicts))
	}
	fc := result.Conflicts[0]
	if fc.Field != "name" || fc.LocalValue != "Siren" || fc.RemoteValue != "Horn" {
		t.Errorf("unexpected conflict: %+v", fc)
	}
	if !fc.LocalModifiedAt.Equal(at(10)) || !fc.RemoteModifiedAt.Equal(at(12)) {
		t.Errorf("unexpected conflict timestamps: %v / %v", fc.LocalModifiedAt, fc.RemoteModifiedAt)
	}
	if result.Merged.Name != "Siren" {
		t.Errorf("partial merge should hold the local value, got %q", result.Merged.Name)
	}
}

func TestMergeRecord_RemoteOnlyChange(t *testing.T) {
	local := newPad(0, 1, "Siren", 1)
	remote := newPad(0, 1, "Horn", 1)
	remote.Touch("name", at(8))

	result := MergeRecord(model.PadKind, local, remote, at(5), at(5))

	if !result.OK() {
		t.Fatalf("unexpected conflicts: %+v", result.Conflicts)
	}
	if result.Merged.Name != "Horn" {
		t.Errorf("Name = %q, want remote's Horn", result.Merged.Name)
	}
	if got := result.Merged.FieldTime("name"); !got.Equal(at(8)) {
		t.Errorf("FieldTime(name) = %v, want %v", got, at(8))
	}
	if !result.Merged.ModifiedAt.Equal(at(8)) {
		t.Errorf("ModifiedAt = %v, want %v", result.Merged.ModifiedAt, at(8))
	}
}

func TestMergeRecord_LocalOnlyChange(t *testing.T) {
	local := newPad(0, 1, "Siren", 1)
	local.Volume = 0.25
	local.Touch("volume", at(9))
	remote := newPad(0, 1, "Siren", 1)

	result := MergeRecord(model.PadKind, local, remote, at(5), at(5))

	if !result.OK() {
		t.Fatalf("unexpected conflicts: %+v", result.Conflicts)
	}
	if result.Merged.Volume != 0.25 {
		t.Errorf("Volume = %v, want local's 0.25", result.Merged.Volume)
	}
	if got := result.Merged.FieldTime("volume"); !got.Equal(at(9)) {
		t.Errorf("FieldTime(volume) = %v, want %v", got, at(9))
	}
}

func TestMergeRecord_SameValueBothChanged(t *testing.T) {
	local := newPad(0, 1, "Horn", 1)
	local.Touch("name", at(10))
	remote := newPad(0, 1, "Horn", 1)
	remote.Touch("name", at(12))

	result := MergeRecord(model.PadKind, local, remote, at(5), at(5))

	if !result.OK() {
		t.Fatalf("identical values should never conflict: %+v", result.Conflicts)
	}
	if got := result.Merged.FieldTime("name"); !got.Equal(at(12)) {
		t.Errorf("FieldTime(name) = %v, want max %v", got, at(12))
	}
}

func TestMergeRecord_EmptyAndNilSlicesEqual(t *testing.T) {
	local := newPad(0, 1, "Horn", 1)
	local.AudioFileIDs = []int64{}
	local.Touch("audioFileIds", at(10))
	remote := newPad(0, 1, "Horn", 1)
	remote.AudioFileIDs = nil
	remote.Touch("audioFileIds", at(11))

	if result := MergeRecord(model.PadKind, local, remote, at(5), at(5)); !result.OK() {
		t.Errorf("nil and empty slices should be equal, got conflicts %+v", result.Conflicts)
	}
}

func TestMergeRecord_SliceValuesCompareStructurally(t *testing.T) {
	local := newPad(0, 1, "Horn", 1)
	local.AudioFileIDs = []int64{1, 2}
	local.Touch("audioFileIds", at(10))
	remote := newPad(0, 1, "Horn", 1)
	remote.AudioFileIDs = []int64{2, 1}
	remote.Touch("audioFileIds", at(11))

	result := MergeRecord(model.PadKind, local, remote, at(5), at(5))
	if result.OK() || result.Conflicts[0].Field != "audioFileIds" {
		t.Errorf("reordered ids are a different value, expected conflict, got %+v", result.Conflicts)
	}
}

func TestMergeRecord_UnchangedKeepsNewerRecord(t *testing.T) {
	// Neither side changed since the common sync; the record modified later wins.
	local := newPad(0, 1, "Old", 1)
	remote := newPad(0, 1, "New", 1)
	remote.ModifiedAt = at(3)

	result := MergeRecord(model.PadKind, local, remote, at(5), at(5))

	if !result.OK() {
		t.Fatalf("unexpected conflicts: %+v", result.Conflicts)
	}
	if result.Merged.Name != "New" {
		t.Errorf("Name = %q, want value of the newer record", result.Merged.Name)
	}
}

func TestMergeRecord_CreatedAndModified(t *testing.T) {
	local := newPad(0, 1, "Siren", 3)
	local.Touch("color", at(20))
	remote := newPad(0, 1, "Siren", 2)
	remote.Touch("shortcut", at(15))

	result := MergeRecord(model.PadKind, local, remote, at(10), at(10))

	if !result.OK() {
		t.Fatalf("unexpected conflicts: %+v", result.Conflicts)
	}
	if !result.Merged.CreatedAt.Equal(at(2)) {
		t.Errorf("CreatedAt = %v, want earliest %v", result.Merged.CreatedAt, at(2))
	}
	if !result.Merged.ModifiedAt.Equal(at(20)) {
		t.Errorf("ModifiedAt = %v, want latest %v", result.Merged.ModifiedAt, at(20))
	}
	if !result.Merged.ModifiedAt.Equal(result.Merged.Latest()) {
		t.Errorf("ModifiedAt %v != max field time %v", result.Merged.ModifiedAt, result.Merged.Latest())
	}
}

func TestMergeRecord_Commutative(t *testing.T) {
	tests := []struct {
		name  string
		a, b  func() model.PadConfiguration
		aLast int
		bLast int
	}{
		{
			name: "disjoint edits",
			a: func() model.PadConfiguration {
				p := newPad(0, 0, "Kick", 1)
				p.Color = "red"
				p.Touch("color", at(7))
				return p
			},
			b: func() model.PadConfiguration {
				p := newPad(0, 0, "Kick", 1)
				p.Volume = 0.5
				p.Touch("volume", at(8))
				return p
			},
			aLast: 5, bLast: 5,
		},
		{
			name: "tie on modified at",
			a: func() model.PadConfiguration {
				p := newPad(0, 0, "Kick", 1)
				p.Name = "A"
				return p
			},
			b: func() model.PadConfiguration {
				p := newPad(0, 0, "Kick", 1)
				p.Name = "B"
				return p
			},
			aLast: 5, bLast: 5,
		},
		{
			name: "tie between volumes json cannot encode",
			a: func() model.PadConfiguration {
				p := newPad(0, 0, "Kick", 1)
				p.Volume = math.NaN()
				return p
			},
			b: func() model.PadConfiguration {
				p := newPad(0, 0, "Kick", 1)
				p.Volume = math.Inf(1)
				return p
			},
			aLast: 5, bLast: 5,
		},
		{
			name: "asymmetric last sync",
			a: func() model.PadConfiguration {
				p := newPad(0, 0, "Kick", 1)
				p.Name = "Snare"
				p.Touch("name", at(9))
				return p
			},
			b: func() model.PadConfiguration {
				return newPad(0, 0, "Kick", 1)
			},
			aLast: 4, bLast: 6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ab := MergeRecord(model.PadKind, tt.a(), tt.b(), at(tt.aLast), at(tt.bLast))
			ba := MergeRecord(model.PadKind, tt.b(), tt.a(), at(tt.bLast), at(tt.aLast))
			if !ab.OK() || !ba.OK() {
				t.Fatalf("unexpected conflicts: %+v / %+v", ab.Conflicts, ba.Conflicts)
			}
			if d := model.Diff(ab.Merged, ba.Merged); d != "" {
				t.Errorf("merge is not commutative (-ab +ba):\n%s", d)
			}
		})
	}
}

func TestMergeRecord_Deterministic(t *testing.T) {
	local := newPad(1, 2, "Siren", 1)
	local.Touch("name", at(6))
	remote := newPad(1, 2, "Siren", 1)
	remote.Color = "blue"
	remote.Touch("color", at(7))

	first := MergeRecord(model.PadKind, local, remote, at(5), at(5))
	for i := 0; i < 10; i++ {
		again := MergeRecord(model.PadKind, local, remote, at(5), at(5))
		if d := model.Diff(first, again); d != "" {
			t.Fatalf("merge result changed between runs:\n%s", d)
		}
	}
}

func TestMergeRecord_DoesNotMutateInputs(t *testing.T) {
	local := newPad(0, 1, "Siren", 1)
	local.AudioFileIDs = []int64{1}
	remote := newPad(0, 1, "Horn", 1)
	remote.AudioFileIDs = []int64{2}
	remote.Touch("name", at(8))
	remote.Touch("audioFileIds", at(8))

	before := model.PadKind.Clone(&local)
	result := MergeRecord(model.PadKind, local, remote, at(5), at(5))
	result.Merged.AudioFileIDs[0] = 99

	if d := model.Diff(before, local); d != "" {
		t.Errorf("local was mutated:\n%s", d)
	}
	if remote.AudioFileIDs[0] != 2 {
		t.Error("merged record shares storage with remote")
	}
}

func TestMergeRecord_NeverSynced(t *testing.T) {
	// With no common sync point every stamped field counts as changed.
	local := newPad(0, 1, "Siren", 1)
	remote := newPad(0, 1, "Horn", 2)

	result := MergeRecord(model.PadKind, local, remote, time.Time{}, time.Time{})
	if result.OK() {
		t.Fatal("expected a conflict on name when neither side has synced")
	}
	if len(result.Conflicts) != 1 || result.Conflicts[0].Field != "name" {
		t.Errorf("expected only name to conflict, got %+v", result.Conflicts)
	}
}

func TestMergeRecord_Profile(t *testing.T) {
	local := newDataset("p1", "Live", 1).Profile
	local.Tags = []string{"gig"}
	local.Touch("tags", at(9))
	remote := newDataset("p1", "Live", 1).Profile
	remote.Description = "Friday set"
	remote.Touch("description", at(9))

	result := MergeRecord(model.ProfileKind, local, remote, at(5), at(5))
	if !result.OK() {
		t.Fatalf("unexpected conflicts: %+v", result.Conflicts)
	}
	if result.Merged.Description != "Friday set" || len(result.Merged.Tags) != 1 {
		t.Errorf("expected both edits merged, got %+v", result.Merged)
	}
}
