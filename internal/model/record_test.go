package model

import (
	"testing"
	"time"
)

func TestRecordTouch(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	var r Record
	r.Stamp(PadKind.FieldNames(), t0)

	r.Touch("name", t0.Add(time.Minute))

	if got := r.FieldTime("name"); !got.Equal(t0.Add(time.Minute)) {
		t.Errorf("FieldTime(name) = %v, want %v", got, t0.Add(time.Minute))
	}
	if !r.ModifiedAt.Equal(r.Latest()) {
		t.Errorf("ModifiedAt = %v, want max field time %v", r.ModifiedAt, r.Latest())
	}
	if !r.CreatedAt.Equal(t0) {
		t.Errorf("CreatedAt = %v, want %v", r.CreatedAt, t0)
	}
}

func TestRecordTouchEmpty(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var r Record
	r.Touch("color", at)

	if !r.CreatedAt.Equal(at) || !r.ModifiedAt.Equal(at) {
		t.Errorf("expected created and modified at %v, got %v / %v", at, r.CreatedAt, r.ModifiedAt)
	}
}

func TestRecordClone(t *testing.T) {
	r := Record{FieldModifiedAt: map[string]time.Time{"name": time.Unix(1, 0)}}
	c := r.Clone()
	c.FieldModifiedAt["name"] = time.Unix(2, 0)

	if r.FieldTime("name").Unix() != 1 {
		t.Error("Clone shares field timestamp storage with the original")
	}
}

func TestMinMaxTime(t *testing.T) {
	a := time.Unix(10, 0)
	b := time.Unix(20, 0)

	tests := []struct {
		name string
		got  time.Time
		want time.Time
	}{
		{"max", MaxTime(a, b), b},
		{"max reversed", MaxTime(b, a), b},
		{"min", MinTime(a, b), a},
		{"min ignores zero left", MinTime(time.Time{}, b), b},
		{"min ignores zero right", MinTime(a, time.Time{}), a},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.got.Equal(tt.want) {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestKindFieldNames(t *testing.T) {
	tests := []struct {
		name string
		got  []string
		want []string
	}{
		{"profile", ProfileKind.FieldNames(), []string{"name", "description", "gridRows", "gridColumns", "masterVolume", "tags"}},
		{"pad", PadKind.FieldNames(), []string{"name", "color", "audioFileIds", "volume", "fadeInMs", "fadeOutMs", "playbackMode", "shortcut"}},
		{"page", PageKind.FieldNames(), []string{"name", "color", "hidden"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !Equal(tt.got, tt.want) {
				t.Errorf("FieldNames() = %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestTouchChanged(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	before := PadConfiguration{PageIndex: 0, PadIndex: 1, Name: "Siren", Volume: 1}
	before.Stamp(PadKind.FieldNames(), t0)

	after := PadKind.Clone(&before)
	after.Name = "Horn"
	after.AudioFileIDs = []int64{}

	at := t0.Add(time.Hour)
	if n := PadKind.TouchChanged(&before, &after, at); n != 1 {
		t.Fatalf("TouchChanged() = %d, want 1 (empty slice equals nil)", n)
	}
	if !after.FieldTime("name").Equal(at) {
		t.Errorf("name not restamped: %v", after.FieldTime("name"))
	}
	if !after.FieldTime("volume").Equal(t0) {
		t.Errorf("volume should keep its timestamp, got %v", after.FieldTime("volume"))
	}
	if !after.ModifiedAt.Equal(at) {
		t.Errorf("ModifiedAt = %v, want %v", after.ModifiedAt, at)
	}
}

func TestParsePadKey(t *testing.T) {
	page, pad, err := ParsePadKey(PadKey(2, 7))
	if err != nil {
		t.Fatalf("ParsePadKey() error = %v", err)
	}
	if page != 2 || pad != 7 {
		t.Errorf("ParsePadKey() = %d, %d, want 2, 7", page, pad)
	}

	for _, bad := range []string{"", "3", "a:1", "1:b"} {
		if _, _, err := ParsePadKey(bad); err == nil {
			t.Errorf("ParsePadKey(%q) expected error", bad)
		}
	}
}
