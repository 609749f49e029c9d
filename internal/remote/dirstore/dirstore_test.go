package dirstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauern/padsync/internal/model"
	"github.com/klauern/padsync/internal/sync"
)

func testDataset(name string) *model.Dataset {
	ds := &model.Dataset{
		FormatVersion: model.FormatVersion,
		Profile:       model.Profile{ID: "p1", Name: name, GridRows: 2, GridColumns: 2, MasterVolume: 1},
		PadConfigurations: []model.PadConfiguration{
			{PageIndex: 0, PadIndex: 0, Name: "Kick", AudioFileIDs: []int64{1}, Volume: 1},
		},
		PageMetadata: []model.PageMetadata{},
		AudioFiles:   []model.Asset{{ID: 1, Name: "kick.wav", MimeType: "audio/wav", Data: []byte{0, 1, 2}}},
	}
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	ds.Profile.Stamp(model.ProfileKind.FieldNames(), at)
	ds.PadConfigurations[0].Stamp(model.PadKind.FieldNames(), at)
	return ds
}

func TestNew_RequiresDir(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("New(\"\") should fail")
	}
}

func TestUploadDownload(t *testing.T) {
	ctx := context.Background()
	s, err := New(filepath.Join(t.TempDir(), "shared"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ds := testDataset("Live Set")
	name := model.RemoteFileName(ds.Profile.Name)
	h, err := s.Upload(ctx, name, ds, nil)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if h.Name != name || h.ID != StableID(name) {
		t.Errorf("Upload() handle = %+v", h)
	}

	got, err := s.Download(ctx, *h)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	ds.AudioFiles[0].SHA256 = ds.AudioFiles[0].Hash()
	if !model.Equal(ds, got) {
		t.Errorf("Download() mismatch (-want +got):\n%s", model.Diff(ds, got))
	}

	// download by id only
	got, err = s.Download(ctx, sync.FileHandle{ID: h.ID})
	if err != nil || got == nil {
		t.Fatalf("Download(by id) = %v, %v", got, err)
	}

	entries, _ := os.ReadDir(s.Dir())
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want 1 (temp files left behind?)", len(entries))
	}
}

func TestFind(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	h, err := s.FindByName(ctx, "absent.padsync.json")
	if err != nil || h != nil {
		t.Errorf("FindByName(absent) = %v, %v; want nil, nil", h, err)
	}
	h, err = s.FindByStableID(ctx, StableID("absent.padsync.json"))
	if err != nil || h != nil {
		t.Errorf("FindByStableID(absent) = %v, %v; want nil, nil", h, err)
	}

	name := model.RemoteFileName("Set")
	if _, err := s.Upload(ctx, name, testDataset("Set"), nil); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	byName, err := s.FindByName(ctx, name)
	if err != nil || byName == nil {
		t.Fatalf("FindByName() = %v, %v", byName, err)
	}
	byID, err := s.FindByStableID(ctx, byName.ID)
	if err != nil || byID == nil {
		t.Fatalf("FindByStableID() = %v, %v", byID, err)
	}
	if byID.Name != name {
		t.Errorf("FindByStableID().Name = %q, want %q", byID.Name, name)
	}

	list, err := s.List()
	if err != nil || len(list) != 1 {
		t.Errorf("List() = %v, %v", list, err)
	}
}

func TestFindByName_RejectsPaths(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, name := range []string{"", "../x.padsync.json", "a/b.padsync.json", ".hidden"} {
		_, err := s.FindByName(context.Background(), name)
		if !sync.IsKind(err, sync.KindInvalidDataset) {
			t.Errorf("FindByName(%q) error = %v, want invalid dataset", name, err)
		}
	}
}

func TestUpload_RenameRemovesOldFile(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	old, err := s.Upload(ctx, model.RemoteFileName("Old"), testDataset("Old"), nil)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	renamed, err := s.Upload(ctx, model.RemoteFileName("New"), testDataset("New"), old)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if renamed.ID == old.ID {
		t.Error("renamed file kept the old id")
	}
	gone, err := s.FindByStableID(ctx, old.ID)
	if err != nil || gone != nil {
		t.Errorf("old file still present: %v, %v", gone, err)
	}
}

func TestDownload_Errors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ds, err := s.Download(ctx, sync.FileHandle{Name: "gone.padsync.json"})
	if err != nil || ds != nil {
		t.Errorf("Download(gone) = %v, %v; want nil, nil", ds, err)
	}

	bad := "bad.padsync.json"
	if err := os.WriteFile(filepath.Join(dir, bad), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err = s.Download(ctx, sync.FileHandle{Name: bad})
	if !sync.IsKind(err, sync.KindInvalidDataset) {
		t.Errorf("Download(bad) error = %v, want invalid dataset", err)
	}

	newer := "newer.padsync.json"
	if err := os.WriteFile(filepath.Join(dir, newer), []byte(`{"formatVersion": 99}`), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err = s.Download(ctx, sync.FileHandle{Name: newer})
	if !sync.IsKind(err, sync.KindInvalidDataset) {
		t.Errorf("Download(newer) error = %v, want invalid dataset", err)
	}
}

func TestMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shared")
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := os.Remove(dir); err != nil {
		t.Fatal(err)
	}

	_, err = s.FindByStableID(context.Background(), "x")
	if !sync.IsKind(err, sync.KindRemoteNotFound) {
		t.Errorf("FindByStableID() error = %v, want remote not found", err)
	}
}
