package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klauern/padsync/internal/model"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "padsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	now := epoch
	s.SetClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	})
	return s
}

func sampleDataset(id string) *model.Dataset {
	ds := &model.Dataset{
		FormatVersion: model.FormatVersion,
		Profile:       model.Profile{ID: id, Name: "Live Set", GridRows: 4, GridColumns: 8, MasterVolume: 0.8, Tags: []string{"gig"}},
		PadConfigurations: []model.PadConfiguration{
			{PageIndex: 0, PadIndex: 1, Name: "Kick", Color: "#ff0000", AudioFileIDs: []int64{1}, Volume: 1, PlaybackMode: "oneshot"},
			{PageIndex: 0, PadIndex: 0, Name: "Snare", AudioFileIDs: []int64{}, Volume: 0.5, FadeInMs: 10},
		},
		PageMetadata: []model.PageMetadata{
			{PageIndex: 0, Name: "Main"},
			{PageIndex: 1, Name: "Extras", Hidden: true},
		},
		AudioFiles: []model.Asset{
			{ID: 1, Name: "kick.wav", MimeType: "audio/wav", Data: []byte("RIFFkick")},
		},
	}
	ds.AudioFiles[0].SHA256 = ds.AudioFiles[0].Hash()
	ds.Profile.Stamp(model.ProfileKind.FieldNames(), epoch)
	for i := range ds.PadConfigurations {
		ds.PadConfigurations[i].Stamp(model.PadKind.FieldNames(), epoch.Add(time.Duration(i)*time.Minute))
	}
	for i := range ds.PageMetadata {
		ds.PageMetadata[i].Stamp(model.PageKind.FieldNames(), epoch)
	}
	return ds
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "padsync.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	assert.Equal(t, path, s.Path())
	assert.FileExists(t, path)
}

func TestReadDataset_MissingProfile(t *testing.T) {
	s := openTestStore(t)

	_, err := s.ReadDataset(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestApplyDataset_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	want := sampleDataset("p1")

	require.NoError(t, s.ApplyDataset(ctx, "p1", want))

	got, err := s.ReadDataset(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, got.LastSyncTimestamp)
	assert.True(t, model.Equal(want, got), model.Diff(want, got))

	// pads come back in dataset order, not key order
	require.Len(t, got.PadConfigurations, 2)
	assert.Equal(t, "Kick", got.PadConfigurations[0].Name)
	assert.Equal(t, want.AudioFiles[0].Hash(), got.AudioFiles[0].SHA256)
}

func TestApplyDataset_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ds := sampleDataset("p1")

	require.NoError(t, s.ApplyDataset(ctx, "p1", ds))
	first, err := s.ReadDataset(ctx, "p1")
	require.NoError(t, err)

	require.NoError(t, s.ApplyDataset(ctx, "p1", first))
	second, err := s.ReadDataset(ctx, "p1")
	require.NoError(t, err)

	assert.True(t, model.Equal(first, second), model.Diff(first, second))
}

func TestApplyDataset_DeletesAbsentItems(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ds := sampleDataset("p1")
	require.NoError(t, s.ApplyDataset(ctx, "p1", ds))

	trimmed := ds.Clone()
	trimmed.PadConfigurations = trimmed.PadConfigurations[1:]
	trimmed.PageMetadata = trimmed.PageMetadata[:1]
	require.NoError(t, s.ApplyDataset(ctx, "p1", trimmed))

	got, err := s.ReadDataset(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, got.PadConfigurations, 1)
	assert.Equal(t, "Snare", got.PadConfigurations[0].Name)
	require.Len(t, got.PageMetadata, 1)
	assert.Equal(t, "Main", got.PageMetadata[0].Name)
	assert.Empty(t, got.AudioFiles, "unreferenced audio is not embedded")

	// the row itself survives until pruned
	removed, err := s.PruneAudio(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestApplyDataset_KeepsLastSync(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.ApplyDataset(ctx, "p1", sampleDataset("p1")))

	synced := epoch.Add(time.Hour)
	require.NoError(t, s.WriteLastSyncTimestamp(ctx, "p1", synced))
	require.NoError(t, s.ApplyDataset(ctx, "p1", sampleDataset("p1")))

	got, err := s.ReadLastSyncTimestamp(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, synced.Equal(got))

	ds, err := s.ReadDataset(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, ds.LastSyncTimestamp)
	assert.True(t, synced.Equal(*ds.LastSyncTimestamp))
}

func TestSyncState(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.ApplyDataset(ctx, "p1", sampleDataset("p1")))

	link, err := s.RemoteLink(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, link)

	require.NoError(t, s.SetRemoteLink(ctx, "p1", "file-123"))
	link, err = s.RemoteLink(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "file-123", link)

	until := epoch.Add(10 * time.Minute)
	require.NoError(t, s.SetResumeAfter(ctx, "p1", &until))
	ds, err := s.ReadDataset(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, ds.ResumeAfter)
	assert.True(t, until.Equal(*ds.ResumeAfter))

	require.NoError(t, s.SetResumeAfter(ctx, "p1", nil))
	ds, err = s.ReadDataset(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, ds.ResumeAfter)

	err = s.SetRemoteLink(ctx, "missing", "x")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCreateAndFindProfile(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.CreateProfile(ctx, "   ")
	require.Error(t, err)

	a, err := s.CreateProfile(ctx, "Rehearsal")
	require.NoError(t, err)
	assert.Equal(t, DefaultGridRows, a.GridRows)
	assert.Len(t, a.FieldModifiedAt, len(model.ProfileKind.Fields))

	id, err := s.FindProfile(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, id)

	id, err = s.FindProfile(ctx, "Rehearsal")
	require.NoError(t, err)
	assert.Equal(t, a.ID, id)

	_, err = s.FindProfile(ctx, "Unknown")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = s.CreateProfile(ctx, "Rehearsal")
	require.NoError(t, err)
	_, err = s.FindProfile(ctx, "Rehearsal")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")

	list, err := s.ListProfiles(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestDeleteProfile(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.ApplyDataset(ctx, "p1", sampleDataset("p1")))
	has, err := s.HasProfile(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, s.DeleteProfile(ctx, "p1"))
	_, err = s.ReadDataset(ctx, "p1")
	assert.True(t, errors.Is(err, ErrNotFound))
	has, err = s.HasProfile(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, has)

	assert.True(t, errors.Is(s.DeleteProfile(ctx, "p1"), ErrNotFound))
}

func TestUpdateProfile_TouchesChangedFields(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p, err := s.CreateProfile(ctx, "Set")
	require.NoError(t, err)

	changed, err := s.UpdateProfile(ctx, p.ID, func(p *model.Profile) {
		p.Name = "Set B"
		p.ID = "ignored"
	})
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	ds, err := s.ReadDataset(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Set B", ds.Profile.Name)
	assert.True(t, ds.Profile.FieldTime("name").After(ds.Profile.FieldTime("description")))
	assert.True(t, ds.Profile.ModifiedAt.Equal(ds.Profile.FieldTime("name")))

	changed, err = s.UpdateProfile(ctx, p.ID, func(p *model.Profile) {})
	require.NoError(t, err)
	assert.Zero(t, changed)
}

func TestUpdatePadAndPage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p, err := s.CreateProfile(ctx, "Set")
	require.NoError(t, err)

	changed, err := s.UpdatePad(ctx, p.ID, 0, 3, func(pad *model.PadConfiguration) { pad.Name = "Horn" })
	require.NoError(t, err)
	assert.Equal(t, len(model.PadKind.Fields), changed)

	changed, err = s.UpdatePad(ctx, p.ID, 0, 3, func(pad *model.PadConfiguration) { pad.Volume = 0.25 })
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	changed, err = s.UpdatePage(ctx, p.ID, 2, func(page *model.PageMetadata) { page.Name = "Effects" })
	require.NoError(t, err)
	assert.Equal(t, len(model.PageKind.Fields), changed)

	ds, err := s.ReadDataset(ctx, p.ID)
	require.NoError(t, err)
	pad, ok := ds.Pad(0, 3)
	require.True(t, ok)
	assert.Equal(t, "Horn", pad.Name)
	assert.Equal(t, 0.25, pad.Volume)
	assert.True(t, pad.FieldTime("volume").After(pad.FieldTime("name")))
	page, ok := ds.Page(2)
	require.True(t, ok)
	assert.Equal(t, "Effects", page.Name)

	require.NoError(t, s.DeletePad(ctx, p.ID, 0, 3))
	require.NoError(t, s.DeletePage(ctx, p.ID, 2))
	ds, err = s.ReadDataset(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, ds.PadConfigurations)
	assert.Empty(t, ds.PageMetadata)

	_, err = s.UpdatePad(ctx, "missing", 0, 0, func(*model.PadConfiguration) {})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestImportAudio(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p, err := s.CreateProfile(ctx, "Set")
	require.NoError(t, err)

	first, err := s.ImportAudio(ctx, p.ID, "a.wav", "audio/wav", []byte("aaaa"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)

	again, err := s.ImportAudio(ctx, p.ID, "copy.wav", "audio/wav", []byte("aaaa"))
	require.NoError(t, err)
	assert.Equal(t, first, again, "identical payloads share an id")

	second, err := s.ImportAudio(ctx, p.ID, "b.wav", "audio/wav", []byte("bbbb"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), second)

	_, err = s.UpdatePad(ctx, p.ID, 0, 0, func(pad *model.PadConfiguration) {
		pad.AudioFileIDs = []int64{second}
	})
	require.NoError(t, err)

	ds, err := s.ReadDataset(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, ds.AudioFiles, 1)
	assert.Equal(t, "b.wav", ds.AudioFiles[0].Name)
	assert.Equal(t, []byte("bbbb"), ds.AudioFiles[0].Data)

	removed, err := s.PruneAudio(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestReadDataset_ListsUnreferencedAudio(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.ApplyDataset(ctx, "p1", sampleDataset("p1")))
	loose, err := s.ImportAudio(ctx, "p1", "loose.wav", "audio/wav", []byte("loose"))
	require.NoError(t, err)

	ds, err := s.ReadDataset(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, ds.AudioFiles, 1, "only pad audio is embedded")
	require.Len(t, ds.StoredAssets, 2)
	assert.Contains(t, ds.StoredAssets, model.AssetRef{ID: loose, SHA256: model.Asset{Data: []byte("loose")}.Hash()})

	// a dataset from elsewhere reusing the loose id must not overwrite it
	incoming := sampleDataset("p1")
	incoming.AudioFiles = []model.Asset{{ID: loose, Name: "other.wav", MimeType: "audio/wav", Data: []byte("other")}}
	incoming.PadConfigurations[1].AudioFileIDs = []int64{loose}
	require.NoError(t, s.ApplyDataset(ctx, "p1", model.RenumberAssets(ds, incoming)))

	again, err := s.ImportAudio(ctx, "p1", "loose.wav", "audio/wav", []byte("loose"))
	require.NoError(t, err)
	assert.Equal(t, loose, again, "the loose row kept its payload")
}
