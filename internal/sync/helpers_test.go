package sync

import (
	"context"
	"errors"
	"strconv"
	stdsync "sync"
	"time"

	"github.com/klauern/padsync/internal/model"
)

var errNoProfile = errors.New("profile not found")

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// at returns a timestamp n seconds after the test epoch.
func at(n int) time.Time {
	return epoch.Add(time.Duration(n) * time.Second)
}

func atPtr(n int) *time.Time {
	t := at(n)
	return &t
}

func newPad(page, pad int, name string, created int) model.PadConfiguration {
	p := model.PadConfiguration{PageIndex: page, PadIndex: pad, Name: name, Volume: 1}
	p.Stamp(model.PadKind.FieldNames(), at(created))
	return p
}

func newPage(index int, name string, created int) model.PageMetadata {
	p := model.PageMetadata{PageIndex: index, Name: name}
	p.Stamp(model.PageKind.FieldNames(), at(created))
	return p
}

func newDataset(id, name string, created int) *model.Dataset {
	ds := &model.Dataset{
		FormatVersion:     model.FormatVersion,
		Profile:           model.Profile{ID: id, Name: name, GridRows: 4, GridColumns: 4, MasterVolume: 1},
		PadConfigurations: []model.PadConfiguration{},
		PageMetadata:      []model.PageMetadata{},
		AudioFiles:        []model.Asset{},
	}
	ds.Profile.Stamp(model.ProfileKind.FieldNames(), at(created))
	return ds
}

type fakeClock struct {
	mu  stdsync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type memLocal struct {
	mu       stdsync.Mutex
	datasets map[string]*model.Dataset
	lastSync map[string]time.Time
	links    map[string]string
	applyErr error
	applies  int
}

func newMemLocal(datasets ...*model.Dataset) *memLocal {
	l := &memLocal{
		datasets: make(map[string]*model.Dataset),
		lastSync: make(map[string]time.Time),
		links:    make(map[string]string),
	}
	for _, ds := range datasets {
		l.datasets[ds.Profile.ID] = ds.Clone()
		if ds.LastSyncTimestamp != nil {
			l.lastSync[ds.Profile.ID] = *ds.LastSyncTimestamp
		}
	}
	return l
}

func (l *memLocal) ReadDataset(_ context.Context, profileID string) (*model.Dataset, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ds, ok := l.datasets[profileID]
	if !ok {
		return nil, errNoProfile
	}
	out := ds.Clone()
	out.LastSyncTimestamp = nil
	if ts, ok := l.lastSync[profileID]; ok {
		out.LastSyncTimestamp = &ts
	}
	return out, nil
}

func (l *memLocal) ApplyDataset(_ context.Context, profileID string, ds *model.Dataset) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.applyErr != nil {
		return l.applyErr
	}
	l.applies++
	resume := l.datasets[profileID].ResumeAfter
	next := ds.Clone()
	next.LastSyncTimestamp = nil
	next.ResumeAfter = resume
	l.datasets[profileID] = next
	return nil
}

func (l *memLocal) HasProfile(_ context.Context, profileID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.datasets[profileID]
	return ok, nil
}

func (l *memLocal) ReadLastSyncTimestamp(_ context.Context, profileID string) (time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSync[profileID], nil
}

func (l *memLocal) WriteLastSyncTimestamp(_ context.Context, profileID string, ts time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastSync[profileID] = ts
	return nil
}

func (l *memLocal) RemoteLink(_ context.Context, profileID string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.links[profileID], nil
}

func (l *memLocal) SetRemoteLink(_ context.Context, profileID, fileID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.links[profileID] = fileID
	return nil
}

func (l *memLocal) SetResumeAfter(_ context.Context, profileID string, until *time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.datasets[profileID].ResumeAfter = until
	return nil
}

func (l *memLocal) dataset(profileID string) *model.Dataset {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.datasets[profileID].Clone()
}

type memRemote struct {
	mu      stdsync.Mutex
	files   map[string]*model.Dataset
	names   map[string]string
	next    int
	uploads int
	calls   int
	errs    []error

	// block, when set, is waited on by FindByName.
	block   chan struct{}
	entered chan struct{}
}

func newMemRemote() *memRemote {
	return &memRemote{
		files: make(map[string]*model.Dataset),
		names: make(map[string]string),
	}
}

// put stores ds under name and returns its id.
func (r *memRemote) put(name string, ds *model.Dataset) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	id := "file-" + strconv.Itoa(r.next)
	r.files[id] = ds.Clone()
	r.names[id] = name
	return id
}

func (r *memRemote) failNext(errs ...error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, errs...)
}

func (r *memRemote) popErr() error {
	r.calls++
	if len(r.errs) == 0 {
		return nil
	}
	err := r.errs[0]
	r.errs = r.errs[1:]
	return err
}

func (r *memRemote) FindByStableID(_ context.Context, id string) (*FileHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.popErr(); err != nil {
		return nil, err
	}
	if _, ok := r.files[id]; !ok {
		return nil, nil
	}
	return &FileHandle{ID: id, Name: r.names[id]}, nil
}

func (r *memRemote) FindByName(ctx context.Context, name string) (*FileHandle, error) {
	if r.block != nil {
		if r.entered != nil {
			close(r.entered)
		}
		select {
		case <-r.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.popErr(); err != nil {
		return nil, err
	}
	for id, n := range r.names {
		if n == name {
			return &FileHandle{ID: id, Name: n}, nil
		}
	}
	return nil, nil
}

func (r *memRemote) Download(_ context.Context, h FileHandle) (*model.Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.popErr(); err != nil {
		return nil, err
	}
	ds, ok := r.files[h.ID]
	if !ok {
		return nil, nil
	}
	return ds.Clone(), nil
}

func (r *memRemote) Upload(_ context.Context, name string, ds *model.Dataset, existing *FileHandle) (*FileHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.popErr(); err != nil {
		return nil, err
	}
	r.uploads++
	id := ""
	if existing != nil {
		id = existing.ID
	} else {
		r.next++
		id = "file-" + strconv.Itoa(r.next)
	}
	r.files[id] = ds.Clone()
	r.names[id] = name
	return &FileHandle{ID: id, Name: name}, nil
}

func (r *memRemote) file(id string) *model.Dataset {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.files[id].Clone()
}

func (r *memRemote) uploadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.uploads
}

type countingRefresher struct {
	calls int
	err   error
}

func (c *countingRefresher) Refresh(context.Context) error {
	c.calls++
	return c.err
}
